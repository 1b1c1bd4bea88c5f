package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/quorumdesk/panelgate/internal/membership/domain"
	"github.com/quorumdesk/panelgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  domain.Repository
}

func NewService(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("membership.service"),
		genID: p.GenID,
		repo:  p.Repo,
	}
}

func (s *Service) CreateTenant(ctx context.Context, req domain.CreateTenantRequest) (*domain.TenantResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}

	ownerID, err := snowflake.ParseString(strings.TrimSpace(req.OwnerUserID))
	if err != nil || ownerID == 0 {
		return nil, domain.ErrInvalidUser
	}

	tier := strings.TrimSpace(req.Tier)
	if tier == "" {
		tier = "free"
	}

	timezone := strings.TrimSpace(req.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return nil, domain.ErrInvalidTimezone
	}

	now := time.Now().UTC()
	tenantID := s.genID.Generate()
	tenant := domain.Tenant{
		ID:        tenantID,
		Name:      name,
		Tier:      tier,
		Timezone:  timezone,
		CreatedAt: now,
		UpdatedAt: now,
	}

	// Tenant and its sole owner row commit as one unit.
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateTenant(ctx, tenant); err != nil {
			return err
		}
		return repo.AddMember(ctx, domain.Member{
			ID:        s.genID.Generate(),
			TenantID:  tenantID,
			UserID:    ownerID,
			Role:      domain.RoleOwner,
			OwnerKey:  domain.OwnerKeyFor(tenantID),
			CreatedAt: now,
			UpdatedAt: now,
		})
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrOwnerConflict
		}
		return nil, err
	}

	s.log.Info("tenant created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("owner_user_id", ownerID.String()),
	)

	return &domain.TenantResponse{
		ID:       tenantID.String(),
		Name:     name,
		Tier:     tier,
		Timezone: timezone,
	}, nil
}

func (s *Service) GetTenant(ctx context.Context, tenantID snowflake.ID) (*domain.Tenant, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	tenant, err := s.repo.FindTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, domain.ErrInvalidTenant
	}
	return tenant, nil
}

func (s *Service) InviteMember(ctx context.Context, tenantID, callerID snowflake.ID, req domain.InviteRequest) (*domain.Invitation, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.ErrInvalidUser
	}

	role := strings.TrimSpace(req.Role)
	if !domain.ValidMemberRole(role) {
		return nil, domain.ErrInvalidRole
	}

	caller, err := s.repo.FindMember(ctx, tenantID, callerID)
	if err != nil {
		return nil, err
	}
	if caller == nil || (caller.Role != domain.RoleOwner && caller.Role != domain.RoleAdmin) {
		return nil, domain.ErrAccessDenied
	}

	invite := domain.Invitation{
		ID:        s.genID.Generate(),
		TenantID:  tenantID,
		Token:     uuid.NewString(),
		Email:     email,
		Role:      role,
		Status:    domain.InviteStatusPending,
		InvitedBy: callerID,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.repo.CreateInvitation(ctx, invite); err != nil {
		return nil, err
	}
	return &invite, nil
}

func (s *Service) AcceptInvitation(ctx context.Context, token string, userID snowflake.ID) (*domain.Member, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrInvalidInvitation
	}
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}

	var member domain.Member
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		invite, err := repo.FindInvitationByToken(ctx, token)
		if err != nil {
			return err
		}
		if invite == nil {
			return domain.ErrInvalidInvitation
		}
		if invite.Status != domain.InviteStatusPending {
			return domain.ErrInvitationNotPending
		}

		// Ownership is never grantable via invitation.
		role := invite.Role
		if role == domain.RoleOwner {
			role = domain.RoleAdmin
		}

		affected, err := repo.MarkInvitationAccepted(ctx, invite.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrInvitationNotPending
		}

		now := time.Now().UTC()
		member = domain.Member{
			ID:        s.genID.Generate(),
			TenantID:  invite.TenantID,
			UserID:    userID,
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return repo.AddMember(ctx, member)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrAlreadyMember
		}
		return nil, err
	}

	return &member, nil
}

func (s *Service) TransferOwnership(ctx context.Context, tenantID, callerID, newOwnerID snowflake.ID) error {
	if tenantID == 0 {
		return domain.ErrInvalidTenant
	}
	if callerID == 0 || newOwnerID == 0 {
		return domain.ErrInvalidUser
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		owner, err := repo.FindOwner(ctx, tenantID)
		if err != nil {
			return err
		}
		if owner == nil || owner.UserID != callerID {
			return domain.ErrAccessDenied
		}
		if newOwnerID == callerID {
			// Transfer to the current owner is a no-op, but only the
			// owner may request it.
			return nil
		}

		target, err := repo.FindMember(ctx, tenantID, newOwnerID)
		if err != nil {
			return err
		}
		if target == nil {
			return domain.ErrNotAMember
		}

		// Demote before promote so the owner-key constraint never sees two
		// owners. Zero rows affected means a concurrent transfer won.
		affected, err := repo.DemoteOwner(ctx, owner.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrOwnerConflict
		}

		affected, err = repo.PromoteToOwner(ctx, target.ID, tenantID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return domain.ErrOwnerConflict
		}
		return nil
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ErrOwnerConflict
		}
		return err
	}
	if callerID == newOwnerID {
		return nil
	}

	s.log.Info("ownership transferred",
		zap.String("tenant_id", tenantID.String()),
		zap.String("from_user_id", callerID.String()),
		zap.String("to_user_id", newOwnerID.String()),
	)
	return nil
}

func (s *Service) Role(ctx context.Context, tenantID, userID snowflake.ID) (string, error) {
	member, err := s.repo.FindMember(ctx, tenantID, userID)
	if err != nil {
		return "", err
	}
	if member == nil {
		return "", domain.ErrNotAMember
	}
	return member.Role, nil
}
