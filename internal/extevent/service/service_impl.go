package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/quorumdesk/panelgate/internal/clock"
	"github.com/quorumdesk/panelgate/internal/extevent/domain"
	"github.com/quorumdesk/panelgate/internal/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("extevent.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: p.Metrics,
	}
}

func (s *Service) Process(ctx context.Context, eventID, eventType string, payload []byte, handler domain.Handler) (bool, error) {
	if eventID == "" {
		return false, domain.ErrInvalidEventID
	}
	if handler == nil {
		return false, domain.ErrInvalidHandler
	}

	marker := domain.ProcessedEvent{
		ID:          s.genID.Generate(),
		EventID:     eventID,
		EventType:   eventType,
		ProcessedAt: s.clock.Now(),
	}
	if len(payload) > 0 {
		marker.Payload = datatypes.JSON(payload)
	}

	alreadyProcessed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Insert the marker before any side effect. A conflict on the event
		// id means a previous delivery already committed.
		result := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).Create(&marker)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			alreadyProcessed = true
			return nil
		}
		return handler(ctx, tx)
	})
	if err != nil {
		return false, err
	}

	if alreadyProcessed {
		if s.metrics != nil {
			s.metrics.IncEventDeduplicated()
		}
		s.log.Info("duplicate external event skipped",
			zap.String("event_id", eventID),
			zap.String("event_type", eventType),
		)
		return true, nil
	}

	if s.metrics != nil {
		s.metrics.IncEventProcessed()
	}
	s.log.Info("external event processed",
		zap.String("event_id", eventID),
		zap.String("event_type", eventType),
	)
	return false, nil
}
