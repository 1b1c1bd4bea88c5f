package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/quorumdesk/panelgate/internal/alert/domain"
	auditdomain "github.com/quorumdesk/panelgate/internal/audit/domain"
	exteventdomain "github.com/quorumdesk/panelgate/internal/extevent/domain"
	membershipdomain "github.com/quorumdesk/panelgate/internal/membership/domain"
	policydomain "github.com/quorumdesk/panelgate/internal/policy/domain"
	quotadomain "github.com/quorumdesk/panelgate/internal/quota/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrTenantRequired     = errors.New("tenant_required")
	ErrActorRequired      = errors.New("actor_required")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := err.Error()
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrTenantRequired),
		errors.Is(err, ErrActorRequired):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: err.Error(),
		}
	case isAccessDeniedError(err):
		return http.StatusForbidden, errorPayload{
			Type:    "access_denied",
			Message: "access denied",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, auditdomain.ErrImmutableEntry):
		return http.StatusConflict, errorPayload{
			Type:    "integrity_violation",
			Message: "audit entries are immutable",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, quotadomain.ErrInvalidTenant),
		errors.Is(err, quotadomain.ErrInvalidIncrement),
		errors.Is(err, quotadomain.ErrInvalidPageToken),
		errors.Is(err, quotadomain.ErrInvalidTimeRange),
		errors.Is(err, membershipdomain.ErrInvalidTenant),
		errors.Is(err, alertdomain.ErrInvalidTenant),
		errors.Is(err, alertdomain.ErrInvalidAlert),
		errors.Is(err, auditdomain.ErrInvalidTenant),
		errors.Is(err, auditdomain.ErrInvalidActor),
		errors.Is(err, policydomain.ErrInvalidTenant),
		errors.Is(err, policydomain.ErrInvalidPolicy),
		errors.Is(err, policydomain.ErrInvalidThreshold),
		errors.Is(err, membershipdomain.ErrInvalidName),
		errors.Is(err, membershipdomain.ErrInvalidUser),
		errors.Is(err, membershipdomain.ErrInvalidRole),
		errors.Is(err, membershipdomain.ErrInvalidTier),
		errors.Is(err, membershipdomain.ErrInvalidTimezone),
		errors.Is(err, auditdomain.ErrInvalidAction),
		errors.Is(err, auditdomain.ErrInvalidPageToken),
		errors.Is(err, auditdomain.ErrInvalidTimeRange),
		errors.Is(err, exteventdomain.ErrInvalidEventID):
		return true
	default:
		return false
	}
}

func isAccessDeniedError(err error) bool {
	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, membershipdomain.ErrAccessDenied),
		errors.Is(err, policydomain.ErrAccessDenied),
		errors.Is(err, alertdomain.ErrAccessDenied):
		return true
	default:
		return false
	}
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, membershipdomain.ErrOwnerConflict),
		errors.Is(err, membershipdomain.ErrAlreadyMember),
		errors.Is(err, membershipdomain.ErrInvitationNotPending),
		errors.Is(err, alertdomain.ErrAlreadyAcked):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, membershipdomain.ErrInvalidInvitation),
		errors.Is(err, membershipdomain.ErrNotAMember),
		errors.Is(err, alertdomain.ErrAlertNotFound),
		errors.Is(err, auditdomain.ErrEntryNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
