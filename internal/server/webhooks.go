package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	exteventdomain "github.com/quorumdesk/panelgate/internal/extevent/domain"
	policydomain "github.com/quorumdesk/panelgate/internal/policy/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type billingWebhookEvent struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	TenantID  string          `json:"tenant_id"`
	Data      json.RawMessage `json:"data"`
}

type tierChangedData struct {
	Tier string `json:"tier"`
}

// HandleBillingWebhook applies a billing provider event exactly once. A
// replayed event id returns 200 with deduplicated=true and runs nothing.
func (s *Server) HandleBillingWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	var event billingWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(event.EventID) == "" {
		AbortWithError(c, exteventdomain.ErrInvalidEventID)
		return
	}

	handler := s.billingEventHandler(event)
	deduplicated, err := s.exteventSvc.Process(c.Request.Context(), event.EventID, event.EventType, body, handler)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"event_id":     event.EventID,
		"deduplicated": deduplicated,
	})
}

func (s *Server) billingEventHandler(event billingWebhookEvent) exteventdomain.Handler {
	return func(ctx context.Context, tx *gorm.DB) error {
		switch event.EventType {
		case "billing.tier_changed":
			var data tierChangedData
			if err := json.Unmarshal(event.Data, &data); err != nil {
				return invalidRequestError()
			}
			tier := strings.TrimSpace(data.Tier)
			switch tier {
			case policydomain.TierFree, policydomain.TierStarter, policydomain.TierScale:
			default:
				return invalidRequestError()
			}
			return tx.Exec(
				`UPDATE tenants SET tier = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
				tier, strings.TrimSpace(event.TenantID),
			).Error
		default:
			// Unknown event types are recorded by the marker row only; the
			// provider keeps its own schema ahead of ours.
			s.log.Info("billing event recorded without side effects",
				zap.String("event_type", event.EventType),
			)
			return nil
		}
	}
}
