package notify

import (
	"encoding/json"
	"net/http"

	"github.com/turbocompute/backend/internal/config"
	"github.com/turbocompute/backend/pkg/clients"
	"go.uber.org/zap"
)

// Notifier delivers best-effort owner notifications; delivery failures are
// logged and never surface to the caller.
type Notifier interface {
	Notify(ownerID int, text string)
}

type Service struct {
	webhookURL string
	client     clients.HTTPClientI
}

func New(cfg *config.Config, client clients.HTTPClientI) *Service {
	return &Service{
		webhookURL: cfg.NotifyWebhook,
		client:     client,
	}
}

func (s *Service) Notify(ownerID int, text string) {
	zap.L().Info("notifying owner", zap.Int("ownerID", ownerID), zap.String("text", text))

	if s.webhookURL == "" {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"owner_id": ownerID,
		"text":     text,
	})
	if err != nil {
		zap.L().Error("can't marshal notification", zap.Error(err))
		return
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	statusCode, _, err := s.client.Post(s.webhookURL, headers, payload)
	if err != nil {
		zap.L().Warn("notification delivery failed", zap.Error(err))
		return
	}
	if statusCode >= http.StatusBadRequest {
		zap.L().Warn("notification endpoint rejected delivery", zap.Int("status", statusCode))
	}
}
