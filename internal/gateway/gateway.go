package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/turbocompute/backend/internal/config"
	"github.com/turbocompute/backend/pkg/clients"
)

type Order struct {
	ID string `json:"id"`
}

// Adapter wraps the payment gateway's order API and its webhook signature
// scheme (HMAC-SHA256 of the raw body, hex encoded).
type Adapter struct {
	url           string
	keyID         string
	keySecret     string
	webhookSecret string
	client        clients.HTTPClientI
}

func New(cfg *config.Config, client clients.HTTPClientI) *Adapter {
	return &Adapter{
		url:           cfg.GatewayAddress,
		keyID:         cfg.GatewayKeyID,
		keySecret:     cfg.GatewayKeySecret,
		webhookSecret: cfg.WebhookSecret,
		client:        client,
	}
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	creds := base64.StdEncoding.EncodeToString([]byte(a.keyID + ":" + a.keySecret))
	h.Set("Authorization", "Basic "+creds)
	h.Set("Content-Type", "application/json")
	return h
}

// CreateOrder registers a top-up order. Amounts go over the wire in minor
// units; notes metadata lets the webhook attribute the payment later.
func (a *Adapter) CreateOrder(amount float64, receipt string, notes map[string]string) (*Order, error) {
	payload, err := json.Marshal(map[string]any{
		"amount":   int64(amount * 100),
		"currency": "INR",
		"receipt":  receipt,
		"notes":    notes,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal order payload: %w", err)
	}

	statusCode, respBody, err := a.client.Post(a.url+"/v1/orders", a.headers(), payload)
	if err != nil {
		return nil, fmt.Errorf("create order request: %w", err)
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("create order returned status %d", statusCode)
	}

	var order Order
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	if order.ID == "" {
		return nil, fmt.Errorf("order response missing id")
	}
	return &order, nil
}

func (a *Adapter) VerifySignature(rawBody []byte, signature string) bool {
	mac := hmac.New(sha256.New, []byte(a.webhookSecret))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
