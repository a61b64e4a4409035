package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/turbocompute/backend/internal/config"
	"github.com/turbocompute/backend/pkg/clients"
	gomock "go.uber.org/mock/gomock"
)

func NewMock(t *testing.T) (*Adapter, *clients.MockHTTPClientI) {
	ctrl := gomock.NewController(t)
	client := clients.NewMockHTTPClientI(ctrl)
	adapter := New(&config.Config{
		GatewayAddress:   "https://api.razorpay.com",
		GatewayKeyID:     "rzp_test_key",
		GatewayKeySecret: "rzp_test_secret",
		WebhookSecret:    "webhook_secret",
	}, client)
	defer ctrl.Finish()
	return adapter, client
}

func TestCreateOrder(t *testing.T) {
	adapter, client := NewMock(t)

	t.Run("Successful order creation", func(t *testing.T) {
		client.EXPECT().
			Post("https://api.razorpay.com/v1/orders", gomock.Any(), gomock.Any()).
			DoAndReturn(func(url string, headers http.Header, body []byte) (int, []byte, error) {
				assert.Equal(t, "application/json", headers.Get("Content-Type"))
				assert.Contains(t, headers.Get("Authorization"), "Basic ")

				var payload map[string]any
				assert.NoError(t, json.Unmarshal(body, &payload))
				assert.Equal(t, float64(50000), payload["amount"])
				assert.Equal(t, "intent-1", payload["receipt"])
				notes := payload["notes"].(map[string]any)
				assert.Equal(t, "1", notes["owner_id"])

				return http.StatusOK, []byte(`{"id":"order_EKwxwAgItmmXdp"}`), nil
			})

		order, err := adapter.CreateOrder(500.0, "intent-1", map[string]string{"owner_id": "1", "intent_id": "intent-1"})
		assert.NoError(t, err)
		assert.Equal(t, "order_EKwxwAgItmmXdp", order.ID)
	})

	t.Run("Gateway rejects request", func(t *testing.T) {
		client.EXPECT().
			Post("https://api.razorpay.com/v1/orders", gomock.Any(), gomock.Any()).
			Return(http.StatusUnauthorized, []byte(`{"error":"bad credentials"}`), nil)

		order, err := adapter.CreateOrder(500.0, "intent-1", nil)
		assert.Error(t, err)
		assert.Nil(t, order)
	})

	t.Run("Transport error", func(t *testing.T) {
		client.EXPECT().
			Post("https://api.razorpay.com/v1/orders", gomock.Any(), gomock.Any()).
			Return(0, nil, errors.New("connection refused"))

		order, err := adapter.CreateOrder(500.0, "intent-1", nil)
		assert.Error(t, err)
		assert.Nil(t, order)
	})

	t.Run("Response missing order id", func(t *testing.T) {
		client.EXPECT().
			Post("https://api.razorpay.com/v1/orders", gomock.Any(), gomock.Any()).
			Return(http.StatusOK, []byte(`{}`), nil)

		order, err := adapter.CreateOrder(500.0, "intent-1", nil)
		assert.Error(t, err)
		assert.Nil(t, order)
	})
}

func TestVerifySignature(t *testing.T) {
	adapter, _ := NewMock(t)
	body := []byte(`{"event":"payment.captured"}`)

	mac := hmac.New(sha256.New, []byte("webhook_secret"))
	mac.Write(body)
	signature := hex.EncodeToString(mac.Sum(nil))

	t.Run("Valid signature", func(t *testing.T) {
		assert.True(t, adapter.VerifySignature(body, signature))
	})

	t.Run("Tampered body", func(t *testing.T) {
		assert.False(t, adapter.VerifySignature([]byte(`{"event":"payment.captured","amount":1}`), signature))
	})

	t.Run("Wrong signature", func(t *testing.T) {
		assert.False(t, adapter.VerifySignature(body, "deadbeef"))
	})

	t.Run("Empty signature", func(t *testing.T) {
		assert.False(t, adapter.VerifySignature(body, ""))
	})
}
