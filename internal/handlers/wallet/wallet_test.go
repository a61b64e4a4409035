package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/dto"
	"github.com/turbocompute/backend/internal/service/paymentservice"
	"github.com/turbocompute/backend/internal/service/walletservice"
	"github.com/turbocompute/backend/pkg/auth"
	gomock "go.uber.org/mock/gomock"
)

func NewMock(t *testing.T) (*WalletHandler, *MockWalletService, *MockPaymentService) {
	ctrl := gomock.NewController(t)
	walletService := NewMockWalletService(ctrl)
	paymentService := NewMockPaymentService(ctrl)
	handler := New(walletService, paymentService)
	defer ctrl.Finish()
	return handler, walletService, paymentService
}

func TestGetWalletHandler(t *testing.T) {
	handler, walletService, _ := NewMock(t)

	tests := []struct {
		name         string
		prepareMock  func()
		authorized   bool
		expectedCode int
		expectedBody dto.WalletResponseDTO
	}{
		{
			name: "Successful retrieval",
			prepareMock: func() {
				walletService.EXPECT().
					GetAccount(context.WithValue(context.Background(), auth.UserIDKey, 1), 1).
					Return(&domain.WalletAccount{
						OwnerID:             1,
						Balance:             500.5,
						LowBalanceThreshold: 10.0,
					}, nil)
			},
			authorized:   true,
			expectedCode: http.StatusOK,
			expectedBody: dto.WalletResponseDTO{
				Balance:             500.5,
				LowBalanceThreshold: 10.0,
			},
		},
		{
			name:         "Unauthorized",
			prepareMock:  func() {},
			expectedCode: http.StatusUnauthorized,
		},
		{
			name: "Internal server error",
			prepareMock: func() {
				walletService.EXPECT().
					GetAccount(context.WithValue(context.Background(), auth.UserIDKey, 1), 1).
					Return(nil, errors.New("error"))
			},
			authorized:   true,
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()
			r := httptest.NewRequest(http.MethodGet, "/wallet", nil)
			if tt.authorized {
				r = r.WithContext(context.WithValue(context.Background(), auth.UserIDKey, 1))
			}
			w := httptest.NewRecorder()
			handler.GetWallet(w, r)
			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var body dto.WalletResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.Equal(t, tt.expectedBody, body)
			}
		})
	}
}

func TestTopupHandler(t *testing.T) {
	handler, _, paymentService := NewMock(t)

	tests := []struct {
		name          string
		body          string
		prepareMock   func()
		expectedCode  int
		expectedError string
	}{
		{
			name: "Successful topup",
			body: `{"amount":500}`,
			prepareMock: func() {
				paymentService.EXPECT().
					Topup(context.WithValue(context.Background(), auth.UserIDKey, 1), 1, 500.0).
					Return(&domain.PaymentIntent{
						ID:             "intent-1",
						OwnerID:        1,
						GatewayOrderID: "order_EKwxwAgItmmXdp",
					}, nil)
			},
			expectedCode: http.StatusOK,
		},
		{
			name: "Invalid request body",
			body: `{"amount":invalid}`,
			prepareMock: func() {
			},
			expectedCode:  http.StatusBadRequest,
			expectedError: "Invalid request body",
		},
		{
			name:          "Zero amount",
			body:          `{"amount":0}`,
			prepareMock:   func() {},
			expectedCode:  http.StatusUnprocessableEntity,
			expectedError: "Invalid amount",
		},
		{
			name: "Amount rejected by service",
			body: `{"amount":0.001}`,
			prepareMock: func() {
				paymentService.EXPECT().
					Topup(context.WithValue(context.Background(), auth.UserIDKey, 1), 1, 0.001).
					Return(nil, domain.ErrInvalidAmount)
			},
			expectedCode:  http.StatusUnprocessableEntity,
			expectedError: "Invalid amount",
		},
		{
			name: "Internal server error",
			body: `{"amount":500}`,
			prepareMock: func() {
				paymentService.EXPECT().
					Topup(context.WithValue(context.Background(), auth.UserIDKey, 1), 1, 500.0).
					Return(nil, errors.New("error"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()

			r := httptest.NewRequest(http.MethodPost, "/wallet/topup", bytes.NewBufferString(tt.body))
			r = r.WithContext(context.WithValue(context.Background(), auth.UserIDKey, 1))
			w := httptest.NewRecorder()

			handler.Topup(w, r)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
			}
			if tt.expectedCode == http.StatusOK {
				var body dto.TopupResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.Equal(t, "order_EKwxwAgItmmXdp", body.OrderID)
				assert.Equal(t, "intent-1", body.IntentID)
			}
		})
	}
}

func TestGetTransactionsHandler(t *testing.T) {
	handler, walletService, _ := NewMock(t)
	now := time.Now()
	ref := "pay_29QQoUBi66xm2f"

	tests := []struct {
		name         string
		prepareMock  func()
		expectedCode int
		expectedBody []dto.GetTransactionsResponseDTO
	}{
		{
			name: "Successful retrieval",
			prepareMock: func() {
				walletService.EXPECT().
					GetTransactions(context.WithValue(context.Background(), auth.UserIDKey, 1), 1).
					Return([]domain.LedgerEntry{
						{
							Amount:      500.0,
							Kind:        walletservice.KindPayment,
							ExternalRef: &ref,
							CreatedAt:   now,
						},
						{
							Amount:    -1.5,
							Kind:      walletservice.KindUsageCharge,
							CreatedAt: now,
						},
					}, nil)
			},
			expectedCode: http.StatusOK,
			expectedBody: []dto.GetTransactionsResponseDTO{
				{Amount: 500.0, Kind: walletservice.KindPayment, ExternalRef: &ref, CreatedAt: now},
				{Amount: -1.5, Kind: walletservice.KindUsageCharge, CreatedAt: now},
			},
		},
		{
			name: "No transactions",
			prepareMock: func() {
				walletService.EXPECT().
					GetTransactions(context.WithValue(context.Background(), auth.UserIDKey, 1), 1).
					Return([]domain.LedgerEntry{}, nil)
			},
			expectedCode: http.StatusNoContent,
		},
		{
			name: "Internal server error",
			prepareMock: func() {
				walletService.EXPECT().
					GetTransactions(context.WithValue(context.Background(), auth.UserIDKey, 1), 1).
					Return(nil, errors.New("error"))
			},
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()

			r := httptest.NewRequest(http.MethodGet, "/wallet/transactions", nil)
			r = r.WithContext(context.WithValue(context.Background(), auth.UserIDKey, 1))
			w := httptest.NewRecorder()

			handler.GetTransactions(w, r)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedCode == http.StatusOK {
				var body []dto.GetTransactionsResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&body)
				assert.Equal(t, len(tt.expectedBody), len(body))
				for i := range tt.expectedBody {
					assert.Equal(t, tt.expectedBody[i].Amount, body[i].Amount)
					assert.Equal(t, tt.expectedBody[i].Kind, body[i].Kind)
					assert.True(t, tt.expectedBody[i].CreatedAt.Equal(body[i].CreatedAt))
				}
			}
		})
	}
}

func TestWebhookHandler(t *testing.T) {
	handler, _, paymentService := NewMock(t)
	body := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_29QQoUBi66xm2f"}}}}`

	tests := []struct {
		name          string
		signature     string
		prepareMock   func()
		expectedCode  int
		expectedError string
		expectedAck   string
	}{
		{
			name:      "Event processed",
			signature: "deadbeef",
			prepareMock: func() {
				paymentService.EXPECT().
					HandleWebhook(context.Background(), []byte(body), "deadbeef").
					Return(paymentservice.AckProcessed, nil)
			},
			expectedCode: http.StatusOK,
			expectedAck:  paymentservice.AckProcessed,
		},
		{
			name:      "Unknown event acknowledged",
			signature: "deadbeef",
			prepareMock: func() {
				paymentService.EXPECT().
					HandleWebhook(context.Background(), []byte(body), "deadbeef").
					Return(paymentservice.AckIgnored, nil)
			},
			expectedCode: http.StatusOK,
			expectedAck:  paymentservice.AckIgnored,
		},
		{
			name:      "Invalid signature",
			signature: "bogus",
			prepareMock: func() {
				paymentService.EXPECT().
					HandleWebhook(context.Background(), []byte(body), "bogus").
					Return("", domain.ErrInvalidSignature)
			},
			expectedCode:  http.StatusBadRequest,
			expectedError: "Invalid signature",
		},
		{
			name:      "Internal server error",
			signature: "deadbeef",
			prepareMock: func() {
				paymentService.EXPECT().
					HandleWebhook(context.Background(), []byte(body), "deadbeef").
					Return("", errors.New("error"))
			},
			expectedCode:  http.StatusInternalServerError,
			expectedError: "Failed to process event",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.prepareMock()

			r := httptest.NewRequest(http.MethodPost, "/webhook/payment", bytes.NewBufferString(body))
			r.Header.Set(SignatureHeader, tt.signature)
			w := httptest.NewRecorder()

			handler.Webhook(w, r)

			assert.Equal(t, tt.expectedCode, w.Code)
			if tt.expectedError != "" {
				assert.Contains(t, w.Body.String(), tt.expectedError)
			}
			if tt.expectedAck != "" {
				var resp dto.WebhookResponseDTO
				_ = json.NewDecoder(w.Body).Decode(&resp)
				assert.Equal(t, tt.expectedAck, resp.Status)
			}
		})
	}
}
