package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	_ "github.com/turbocompute/backend/docs"
	"github.com/turbocompute/backend/internal/service"
	"github.com/turbocompute/backend/pkg/ratelimit"
	gomock "go.uber.org/mock/gomock"
	"golang.org/x/time/rate"
)

func TestNew(t *testing.T) {
	h := New(&service.Services{}, ratelimit.New(rate.Limit(10), 20))
	assert.NotNil(t, h, "Handlers should not be nil")
	assert.NotNil(t, h.AuthHandler)
	assert.NotNil(t, h.WalletHandler)
	assert.NotNil(t, h.InstanceHandler)
}

func TestInitRoutes(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	mockAuthHandler := NewMockAuthHandler(ctrl)
	mockWalletHandler := NewMockWalletHandler(ctrl)
	mockInstanceHandler := NewMockInstanceHandler(ctrl)

	mockAuthHandler.EXPECT().Register(gomock.Any(), gomock.Any()).AnyTimes()
	mockAuthHandler.EXPECT().Login(gomock.Any(), gomock.Any()).AnyTimes()
	mockWalletHandler.EXPECT().GetWallet(gomock.Any(), gomock.Any()).AnyTimes()
	mockWalletHandler.EXPECT().Topup(gomock.Any(), gomock.Any()).AnyTimes()
	mockWalletHandler.EXPECT().GetTransactions(gomock.Any(), gomock.Any()).AnyTimes()
	mockWalletHandler.EXPECT().Webhook(gomock.Any(), gomock.Any()).AnyTimes()
	mockInstanceHandler.EXPECT().Create(gomock.Any(), gomock.Any()).AnyTimes()
	mockInstanceHandler.EXPECT().List(gomock.Any(), gomock.Any()).AnyTimes()
	mockInstanceHandler.EXPECT().Get(gomock.Any(), gomock.Any()).AnyTimes()
	mockInstanceHandler.EXPECT().Terminate(gomock.Any(), gomock.Any()).AnyTimes()

	h := &Handlers{
		AuthHandler:     mockAuthHandler,
		WalletHandler:   mockWalletHandler,
		InstanceHandler: mockInstanceHandler,
		limiter:         ratelimit.New(rate.Limit(10), 20),
	}

	router := chi.NewRouter()
	h.InitRoutes(router)

	tests := []struct {
		method string
		url    string
		status int
	}{
		{"POST", "/api/user/register", http.StatusOK},
		{"POST", "/api/user/login", http.StatusOK},
		{"POST", "/api/webhook/payment", http.StatusOK},
		{"GET", "/api/user/wallet", http.StatusUnauthorized},
		{"POST", "/api/user/wallet/topup", http.StatusUnauthorized},
		{"GET", "/api/user/wallet/transactions", http.StatusUnauthorized},
		{"POST", "/api/instances", http.StatusUnauthorized},
		{"GET", "/api/instances", http.StatusUnauthorized},
		{"GET", "/api/instances/7", http.StatusUnauthorized},
		{"DELETE", "/api/instances/7", http.StatusUnauthorized},
		{"POST", "/api/instances/7/terminate", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.url, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.url, nil)
			rec := httptest.NewRecorder()

			router.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
		})
	}
}
