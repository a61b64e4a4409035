package paymentservice

import (
	"context"
	"errors"
	"testing"

	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/gateway"
	"github.com/turbocompute/backend/internal/service/walletservice"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"
)

func NewMock(t *testing.T) (*Service, *MockPaymentRepo, *MockUserRepo, *MockWallet, *MockGateway) {
	ctrl := gomock.NewController(t)
	paymentRepo := NewMockPaymentRepo(ctrl)
	userRepo := NewMockUserRepo(ctrl)
	wallet := NewMockWallet(ctrl)
	gw := NewMockGateway(ctrl)
	service := New(paymentRepo, userRepo, wallet, gw, 50.0)
	defer ctrl.Finish()
	return service, paymentRepo, userRepo, wallet, gw
}

func TestTopup(t *testing.T) {
	t.Run("Creates intent and gateway order", func(t *testing.T) {
		service, paymentRepo, _, _, gw := NewMock(t)

		gw.EXPECT().CreateOrder(500.0, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ float64, receipt string, notes map[string]string) (*gateway.Order, error) {
				assert.Equal(t, "1", notes["owner_id"])
				assert.Equal(t, receipt, notes["intent_id"])
				return &gateway.Order{ID: "order_EKwxwAgItmmXdp"}, nil
			})
		paymentRepo.EXPECT().Save(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, intent *domain.PaymentIntent) error {
			assert.Equal(t, StatusOrderCreated, intent.Status)
			assert.Equal(t, "order_EKwxwAgItmmXdp", intent.GatewayOrderID)
			return nil
		})

		intent, err := service.Topup(context.Background(), 1, 500.0)
		assert.NoError(t, err)
		assert.NotEmpty(t, intent.ID)
		assert.Equal(t, "order_EKwxwAgItmmXdp", intent.GatewayOrderID)
	})

	t.Run("Rejects non-positive amount", func(t *testing.T) {
		service, _, _, _, _ := NewMock(t)

		_, err := service.Topup(context.Background(), 1, 0)
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	})

	t.Run("Gateway failure", func(t *testing.T) {
		service, _, _, _, gw := NewMock(t)
		gw.EXPECT().CreateOrder(500.0, gomock.Any(), gomock.Any()).Return(nil, errors.New("gateway down"))

		_, err := service.Topup(context.Background(), 1, 500.0)
		assert.Error(t, err)
	})
}

const capturedEvent = `{
	"event": "payment.captured",
	"payload": {"payment": {"entity": {
		"id": "pay_29QQoUBi66xm2f",
		"amount": 50000,
		"order_id": "order_EKwxwAgItmmXdp",
		"notes": {"owner_id": "1", "intent_id": "intent-1"}
	}}}
}`

func TestHandleWebhook(t *testing.T) {
	paymentID := "pay_29QQoUBi66xm2f"

	t.Run("Captured payment credits the wallet", func(t *testing.T) {
		service, paymentRepo, userRepo, wallet, gw := NewMock(t)

		gw.EXPECT().VerifySignature([]byte(capturedEvent), "sig").Return(true)
		wallet.EXPECT().Credit(gomock.Any(), 1, 500.0, walletservice.KindPayment, &paymentID).
			Return(&domain.LedgerEntry{ID: 10, OwnerID: 1, Amount: 500.0, Kind: walletservice.KindPayment, ExternalRef: &paymentID}, nil)
		paymentRepo.EXPECT().MarkPaid(gomock.Any(), "intent-1", paymentID).Return(nil)
		userRepo.EXPECT().FindByID(gomock.Any(), 1).Return(&domain.User{ID: 1}, nil)

		ack, err := service.HandleWebhook(context.Background(), []byte(capturedEvent), "sig")
		assert.NoError(t, err)
		assert.Equal(t, AckProcessed, ack)
	})

	t.Run("Redelivery credits exactly once", func(t *testing.T) {
		service, paymentRepo, userRepo, wallet, gw := NewMock(t)

		gw.EXPECT().VerifySignature([]byte(capturedEvent), "sig").Return(true).Times(2)
		// the repo collapses a repeated ref to the original entry; the service
		// sees success both times and stays idempotent end to end
		wallet.EXPECT().Credit(gomock.Any(), 1, 500.0, walletservice.KindPayment, &paymentID).
			Return(&domain.LedgerEntry{ID: 10, OwnerID: 1, Amount: 500.0, Kind: walletservice.KindPayment, ExternalRef: &paymentID}, nil).
			Times(2)
		paymentRepo.EXPECT().MarkPaid(gomock.Any(), "intent-1", paymentID).Return(nil).Times(2)
		userRepo.EXPECT().FindByID(gomock.Any(), 1).Return(&domain.User{ID: 1}, nil).Times(2)

		for i := 0; i < 2; i++ {
			ack, err := service.HandleWebhook(context.Background(), []byte(capturedEvent), "sig")
			assert.NoError(t, err)
			assert.Equal(t, AckProcessed, ack)
		}
	})

	t.Run("Bad signature touches nothing", func(t *testing.T) {
		service, _, _, _, gw := NewMock(t)
		gw.EXPECT().VerifySignature([]byte(capturedEvent), "bad").Return(false)

		_, err := service.HandleWebhook(context.Background(), []byte(capturedEvent), "bad")
		assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	})

	t.Run("Unparseable payload is acknowledged as ignored", func(t *testing.T) {
		service, _, _, _, gw := NewMock(t)
		body := []byte(`not json`)
		gw.EXPECT().VerifySignature(body, "sig").Return(true)

		ack, err := service.HandleWebhook(context.Background(), body, "sig")
		assert.NoError(t, err)
		assert.Equal(t, AckIgnored, ack)
	})

	t.Run("Non-captured event is ignored", func(t *testing.T) {
		service, _, _, _, gw := NewMock(t)
		body := []byte(`{"event":"payment.failed"}`)
		gw.EXPECT().VerifySignature(body, "sig").Return(true)

		ack, err := service.HandleWebhook(context.Background(), body, "sig")
		assert.NoError(t, err)
		assert.Equal(t, AckIgnored, ack)
	})

	t.Run("Missing owner attribution is ignored", func(t *testing.T) {
		service, _, _, _, gw := NewMock(t)
		body := []byte(`{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_x","amount":100,"notes":{}}}}}`)
		gw.EXPECT().VerifySignature(body, "sig").Return(true)

		ack, err := service.HandleWebhook(context.Background(), body, "sig")
		assert.NoError(t, err)
		assert.Equal(t, AckIgnored, ack)
	})

	t.Run("Credit failure bubbles up for redelivery", func(t *testing.T) {
		service, _, _, wallet, gw := NewMock(t)

		gw.EXPECT().VerifySignature([]byte(capturedEvent), "sig").Return(true)
		wallet.EXPECT().Credit(gomock.Any(), 1, 500.0, walletservice.KindPayment, &paymentID).
			Return(nil, errors.New("db error"))

		_, err := service.HandleWebhook(context.Background(), []byte(capturedEvent), "sig")
		assert.Error(t, err)
	})

	t.Run("MarkPaid failure does not fail the event", func(t *testing.T) {
		service, paymentRepo, userRepo, wallet, gw := NewMock(t)

		gw.EXPECT().VerifySignature([]byte(capturedEvent), "sig").Return(true)
		wallet.EXPECT().Credit(gomock.Any(), 1, 500.0, walletservice.KindPayment, &paymentID).
			Return(&domain.LedgerEntry{ID: 10}, nil)
		paymentRepo.EXPECT().MarkPaid(gomock.Any(), "intent-1", paymentID).Return(errors.New("db error"))
		userRepo.EXPECT().FindByID(gomock.Any(), 1).Return(&domain.User{ID: 1}, nil)

		ack, err := service.HandleWebhook(context.Background(), []byte(capturedEvent), "sig")
		assert.NoError(t, err)
		assert.Equal(t, AckProcessed, ack)
	})

	t.Run("Referred user triggers bonus for the referrer", func(t *testing.T) {
		service, paymentRepo, userRepo, wallet, gw := NewMock(t)
		referrerID := 5

		gw.EXPECT().VerifySignature([]byte(capturedEvent), "sig").Return(true)
		wallet.EXPECT().Credit(gomock.Any(), 1, 500.0, walletservice.KindPayment, &paymentID).
			Return(&domain.LedgerEntry{ID: 10}, nil)
		paymentRepo.EXPECT().MarkPaid(gomock.Any(), "intent-1", paymentID).Return(nil)
		userRepo.EXPECT().FindByID(gomock.Any(), 1).Return(&domain.User{ID: 1, ReferredBy: &referrerID}, nil)
		wallet.EXPECT().AwardReferralBonus(gomock.Any(), 1, 5, 50.0).Return(true, nil)

		ack, err := service.HandleWebhook(context.Background(), []byte(capturedEvent), "sig")
		assert.NoError(t, err)
		assert.Equal(t, AckProcessed, ack)
	})
}
