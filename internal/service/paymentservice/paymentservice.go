package paymentservice

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/google/uuid"
	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/gateway"
	"github.com/turbocompute/backend/internal/service/walletservice"
	"go.uber.org/zap"
)

const (
	StatusCreated      string = "created"
	StatusOrderCreated string = "order_created"
	StatusPaid         string = "paid"
	StatusFailed       string = "failed"
)

// EventPaymentCaptured is the only webhook event that mutates the ledger.
const EventPaymentCaptured = "payment.captured"

// Webhook acknowledgement outcomes.
const (
	AckProcessed = "processed"
	AckIgnored   = "ignored"
)

type PaymentRepo interface {
	Save(ctx context.Context, intent *domain.PaymentIntent) error
	FindByOrderID(ctx context.Context, gatewayOrderID string) (*domain.PaymentIntent, error)
	MarkPaid(ctx context.Context, intentID string, gatewayPaymentID string) error
}

type UserRepo interface {
	FindByID(ctx context.Context, id int) (*domain.User, error)
}

type Wallet interface {
	Credit(ctx context.Context, ownerID int, amount float64, kind string, externalRef *string) (*domain.LedgerEntry, error)
	AwardReferralBonus(ctx context.Context, referredOwnerID, referrerID int, amount float64) (bool, error)
}

type Gateway interface {
	CreateOrder(amount float64, receipt string, notes map[string]string) (*gateway.Order, error)
	VerifySignature(rawBody []byte, signature string) bool
}

type Service struct {
	paymentRepo   PaymentRepo
	userRepo      UserRepo
	wallet        Wallet
	gateway       Gateway
	referralBonus float64
}

func New(paymentRepo PaymentRepo, userRepo UserRepo, wallet Wallet, gw Gateway, referralBonus float64) *Service {
	return &Service{
		paymentRepo:   paymentRepo,
		userRepo:      userRepo,
		wallet:        wallet,
		gateway:       gw,
		referralBonus: referralBonus,
	}
}

// Topup creates one PaymentIntent per attempt and registers the gateway
// order. The owner id travels in the order notes so the webhook can attribute
// the payment without guessing.
func (s *Service) Topup(ctx context.Context, ownerID int, amount float64) (*domain.PaymentIntent, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	intent := &domain.PaymentIntent{
		ID:              uuid.NewString(),
		OwnerID:         ownerID,
		RequestedAmount: amount,
		Status:          StatusCreated,
	}

	order, err := s.gateway.CreateOrder(amount, intent.ID, map[string]string{
		"owner_id":  strconv.Itoa(ownerID),
		"intent_id": intent.ID,
	})
	if err != nil {
		zap.L().Error("can't create gateway order", zap.Int("ownerID", ownerID), zap.Error(err))
		return nil, err
	}

	intent.GatewayOrderID = order.ID
	intent.Status = StatusOrderCreated
	if err := s.paymentRepo.Save(ctx, intent); err != nil {
		return nil, err
	}
	return intent, nil
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string            `json:"id"`
				Amount  int64             `json:"amount"`
				OrderID string            `json:"order_id"`
				Notes   map[string]string `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// HandleWebhook applies a payment-captured event exactly once. Bad signatures
// fail before any state is touched; unattributable events are acknowledged as
// ignored so the gateway stops redelivering them.
func (s *Service) HandleWebhook(ctx context.Context, rawBody []byte, signature string) (string, error) {
	if !s.gateway.VerifySignature(rawBody, signature) {
		return "", domain.ErrInvalidSignature
	}

	var event webhookEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		zap.L().Warn("unparseable webhook payload", zap.Error(err))
		return AckIgnored, nil
	}
	if event.Event != EventPaymentCaptured {
		return AckIgnored, nil
	}

	entity := event.Payload.Payment.Entity
	if entity.ID == "" || entity.Amount <= 0 {
		zap.L().Warn("captured payment without id or amount", zap.String("paymentID", entity.ID))
		return AckIgnored, nil
	}
	ownerID, err := strconv.Atoi(entity.Notes["owner_id"])
	if err != nil {
		zap.L().Warn("captured payment without owner attribution", zap.String("paymentID", entity.ID))
		return AckIgnored, nil
	}

	amount := float64(entity.Amount) / 100
	paymentID := entity.ID
	if _, err := s.wallet.Credit(ctx, ownerID, amount, walletservice.KindPayment, &paymentID); err != nil {
		zap.L().Error("failed to credit payment", zap.String("paymentID", paymentID), zap.Error(err))
		return "", err
	}

	if intentID := entity.Notes["intent_id"]; intentID != "" {
		if err := s.paymentRepo.MarkPaid(ctx, intentID, paymentID); err != nil {
			// credit already applied; redelivery is safe thanks to the ref check
			zap.L().Error("failed to mark intent paid", zap.String("intentID", intentID), zap.Error(err))
		}
	}

	s.awardReferralBonus(ctx, ownerID)

	zap.L().Info("payment credited",
		zap.Int("ownerID", ownerID),
		zap.String("paymentID", paymentID),
		zap.Float64("amount", amount),
	)
	return AckProcessed, nil
}

func (s *Service) awardReferralBonus(ctx context.Context, ownerID int) {
	if s.referralBonus <= 0 {
		return
	}
	user, err := s.userRepo.FindByID(ctx, ownerID)
	if err != nil || user == nil || user.ReferredBy == nil {
		return
	}
	awarded, err := s.wallet.AwardReferralBonus(ctx, ownerID, *user.ReferredBy, s.referralBonus)
	if err != nil {
		zap.L().Error("failed to award referral bonus", zap.Int("ownerID", ownerID), zap.Error(err))
		return
	}
	if awarded {
		zap.L().Info("referral bonus awarded",
			zap.Int("referredOwnerID", ownerID),
			zap.Int("referrerID", *user.ReferredBy),
		)
	}
}
