package walletservice

import (
	"context"
	"fmt"
	"strconv"

	"github.com/turbocompute/backend/internal/domain"
	"go.uber.org/zap"
)

// Ledger entry kinds. Positive amounts credit the wallet, negative debit it.
const (
	KindSignupCredit  string = "signup_credit"
	KindPayment       string = "payment"
	KindReservation   string = "reservation"
	KindRefund        string = "refund"
	KindUsageCharge   string = "usage_charge"
	KindReferralBonus string = "referral_bonus"
)

type LedgerRepo interface {
	GetAccount(ctx context.Context, ownerID int) (*domain.WalletAccount, error)
	EnsureAccount(ctx context.Context, ownerID int) (*domain.WalletAccount, error)
	GetEntry(ctx context.Context, id int) (*domain.LedgerEntry, error)
	FindEntryByRef(ctx context.Context, kind string, externalRef string) (*domain.LedgerEntry, error)
	Credit(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	Debit(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	CreditReferralBonus(ctx context.Context, referredOwnerID int, entry *domain.LedgerEntry) (*domain.LedgerEntry, error)
	ListEntries(ctx context.Context, ownerID int) ([]domain.LedgerEntry, error)
	SumEntries(ctx context.Context, ownerID int) (float64, error)
}

type Service struct {
	ledgerRepo LedgerRepo
}

func New(ledgerRepo LedgerRepo) *Service {
	return &Service{
		ledgerRepo: ledgerRepo,
	}
}

// Credit appends a positive entry and increases the balance. With a non-nil
// external ref the operation is idempotent: a repeated ref returns the entry
// recorded the first time.
func (s *Service) Credit(ctx context.Context, ownerID int, amount float64, kind string, externalRef *string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	entry := &domain.LedgerEntry{
		OwnerID:     ownerID,
		Amount:      amount,
		Kind:        kind,
		ExternalRef: externalRef,
	}
	saved, err := s.ledgerRepo.Credit(ctx, entry)
	if err != nil {
		zap.L().Error("failed to credit wallet", zap.Int("ownerID", ownerID), zap.Error(err))
		return nil, err
	}
	return saved, nil
}

// Debit appends a negative entry when the balance covers the amount.
func (s *Service) Debit(ctx context.Context, ownerID int, amount float64, kind string, externalRef *string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	entry := &domain.LedgerEntry{
		OwnerID:     ownerID,
		Amount:      -amount,
		Kind:        kind,
		ExternalRef: externalRef,
	}
	saved, err := s.ledgerRepo.Debit(ctx, entry)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Reserve holds funds against the expected cost of an action. The token
// references the reservation entry so Refund can return the exact amount.
func (s *Service) Reserve(ctx context.Context, ownerID int, amount float64) (domain.ReservationToken, error) {
	entry, err := s.Debit(ctx, ownerID, amount, KindReservation, nil)
	if err != nil {
		return 0, err
	}
	return domain.ReservationToken(entry.ID), nil
}

// Refund credits back the reserved amount. Refunding the same token twice is
// a no-op because the refund entry is keyed by the reservation entry id.
func (s *Service) Refund(ctx context.Context, token domain.ReservationToken) (*domain.LedgerEntry, error) {
	reservation, err := s.ledgerRepo.GetEntry(ctx, int(token))
	if err != nil {
		return nil, err
	}
	if reservation == nil || reservation.Kind != KindReservation {
		return nil, fmt.Errorf("reservation %d: %w", token, domain.ErrNotFound)
	}

	ref := strconv.Itoa(reservation.ID)
	return s.Credit(ctx, reservation.OwnerID, -reservation.Amount, KindRefund, &ref)
}

func (s *Service) BalanceOf(ctx context.Context, ownerID int) (float64, error) {
	account, err := s.ledgerRepo.GetAccount(ctx, ownerID)
	if err != nil {
		zap.L().Error("failed to get balance", zap.Error(err))
		return 0, err
	}
	if account == nil {
		return 0, nil
	}
	return account.Balance, nil
}

func (s *Service) GetAccount(ctx context.Context, ownerID int) (*domain.WalletAccount, error) {
	account, err := s.ledgerRepo.EnsureAccount(ctx, ownerID)
	if err != nil {
		zap.L().Error("failed to get wallet account", zap.Error(err))
		return nil, err
	}
	return account, nil
}

func (s *Service) GetTransactions(ctx context.Context, ownerID int) ([]domain.LedgerEntry, error) {
	entries, err := s.ledgerRepo.ListEntries(ctx, ownerID)
	if err != nil {
		zap.L().Error("failed to fetch ledger entries", zap.Error(err))
		return nil, err
	}
	return entries, nil
}

// AwardReferralBonus credits the referrer once per referred owner. The
// referred account's referral_bonus_given flag is checked and set in the same
// transaction as the credit.
func (s *Service) AwardReferralBonus(ctx context.Context, referredOwnerID, referrerID int, amount float64) (bool, error) {
	if amount <= 0 {
		return false, nil
	}
	ref := "referral:" + strconv.Itoa(referredOwnerID)
	entry := &domain.LedgerEntry{
		OwnerID:     referrerID,
		Amount:      amount,
		Kind:        KindReferralBonus,
		ExternalRef: &ref,
	}
	saved, err := s.ledgerRepo.CreditReferralBonus(ctx, referredOwnerID, entry)
	if err != nil {
		zap.L().Error("failed to award referral bonus", zap.Int("referredOwnerID", referredOwnerID), zap.Error(err))
		return false, err
	}
	return saved != nil, nil
}
