package domain

import "time"

type User struct {
	ID           int       `db:"id"`
	Login        string    `db:"login"`
	PasswordHash string    `db:"password_hash"`
	ReferralCode string    `db:"referral_code"`
	ReferredBy   *int      `db:"referred_by"`
	CreatedAt    time.Time `db:"created_at"`
}

// WalletAccount holds the current balance of an owner. The balance column is
// mutated only together with a matching LedgerEntry inside one transaction.
type WalletAccount struct {
	ID                  int     `db:"id"`
	OwnerID             int     `db:"owner_id"`
	Balance             float64 `db:"balance"`
	LowBalanceThreshold float64 `db:"low_balance_threshold"`
	ReferralBonusGiven  bool    `db:"referral_bonus_given"`
}

// LedgerEntry is an immutable audit row; positive amounts are credits,
// negative amounts are debits.
type LedgerEntry struct {
	ID          int       `db:"id"`
	OwnerID     int       `db:"owner_id"`
	Amount      float64   `db:"amount"`
	Kind        string    `db:"kind"`
	ExternalRef *string   `db:"external_ref"`
	CreatedAt   time.Time `db:"created_at"`
}

// ReservationToken references the reservation ledger entry so the exact
// reserved amount can be refunded later.
type ReservationToken int

type PaymentIntent struct {
	ID               string    `db:"id"`
	OwnerID          int       `db:"owner_id"`
	RequestedAmount  float64   `db:"requested_amount"`
	GatewayOrderID   string    `db:"gateway_order_id"`
	GatewayPaymentID *string   `db:"gateway_payment_id"`
	Status           string    `db:"status"`
	CreatedAt        time.Time `db:"created_at"`
}

type ComputeInstance struct {
	ID                 int        `db:"id"`
	OwnerID            int        `db:"owner_id"`
	ProviderInstanceID *string    `db:"provider_instance_id"`
	Status             string     `db:"status"`
	PlanCode           string     `db:"plan_code"`
	HoursRequested     int        `db:"hours_requested"`
	HourlyRate         float64    `db:"hourly_rate"`
	IP                 *string    `db:"ip"`
	ReservationEntryID int        `db:"reservation_entry_id"`
	LastPricedAt       *time.Time `db:"last_priced_at"`
	CreatedAt          time.Time  `db:"created_at"`
}
