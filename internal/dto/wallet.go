package dto

import "time"

type WalletResponseDTO struct {
	Balance             float64 `json:"balance" example:"500.5"`
	LowBalanceThreshold float64 `json:"low_balance_threshold" example:"10"`
}

type TopupRequestDTO struct {
	Amount float64 `json:"amount" validate:"required,gt=0" example:"500"`
}

type TopupResponseDTO struct {
	OrderID  string `json:"order_id" example:"order_EKwxwAgItmmXdp"`
	IntentID string `json:"intent_id" example:"7cbb8b95-0b52-4b1b-8d1f-9f1a0a2a4a11"`
}

type GetTransactionsResponseDTO struct {
	Amount      float64   `json:"amount" example:"-1.5"`
	Kind        string    `json:"kind" example:"usage_charge"`
	ExternalRef *string   `json:"external_ref,omitempty" example:"pay_29QQoUBi66xm2f"`
	CreatedAt   time.Time `json:"created_at" example:"2020-12-09T16:09:57+03:00"`
}

type WebhookResponseDTO struct {
	Status string `json:"status" example:"processed"`
}
