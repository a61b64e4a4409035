package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/dto"
	"github.com/turbocompute/backend/pkg/auth"
	"github.com/turbocompute/backend/pkg/utils"
)

// SignatureHeader carries the gateway's HMAC over the raw webhook body.
const SignatureHeader = "X-Gateway-Signature"

var validate = validator.New()

type WalletService interface {
	GetAccount(ctx context.Context, ownerID int) (*domain.WalletAccount, error)
	GetTransactions(ctx context.Context, ownerID int) ([]domain.LedgerEntry, error)
}

type PaymentService interface {
	Topup(ctx context.Context, ownerID int, amount float64) (*domain.PaymentIntent, error)
	HandleWebhook(ctx context.Context, rawBody []byte, signature string) (string, error)
}

type WalletHandler struct {
	walletService  WalletService
	paymentService PaymentService
}

func New(walletService WalletService, paymentService PaymentService) *WalletHandler {
	return &WalletHandler{
		walletService:  walletService,
		paymentService: paymentService,
	}
}

// GetWallet godoc
//
//	@Summary		Get wallet
//	@Description	Return the authenticated user's balance and low-balance threshold
//	@Tags			Wallet
//	@Produce		json
//	@Success		200	{object}	dto.WalletResponseDTO
//	@Failure		401	{object}	utils.Response	"Unauthorized"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Security		BearerAuth
//	@Router			/api/user/wallet [get]
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(auth.UserIDKey).(int)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	account, err := h.walletService.GetAccount(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get wallet")
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, dto.WalletResponseDTO{
		Balance:             account.Balance,
		LowBalanceThreshold: account.LowBalanceThreshold,
	})
}

// Topup godoc
//
//	@Summary		Start a top-up
//	@Description	Create a payment intent and a gateway order for the given amount
//	@Tags			Wallet
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.TopupRequestDTO	true	"Topup request body"
//	@Success		200		{object}	dto.TopupResponseDTO
//	@Failure		400		{object}	utils.Response	"Invalid request body"
//	@Failure		401		{object}	utils.Response	"Unauthorized"
//	@Failure		422		{object}	utils.Response	"Invalid amount"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Security		BearerAuth
//	@Router			/api/user/wallet/topup [post]
func (h *WalletHandler) Topup(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(auth.UserIDKey).(int)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req dto.TopupRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid amount")
		return
	}

	intent, err := h.paymentService.Topup(r.Context(), userID, req.Amount)
	switch {
	case errors.Is(err, domain.ErrInvalidAmount):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid amount")
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to start top-up")
	default:
		utils.RespondWithJSON(w, http.StatusOK, dto.TopupResponseDTO{
			OrderID:  intent.GatewayOrderID,
			IntentID: intent.ID,
		})
	}
}

// GetTransactions godoc
//
//	@Summary		Ledger history
//	@Description	Return the authenticated user's ledger entries, newest first
//	@Tags			Wallet
//	@Produce		json
//	@Success		200	{array}		dto.GetTransactionsResponseDTO
//	@Success		204	"No transactions"
//	@Failure		401	{object}	utils.Response	"Unauthorized"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Security		BearerAuth
//	@Router			/api/user/wallet/transactions [get]
func (h *WalletHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(auth.UserIDKey).(int)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	entries, err := h.walletService.GetTransactions(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get transactions")
		return
	}
	if len(entries) == 0 {
		utils.RespondWithJSON(w, http.StatusNoContent, nil)
		return
	}

	response := make([]dto.GetTransactionsResponseDTO, 0, len(entries))
	for _, e := range entries {
		response = append(response, dto.GetTransactionsResponseDTO{
			Amount:      e.Amount,
			Kind:        e.Kind,
			ExternalRef: e.ExternalRef,
			CreatedAt:   e.CreatedAt,
		})
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// Webhook godoc
//
//	@Summary		Payment gateway webhook
//	@Description	Apply a signed gateway event; crediting the same payment twice is a no-op
//	@Tags			Wallet
//	@Accept			json
//	@Produce		json
//	@Param			X-Gateway-Signature	header		string	true	"HMAC-SHA256 signature over the raw body"
//	@Success		200					{object}	dto.WebhookResponseDTO
//	@Failure		400					{object}	utils.Response	"Invalid signature"
//	@Failure		500					{object}	utils.Response	"Internal server error"
//	@Router			/api/webhook/payment [post]
func (h *WalletHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ack, err := h.paymentService.HandleWebhook(r.Context(), rawBody, r.Header.Get(SignatureHeader))
	switch {
	case errors.Is(err, domain.ErrInvalidSignature):
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid signature")
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to process event")
	default:
		utils.RespondWithJSON(w, http.StatusOK, dto.WebhookResponseDTO{Status: ack})
	}
}
