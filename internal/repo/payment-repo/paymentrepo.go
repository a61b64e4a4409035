package paymentrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/pg"
	"go.uber.org/zap"
)

type Repository struct {
	db pg.Database
}

func New(db pg.Database) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Save(ctx context.Context, intent *domain.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (id, owner_id, requested_amount, gateway_order_id, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query, intent.ID, intent.OwnerID, intent.RequestedAmount, intent.GatewayOrderID, intent.Status).Scan(&intent.CreatedAt)
	if err != nil {
		zap.L().Error("can't save payment intent", zap.Error(err))
		return err
	}
	return nil
}

func (r *Repository) FindByOrderID(ctx context.Context, gatewayOrderID string) (*domain.PaymentIntent, error) {
	query := `
        SELECT id, owner_id, requested_amount, gateway_order_id, gateway_payment_id, status, created_at
        FROM payment_intents
        WHERE gateway_order_id = $1
    `
	row := r.db.QueryRow(ctx, query, gatewayOrderID)
	var intent domain.PaymentIntent
	err := row.Scan(&intent.ID, &intent.OwnerID, &intent.RequestedAmount, &intent.GatewayOrderID, &intent.GatewayPaymentID, &intent.Status, &intent.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("can't find payment intent", zap.Error(err))
		return nil, err
	}
	return &intent, nil
}

// MarkPaid records the captured payment id; the status guard keeps the
// created→order_created→paid transition one-way.
func (r *Repository) MarkPaid(ctx context.Context, intentID string, gatewayPaymentID string) error {
	query := `
        UPDATE payment_intents
        SET status = 'paid', gateway_payment_id = $2
        WHERE id = $1 AND status != 'paid'
    `
	if _, err := r.db.Exec(ctx, query, intentID, gatewayPaymentID); err != nil {
		zap.L().Error("can't mark payment intent paid", zap.Error(err))
		return err
	}
	return nil
}
