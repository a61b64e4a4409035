package walletrepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/pg"
	"go.uber.org/zap"
)

// Repository owns every balance mutation. A balance column is never written
// without inserting the matching ledger entry in the same transaction.
type Repository struct {
	db        pg.Database
	txManager pg.TXManager
}

func New(db pg.Database, txManager pg.TXManager) *Repository {
	return &Repository{
		db:        db,
		txManager: txManager,
	}
}

func (r *Repository) GetAccount(ctx context.Context, ownerID int) (*domain.WalletAccount, error) {
	query := `
        SELECT id, owner_id, balance, low_balance_threshold, referral_bonus_given
        FROM wallet_accounts
        WHERE owner_id = $1
    `
	row := r.db.QueryRow(ctx, query, ownerID)
	var account domain.WalletAccount
	err := row.Scan(&account.ID, &account.OwnerID, &account.Balance, &account.LowBalanceThreshold, &account.ReferralBonusGiven)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("failed to get wallet account", zap.Error(err))
		return nil, err
	}
	return &account, nil
}

// EnsureAccount creates the zero-balance account on first reference.
func (r *Repository) EnsureAccount(ctx context.Context, ownerID int) (*domain.WalletAccount, error) {
	query := `
        INSERT INTO wallet_accounts (owner_id, balance, low_balance_threshold, referral_bonus_given)
        VALUES ($1, 0, 0, FALSE)
        ON CONFLICT (owner_id) DO NOTHING
    `
	if _, err := r.db.Exec(ctx, query, ownerID); err != nil {
		zap.L().Error("failed to ensure wallet account", zap.Error(err))
		return nil, err
	}
	return r.GetAccount(ctx, ownerID)
}

func (r *Repository) GetEntry(ctx context.Context, id int) (*domain.LedgerEntry, error) {
	query := `
        SELECT id, owner_id, amount, kind, external_ref, created_at
        FROM ledger_entries
        WHERE id = $1
    `
	row := r.db.QueryRow(ctx, query, id)
	var entry domain.LedgerEntry
	err := row.Scan(&entry.ID, &entry.OwnerID, &entry.Amount, &entry.Kind, &entry.ExternalRef, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("failed to get ledger entry", zap.Error(err))
		return nil, err
	}
	return &entry, nil
}

func (r *Repository) FindEntryByRef(ctx context.Context, kind string, externalRef string) (*domain.LedgerEntry, error) {
	query := `
        SELECT id, owner_id, amount, kind, external_ref, created_at
        FROM ledger_entries
        WHERE kind = $1 AND external_ref = $2
    `
	row := r.db.QueryRow(ctx, query, kind, externalRef)
	var entry domain.LedgerEntry
	err := row.Scan(&entry.ID, &entry.OwnerID, &entry.Amount, &entry.Kind, &entry.ExternalRef, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		zap.L().Error("failed to find ledger entry by ref", zap.Error(err))
		return nil, err
	}
	return &entry, nil
}

// Credit atomically increases the balance and appends the entry. When the
// entry carries an external ref that was already applied, the existing entry
// is returned unchanged, which collapses webhook redelivery to one credit,
// whether the duplicate arrives before or during this transaction.
func (r *Repository) Credit(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	var result *domain.LedgerEntry
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		if _, err := r.EnsureAccount(ctx, entry.OwnerID); err != nil {
			return err
		}
		if entry.ExternalRef != nil {
			existing, err := r.FindEntryByRef(ctx, entry.Kind, *entry.ExternalRef)
			if err != nil {
				return err
			}
			if existing != nil {
				result = existing
				return nil
			}
		}

		query := `
			UPDATE wallet_accounts
			SET balance = balance + $2
			WHERE owner_id = $1
		`
		if _, err := r.db.Exec(ctx, query, entry.OwnerID, entry.Amount); err != nil {
			zap.L().Error("failed to credit wallet account", zap.Error(err))
			return err
		}

		saved, err := r.insertEntry(ctx, entry)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		// Two deliveries of the same ref can both pass the lookup above; the
		// unique index on (kind, external_ref) stops the loser. Its transaction
		// is rolled back, so the winner's entry is the credit.
		if entry.ExternalRef != nil && isUniqueViolation(err) {
			existing, findErr := r.FindEntryByRef(ctx, entry.Kind, *entry.ExternalRef)
			if findErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Debit atomically decreases the balance with a conditional update so two
// concurrent debits can never both consume the same funds. The entry amount
// is negative.
func (r *Repository) Debit(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	var result *domain.LedgerEntry
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		if _, err := r.EnsureAccount(ctx, entry.OwnerID); err != nil {
			return err
		}

		query := `
			UPDATE wallet_accounts
			SET balance = balance + $2
			WHERE owner_id = $1 AND balance + $2 >= 0
		`
		tag, err := r.db.Exec(ctx, query, entry.OwnerID, entry.Amount)
		if err != nil {
			zap.L().Error("failed to debit wallet account", zap.Error(err))
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrInsufficientFunds
		}

		saved, err := r.insertEntry(ctx, entry)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CreditReferralBonus flips referral_bonus_given on the referred account and
// credits the referrer inside the same transaction. Returns nil without
// crediting when the flag was already set.
func (r *Repository) CreditReferralBonus(ctx context.Context, referredOwnerID int, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	var result *domain.LedgerEntry
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		if _, err := r.EnsureAccount(ctx, referredOwnerID); err != nil {
			return err
		}

		query := `
			UPDATE wallet_accounts
			SET referral_bonus_given = TRUE
			WHERE owner_id = $1 AND referral_bonus_given = FALSE
		`
		tag, err := r.db.Exec(ctx, query, referredOwnerID)
		if err != nil {
			zap.L().Error("failed to set referral bonus flag", zap.Error(err))
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		saved, err := r.Credit(ctx, entry)
		if err != nil {
			return err
		}
		result = saved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Repository) ListEntries(ctx context.Context, ownerID int) ([]domain.LedgerEntry, error) {
	query := `
        SELECT id, owner_id, amount, kind, external_ref, created_at
        FROM ledger_entries
        WHERE owner_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		zap.L().Error("failed to fetch ledger entries", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		var entry domain.LedgerEntry
		err := rows.Scan(&entry.ID, &entry.OwnerID, &entry.Amount, &entry.Kind, &entry.ExternalRef, &entry.CreatedAt)
		if err != nil {
			zap.L().Error("failed to scan ledger entry row", zap.Error(err))
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SumEntries recomputes the balance from the audit trail; the result must
// always equal wallet_accounts.balance for the same owner.
func (r *Repository) SumEntries(ctx context.Context, ownerID int) (float64, error) {
	query := `
        SELECT COALESCE(SUM(amount), 0)
        FROM ledger_entries
        WHERE owner_id = $1
    `
	var sum float64
	if err := r.db.QueryRow(ctx, query, ownerID).Scan(&sum); err != nil {
		zap.L().Error("failed to sum ledger entries", zap.Error(err))
		return 0, err
	}
	return sum, nil
}

func (r *Repository) insertEntry(ctx context.Context, entry *domain.LedgerEntry) (*domain.LedgerEntry, error) {
	query := `
		INSERT INTO ledger_entries (owner_id, amount, kind, external_ref)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, query, entry.OwnerID, entry.Amount, entry.Kind, entry.ExternalRef).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		zap.L().Error("can't save ledger entry", zap.Error(err))
		return nil, err
	}
	return entry, nil
}
