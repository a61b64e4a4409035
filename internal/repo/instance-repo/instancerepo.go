package instancerepo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/pg"
	"go.uber.org/zap"
)

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

const columns = `id, owner_id, provider_instance_id, status, plan_code, hours_requested, hourly_rate, ip, reservation_entry_id, last_priced_at, created_at`

func scanInstance(row pgx.Row, inst *domain.ComputeInstance) error {
	return row.Scan(
		&inst.ID, &inst.OwnerID, &inst.ProviderInstanceID, &inst.Status,
		&inst.PlanCode, &inst.HoursRequested, &inst.HourlyRate, &inst.IP,
		&inst.ReservationEntryID, &inst.LastPricedAt, &inst.CreatedAt,
	)
}

func (r *Repository) FindByID(ctx context.Context, id int) (*domain.ComputeInstance, error) {
	query := `
        SELECT ` + columns + `
        FROM compute_instances
        WHERE id = $1
    `
	var inst domain.ComputeInstance
	err := scanInstance(r.db.QueryRow(ctx, query, id), &inst)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		zap.L().Error("can't find instance", zap.Error(err))
		return nil, err
	}
	return &inst, nil
}

func (r *Repository) FindByOwnerID(ctx context.Context, ownerID int) ([]domain.ComputeInstance, error) {
	query := `
        SELECT ` + columns + `
        FROM compute_instances
        WHERE owner_id = $1
        ORDER BY created_at DESC
    `
	rows, err := r.db.Query(ctx, query, ownerID)
	if err != nil {
		zap.L().Error("can't get instances", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var instances []domain.ComputeInstance
	for rows.Next() {
		var inst domain.ComputeInstance
		if err := scanInstance(rows, &inst); err != nil {
			zap.L().Error("can't scan instance row", zap.Error(err))
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

func (r *Repository) Save(ctx context.Context, inst *domain.ComputeInstance) error {
	query := `
        INSERT INTO compute_instances (owner_id, provider_instance_id, status, plan_code, hours_requested, hourly_rate, ip, reservation_entry_id)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at
    `
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		err := r.db.QueryRow(ctx, query,
			inst.OwnerID, inst.ProviderInstanceID, inst.Status, inst.PlanCode,
			inst.HoursRequested, inst.HourlyRate, inst.IP, inst.ReservationEntryID,
		).Scan(&inst.ID, &inst.CreatedAt)
		if err != nil {
			zap.L().Error("can't save instance", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, inst *domain.ComputeInstance) error {
	query := `
        UPDATE compute_instances
        SET provider_instance_id = $1, status = $2, ip = $3, last_priced_at = $4
        WHERE id = $5
    `
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		_, err := r.db.Exec(ctx, query, inst.ProviderInstanceID, inst.Status, inst.IP, inst.LastPricedAt, inst.ID)
		if err != nil {
			zap.L().Error("failed to update instance", zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	return nil
}

// UpdateIfActive applies the update only while the row is in a non-terminal
// status and reports whether it took effect. A terminated or errored row stays
// as it is, so a late provisioning result can never resurrect it.
func (r *Repository) UpdateIfActive(ctx context.Context, inst *domain.ComputeInstance) (bool, error) {
	query := `
        UPDATE compute_instances
        SET provider_instance_id = $1, status = $2, ip = $3, last_priced_at = $4
        WHERE id = $5 AND status NOT IN ('terminated', 'error')
    `
	var applied bool
	err := r.txManager.Begin(ctx, func(ctx context.Context) error {
		tag, err := r.db.Exec(ctx, query, inst.ProviderInstanceID, inst.Status, inst.IP, inst.LastPricedAt, inst.ID)
		if err != nil {
			zap.L().Error("failed to update active instance", zap.Error(err))
			return err
		}
		applied = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

// FindActive returns instances the metering loop still has to price.
func (r *Repository) FindActive(ctx context.Context, limit uint32) ([]domain.ComputeInstance, error) {
	query := `
        SELECT ` + columns + `
        FROM compute_instances
        WHERE status NOT IN ('terminated', 'error')
        ORDER BY created_at ASC
        LIMIT $1
    `
	rows, err := r.db.Query(ctx, query, int(limit))
	if err != nil {
		zap.L().Error("can't get instances for metering", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var instances []domain.ComputeInstance
	for rows.Next() {
		var inst domain.ComputeInstance
		if err := scanInstance(rows, &inst); err != nil {
			zap.L().Error("can't scan instance row for metering", zap.Error(err))
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, nil
}
