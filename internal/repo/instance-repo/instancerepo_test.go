package instancerepo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/pg"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

func NewMock(t *testing.T) (*Repository, pgxmock.PgxPoolIface) {
	ctrl := gomock.NewController(t)
	mockTxManager := pg.NewMockTXManager(ctrl)
	mockTxManager.EXPECT().Begin(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, fn pg.TransactionalFn) error {
			return fn(ctx)
		}).AnyTimes()

	mockDB, err := pgxmock.NewPool()
	assert.NoError(t, err)
	repo := New(mockDB, mockTxManager)
	defer mockDB.Close()
	defer ctrl.Finish()

	return repo, mockDB
}

func instanceRows(providerID *string, status string) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "owner_id", "provider_instance_id", "status", "plan_code",
		"hours_requested", "hourly_rate", "ip", "reservation_entry_id", "last_priced_at", "created_at",
	}).AddRow(7, 1, providerID, status, "gpu-a100", 2, 12.0, nil, 42, nil, time.Now())
}

func TestRepository_FindByID(t *testing.T) {
	repo, mock := NewMock(t)
	providerID := "task-abc"

	tests := []struct {
		name      string
		mockSetup func()
		expectErr bool
		found     bool
	}{
		{
			name: "Existing instance",
			mockSetup: func() {
				mock.ExpectQuery(`SELECT .+ FROM compute_instances WHERE id = \$1`).
					WithArgs(7).
					WillReturnRows(instanceRows(&providerID, "running"))
			},
			found: true,
		},
		{
			name: "Unknown instance returns nil",
			mockSetup: func() {
				mock.ExpectQuery(`SELECT .+ FROM compute_instances WHERE id = \$1`).
					WithArgs(7).
					WillReturnError(pgx.ErrNoRows)
			},
		},
		{
			name: "Database error",
			mockSetup: func() {
				mock.ExpectQuery(`SELECT .+ FROM compute_instances WHERE id = \$1`).
					WithArgs(7).
					WillReturnError(errors.New("database error"))
			},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mockSetup()
			inst, err := repo.FindByID(context.Background(), 7)

			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			if tt.found {
				assert.Equal(t, 7, inst.ID)
				assert.Equal(t, "task-abc", *inst.ProviderInstanceID)
			} else {
				assert.Nil(t, inst)
			}
		})
	}
}

func TestRepository_Save(t *testing.T) {
	repo, mock := NewMock(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO compute_instances (owner_id, provider_instance_id, status, plan_code, hours_requested, hourly_rate, ip, reservation_entry_id) VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at`)).
		WithArgs(1, (*string)(nil), "pending", "gpu-a100", 2, 12.0, (*string)(nil), 42).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(7, now))

	inst := &domain.ComputeInstance{
		OwnerID:            1,
		Status:             "pending",
		PlanCode:           "gpu-a100",
		HoursRequested:     2,
		HourlyRate:         12.0,
		ReservationEntryID: 42,
	}
	err := repo.Save(context.Background(), inst)
	assert.NoError(t, err)
	assert.Equal(t, 7, inst.ID)
	assert.Equal(t, now, inst.CreatedAt)
}

func TestRepository_Update(t *testing.T) {
	repo, mock := NewMock(t)
	providerID := "task-abc"

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE compute_instances SET provider_instance_id = $1, status = $2, ip = $3, last_priced_at = $4 WHERE id = $5`)).
		WithArgs(&providerID, "running", (*string)(nil), (*time.Time)(nil), 7).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Update(context.Background(), &domain.ComputeInstance{
		ID:                 7,
		Status:             "running",
		ProviderInstanceID: &providerID,
	})
	assert.NoError(t, err)
}

func TestRepository_UpdateIfActive(t *testing.T) {
	repo, mock := NewMock(t)
	providerID := "task-abc"
	query := regexp.QuoteMeta(`UPDATE compute_instances SET provider_instance_id = $1, status = $2, ip = $3, last_priced_at = $4 WHERE id = $5 AND status NOT IN ('terminated', 'error')`)

	t.Run("Active row is updated", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(&providerID, "running", (*string)(nil), (*time.Time)(nil), 7).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		applied, err := repo.UpdateIfActive(context.Background(), &domain.ComputeInstance{
			ID:                 7,
			Status:             "running",
			ProviderInstanceID: &providerID,
		})
		assert.NoError(t, err)
		assert.True(t, applied)
	})

	t.Run("Terminated row is left untouched", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(&providerID, "running", (*string)(nil), (*time.Time)(nil), 7).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		applied, err := repo.UpdateIfActive(context.Background(), &domain.ComputeInstance{
			ID:                 7,
			Status:             "running",
			ProviderInstanceID: &providerID,
		})
		assert.NoError(t, err)
		assert.False(t, applied)
	})

	t.Run("Database error", func(t *testing.T) {
		mock.ExpectExec(query).
			WithArgs(&providerID, "running", (*string)(nil), (*time.Time)(nil), 7).
			WillReturnError(errors.New("database error"))

		_, err := repo.UpdateIfActive(context.Background(), &domain.ComputeInstance{
			ID:                 7,
			Status:             "running",
			ProviderInstanceID: &providerID,
		})
		assert.Error(t, err)
	})
}

func TestRepository_FindActive(t *testing.T) {
	repo, mock := NewMock(t)
	providerID := "task-abc"

	mock.ExpectQuery(`SELECT .+ FROM compute_instances WHERE status NOT IN \('terminated', 'error'\)`).
		WithArgs(1000).
		WillReturnRows(instanceRows(&providerID, "running"))

	instances, err := repo.FindActive(context.Background(), 1000)
	assert.NoError(t, err)
	assert.Len(t, instances, 1)
	assert.Equal(t, "running", instances[0].Status)
}

func TestRepository_FindByOwnerID(t *testing.T) {
	repo, mock := NewMock(t)

	t.Run("Owner with instances", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM compute_instances WHERE owner_id = \$1`).
			WithArgs(1).
			WillReturnRows(instanceRows(nil, "pending"))

		instances, err := repo.FindByOwnerID(context.Background(), 1)
		assert.NoError(t, err)
		assert.Len(t, instances, 1)
	})

	t.Run("Database error", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM compute_instances WHERE owner_id = \$1`).
			WithArgs(1).
			WillReturnError(errors.New("database error"))

		_, err := repo.FindByOwnerID(context.Background(), 1)
		assert.Error(t, err)
	})
}
