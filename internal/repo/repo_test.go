package repo

import (
	"testing"

	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/turbocompute/backend/internal/pg"
	instancerepo "github.com/turbocompute/backend/internal/repo/instance-repo"
	paymentrepo "github.com/turbocompute/backend/internal/repo/payment-repo"
	userrepo "github.com/turbocompute/backend/internal/repo/user-repo"
	walletrepo "github.com/turbocompute/backend/internal/repo/wallet-repo"
	gomock "go.uber.org/mock/gomock"
)

func NewMock(t *testing.T) (*Repositories, pgxmock.PgxPoolIface) {
	ctrl := gomock.NewController(t)
	mockDB, err := pgxmock.NewPool()
	mockTxManager := pg.NewMockTXManager(ctrl)
	assert.NoError(t, err)
	repo := New(mockDB, mockTxManager)
	defer mockDB.Close()

	return repo, mockDB
}

func TestNew(t *testing.T) {
	repo, mock := NewMock(t)

	assert.NotNil(t, repo.UserRepo)
	assert.NotNil(t, repo.WalletRepo)
	assert.NotNil(t, repo.InstanceRepo)
	assert.NotNil(t, repo.PaymentRepo)

	assert.IsType(t, &userrepo.Repository{}, repo.UserRepo)
	assert.IsType(t, &walletrepo.Repository{}, repo.WalletRepo)
	assert.IsType(t, &instancerepo.Repository{}, repo.InstanceRepo)
	assert.IsType(t, &paymentrepo.Repository{}, repo.PaymentRepo)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unmet expectations: %v", err)
	}
}
