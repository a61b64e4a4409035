package repo

import (
	"github.com/turbocompute/backend/internal/pg"
	instancerepo "github.com/turbocompute/backend/internal/repo/instance-repo"
	paymentrepo "github.com/turbocompute/backend/internal/repo/payment-repo"
	userrepo "github.com/turbocompute/backend/internal/repo/user-repo"
	walletrepo "github.com/turbocompute/backend/internal/repo/wallet-repo"
)

// Repositories holds the concrete repo types: several of them back more than
// one service interface (user-repo serves both auth and payment attribution).
type Repositories struct {
	UserRepo     *userrepo.Repository
	WalletRepo   *walletrepo.Repository
	InstanceRepo *instancerepo.Repository
	PaymentRepo  *paymentrepo.Repository
}

func New(conn pg.Database, txManager pg.TXManager) *Repositories {
	userRepo := userrepo.New(conn)
	walletRepo := walletrepo.New(conn, txManager)
	instanceRepo := instancerepo.New(conn, txManager)
	paymentRepo := paymentrepo.New(conn)

	return &Repositories{
		UserRepo:     userRepo,
		WalletRepo:   walletRepo,
		InstanceRepo: instanceRepo,
		PaymentRepo:  paymentRepo,
	}
}
