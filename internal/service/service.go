package service

import (
	"github.com/turbocompute/backend/internal/config"
	"github.com/turbocompute/backend/internal/repo"
	"github.com/turbocompute/backend/internal/service/authservice"
	"github.com/turbocompute/backend/internal/service/instanceservice"
	"github.com/turbocompute/backend/internal/service/paymentservice"
	"github.com/turbocompute/backend/internal/service/walletservice"

	pkgauth "github.com/turbocompute/backend/pkg/auth"
)

type Services struct {
	AuthService     *authservice.Service
	WalletService   *walletservice.Service
	InstanceService *instanceservice.Service
	PaymentService  *paymentservice.Service
}

func New(repo *repo.Repositories, cfg *config.Config, gw paymentservice.Gateway, prov instanceservice.Provider) *Services {
	walletService := walletservice.New(repo.WalletRepo)
	instanceService := instanceservice.New(repo.InstanceRepo, walletService, prov, cfg.HourlyRates())
	paymentService := paymentservice.New(repo.PaymentRepo, repo.UserRepo, walletService, gw, cfg.ReferralBonus)
	authService := authservice.New(repo.UserRepo, walletService, &pkgauth.HashService{}, &pkgauth.JWTService{}, cfg.SignupCredit)

	return &Services{
		AuthService:     authService,
		WalletService:   walletService,
		InstanceService: instanceService,
		PaymentService:  paymentService,
	}
}
