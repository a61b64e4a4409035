package handlers

import (
	"net/http"

	_ "github.com/turbocompute/backend/docs"
	authhandlers "github.com/turbocompute/backend/internal/handlers/auth"
	instancehandlers "github.com/turbocompute/backend/internal/handlers/instances"
	wallethandlers "github.com/turbocompute/backend/internal/handlers/wallet"
	"github.com/turbocompute/backend/internal/service"
	"github.com/turbocompute/backend/pkg/auth"
	"github.com/turbocompute/backend/pkg/ratelimit"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	httpSwagger "github.com/swaggo/http-swagger"
)

type AuthHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	Login(w http.ResponseWriter, r *http.Request)
}

type WalletHandler interface {
	GetWallet(w http.ResponseWriter, r *http.Request)
	Topup(w http.ResponseWriter, r *http.Request)
	GetTransactions(w http.ResponseWriter, r *http.Request)
	Webhook(w http.ResponseWriter, r *http.Request)
}

type InstanceHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Terminate(w http.ResponseWriter, r *http.Request)
}

type Handlers struct {
	AuthHandler     AuthHandler
	WalletHandler   WalletHandler
	InstanceHandler InstanceHandler

	limiter *ratelimit.Limiter
}

func New(s *service.Services, limiter *ratelimit.Limiter) *Handlers {
	return &Handlers{
		AuthHandler:     authhandlers.New(s.AuthService),
		WalletHandler:   wallethandlers.New(s.WalletService, s.PaymentService),
		InstanceHandler: instancehandlers.New(s.InstanceService),
		limiter:         limiter,
	}
}

func (h *Handlers) InitRoutes(r chi.Router) chi.Router {
	r.Use(
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
	)
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("doc.json"),
	))
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(h.limiter.Middleware)
			r.Post("/user/register", h.AuthHandler.Register)
			r.Post("/user/login", h.AuthHandler.Login)
			r.Post("/webhook/payment", h.WalletHandler.Webhook)
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.AuthMiddleware)
			r.Route("/user/wallet", func(r chi.Router) {
				r.Get("/", h.WalletHandler.GetWallet)
				r.Post("/topup", h.WalletHandler.Topup)
				r.Get("/transactions", h.WalletHandler.GetTransactions)
			})
			r.Route("/instances", func(r chi.Router) {
				r.Post("/", h.InstanceHandler.Create)
				r.Get("/", h.InstanceHandler.List)
				r.Get("/{id}", h.InstanceHandler.Get)
				r.Delete("/{id}", h.InstanceHandler.Terminate)
				r.Post("/{id}/terminate", h.InstanceHandler.Terminate)
			})
		})
	})

	return r
}
