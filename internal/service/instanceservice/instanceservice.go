package instanceservice

import (
	"context"
	"time"

	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/provider"
	"go.uber.org/zap"
)

const (
	// StatusPending instance row exists, funds reserved, provider not called yet.
	StatusPending string = "pending"
	// StatusProvisioning provider create call is in flight.
	StatusProvisioning string = "provisioning"
	// StatusRunning provider confirmed the instance is up.
	StatusRunning string = "running"
	// StatusTerminated absorbing; billing stopped.
	StatusTerminated string = "terminated"
	// StatusError absorbing; provisioning failed and the reservation was refunded.
	StatusError string = "error"
)

const launchTimeout = 30 * time.Second

type Repo interface {
	FindByID(ctx context.Context, id int) (*domain.ComputeInstance, error)
	FindByOwnerID(ctx context.Context, ownerID int) ([]domain.ComputeInstance, error)
	Save(ctx context.Context, inst *domain.ComputeInstance) error
	Update(ctx context.Context, inst *domain.ComputeInstance) error
	UpdateIfActive(ctx context.Context, inst *domain.ComputeInstance) (bool, error)
	FindActive(ctx context.Context, limit uint32) ([]domain.ComputeInstance, error)
}

type Wallet interface {
	Reserve(ctx context.Context, ownerID int, amount float64) (domain.ReservationToken, error)
	Refund(ctx context.Context, token domain.ReservationToken) (*domain.LedgerEntry, error)
}

type Provider interface {
	Create(planCode string, hours int) (*provider.Instance, error)
	Terminate(providerInstanceID string) error
}

type Service struct {
	repo     Repo
	wallet   Wallet
	provider Provider
	rates    map[string]float64
}

func New(repo Repo, wallet Wallet, prov Provider, rates map[string]float64) *Service {
	return &Service{
		repo:     repo,
		wallet:   wallet,
		provider: prov,
		rates:    rates,
	}
}

func (s *Service) HourlyRate(planCode string) (float64, error) {
	rate, ok := s.rates[planCode]
	if !ok {
		return 0, domain.ErrUnknownPlan
	}
	return rate, nil
}

// Create reserves the estimated cost, persists the pending instance and
// returns immediately; the provider call runs detached so a slow provider
// never blocks the caller. On provisioning failure the reservation is
// refunded exactly once.
func (s *Service) Create(ctx context.Context, ownerID int, planCode string, hours int) (*domain.ComputeInstance, error) {
	rate, err := s.HourlyRate(planCode)
	if err != nil {
		return nil, err
	}
	if hours <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	estimated := rate * float64(hours)
	token, err := s.wallet.Reserve(ctx, ownerID, estimated)
	if err != nil {
		return nil, err
	}

	inst := &domain.ComputeInstance{
		OwnerID:            ownerID,
		Status:             StatusPending,
		PlanCode:           planCode,
		HoursRequested:     hours,
		HourlyRate:         rate,
		ReservationEntryID: int(token),
	}
	if err := s.repo.Save(ctx, inst); err != nil {
		zap.L().Error("can't save instance, refunding reservation", zap.Error(err))
		if _, refundErr := s.wallet.Refund(ctx, token); refundErr != nil {
			zap.L().Error("failed to refund reservation", zap.Int("token", int(token)), zap.Error(refundErr))
		}
		return nil, err
	}

	go s.launch(*inst)

	return inst, nil
}

// launch runs outside the request lifetime on its own copy of the row, so the
// value returned to the caller is never written to concurrently. Transitions
// go through UpdateIfActive: an owner terminating mid-provisioning wins, the
// late provider instance is stopped and the reservation refunded. Refund is
// idempotent by reservation token, so it resolves exactly once no matter when
// the provider call lands.
func (s *Service) launch(inst domain.ComputeInstance) {
	ctx, cancel := context.WithTimeout(context.Background(), launchTimeout)
	defer cancel()

	inst.Status = StatusProvisioning
	applied, err := s.repo.UpdateIfActive(ctx, &inst)
	if err != nil {
		zap.L().Error("can't mark instance provisioning", zap.Int("instanceID", inst.ID), zap.Error(err))
	} else if !applied {
		zap.L().Info("instance terminated before provisioning, releasing reservation", zap.Int("instanceID", inst.ID))
		s.refundReservation(ctx, &inst)
		return
	}

	created, err := s.provider.Create(inst.PlanCode, inst.HoursRequested)
	if err != nil {
		zap.L().Error("provider create failed", zap.Int("instanceID", inst.ID), zap.Error(err))
		inst.Status = StatusError
		if _, updErr := s.repo.UpdateIfActive(ctx, &inst); updErr != nil {
			zap.L().Error("can't mark instance error", zap.Int("instanceID", inst.ID), zap.Error(updErr))
		}
		s.refundReservation(ctx, &inst)
		return
	}

	inst.ProviderInstanceID = &created.ProviderInstanceID
	inst.Status = StatusRunning
	inst.IP = created.IP
	applied, err = s.repo.UpdateIfActive(ctx, &inst)
	if err != nil {
		zap.L().Error("can't mark instance running", zap.Int("instanceID", inst.ID), zap.Error(err))
		return
	}
	if !applied {
		zap.L().Info("instance terminated while provisioning, stopping provider instance",
			zap.Int("instanceID", inst.ID),
			zap.String("providerInstanceID", created.ProviderInstanceID),
		)
		if termErr := s.provider.Terminate(created.ProviderInstanceID); termErr != nil {
			zap.L().Warn("provider terminate failed for orphaned instance",
				zap.Int("instanceID", inst.ID), zap.Error(termErr))
		}
		s.refundReservation(ctx, &inst)
		return
	}
	zap.L().Info("instance provisioned",
		zap.Int("instanceID", inst.ID),
		zap.String("providerInstanceID", created.ProviderInstanceID),
	)
}

func (s *Service) refundReservation(ctx context.Context, inst *domain.ComputeInstance) {
	if _, err := s.wallet.Refund(ctx, domain.ReservationToken(inst.ReservationEntryID)); err != nil {
		zap.L().Error("failed to refund reservation", zap.Int("instanceID", inst.ID), zap.Error(err))
	}
}

func (s *Service) Get(ctx context.Context, ownerID, instanceID int) (*domain.ComputeInstance, error) {
	inst, err := s.repo.FindByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, domain.ErrNotFound
	}
	if inst.OwnerID != ownerID {
		return nil, domain.ErrForbidden
	}
	return inst, nil
}

func (s *Service) List(ctx context.Context, ownerID int) ([]domain.ComputeInstance, error) {
	instances, err := s.repo.FindByOwnerID(ctx, ownerID)
	if err != nil {
		zap.L().Error("failed to get instances", zap.Error(err))
		return nil, err
	}
	return instances, nil
}

// Terminate marks the instance terminated locally even when the provider call
// fails: billing must stop for the user regardless of provider health.
func (s *Service) Terminate(ctx context.Context, ownerID, instanceID int) (*domain.ComputeInstance, error) {
	inst, err := s.Get(ctx, ownerID, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status == StatusTerminated || inst.Status == StatusError {
		return inst, nil
	}

	if inst.ProviderInstanceID != nil {
		if err := s.provider.Terminate(*inst.ProviderInstanceID); err != nil {
			zap.L().Warn("provider terminate failed, terminating locally anyway",
				zap.Int("instanceID", inst.ID), zap.Error(err))
		}
	}

	inst.Status = StatusTerminated
	if err := s.repo.Update(ctx, inst); err != nil {
		return nil, err
	}
	return inst, nil
}

// IsTerminal reports whether a local status absorbs further transitions.
func IsTerminal(status string) bool {
	return status == StatusTerminated || status == StatusError
}
