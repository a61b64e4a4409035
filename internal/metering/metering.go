package metering

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/turbocompute/backend/internal/config"
	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/notify"
	"github.com/turbocompute/backend/internal/provider"
	"github.com/turbocompute/backend/internal/service/instanceservice"
	"github.com/turbocompute/backend/internal/service/walletservice"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var processingInstances sync.Map

type Provider interface {
	GetStatus(providerInstanceID string) (*provider.Instance, error)
	Terminate(providerInstanceID string) error
}

type Wallet interface {
	Debit(ctx context.Context, ownerID int, amount float64, kind string, externalRef *string) (*domain.LedgerEntry, error)
}

// Service is the usage metering loop: every tick it re-prices running
// instances against the provider's live status and debits wallets pro-rata.
type Service struct {
	instanceRepo instanceservice.Repo
	wallet       Wallet
	provider     Provider
	notifier     notify.Notifier
	limit        uint32
	workerPool   WorkerPoolI
	tickInterval time.Duration
}

func New(cfg *config.Config, instanceRepo instanceservice.Repo, wallet Wallet, prov Provider, notifier notify.Notifier) *Service {
	return &Service{
		instanceRepo: instanceRepo,
		wallet:       wallet,
		provider:     prov,
		notifier:     notifier,
		limit:        1000,
		workerPool:   NewWorkerPool(10),
		tickInterval: time.Duration(cfg.MeterInterval) * time.Second,
	}
}

func (s *Service) Start(ctx context.Context) {
	zap.L().Info("metering service started", zap.Duration("interval", s.tickInterval))
	s.run(ctx)
}

func (s *Service) run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("context canceled, stopping metering service")
			return
		case <-ticker.C:
			s.processInstances(ctx)
		}
	}
}

func (s *Service) processInstances(ctx context.Context) {
	instances, err := s.instanceRepo.FindActive(ctx, s.limit)
	if err != nil {
		zap.L().Error("failed to fetch instances for metering", zap.Error(err))
		return
	}

	var g errgroup.Group
	for _, inst := range instances {
		inst := inst

		if _, loaded := processingInstances.LoadOrStore(inst.ID, struct{}{}); loaded {
			continue
		}

		g.Go(func() error {
			err := s.workerPool.AddTask(ctx, func() error {
				defer processingInstances.Delete(inst.ID)
				return s.handleInstance(ctx, inst)
			})
			if err != nil {
				processingInstances.Delete(inst.ID)
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		zap.L().Error("error dispatching metering tasks", zap.Error(err))
	}
}

// handleInstance prices one instance for this tick. A failed provider poll
// skips billing until the next tick: never bill blind, never terminate on a
// poll error.
func (s *Service) handleInstance(ctx context.Context, inst domain.ComputeInstance) error {
	if inst.ProviderInstanceID == nil {
		// still provisioning; the lifecycle manager owns it until then
		return nil
	}

	live, err := s.provider.GetStatus(*inst.ProviderInstanceID)
	if err != nil {
		zap.L().Warn("provider poll failed, skipping billing this tick",
			zap.Int("instanceID", inst.ID), zap.Error(err))
		return nil
	}

	switch live.Status {
	case provider.StatusRunning:
		return s.chargeInstance(ctx, inst, live)
	case provider.StatusFailed:
		inst.Status = instanceservice.StatusError
		return s.instanceRepo.Update(ctx, &inst)
	default: // stopped, terminated
		inst.Status = instanceservice.StatusTerminated
		return s.instanceRepo.Update(ctx, &inst)
	}
}

func (s *Service) chargeInstance(ctx context.Context, inst domain.ComputeInstance, live *provider.Instance) error {
	charge := inst.HourlyRate * s.tickInterval.Hours()
	if charge <= 0 {
		return nil
	}

	_, err := s.wallet.Debit(ctx, inst.OwnerID, charge, walletservice.KindUsageCharge, nil)
	if errors.Is(err, domain.ErrInsufficientFunds) {
		s.notifier.Notify(inst.OwnerID, "Your balance ran out; instance is being terminated.")
		if termErr := s.provider.Terminate(*inst.ProviderInstanceID); termErr != nil {
			zap.L().Warn("provider terminate failed after insufficient funds",
				zap.Int("instanceID", inst.ID), zap.Error(termErr))
		}
		inst.Status = instanceservice.StatusTerminated
		return s.instanceRepo.Update(ctx, &inst)
	}
	if err != nil {
		return err
	}

	now := time.Now()
	inst.Status = instanceservice.StatusRunning
	inst.IP = live.IP
	inst.LastPricedAt = &now
	if err := s.instanceRepo.Update(ctx, &inst); err != nil {
		return err
	}

	zap.L().Debug("instance billed",
		zap.Int("instanceID", inst.ID),
		zap.Float64("charge", charge),
	)
	return nil
}
