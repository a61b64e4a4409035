package metering

import (
	"context"
	"testing"
	"time"

	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/notify"
	"github.com/turbocompute/backend/internal/provider"
	"github.com/turbocompute/backend/internal/service/instanceservice"
	"github.com/turbocompute/backend/internal/service/walletservice"
	"github.com/stretchr/testify/assert"
	gomock "go.uber.org/mock/gomock"
)

func NewMock(t *testing.T) (*Service, *instanceservice.MockRepo, *MockWallet, *MockProvider, *notify.MockNotifier) {
	ctrl := gomock.NewController(t)
	instanceRepo := instanceservice.NewMockRepo(ctrl)
	wallet := NewMockWallet(ctrl)
	prov := NewMockProvider(ctrl)
	notifier := notify.NewMockNotifier(ctrl)

	service := &Service{
		instanceRepo: instanceRepo,
		wallet:       wallet,
		provider:     prov,
		notifier:     notifier,
		limit:        1000,
		workerPool:   NewWorkerPool(2),
		tickInterval: time.Hour,
	}
	defer ctrl.Finish()
	return service, instanceRepo, wallet, prov, notifier
}

func runningInstance() domain.ComputeInstance {
	providerID := "task-abc"
	return domain.ComputeInstance{
		ID:                 7,
		OwnerID:            1,
		Status:             instanceservice.StatusRunning,
		PlanCode:           "gpu-a100",
		HourlyRate:         12.0,
		ProviderInstanceID: &providerID,
	}
}

func TestHandleInstance(t *testing.T) {
	t.Run("Running instance is billed for the tick", func(t *testing.T) {
		service, instanceRepo, wallet, prov, _ := NewMock(t)
		inst := runningInstance()
		ip := "203.0.113.7"

		prov.EXPECT().GetStatus("task-abc").Return(&provider.Instance{
			ProviderInstanceID: "task-abc",
			Status:             provider.StatusRunning,
			IP:                 &ip,
		}, nil)
		wallet.EXPECT().Debit(gomock.Any(), 1, 12.0, walletservice.KindUsageCharge, nil).
			Return(&domain.LedgerEntry{ID: 20, OwnerID: 1, Amount: -12.0, Kind: walletservice.KindUsageCharge}, nil)
		instanceRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, updated *domain.ComputeInstance) error {
			assert.Equal(t, instanceservice.StatusRunning, updated.Status)
			assert.Equal(t, &ip, updated.IP)
			assert.NotNil(t, updated.LastPricedAt)
			return nil
		})

		err := service.handleInstance(context.Background(), inst)
		assert.NoError(t, err)
	})

	t.Run("Insufficient funds terminates and notifies", func(t *testing.T) {
		service, instanceRepo, wallet, prov, notifier := NewMock(t)
		inst := runningInstance()

		prov.EXPECT().GetStatus("task-abc").Return(&provider.Instance{
			ProviderInstanceID: "task-abc",
			Status:             provider.StatusRunning,
		}, nil)
		wallet.EXPECT().Debit(gomock.Any(), 1, 12.0, walletservice.KindUsageCharge, nil).
			Return(nil, domain.ErrInsufficientFunds)
		notifier.EXPECT().Notify(1, gomock.Any())
		prov.EXPECT().Terminate("task-abc").Return(nil)
		instanceRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, updated *domain.ComputeInstance) error {
			assert.Equal(t, instanceservice.StatusTerminated, updated.Status)
			return nil
		})

		err := service.handleInstance(context.Background(), inst)
		assert.NoError(t, err)
	})

	t.Run("Provider terminate failure still stops billing", func(t *testing.T) {
		service, instanceRepo, wallet, prov, notifier := NewMock(t)
		inst := runningInstance()

		prov.EXPECT().GetStatus("task-abc").Return(&provider.Instance{
			ProviderInstanceID: "task-abc",
			Status:             provider.StatusRunning,
		}, nil)
		wallet.EXPECT().Debit(gomock.Any(), 1, 12.0, walletservice.KindUsageCharge, nil).
			Return(nil, domain.ErrInsufficientFunds)
		notifier.EXPECT().Notify(1, gomock.Any())
		prov.EXPECT().Terminate("task-abc").Return(provider.ErrProvider)
		instanceRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, updated *domain.ComputeInstance) error {
			assert.Equal(t, instanceservice.StatusTerminated, updated.Status)
			return nil
		})

		err := service.handleInstance(context.Background(), inst)
		assert.NoError(t, err)
	})

	t.Run("Poll failure skips billing this tick", func(t *testing.T) {
		service, _, _, prov, _ := NewMock(t)
		inst := runningInstance()

		prov.EXPECT().GetStatus("task-abc").Return(nil, provider.ErrProvider)

		err := service.handleInstance(context.Background(), inst)
		assert.NoError(t, err)
	})

	t.Run("Instance without provider id is skipped", func(t *testing.T) {
		service, _, _, _, _ := NewMock(t)
		inst := runningInstance()
		inst.ProviderInstanceID = nil

		err := service.handleInstance(context.Background(), inst)
		assert.NoError(t, err)
	})

	t.Run("Failed provider status marks error", func(t *testing.T) {
		service, instanceRepo, _, prov, _ := NewMock(t)
		inst := runningInstance()

		prov.EXPECT().GetStatus("task-abc").Return(&provider.Instance{
			ProviderInstanceID: "task-abc",
			Status:             provider.StatusFailed,
		}, nil)
		instanceRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, updated *domain.ComputeInstance) error {
			assert.Equal(t, instanceservice.StatusError, updated.Status)
			return nil
		})

		err := service.handleInstance(context.Background(), inst)
		assert.NoError(t, err)
	})

	t.Run("Stopped provider status marks terminated", func(t *testing.T) {
		service, instanceRepo, _, prov, _ := NewMock(t)
		inst := runningInstance()

		prov.EXPECT().GetStatus("task-abc").Return(&provider.Instance{
			ProviderInstanceID: "task-abc",
			Status:             provider.StatusStopped,
		}, nil)
		instanceRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, updated *domain.ComputeInstance) error {
			assert.Equal(t, instanceservice.StatusTerminated, updated.Status)
			return nil
		})

		err := service.handleInstance(context.Background(), inst)
		assert.NoError(t, err)
	})
}

func TestProcessInstances(t *testing.T) {
	service, instanceRepo, wallet, prov, _ := NewMock(t)
	inst := runningInstance()
	billed := make(chan struct{})

	instanceRepo.EXPECT().FindActive(gomock.Any(), uint32(1000)).Return([]domain.ComputeInstance{inst}, nil)
	prov.EXPECT().GetStatus("task-abc").Return(&provider.Instance{
		ProviderInstanceID: "task-abc",
		Status:             provider.StatusRunning,
	}, nil)
	wallet.EXPECT().Debit(gomock.Any(), 1, 12.0, walletservice.KindUsageCharge, nil).
		Return(&domain.LedgerEntry{ID: 20}, nil)
	instanceRepo.EXPECT().Update(gomock.Any(), gomock.Any()).DoAndReturn(func(context.Context, *domain.ComputeInstance) error {
		close(billed)
		return nil
	})

	service.processInstances(context.Background())

	select {
	case <-billed:
	case <-time.After(2 * time.Second):
		t.Fatal("instance never billed")
	}
}
