package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/turbocompute/backend/internal/config"
	"github.com/turbocompute/backend/pkg/clients"
	"go.uber.org/zap"
)

// Normalized provider statuses.
const (
	StatusRunning    = "running"
	StatusStopped    = "stopped"
	StatusTerminated = "terminated"
	StatusFailed     = "failed"
)

// ErrProvider marks transient provider failures; callers retry on their own
// cadence, never synchronously.
var ErrProvider = errors.New("provider error")

type Instance struct {
	ProviderInstanceID string
	Status             string
	IP                 *string
}

// Adapter talks to the vast-style task API of the compute provider.
type Adapter struct {
	url    string
	apiKey string
	client clients.HTTPClientI
}

func New(cfg *config.Config, client clients.HTTPClientI) *Adapter {
	return &Adapter{
		url:    cfg.ProviderAddress,
		apiKey: cfg.ProviderAPIKey,
		client: client,
	}
}

type taskResponse struct {
	ID     string  `json:"id"`
	TaskID string  `json:"task_id"`
	Status string  `json:"status"`
	IP     *string `json:"ip"`
}

func (a *Adapter) headers() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+a.apiKey)
	h.Set("Content-Type", "application/json")
	return h
}

func (a *Adapter) Create(planCode string, hours int) (*Instance, error) {
	payload, err := json.Marshal(map[string]any{
		"image":     planCode,
		"duration":  hours * 3600,
		"ninstance": 1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal create payload: %v", ErrProvider, err)
	}

	statusCode, respBody, err := a.client.Post(a.url+"/tasks/create", a.headers(), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrProvider, err)
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: create returned status %d", ErrProvider, statusCode)
	}

	var resp taskResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse create response: %v", ErrProvider, err)
	}

	id := resp.TaskID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return nil, fmt.Errorf("%w: create response missing task id", ErrProvider)
	}

	return &Instance{
		ProviderInstanceID: id,
		Status:             normalizeStatus(resp.Status),
		IP:                 resp.IP,
	}, nil
}

func (a *Adapter) GetStatus(providerInstanceID string) (*Instance, error) {
	statusCode, respBody, _, err := a.client.Get(a.url+"/tasks/"+providerInstanceID, a.headers())
	if err != nil {
		return nil, fmt.Errorf("%w: status request: %v", ErrProvider, err)
	}
	if statusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status returned %d", ErrProvider, statusCode)
	}

	var resp taskResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("%w: parse status response: %v", ErrProvider, err)
	}

	return &Instance{
		ProviderInstanceID: providerInstanceID,
		Status:             normalizeStatus(resp.Status),
		IP:                 resp.IP,
	}, nil
}

func (a *Adapter) Terminate(providerInstanceID string) error {
	statusCode, _, err := a.client.Post(a.url+"/tasks/"+providerInstanceID+"/stop", a.headers(), nil)
	if err != nil {
		return fmt.Errorf("%w: terminate request: %v", ErrProvider, err)
	}
	if statusCode != http.StatusOK {
		return fmt.Errorf("%w: terminate returned %d", ErrProvider, statusCode)
	}
	return nil
}

func normalizeStatus(s string) string {
	switch s {
	case "running", "creating", "loading", "starting", "":
		return StatusRunning
	case "stopped", "paused":
		return StatusStopped
	case "terminated", "exited", "done":
		return StatusTerminated
	case "failed", "error":
		return StatusFailed
	default:
		zap.L().Warn("unrecognized provider status", zap.String("status", s))
		return StatusRunning
	}
}
