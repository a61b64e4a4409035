package instances

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/turbocompute/backend/internal/domain"
	"github.com/turbocompute/backend/internal/dto"
	"github.com/turbocompute/backend/pkg/auth"
	"github.com/turbocompute/backend/pkg/utils"
)

var validate = validator.New()

type Service interface {
	Create(ctx context.Context, ownerID int, planCode string, hours int) (*domain.ComputeInstance, error)
	Get(ctx context.Context, ownerID, instanceID int) (*domain.ComputeInstance, error)
	List(ctx context.Context, ownerID int) ([]domain.ComputeInstance, error)
	Terminate(ctx context.Context, ownerID, instanceID int) (*domain.ComputeInstance, error)
}

type InstanceHandler struct {
	instanceService Service
}

func New(instanceService Service) *InstanceHandler {
	return &InstanceHandler{
		instanceService: instanceService,
	}
}

// Create godoc
//
//	@Summary		Launch an instance
//	@Description	Reserve the estimated cost and start provisioning a compute instance
//	@Tags			Instances
//	@Accept			json
//	@Produce		json
//	@Param			request	body		dto.CreateInstanceRequestDTO	true	"Create instance request body"
//	@Success		202		{object}	dto.InstanceResponseDTO
//	@Failure		400		{object}	utils.Response	"Invalid request body"
//	@Failure		401		{object}	utils.Response	"Unauthorized"
//	@Failure		402		{object}	utils.Response	"Insufficient funds"
//	@Failure		422		{object}	utils.Response	"Unknown plan"
//	@Failure		500		{object}	utils.Response	"Internal server error"
//	@Security		BearerAuth
//	@Router			/api/instances [post]
func (h *InstanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(auth.UserIDKey).(int)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	var req dto.CreateInstanceRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid request body")
		return
	}

	inst, err := h.instanceService.Create(r.Context(), userID, req.PlanCode, req.Hours)
	switch {
	case errors.Is(err, domain.ErrUnknownPlan):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Unknown plan")
	case errors.Is(err, domain.ErrInvalidAmount):
		utils.RespondWithError(w, http.StatusUnprocessableEntity, "Invalid request body")
	case errors.Is(err, domain.ErrInsufficientFunds):
		utils.RespondWithError(w, http.StatusPaymentRequired, "Insufficient funds")
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to create instance")
	default:
		utils.RespondWithJSON(w, http.StatusAccepted, toResponse(inst))
	}
}

// List godoc
//
//	@Summary		List instances
//	@Description	Return all instances belonging to the authenticated user
//	@Tags			Instances
//	@Produce		json
//	@Success		200	{array}		dto.InstanceResponseDTO
//	@Success		204	"No instances"
//	@Failure		401	{object}	utils.Response	"Unauthorized"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Security		BearerAuth
//	@Router			/api/instances [get]
func (h *InstanceHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(auth.UserIDKey).(int)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	instances, err := h.instanceService.List(r.Context(), userID)
	if err != nil {
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to list instances")
		return
	}
	if len(instances) == 0 {
		utils.RespondWithJSON(w, http.StatusNoContent, nil)
		return
	}

	response := make([]dto.InstanceResponseDTO, 0, len(instances))
	for i := range instances {
		response = append(response, *toResponse(&instances[i]))
	}
	utils.RespondWithJSON(w, http.StatusOK, response)
}

// Get godoc
//
//	@Summary		Get an instance
//	@Description	Return one instance; only the owner may see it
//	@Tags			Instances
//	@Produce		json
//	@Param			id	path		int	true	"Instance ID"
//	@Success		200	{object}	dto.InstanceResponseDTO
//	@Failure		400	{object}	utils.Response	"Invalid instance id"
//	@Failure		401	{object}	utils.Response	"Unauthorized"
//	@Failure		403	{object}	utils.Response	"Forbidden"
//	@Failure		404	{object}	utils.Response	"Not found"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Security		BearerAuth
//	@Router			/api/instances/{id} [get]
func (h *InstanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(auth.UserIDKey).(int)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	instanceID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid instance id")
		return
	}

	inst, err := h.instanceService.Get(r.Context(), userID, instanceID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Instance not found")
	case errors.Is(err, domain.ErrForbidden):
		utils.RespondWithError(w, http.StatusForbidden, "Forbidden")
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to get instance")
	default:
		utils.RespondWithJSON(w, http.StatusOK, toResponse(inst))
	}
}

// Terminate godoc
//
//	@Summary		Terminate an instance
//	@Description	Stop billing and tear the instance down; terminating twice is a no-op
//	@Tags			Instances
//	@Produce		json
//	@Param			id	path		int	true	"Instance ID"
//	@Success		200	{object}	dto.InstanceResponseDTO
//	@Failure		400	{object}	utils.Response	"Invalid instance id"
//	@Failure		401	{object}	utils.Response	"Unauthorized"
//	@Failure		403	{object}	utils.Response	"Forbidden"
//	@Failure		404	{object}	utils.Response	"Not found"
//	@Failure		500	{object}	utils.Response	"Internal server error"
//	@Security		BearerAuth
//	@Router			/api/instances/{id} [delete]
//	@Router			/api/instances/{id}/terminate [post]
func (h *InstanceHandler) Terminate(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(auth.UserIDKey).(int)
	if !ok {
		utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	instanceID, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		utils.RespondWithError(w, http.StatusBadRequest, "Invalid instance id")
		return
	}

	inst, err := h.instanceService.Terminate(r.Context(), userID, instanceID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		utils.RespondWithError(w, http.StatusNotFound, "Instance not found")
	case errors.Is(err, domain.ErrForbidden):
		utils.RespondWithError(w, http.StatusForbidden, "Forbidden")
	case err != nil:
		utils.RespondWithError(w, http.StatusInternalServerError, "Failed to terminate instance")
	default:
		utils.RespondWithJSON(w, http.StatusOK, toResponse(inst))
	}
}

func toResponse(inst *domain.ComputeInstance) *dto.InstanceResponseDTO {
	return &dto.InstanceResponseDTO{
		ID:         inst.ID,
		Status:     inst.Status,
		PlanCode:   inst.PlanCode,
		Hours:      inst.HoursRequested,
		HourlyRate: inst.HourlyRate,
		IP:         inst.IP,
		CreatedAt:  inst.CreatedAt,
	}
}
