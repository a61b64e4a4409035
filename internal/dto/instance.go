package dto

import "time"

type CreateInstanceRequestDTO struct {
	PlanCode string `json:"plan_code" validate:"required,max=64" example:"gpu-a100"`
	Hours    int    `json:"hours" validate:"required,min=1" example:"2"`
}

type InstanceResponseDTO struct {
	ID         int       `json:"id" example:"42"`
	Status     string    `json:"status" example:"running"`
	PlanCode   string    `json:"plan_code" example:"gpu-a100"`
	Hours      int       `json:"hours" example:"2"`
	HourlyRate float64   `json:"hourly_rate" example:"12"`
	IP         *string   `json:"ip,omitempty" example:"203.0.113.7"`
	CreatedAt  time.Time `json:"created_at" example:"2020-12-09T16:09:57+03:00"`
}
