package dto

import "github.com/himastat/siorma-api/internal/models"

// RecapRequest payload for queuing a decision recap export.
type RecapRequest struct {
	Period   string             `json:"period"`
	Division *string            `json:"division,omitempty"`
	Format   models.RecapFormat `json:"format"`
}

// RecapJobResponse is returned when a job is accepted.
type RecapJobResponse struct {
	ID       string             `json:"id"`
	Status   models.RecapStatus `json:"status"`
	Progress int                `json:"progress"`
}

// RecapStatusResponse exposes job progress to clients.
type RecapStatusResponse struct {
	ID        string             `json:"id"`
	Status    models.RecapStatus `json:"status"`
	Progress  int                `json:"progress"`
	ResultURL *string            `json:"result_url,omitempty"`
	Error     *string            `json:"error,omitempty"`
}
