package dto

import "github.com/himastat/siorma-api/internal/models"

// CreateSubmissionRequest payload for uploading a report or LPJ.
type CreateSubmissionRequest struct {
	Kind      models.SubmissionKind `json:"kind"`
	ProgramID int64                 `json:"programId"`
	Title     string                `json:"title"`
	Submit    bool                  `json:"submit"`
}

// DecisionRequest captures the approver decision and optional note.
type DecisionRequest struct {
	Decision models.SubmissionStatus `json:"decision"`
	Note     string                  `json:"note"`
}
