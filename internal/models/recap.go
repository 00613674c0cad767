package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// RecapFormat enumerates supported export formats.
type RecapFormat string

const (
	RecapFormatCSV RecapFormat = "csv"
	RecapFormatPDF RecapFormat = "pdf"
)

// RecapStatus captures background job lifecycle states.
type RecapStatus string

const (
	RecapStatusQueued     RecapStatus = "QUEUED"
	RecapStatusProcessing RecapStatus = "PROCESSING"
	RecapStatusFinished   RecapStatus = "FINISHED"
	RecapStatusFailed     RecapStatus = "FAILED"
)

// RecapJob persists metadata for an asynchronous decision recap export.
type RecapJob struct {
	ID           string          `db:"id" json:"id"`
	Params       RecapJobParams  `db:"params" json:"params"`
	Status       RecapStatus     `db:"status" json:"status"`
	Progress     int             `db:"progress" json:"progress"`
	ResultURL    *string         `db:"result_url" json:"result_url,omitempty"`
	CreatedBy    string          `db:"created_by" json:"created_by"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	FinishedAt   *time.Time      `db:"finished_at" json:"finished_at,omitempty"`
	ErrorMessage *string         `db:"error_message" json:"error_message,omitempty"`
}

// RecapJobParams stores request-scoped options persisted as JSONB.
type RecapJobParams struct {
	Period   string      `json:"period"`
	Division *string     `json:"division,omitempty"`
	Format   RecapFormat `json:"format"`
}

// Value marshals params to JSON for persistence.
func (p RecapJobParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal recap job params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *RecapJobParams) Scan(value interface{}) error {
	if value == nil {
		*p = RecapJobParams{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for RecapJobParams", value)
	}
	if len(data) == 0 {
		*p = RecapJobParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal recap job params: %w", err)
	}
	return nil
}
