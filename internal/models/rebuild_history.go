package models

import (
	"time"

	"github.com/google/uuid"
)

type RebuildRecord struct {
	ID             uuid.UUID `json:"id"`
	Generation     uint64    `json:"generation"`
	DatabaseName   string    `json:"database"`
	SchemaName     string    `json:"schema"`
	Outcome        string    `json:"outcome"` // 'ready', 'error', 'stale'
	TableCount     int       `json:"table_count"`
	EdgeCount      int       `json:"edge_count"`
	DegradedTables int       `json:"degraded_tables"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	DurationMs     int64     `json:"duration_ms"`
	StartedAt      time.Time `json:"started_at"`
}

func (r *RebuildRecord) Prepare() {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
}
