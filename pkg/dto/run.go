package dto

import (
	"time"

	"github.com/google/uuid"
)

// RunOptions override the calibrated decision parameters for one run.
// max_candidate_window is in seconds.
type RunOptions struct {
	MatchThreshold     *float64 `json:"match_threshold,omitempty"`
	OutfitFloor        *float64 `json:"outfit_floor,omitempty"`
	MaxCandidateWindow *float64 `json:"max_candidate_window,omitempty"`
	AmbiguityGap       *float64 `json:"ambiguity_gap,omitempty"`
}

type CreateRunRequest struct {
	From    time.Time  `json:"from" binding:"required"`
	To      time.Time  `json:"to" binding:"required"`
	Options RunOptions `json:"options"`
}

type RunResponse struct {
	ID                  uuid.UUID  `json:"id"`
	VenueID             uuid.UUID  `json:"venue_id"`
	From                string     `json:"from"`
	To                  string     `json:"to"`
	Options             RunOptions `json:"options"`
	Status              string     `json:"status"`
	ProgressPercent     int        `json:"progress_percent"`
	AssociationsCreated int        `json:"associations_created"`
	JourneysCreated     int        `json:"journeys_created"`
	ErrorCount          int        `json:"error_count"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	CalibrationVersion  string     `json:"calibration_version,omitempty"`
	HasReport           bool       `json:"has_report"`
	QueuedAt            string     `json:"queued_at"`
	StartedAt           string     `json:"started_at,omitempty"`
	CompletedAt         string     `json:"completed_at,omitempty"`
	DurationSeconds     *float64   `json:"duration_seconds,omitempty"`
}

type RunListResponse struct {
	Runs []RunResponse `json:"runs"`
}
