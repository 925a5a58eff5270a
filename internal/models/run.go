package models

import (
	"time"

	"github.com/google/uuid"
)

type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// RunOptions override the calibrated decision parameters for one run.
// Nil fields keep the calibrated value.
type RunOptions struct {
	MatchThreshold        *float64 `json:"match_threshold,omitempty"`
	OutfitFloor           *float64 `json:"outfit_floor,omitempty"`
	MaxCandidateWindowSec *float64 `json:"max_candidate_window,omitempty"`
	AmbiguityGap          *float64 `json:"ambiguity_gap,omitempty"`
}

// Run is one batch matching run over (venue, time window).
type Run struct {
	ID                  uuid.UUID  `json:"id" db:"id"`
	VenueID             uuid.UUID  `json:"venue_id" db:"venue_id"`
	WindowFrom          time.Time  `json:"window_from" db:"window_from"`
	WindowTo            time.Time  `json:"window_to" db:"window_to"`
	Options             RunOptions `json:"options" db:"options"`
	Status              RunStatus  `json:"status" db:"status"`
	ProgressPercent     int        `json:"progress_percent" db:"progress_percent"`
	AssociationsCreated int        `json:"associations_created" db:"associations_created"`
	JourneysCreated     int        `json:"journeys_created" db:"journeys_created"`
	ErrorCount          int        `json:"error_count" db:"error_count"`
	ErrorMessage        string     `json:"error_message,omitempty" db:"error_message"`
	CalibrationVersion  string     `json:"calibration_version,omitempty" db:"calibration_version"`
	ReportKey           string     `json:"report_key,omitempty" db:"report_key"`
	QueuedAt            time.Time  `json:"queued_at" db:"queued_at"`
	StartedAt           *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt         *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// RunTask is the message published to NATS for worker processing.
type RunTask struct {
	RunID   uuid.UUID  `json:"run_id"`
	VenueID uuid.UUID  `json:"venue_id"`
	From    time.Time  `json:"from"`
	To      time.Time  `json:"to"`
	Options RunOptions `json:"options"`
}

// RunProgress is published by workers as a run advances.
type RunProgress struct {
	RunID        uuid.UUID `json:"run_id"`
	VenueID      uuid.UUID `json:"venue_id"`
	Status       RunStatus `json:"status"`
	Phase        string    `json:"phase"`
	Percent      int       `json:"percent"`
	Associations int       `json:"associations"`
	Journeys     int       `json:"journeys"`
	Errors       int       `json:"errors"`
	Error        string    `json:"error,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}
