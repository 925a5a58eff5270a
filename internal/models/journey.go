package models

import (
	"time"

	"github.com/google/uuid"
)

type JourneyStatus string

const (
	JourneyCompleted  JourneyStatus = "completed"
	JourneyIncomplete JourneyStatus = "incomplete"
)

// JourneyStep is one tracklet on a visitor's path. LinkScore is the score
// of the link that led into this step and is nil for the entry step.
type JourneyStep struct {
	CameraID        uuid.UUID `json:"camera_id"`
	TrackletID      uuid.UUID `json:"tracklet_id"`
	TIn             time.Time `json:"t_in"`
	TOut            time.Time `json:"t_out"`
	DurationSeconds int       `json:"duration_seconds"`
	LinkScore       *float64  `json:"link_score,omitempty"`
}

type Journey struct {
	ID                   uuid.UUID     `json:"id" db:"id"`
	RunID                uuid.UUID     `json:"run_id" db:"run_id"`
	VenueID              uuid.UUID     `json:"venue_id" db:"venue_id"`
	VisitorID            uuid.UUID     `json:"visitor_id" db:"visitor_id"`
	JourneyDate          time.Time     `json:"journey_date" db:"journey_date"`
	EntryTime            time.Time     `json:"entry_time" db:"entry_time"`
	ExitTime             time.Time     `json:"exit_time" db:"exit_time"`
	TotalDurationMinutes int           `json:"total_duration_minutes" db:"total_duration_minutes"`
	Confidence           float64       `json:"confidence" db:"confidence"`
	Status               JourneyStatus `json:"status" db:"status"`
	EntryPoint           uuid.UUID     `json:"entry_point" db:"entry_point"`
	ExitPoint            *uuid.UUID    `json:"exit_point,omitempty" db:"exit_point"`
	Path                 []JourneyStep `json:"path" db:"path"`
	CreatedAt            time.Time     `json:"created_at" db:"created_at"`
}

// TrackletIDs returns the tracklets on the path in order.
func (j *Journey) TrackletIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(j.Path))
	for i, s := range j.Path {
		ids[i] = s.TrackletID
	}
	return ids
}
