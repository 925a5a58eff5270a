package dto

import "github.com/google/uuid"

type JourneyStep struct {
	CameraID        uuid.UUID `json:"camera_id"`
	TrackletID      uuid.UUID `json:"tracklet_id"`
	TIn             string    `json:"t_in"`
	TOut            string    `json:"t_out"`
	DurationSeconds int       `json:"duration_seconds"`
	LinkScore       *float64  `json:"link_score,omitempty"`
}

type JourneyResponse struct {
	ID                   uuid.UUID     `json:"id"`
	VisitorID            uuid.UUID     `json:"visitor_id"`
	Date                 string        `json:"date"`
	EntryTime            string        `json:"entry_time"`
	ExitTime             string        `json:"exit_time"`
	TotalDurationMinutes int           `json:"total_duration_minutes"`
	Confidence           float64       `json:"confidence"`
	Status               string        `json:"status"`
	EntryPoint           uuid.UUID     `json:"entry_point"`
	ExitPoint            *uuid.UUID    `json:"exit_point,omitempty"`
	Path                 []JourneyStep `json:"path"`
}

type JourneyListResponse struct {
	Journeys []JourneyResponse `json:"journeys"`
	Total    int               `json:"total"`
}

// JourneyQuery filters GET /v1/runs/:id/journeys.
type JourneyQuery struct {
	MinConfidence *float64 `form:"min_confidence"`
	EntryPoint    string   `form:"entry_point"`
	ExitPoint     string   `form:"exit_point"`
	Status        string   `form:"status"`
	Limit         int      `form:"limit"`
	Offset        int      `form:"offset"`
}
