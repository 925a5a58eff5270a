package dto

import "github.com/google/uuid"

// WSEvent is a WebSocket message for real-time run progress.
type WSEvent struct {
	Type    string      `json:"type"` // run_progress
	RunID   uuid.UUID   `json:"run_id"`
	VenueID uuid.UUID   `json:"venue_id"`
	Data    RunProgress `json:"data"`
}

type RunProgress struct {
	Status       string `json:"status"`
	Phase        string `json:"phase,omitempty"`
	Percent      int    `json:"percent"`
	Associations int    `json:"associations"`
	Journeys     int    `json:"journeys"`
	Errors       int    `json:"errors"`
	Error        string `json:"error,omitempty"`
	Timestamp    string `json:"timestamp"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
