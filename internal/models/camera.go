package models

import "github.com/google/uuid"

type PinType string

const (
	PinTypeEntrance PinType = "entrance"
	PinTypeExit     PinType = "exit"
	PinTypeNormal   PinType = "normal"
)

// Camera is a camera pin on the venue map.
type Camera struct {
	ID      uuid.UUID `json:"id" db:"id"`
	VenueID uuid.UUID `json:"venue_id" db:"venue_id"`
	Name    string    `json:"name" db:"name"`
	Label   string    `json:"label" db:"label"`
	PinType PinType   `json:"pin_type" db:"pin_type"`
}

// CameraEdge marks two cameras as physically reachable from one another.
// MuSec/TauSec carry the learned transit time when one is known.
type CameraEdge struct {
	From   uuid.UUID `json:"from" db:"from_camera"`
	To     uuid.UUID `json:"to" db:"to_camera"`
	MuSec  *float64  `json:"mu_sec,omitempty" db:"mu_sec"`
	TauSec *float64  `json:"tau_sec,omitempty" db:"tau_sec"`
}
