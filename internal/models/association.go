package models

import (
	"time"

	"github.com/google/uuid"
)

type Decision string

const (
	DecisionLinked     Decision = "linked"
	DecisionNewVisitor Decision = "new_visitor"
	DecisionAmbiguous  Decision = "ambiguous"
)

// Valid reports whether d is one of the known decisions.
func (d Decision) Valid() bool {
	switch d {
	case DecisionLinked, DecisionNewVisitor, DecisionAmbiguous:
		return true
	}
	return false
}

// Scores holds the four signal scores and their fused result.
type Scores struct {
	OutfitSim     float64 `json:"outfit_sim"`
	TimeScore     float64 `json:"time_score"`
	AdjScore      float64 `json:"adj_score"`
	PhysiqueScore float64 `json:"physique_score"`
	Final         float64 `json:"final"`
}

// Components is the detailed breakdown behind Scores. New fields must be
// optional so older rows keep decoding.
type Components struct {
	TypeMatch       float64 `json:"type_match"`
	ColorSim        float64 `json:"color_sim"`
	EmbeddingSim    float64 `json:"embedding_sim"`
	DeltaTSec       float64 `json:"delta_t_sec"`
	MuSec           float64 `json:"mu_sec"`
	TauSec          float64 `json:"tau_sec"`
	TimeRejected    bool    `json:"time_rejected,omitempty"`
	Hops            int     `json:"hops"`
	HeightMatch     float64 `json:"height_match"`
	AspectCloseness float64 `json:"aspect_closeness"`
	CameraTrust     float64 `json:"camera_trust"`
	Conflicts       int     `json:"conflicts,omitempty"`
}

// Association is the outcome for one source tracklet in a run.
// ToTrackletID is set iff Decision is linked.
type Association struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	RunID          uuid.UUID  `json:"run_id" db:"run_id"`
	VenueID        uuid.UUID  `json:"venue_id" db:"venue_id"`
	FromTrackletID uuid.UUID  `json:"from_tracklet_id" db:"from_tracklet_id"`
	FromCameraID   uuid.UUID  `json:"from_camera_id" db:"from_camera_id"`
	FromTIn        time.Time  `json:"from_t_in" db:"from_t_in"`
	ToTrackletID   *uuid.UUID `json:"to_tracklet_id,omitempty" db:"to_tracklet_id"`
	Decision       Decision   `json:"decision" db:"decision"`
	Score          float64    `json:"score" db:"score"`
	Scores         Scores     `json:"scores" db:"scores"`
	Components     Components `json:"components" db:"components"`
	CandidateCount int        `json:"candidate_count" db:"candidate_count"`
	Rank           int        `json:"rank" db:"rank"`
	Reason         string     `json:"reason" db:"reason"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}
