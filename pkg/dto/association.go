package dto

import "github.com/google/uuid"

type AssociationResponse struct {
	ID             uuid.UUID          `json:"id"`
	FromTrackletID uuid.UUID          `json:"from_tracklet_id"`
	FromCameraID   uuid.UUID          `json:"from_camera_id"`
	FromTIn        string             `json:"from_t_in"`
	ToTrackletID   *uuid.UUID         `json:"to_tracklet_id,omitempty"`
	Decision       string             `json:"decision"`
	Score          float64            `json:"score"`
	Scores         map[string]float64 `json:"scores"`
	Components     any                `json:"components"`
	CandidateCount int                `json:"candidate_count"`
	Rank           int                `json:"rank"`
	Reason         string             `json:"reason,omitempty"`
}

type AssociationListResponse struct {
	Associations []AssociationResponse `json:"associations"`
	Total        int                   `json:"total"`
}

// AssociationQuery filters GET /v1/runs/:id/associations.
type AssociationQuery struct {
	Decision string   `form:"decision"`
	MinScore *float64 `form:"min_score"`
	MaxScore *float64 `form:"max_score"`
	Pin      string   `form:"pin"`
	From     string   `form:"from"`
	To       string   `form:"to"`
	Limit    int      `form:"limit"`
	Offset   int      `form:"offset"`
}
