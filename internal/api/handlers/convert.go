package handlers

import (
	"time"

	"github.com/your-org/visitrack/internal/models"
	"github.com/your-org/visitrack/pkg/dto"
)

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}

func optionsFromDTO(o dto.RunOptions) models.RunOptions {
	return models.RunOptions{
		MatchThreshold:        o.MatchThreshold,
		OutfitFloor:           o.OutfitFloor,
		MaxCandidateWindowSec: o.MaxCandidateWindow,
		AmbiguityGap:          o.AmbiguityGap,
	}
}

func runToResponse(r *models.Run) dto.RunResponse {
	resp := dto.RunResponse{
		ID:      r.ID,
		VenueID: r.VenueID,
		From:    formatTime(r.WindowFrom),
		To:      formatTime(r.WindowTo),
		Options: dto.RunOptions{
			MatchThreshold:     r.Options.MatchThreshold,
			OutfitFloor:        r.Options.OutfitFloor,
			MaxCandidateWindow: r.Options.MaxCandidateWindowSec,
			AmbiguityGap:       r.Options.AmbiguityGap,
		},
		Status:              string(r.Status),
		ProgressPercent:     r.ProgressPercent,
		AssociationsCreated: r.AssociationsCreated,
		JourneysCreated:     r.JourneysCreated,
		ErrorCount:          r.ErrorCount,
		ErrorMessage:        r.ErrorMessage,
		CalibrationVersion:  r.CalibrationVersion,
		HasReport:           r.ReportKey != "",
		QueuedAt:            formatTime(r.QueuedAt),
		StartedAt:           formatTimePtr(r.StartedAt),
		CompletedAt:         formatTimePtr(r.CompletedAt),
	}
	if r.StartedAt != nil && r.CompletedAt != nil {
		d := r.CompletedAt.Sub(*r.StartedAt).Seconds()
		resp.DurationSeconds = &d
	}
	return resp
}

func associationToResponse(a *models.Association) dto.AssociationResponse {
	return dto.AssociationResponse{
		ID:             a.ID,
		FromTrackletID: a.FromTrackletID,
		FromCameraID:   a.FromCameraID,
		FromTIn:        formatTime(a.FromTIn),
		ToTrackletID:   a.ToTrackletID,
		Decision:       string(a.Decision),
		Score:          a.Score,
		Scores: map[string]float64{
			"outfit_sim":     a.Scores.OutfitSim,
			"time_score":     a.Scores.TimeScore,
			"adj_score":      a.Scores.AdjScore,
			"physique_score": a.Scores.PhysiqueScore,
			"final":          a.Scores.Final,
		},
		Components:     a.Components,
		CandidateCount: a.CandidateCount,
		Rank:           a.Rank,
		Reason:         a.Reason,
	}
}

func journeyToResponse(j *models.Journey) dto.JourneyResponse {
	path := make([]dto.JourneyStep, len(j.Path))
	for i, s := range j.Path {
		path[i] = dto.JourneyStep{
			CameraID:        s.CameraID,
			TrackletID:      s.TrackletID,
			TIn:             formatTime(s.TIn),
			TOut:            formatTime(s.TOut),
			DurationSeconds: s.DurationSeconds,
			LinkScore:       s.LinkScore,
		}
	}
	return dto.JourneyResponse{
		ID:                   j.ID,
		VisitorID:            j.VisitorID,
		Date:                 j.JourneyDate.Format(time.DateOnly),
		EntryTime:            formatTime(j.EntryTime),
		ExitTime:             formatTime(j.ExitTime),
		TotalDurationMinutes: j.TotalDurationMinutes,
		Confidence:           j.Confidence,
		Status:               string(j.Status),
		EntryPoint:           j.EntryPoint,
		ExitPoint:            j.ExitPoint,
		Path:                 path,
	}
}

// ProgressToWSEvent wraps a worker progress event for websocket clients.
func ProgressToWSEvent(p *models.RunProgress) *dto.WSEvent {
	return &dto.WSEvent{
		Type:    "run_progress",
		RunID:   p.RunID,
		VenueID: p.VenueID,
		Data: dto.RunProgress{
			Status:       string(p.Status),
			Phase:        p.Phase,
			Percent:      p.Percent,
			Associations: p.Associations,
			Journeys:     p.Journeys,
			Errors:       p.Errors,
			Error:        p.Error,
			Timestamp:    formatTime(p.Timestamp),
		},
	}
}
