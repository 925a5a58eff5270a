package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/models"
)

const maxPageSize = 500

// AssociationFilter narrows the associations of one run. Nil fields are
// not applied.
type AssociationFilter struct {
	Decision *models.Decision
	MinScore *float64
	MaxScore *float64
	CameraID *uuid.UUID // source camera (pin)
	From     *time.Time // source t_in lower bound
	To       *time.Time // source t_in upper bound
	Limit    int
	Offset   int
}

type JourneyFilter struct {
	MinConfidence *float64
	EntryPoint    *uuid.UUID
	ExitPoint     *uuid.UUID
	Status        *models.JourneyStatus
	Limit         int
	Offset        int
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// buildAssociationWhere returns the WHERE clause, its arguments and the
// index of the next placeholder.
func buildAssociationWhere(runID uuid.UUID, f AssociationFilter) (string, []any, int) {
	baseWhere := "WHERE run_id = $1"
	args := []any{runID}
	argIdx := 2

	if f.Decision != nil {
		baseWhere += fmt.Sprintf(" AND decision = $%d", argIdx)
		args = append(args, string(*f.Decision))
		argIdx++
	}
	if f.MinScore != nil {
		baseWhere += fmt.Sprintf(" AND score >= $%d", argIdx)
		args = append(args, *f.MinScore)
		argIdx++
	}
	if f.MaxScore != nil {
		baseWhere += fmt.Sprintf(" AND score <= $%d", argIdx)
		args = append(args, *f.MaxScore)
		argIdx++
	}
	if f.CameraID != nil {
		baseWhere += fmt.Sprintf(" AND from_camera_id = $%d", argIdx)
		args = append(args, *f.CameraID)
		argIdx++
	}
	if f.From != nil {
		baseWhere += fmt.Sprintf(" AND from_t_in >= $%d", argIdx)
		args = append(args, *f.From)
		argIdx++
	}
	if f.To != nil {
		baseWhere += fmt.Sprintf(" AND from_t_in <= $%d", argIdx)
		args = append(args, *f.To)
		argIdx++
	}
	return baseWhere, args, argIdx
}

func buildJourneyWhere(runID uuid.UUID, f JourneyFilter) (string, []any, int) {
	baseWhere := "WHERE run_id = $1"
	args := []any{runID}
	argIdx := 2

	if f.MinConfidence != nil {
		baseWhere += fmt.Sprintf(" AND confidence >= $%d", argIdx)
		args = append(args, *f.MinConfidence)
		argIdx++
	}
	if f.EntryPoint != nil {
		baseWhere += fmt.Sprintf(" AND entry_point = $%d", argIdx)
		args = append(args, *f.EntryPoint)
		argIdx++
	}
	if f.ExitPoint != nil {
		baseWhere += fmt.Sprintf(" AND exit_point = $%d", argIdx)
		args = append(args, *f.ExitPoint)
		argIdx++
	}
	if f.Status != nil {
		baseWhere += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(*f.Status))
		argIdx++
	}
	return baseWhere, args, argIdx
}

// QueryAssociations returns one page of a run's associations ordered by
// source t_in, plus the total matching the filter.
func (s *PostgresStore) QueryAssociations(ctx context.Context, runID uuid.UUID, f AssociationFilter) ([]models.Association, int, error) {
	limit, offset := pageBounds(f.Limit, f.Offset)
	baseWhere, args, argIdx := buildAssociationWhere(runID, f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM associations "+baseWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count associations: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, run_id, venue_id, from_tracklet_id, from_camera_id, from_t_in, to_tracklet_id, decision,
		        score, scores, components, candidate_count, rank, reason, created_at
		 FROM associations %s ORDER BY from_t_in, from_tracklet_id LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query associations: %w", err)
	}
	defer rows.Close()

	var out []models.Association
	for rows.Next() {
		var a models.Association
		if err := rows.Scan(&a.ID, &a.RunID, &a.VenueID, &a.FromTrackletID, &a.FromCameraID, &a.FromTIn,
			&a.ToTrackletID, &a.Decision, &a.Score, &a.Scores, &a.Components, &a.CandidateCount, &a.Rank,
			&a.Reason, &a.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan association: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query associations: %w", err)
	}
	return out, total, nil
}

// QueryJourneys returns one page of a run's journeys ordered by entry time.
func (s *PostgresStore) QueryJourneys(ctx context.Context, runID uuid.UUID, f JourneyFilter) ([]models.Journey, int, error) {
	limit, offset := pageBounds(f.Limit, f.Offset)
	baseWhere, args, argIdx := buildJourneyWhere(runID, f)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM journeys "+baseWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count journeys: %w", err)
	}

	query := fmt.Sprintf(
		`SELECT id, run_id, venue_id, visitor_id, journey_date, entry_time, exit_time, total_duration_minutes,
		        confidence, status, entry_point, exit_point, path, created_at
		 FROM journeys %s ORDER BY entry_time, id LIMIT $%d OFFSET $%d`,
		baseWhere, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query journeys: %w", err)
	}
	defer rows.Close()

	var out []models.Journey
	for rows.Next() {
		var j models.Journey
		if err := rows.Scan(&j.ID, &j.RunID, &j.VenueID, &j.VisitorID, &j.JourneyDate, &j.EntryTime, &j.ExitTime,
			&j.TotalDurationMinutes, &j.Confidence, &j.Status, &j.EntryPoint, &j.ExitPoint, &j.Path,
			&j.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan journey: %w", err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("query journeys: %w", err)
	}
	return out, total, nil
}
