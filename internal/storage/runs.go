package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/your-org/visitrack/internal/matching"
	"github.com/your-org/visitrack/internal/models"
)

const runColumns = `id, venue_id, window_from, window_to, options, status, progress_percent,
	associations_created, journeys_created, error_count, error_message, calibration_version,
	report_key, queued_at, started_at, completed_at`

// --- Runs ---

func (s *PostgresStore) CreateRun(ctx context.Context, r *models.Run) error {
	r.ID = uuid.New()
	r.Status = models.RunStatusQueued
	return s.pool.QueryRow(ctx,
		`INSERT INTO runs (id, venue_id, window_from, window_to, options, status)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING queued_at`,
		r.ID, r.VenueID, r.WindowFrom, r.WindowTo, r.Options, r.Status,
	).Scan(&r.QueuedAt)
}

func scanRun(row pgx.Row) (*models.Run, error) {
	r := &models.Run{}
	err := row.Scan(&r.ID, &r.VenueID, &r.WindowFrom, &r.WindowTo, &r.Options, &r.Status, &r.ProgressPercent,
		&r.AssociationsCreated, &r.JourneysCreated, &r.ErrorCount, &r.ErrorMessage, &r.CalibrationVersion,
		&r.ReportKey, &r.QueuedAt, &r.StartedAt, &r.CompletedAt)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, `SELECT `+runColumns+` FROM runs WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

// ListRuns returns the most recent runs of a venue.
func (s *PostgresStore) ListRuns(ctx context.Context, venueID uuid.UUID, limit int) ([]models.Run, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM runs WHERE venue_id = $1 ORDER BY queued_at DESC LIMIT $2`, venueID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// MarkRunning moves a queued (or redelivered running) run to running.
func (s *PostgresStore) MarkRunning(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = 'running', started_at = COALESCE(started_at, now()), progress_percent = 0
		 WHERE id = $1 AND status IN ('queued', 'running')`, id)
	if err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateProgress(ctx context.Context, id uuid.UUID, percent int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET progress_percent = $2 WHERE id = $1 AND status = 'running'`, id, percent)
	if err != nil {
		return fmt.Errorf("update run progress: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetCalibrationVersion(ctx context.Context, id uuid.UUID, version string) error {
	_, err := s.pool.Exec(ctx, `UPDATE runs SET calibration_version = $2 WHERE id = $1`, id, version)
	if err != nil {
		return fmt.Errorf("set calibration version: %w", err)
	}
	return nil
}

// FailRun marks a run failed. Results of earlier attempts are removed so
// a failed run never exposes a partial association set.
func (s *PostgresStore) FailRun(ctx context.Context, id uuid.UUID, message string, errorCount int) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin fail run: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := clearRunResults(ctx, tx, id); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx,
		`UPDATE runs SET status = 'failed', error_message = $2, error_count = $3, completed_at = now()
		 WHERE id = $1`, id, message, errorCount); err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return tx.Commit(ctx)
}

// CommitRun writes every association and journey of a run and marks it
// completed in one transaction. Storage constraint violations are
// reported as matching.ErrIntegrity.
func (s *PostgresStore) CommitRun(ctx context.Context, run *models.Run, assocs []models.Association, journeys []models.Journey) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin commit run: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := clearRunResults(ctx, tx, run.ID); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"associations"},
		[]string{"id", "run_id", "venue_id", "from_tracklet_id", "from_camera_id", "from_t_in", "to_tracklet_id",
			"decision", "score", "scores", "components", "candidate_count", "rank", "reason", "created_at"},
		pgx.CopyFromSlice(len(assocs), func(i int) ([]any, error) {
			a := assocs[i]
			return []any{a.ID, run.ID, run.VenueID, a.FromTrackletID, a.FromCameraID, a.FromTIn, a.ToTrackletID,
				string(a.Decision), a.Score, a.Scores, a.Components, a.CandidateCount, a.Rank, a.Reason, now}, nil
		}))
	if err != nil {
		return classify("copy associations", err)
	}

	_, err = tx.CopyFrom(ctx, pgx.Identifier{"journeys"},
		[]string{"id", "run_id", "venue_id", "visitor_id", "journey_date", "entry_time", "exit_time",
			"total_duration_minutes", "confidence", "status", "entry_point", "exit_point", "path", "created_at"},
		pgx.CopyFromSlice(len(journeys), func(i int) ([]any, error) {
			j := journeys[i]
			return []any{j.ID, run.ID, run.VenueID, j.VisitorID, j.JourneyDate, j.EntryTime, j.ExitTime,
				j.TotalDurationMinutes, j.Confidence, string(j.Status), j.EntryPoint, j.ExitPoint, j.Path, now}, nil
		}))
	if err != nil {
		return classify("copy journeys", err)
	}

	var steps [][]any
	for _, j := range journeys {
		for pos, step := range j.Path {
			steps = append(steps, []any{run.ID, j.ID, step.TrackletID, pos})
		}
	}
	_, err = tx.CopyFrom(ctx, pgx.Identifier{"journey_steps"},
		[]string{"run_id", "journey_id", "tracklet_id", "position"}, pgx.CopyFromRows(steps))
	if err != nil {
		return classify("copy journey steps", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE runs SET status = 'completed', progress_percent = 100, associations_created = $2,
		   journeys_created = $3, error_count = $4, report_key = $5, error_message = '', completed_at = now()
		 WHERE id = $1 AND status = 'running'`,
		run.ID, len(assocs), len(journeys), run.ErrorCount, run.ReportKey)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("complete run %s: %w", run.ID, ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit run", err)
	}
	return nil
}

func clearRunResults(ctx context.Context, tx pgx.Tx, runID uuid.UUID) error {
	for _, q := range []string{
		`DELETE FROM journey_steps WHERE run_id = $1`,
		`DELETE FROM journeys WHERE run_id = $1`,
		`DELETE FROM associations WHERE run_id = $1`,
	} {
		if _, err := tx.Exec(ctx, q, runID); err != nil {
			return fmt.Errorf("clear run results: %w", err)
		}
	}
	return nil
}

// classify maps unique and check violations onto matching.ErrIntegrity.
func classify(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == "23505" || pgErr.Code == "23514") {
		return fmt.Errorf("%s: %w: %s", op, matching.ErrIntegrity, pgErr.ConstraintName)
	}
	return fmt.Errorf("%s: %w", op, err)
}
