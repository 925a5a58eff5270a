package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/config"
	"github.com/your-org/visitrack/internal/models"
)

var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	if err := pool.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Cameras ---

// UpsertCameras writes cameras and replaces the adjacency of their venue.
func (s *PostgresStore) UpsertCameras(ctx context.Context, venueID uuid.UUID, cams []models.Camera, edges []models.CameraEdge) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin camera upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, c := range cams {
		batch.Queue(
			`INSERT INTO cameras (id, venue_id, name, label, pin_type) VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, label = EXCLUDED.label, pin_type = EXCLUDED.pin_type`,
			c.ID, venueID, c.Name, c.Label, c.PinType)
	}
	batch.Queue(`DELETE FROM camera_edges WHERE venue_id = $1`, venueID)
	for _, e := range edges {
		for _, dir := range [][2]uuid.UUID{{e.From, e.To}, {e.To, e.From}} {
			batch.Queue(
				`INSERT INTO camera_edges (venue_id, from_camera, to_camera, mu_sec, tau_sec) VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (from_camera, to_camera) DO UPDATE SET
				   mu_sec = COALESCE(EXCLUDED.mu_sec, camera_edges.mu_sec),
				   tau_sec = COALESCE(EXCLUDED.tau_sec, camera_edges.tau_sec)`,
				venueID, dir[0], dir[1], e.MuSec, e.TauSec)
		}
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert cameras: %w", err)
	}
	return tx.Commit(ctx)
}

// LoadCameras returns the cameras of a venue and their adjacency.
func (s *PostgresStore) LoadCameras(ctx context.Context, venueID uuid.UUID) ([]models.Camera, []models.CameraEdge, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, venue_id, name, label, pin_type FROM cameras WHERE venue_id = $1 ORDER BY id`, venueID)
	if err != nil {
		return nil, nil, fmt.Errorf("list cameras: %w", err)
	}
	defer rows.Close()

	var cams []models.Camera
	for rows.Next() {
		var c models.Camera
		if err := rows.Scan(&c.ID, &c.VenueID, &c.Name, &c.Label, &c.PinType); err != nil {
			return nil, nil, fmt.Errorf("scan camera: %w", err)
		}
		cams = append(cams, c)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list cameras: %w", err)
	}

	edgeRows, err := s.pool.Query(ctx,
		`SELECT from_camera, to_camera, mu_sec, tau_sec FROM camera_edges WHERE venue_id = $1 ORDER BY from_camera, to_camera`, venueID)
	if err != nil {
		return nil, nil, fmt.Errorf("list camera edges: %w", err)
	}
	defer edgeRows.Close()

	var edges []models.CameraEdge
	for edgeRows.Next() {
		var e models.CameraEdge
		if err := edgeRows.Scan(&e.From, &e.To, &e.MuSec, &e.TauSec); err != nil {
			return nil, nil, fmt.Errorf("scan camera edge: %w", err)
		}
		edges = append(edges, e)
	}
	if err := edgeRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("list camera edges: %w", err)
	}
	return cams, edges, nil
}

// --- Tracklets ---

// UpsertTracklets writes tracklets in one batch. Re-importing the same
// export is idempotent.
func (s *PostgresStore) UpsertTracklets(ctx context.Context, tracklets []models.Tracklet) error {
	if len(tracklets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range tracklets {
		var vec *pgvector.Vector
		if len(t.Embedding) > 0 {
			v := pgvector.NewVector(t.Embedding)
			vec = &v
		}
		batch.Queue(
			`INSERT INTO tracklets (id, venue_id, camera_id, video_id, track_id, t_in, t_out, outfit, embedding, height_category, aspect_ratio, quality)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO UPDATE SET
			   t_in = EXCLUDED.t_in, t_out = EXCLUDED.t_out, outfit = EXCLUDED.outfit, embedding = EXCLUDED.embedding,
			   height_category = EXCLUDED.height_category, aspect_ratio = EXCLUDED.aspect_ratio, quality = EXCLUDED.quality`,
			t.ID, t.VenueID, t.CameraID, t.VideoID, t.TrackID, t.TIn, t.TOut, t.Outfit, vec,
			t.HeightCategory, t.AspectRatio, t.Quality)
	}
	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert tracklets: %w", err)
	}
	return nil
}

// LoadTracklets returns the tracklets of a venue whose t_in falls in
// [from, to], ordered by (t_in, id).
func (s *PostgresStore) LoadTracklets(ctx context.Context, venueID uuid.UUID, from, to time.Time) ([]models.Tracklet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, venue_id, camera_id, video_id, track_id, t_in, t_out, outfit, embedding, height_category, aspect_ratio, quality
		 FROM tracklets WHERE venue_id = $1 AND t_in >= $2 AND t_in <= $3
		 ORDER BY t_in, id`, venueID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load tracklets: %w", err)
	}
	defer rows.Close()

	var out []models.Tracklet
	for rows.Next() {
		var (
			t   models.Tracklet
			vec *pgvector.Vector
		)
		if err := rows.Scan(&t.ID, &t.VenueID, &t.CameraID, &t.VideoID, &t.TrackID, &t.TIn, &t.TOut,
			&t.Outfit, &vec, &t.HeightCategory, &t.AspectRatio, &t.Quality); err != nil {
			return nil, fmt.Errorf("scan tracklet: %w", err)
		}
		if vec != nil {
			t.Embedding = vec.Slice()
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load tracklets: %w", err)
	}
	return out, nil
}

// --- Calibration ---

// SaveCalibration stores a new snapshot version. A nil venue publishes
// the global snapshot.
func (s *PostgresStore) SaveCalibration(ctx context.Context, venueID *uuid.UUID, snap calibration.Snapshot) error {
	if _, err := calibration.New(snap); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO calibration_snapshots (id, venue_id, version, body) VALUES ($1, $2, $3, $4)`,
		uuid.New(), venueID, snap.Version, snap)
	if err != nil {
		return fmt.Errorf("save calibration: %w", err)
	}
	return nil
}

// Calibration returns the newest snapshot for the venue, falling back to
// the newest global snapshot and then to the built-in defaults.
func (s *PostgresStore) Calibration(ctx context.Context, venueID uuid.UUID) (*calibration.Calibration, error) {
	var snap calibration.Snapshot
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM calibration_snapshots
		 WHERE venue_id = $1 OR venue_id IS NULL
		 ORDER BY (venue_id IS NULL), created_at DESC
		 LIMIT 1`, venueID,
	).Scan(&snap)
	if errors.Is(err, pgx.ErrNoRows) {
		snap = calibration.Default()
	} else if err != nil {
		return nil, fmt.Errorf("load calibration: %w", err)
	}
	return calibration.New(snap)
}
