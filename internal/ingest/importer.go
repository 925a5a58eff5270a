// Package ingest loads the tracking subsystem's exports into the store.
//
// An export directory in object storage holds an optional venue.json with
// the camera map and any number of .jsonl files, one tracklet per line.
package ingest

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/models"
	"github.com/your-org/visitrack/internal/storage"
)

const (
	defaultBatchSize = 500
	maxLineBytes     = 1 << 20
)

type ObjectReader interface {
	ListExports(ctx context.Context, venueID uuid.UUID) ([]string, error)
	OpenObject(ctx context.Context, key string) (io.ReadCloser, error)
}

type TrackletStore interface {
	UpsertCameras(ctx context.Context, venueID uuid.UUID, cams []models.Camera, edges []models.CameraEdge) error
	UpsertTracklets(ctx context.Context, tracklets []models.Tracklet) error
}

// VenueFile is the camera map of a venue.
type VenueFile struct {
	Cameras []models.Camera     `json:"cameras"`
	Edges   []models.CameraEdge `json:"edges"`
}

type Summary struct {
	Cameras  int `json:"cameras"`
	Files    int `json:"files"`
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

type Importer struct {
	objects   ObjectReader
	store     TrackletStore
	batchSize int
}

func NewImporter(objects ObjectReader, store TrackletStore, batchSize int) *Importer {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Importer{objects: objects, store: store, batchSize: batchSize}
}

func VenueKey(venueID uuid.UUID) string {
	return storage.ExportsPrefix + venueID.String() + "/venue.json"
}

// ImportVenue loads the camera map and every tracklet export of a venue.
// Malformed lines are skipped and counted; re-importing is idempotent.
func (im *Importer) ImportVenue(ctx context.Context, venueID uuid.UUID) (Summary, error) {
	var sum Summary

	n, err := im.importCameras(ctx, venueID)
	if err != nil {
		return sum, err
	}
	sum.Cameras = n

	keys, err := im.objects.ListExports(ctx, venueID)
	if err != nil {
		return sum, fmt.Errorf("list exports: %w", err)
	}
	for _, key := range keys {
		imported, skipped, err := im.importFile(ctx, venueID, key)
		sum.Imported += imported
		sum.Skipped += skipped
		if err != nil {
			return sum, fmt.Errorf("import %s: %w", key, err)
		}
		sum.Files++
		slog.Info("imported tracklet export", "key", key, "imported", imported, "skipped", skipped)
	}
	return sum, nil
}

func (im *Importer) importCameras(ctx context.Context, venueID uuid.UUID) (int, error) {
	rc, err := im.objects.OpenObject(ctx, VenueKey(venueID))
	if errors.Is(err, storage.ErrNotFound) {
		slog.Info("no venue.json in export, keeping stored cameras", "venue_id", venueID)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open venue file: %w", err)
	}
	defer rc.Close()

	var vf VenueFile
	if err := json.NewDecoder(rc).Decode(&vf); err != nil {
		return 0, fmt.Errorf("decode venue file: %w", err)
	}
	for i := range vf.Cameras {
		c := &vf.Cameras[i]
		c.VenueID = venueID
		switch c.PinType {
		case models.PinTypeEntrance, models.PinTypeExit, models.PinTypeNormal:
		case "":
			c.PinType = models.PinTypeNormal
		default:
			return 0, fmt.Errorf("camera %s: unknown pin type %q", c.ID, c.PinType)
		}
	}
	if err := im.store.UpsertCameras(ctx, venueID, vf.Cameras, vf.Edges); err != nil {
		return 0, err
	}
	return len(vf.Cameras), nil
}

func (im *Importer) importFile(ctx context.Context, venueID uuid.UUID, key string) (imported, skipped int, err error) {
	rc, err := im.objects.OpenObject(ctx, key)
	if err != nil {
		return 0, 0, err
	}
	defer rc.Close()

	batch := make([]models.Tracklet, 0, im.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := im.store.UpsertTracklets(ctx, batch); err != nil {
			return err
		}
		imported += len(batch)
		batch = batch[:0]
		return nil
	}

	sc := bufio.NewScanner(rc)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		t, reason := decodeTracklet(raw, venueID)
		if reason != "" {
			skipped++
			slog.Warn("skipping tracklet line", "key", key, "line", line, "reason", reason)
			continue
		}
		batch = append(batch, t)
		if len(batch) == im.batchSize {
			if err := flush(); err != nil {
				return imported, skipped, err
			}
		}
	}
	if err := sc.Err(); err != nil {
		return imported, skipped, fmt.Errorf("read line %d: %w", line+1, err)
	}
	return imported, skipped, flush()
}

// decodeTracklet parses one export line. It checks only what the store
// needs; descriptor defects are left for the matching engine to report.
func decodeTracklet(raw []byte, venueID uuid.UUID) (models.Tracklet, string) {
	var t models.Tracklet
	if err := json.Unmarshal(raw, &t); err != nil {
		return t, "malformed json"
	}
	switch {
	case t.ID == uuid.Nil:
		return t, "missing id"
	case t.CameraID == uuid.Nil:
		return t, "missing camera_id"
	case t.VenueID != uuid.Nil && t.VenueID != venueID:
		return t, "venue mismatch"
	case t.TIn.IsZero() || t.TOut.IsZero():
		return t, "missing timestamps"
	}
	t.VenueID = venueID
	return t, ""
}
