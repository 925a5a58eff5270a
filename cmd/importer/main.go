package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/config"
	"github.com/your-org/visitrack/internal/ingest"
	"github.com/your-org/visitrack/internal/observability"
	"github.com/your-org/visitrack/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	venue := flag.String("venue", "", "venue id whose exports to import")
	migrateOnly := flag.Bool("migrate", false, "apply database migrations and exit")
	batchSize := flag.Int("batch", 500, "tracklets per upsert batch")
	calFile := flag.String("calibration", "", "publish this calibration snapshot (global unless -venue is set)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	if *migrateOnly || cfg.Database.Migrations {
		if err := storage.MigrateUp(cfg.Database); err != nil {
			slog.Error("apply migrations", "error", err)
			os.Exit(1)
		}
		version, dirty, err := storage.MigrateVersion(cfg.Database)
		if err != nil {
			slog.Warn("read schema version", "error", err)
		} else {
			slog.Info("schema up to date", "version", version, "dirty", dirty)
		}
		if *migrateOnly {
			return
		}
	}

	var venueID uuid.UUID
	if *venue != "" || *calFile == "" {
		if venueID, err = uuid.Parse(*venue); err != nil {
			fmt.Fprintf(os.Stderr, "invalid -venue %q: %v\n", *venue, err)
			os.Exit(2)
		}
	}

	slog.Info("starting visitrack importer", "venue_id", venueID)

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *calFile != "" {
		if err := publishCalibration(ctx, db, *calFile, venueID); err != nil {
			slog.Error("publish calibration", "file", *calFile, "error", err)
			db.Close()
			os.Exit(1)
		}
		if venueID == uuid.Nil {
			return
		}
	}

	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}

	sum, err := ingest.NewImporter(minioStore, db, *batchSize).ImportVenue(ctx, venueID)
	if err != nil {
		slog.Error("import venue", "venue_id", venueID, "error", err,
			"imported", sum.Imported, "skipped", sum.Skipped)
		db.Close()
		os.Exit(1)
	}

	slog.Info("import finished",
		"venue_id", venueID,
		"cameras", sum.Cameras,
		"files", sum.Files,
		"imported", sum.Imported,
		"skipped", sum.Skipped,
	)
}

// publishCalibration stores the snapshot in path as the newest version for
// venueID, or as the global snapshot when venueID is nil.
func publishCalibration(ctx context.Context, db *storage.PostgresStore, path string, venueID uuid.UUID) error {
	snap, err := calibration.LoadFile(path)
	if err != nil {
		return err
	}
	var scope *uuid.UUID
	if venueID != uuid.Nil {
		scope = &venueID
	}
	if err := db.SaveCalibration(ctx, scope, snap); err != nil {
		return err
	}
	slog.Info("calibration published", "version", snap.Version, "venue_id", scope)
	return nil
}
