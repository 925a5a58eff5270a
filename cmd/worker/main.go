package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/config"
	"github.com/your-org/visitrack/internal/matching"
	"github.com/your-org/visitrack/internal/observability"
	"github.com/your-org/visitrack/internal/queue"
	"github.com/your-org/visitrack/internal/runner"
	"github.com/your-org/visitrack/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting visitrack worker",
		"concurrency", cfg.Worker.Concurrency,
		"match_workers", cfg.Worker.MatchWorkers,
		"calibration_source", cfg.Calibration.Source,
	)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	minioStore, err := storage.NewMinIOStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := minioStore.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	var calSource runner.CalibrationSource = db
	if cfg.Calibration.Source == "file" {
		calSource = calibration.FileSource{Path: cfg.Calibration.File}
	}

	r := runner.New(matching.NewEngine(engineParams(cfg)), db, calSource, db, minioStore, producer, runner.Options{
		FetchInitialInterval: cfg.Worker.FetchInitialInterval,
		FetchMaxElapsed:      cfg.Worker.FetchMaxElapsed,
		RunTimeout:           cfg.Worker.RunTimeout,
	})

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeRuns(ctx, "match-workers", func(ctx context.Context, msg jetstream.Msg) error {
		task, err := queue.DecodeRunTask(msg.Data())
		if err != nil {
			return err
		}

		// Keep the message leased while the run executes.
		stop := keepAlive(ctx, msg)
		defer stop()

		if err := r.Execute(ctx, task); err != nil {
			if errors.Is(err, runner.ErrRunNotFound) {
				return fmt.Errorf("%w: %v", queue.ErrPermanent, err)
			}
			return fmt.Errorf("execute run %s: %w", task.RunID, err)
		}
		return nil
	}, cfg.Worker.Concurrency)
	if err != nil {
		slog.Error("start run consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	slog.Info("worker started, waiting for run tasks...")

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()

	// Give in-flight runs a moment to notice cancellation.
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}

func engineParams(cfg *config.Config) matching.Params {
	m := cfg.Matching
	return matching.Params{
		MatchThreshold:      m.MatchThreshold,
		OutfitFloor:         m.OutfitFloor,
		AmbiguityGap:        m.AmbiguityGap,
		EmbeddingFloor:      m.EmbeddingFloor,
		MinTransit:          m.MinTransit,
		MaxCandidateWindow:  m.MaxCandidateWindow,
		MaxCandidates:       m.MaxCandidates,
		MaxHops:             m.MaxHops,
		Cooldown:            m.Cooldown,
		InactivityThreshold: m.InactivityThreshold,
		MinChainLength:      m.MinChainLength,
		Workers:             cfg.Worker.MatchWorkers,
	}
}

// keepAlive extends the ack deadline of msg until the returned stop is
// called.
func keepAlive(ctx context.Context, msg jetstream.Msg) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(queue.RunAckWait / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := msg.InProgress(); err != nil {
					slog.Warn("extend run task lease", "error", err)
				}
			}
		}
	}()
	return cancel
}
