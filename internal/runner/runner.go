// Package runner drives one batch matching run from task to committed
// result: fetch inputs, run the engine, upload the audit report and commit
// everything atomically.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/matching"
	"github.com/your-org/visitrack/internal/models"
	"github.com/your-org/visitrack/internal/observability"
	"github.com/your-org/visitrack/internal/storage"
)

var ErrRunNotFound = errors.New("run not found")

// Progress checkpoints reported while a run executes.
const (
	PhaseFetch  = "fetch"
	PhaseCommit = "commit"
)

var phasePercent = map[string]int{
	PhaseFetch:               10,
	matching.PhaseCandidates: 60,
	matching.PhaseConflicts:  75,
	matching.PhaseJourneys:   90,
	matching.PhaseIntegrity:  95,
	PhaseCommit:              100,
}

// Source reads the inputs of a run.
type Source interface {
	LoadCameras(ctx context.Context, venueID uuid.UUID) ([]models.Camera, []models.CameraEdge, error)
	LoadTracklets(ctx context.Context, venueID uuid.UUID, from, to time.Time) ([]models.Tracklet, error)
}

type CalibrationSource interface {
	Calibration(ctx context.Context, venueID uuid.UUID) (*calibration.Calibration, error)
}

// Sink owns the run record and its results.
type Sink interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.Run, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	UpdateProgress(ctx context.Context, id uuid.UUID, percent int) error
	SetCalibrationVersion(ctx context.Context, id uuid.UUID, version string) error
	FailRun(ctx context.Context, id uuid.UUID, message string, errorCount int) error
	CommitRun(ctx context.Context, run *models.Run, assocs []models.Association, journeys []models.Journey) error
}

type ReportStore interface {
	PutReport(ctx context.Context, key string, r *storage.Report) error
}

type Notifier interface {
	PublishProgress(ctx context.Context, ev models.RunProgress) error
}

type Options struct {
	FetchInitialInterval time.Duration
	FetchMaxElapsed      time.Duration
	RunTimeout           time.Duration
}

type Runner struct {
	engine      *matching.Engine
	source      Source
	calibration CalibrationSource
	sink        Sink
	reports     ReportStore
	notifier    Notifier
	opts        Options
}

// New builds a Runner. reports and notifier may be nil.
func New(engine *matching.Engine, source Source, cal CalibrationSource, sink Sink, reports ReportStore, notifier Notifier, opts Options) *Runner {
	if opts.FetchInitialInterval <= 0 {
		opts.FetchInitialInterval = 500 * time.Millisecond
	}
	if opts.FetchMaxElapsed <= 0 {
		opts.FetchMaxElapsed = 2 * time.Minute
	}
	return &Runner{
		engine:      engine,
		source:      source,
		calibration: cal,
		sink:        sink,
		reports:     reports,
		notifier:    notifier,
		opts:        opts,
	}
}

type inputs struct {
	cameras   []models.Camera
	edges     []models.CameraEdge
	tracklets []models.Tracklet
	cal       *calibration.Calibration
}

// Execute runs one task. A run that already reached a terminal status is
// skipped. Failures of the run itself are recorded on the run and are not
// returned; an error is returned only when the run could not be settled
// and the task should be retried.
func (r *Runner) Execute(ctx context.Context, task models.RunTask) error {
	run, err := r.sink.GetRun(ctx, task.RunID)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("execute run %s: %w", task.RunID, ErrRunNotFound)
	}
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run.Status.Terminal() {
		slog.Info("run already settled, skipping", "run_id", run.ID, "status", run.Status)
		return nil
	}

	if err := r.sink.MarkRunning(ctx, run.ID); err != nil {
		return fmt.Errorf("mark run running: %w", err)
	}
	run.Status = models.RunStatusRunning
	observability.ActiveRuns.Inc()
	defer observability.ActiveRuns.Dec()

	started := time.Now()
	slog.Info("run started", "run_id", run.ID, "venue_id", run.VenueID, "from", run.WindowFrom, "to", run.WindowTo)
	r.notify(ctx, run, "", 0, nil)

	runCtx := ctx
	if r.opts.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.opts.RunTimeout)
		defer cancel()
	}

	in, retries, err := r.fetch(runCtx, run)
	run.ErrorCount = retries
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("run %s interrupted: %w", run.ID, ctx.Err())
		}
		return r.fail(ctx, run, fmt.Errorf("fetch inputs: %w", err))
	}
	if err := r.sink.SetCalibrationVersion(ctx, run.ID, in.cal.Version()); err != nil {
		slog.Warn("failed to record calibration version", "run_id", run.ID, "error", err)
	}
	run.CalibrationVersion = in.cal.Version()
	r.progress(ctx, run, PhaseFetch)

	res, err := r.engine.Run(runCtx, matching.Input{
		VenueID:     run.VenueID,
		Window:      matching.Window{From: run.WindowFrom, To: run.WindowTo},
		Tracklets:   in.tracklets,
		Cameras:     in.cameras,
		Edges:       in.edges,
		Calibration: in.cal,
		Options:     run.Options,
	}, func(phase string) { r.progress(ctx, run, phase) })
	if err != nil {
		// Shutdown of the worker leaves the run for redelivery.
		if ctx.Err() != nil {
			return fmt.Errorf("run %s interrupted: %w", run.ID, ctx.Err())
		}
		return r.fail(ctx, run, fmt.Errorf("run matching: %w", err))
	}

	stamp(run, res)
	run.ReportKey = r.uploadReport(ctx, run, res)

	if err := r.sink.CommitRun(ctx, run, res.Associations, res.Journeys); err != nil {
		return r.fail(ctx, run, fmt.Errorf("commit run: %w", err))
	}

	run.Status = models.RunStatusCompleted
	run.AssociationsCreated = len(res.Associations)
	run.JourneysCreated = len(res.Journeys)
	observability.RunsTotal.WithLabelValues(string(models.RunStatusCompleted)).Inc()
	for _, a := range res.Associations {
		observability.AssociationsTotal.WithLabelValues(string(a.Decision)).Inc()
	}
	for _, j := range res.Journeys {
		observability.JourneysTotal.WithLabelValues(string(j.Status)).Inc()
	}
	r.notify(ctx, run, PhaseCommit, 100, nil)

	slog.Info("run completed",
		"run_id", run.ID,
		"associations", len(res.Associations),
		"linked", res.Stats.Linked,
		"ambiguous", res.Stats.Ambiguous,
		"new_visitor", res.Stats.NewVisitor,
		"conflicts", res.Stats.Conflicts,
		"journeys", len(res.Journeys),
		"invalid", res.Stats.Invalid,
		"duration", time.Since(started),
	)
	return nil
}

// fetch loads the run inputs, retrying transient failures with
// exponential backoff. It returns the number of retries taken.
func (r *Runner) fetch(ctx context.Context, run *models.Run) (*inputs, int, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.FetchInitialInterval
	b.MaxElapsedTime = r.opts.FetchMaxElapsed

	var (
		in      inputs
		retries int
	)
	op := func() error {
		cal, err := r.calibration.Calibration(ctx, run.VenueID)
		if err != nil {
			if errors.Is(err, calibration.ErrInvalid) {
				return backoff.Permanent(err)
			}
			return fmt.Errorf("load calibration: %w", err)
		}
		cams, edges, err := r.source.LoadCameras(ctx, run.VenueID)
		if err != nil {
			return fmt.Errorf("load cameras: %w", err)
		}
		tracklets, err := r.source.LoadTracklets(ctx, run.VenueID, run.WindowFrom, run.WindowTo)
		if err != nil {
			return fmt.Errorf("load tracklets: %w", err)
		}
		in = inputs{cameras: cams, edges: edges, tracklets: tracklets, cal: cal}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		retries++
		observability.FetchRetries.Inc()
		slog.Warn("fetch run inputs failed, retrying", "run_id", run.ID, "attempt", retries, "wait", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify); err != nil {
		return nil, retries, err
	}
	return &in, retries, nil
}

// stamp attaches run and record ids to the engine output.
func stamp(run *models.Run, res *matching.Result) {
	for i := range res.Associations {
		a := &res.Associations[i]
		a.ID = uuid.New()
		a.RunID = run.ID
		a.VenueID = run.VenueID
	}
	for i := range res.Journeys {
		j := &res.Journeys[i]
		j.ID = uuid.New()
		j.RunID = run.ID
		j.VenueID = run.VenueID
	}
}

// uploadReport stores the audit report and returns its key, or "" when no
// report was stored. A failed upload does not fail the run.
func (r *Runner) uploadReport(ctx context.Context, run *models.Run, res *matching.Result) string {
	if r.reports == nil {
		return ""
	}
	key := storage.ReportKey(run.VenueID, run.ID)
	report := &storage.Report{
		Run:          *run,
		Params:       res.Params,
		Stats:        res.Stats,
		Associations: res.Associations,
		Journeys:     res.Journeys,
	}
	report.Run.Status = models.RunStatusCompleted
	report.Run.AssociationsCreated = len(res.Associations)
	report.Run.JourneysCreated = len(res.Journeys)
	report.Run.ReportKey = key
	if err := r.reports.PutReport(ctx, key, report); err != nil {
		slog.Warn("failed to upload run report", "run_id", run.ID, "key", key, "error", err)
		return ""
	}
	return key
}

// fail records cause on the run. It returns an error only when the run
// could not be marked failed.
func (r *Runner) fail(ctx context.Context, run *models.Run, cause error) error {
	slog.Error("run failed", "run_id", run.ID, "error", cause)
	run.Status = models.RunStatusFailed
	run.ErrorMessage = cause.Error()

	if err := r.sink.FailRun(ctx, run.ID, run.ErrorMessage, run.ErrorCount); err != nil {
		return fmt.Errorf("mark run failed (%v): %w", cause, err)
	}
	observability.RunsTotal.WithLabelValues(string(models.RunStatusFailed)).Inc()
	r.notify(ctx, run, "", run.ProgressPercent, cause)
	return nil
}

func (r *Runner) progress(ctx context.Context, run *models.Run, phase string) {
	pct, ok := phasePercent[phase]
	if !ok {
		return
	}
	run.ProgressPercent = pct
	if err := r.sink.UpdateProgress(ctx, run.ID, pct); err != nil {
		slog.Warn("failed to update run progress", "run_id", run.ID, "phase", phase, "error", err)
	}
	r.notify(ctx, run, phase, pct, nil)
}

func (r *Runner) notify(ctx context.Context, run *models.Run, phase string, pct int, cause error) {
	if r.notifier == nil {
		return
	}
	ev := models.RunProgress{
		RunID:        run.ID,
		VenueID:      run.VenueID,
		Status:       run.Status,
		Phase:        phase,
		Percent:      pct,
		Associations: run.AssociationsCreated,
		Journeys:     run.JourneysCreated,
		Errors:       run.ErrorCount,
		Timestamp:    time.Now().UTC(),
	}
	if cause != nil {
		ev.Error = cause.Error()
	}
	if err := r.notifier.PublishProgress(ctx, ev); err != nil {
		slog.Warn("failed to publish run progress", "run_id", run.ID, "error", err)
	}
}
