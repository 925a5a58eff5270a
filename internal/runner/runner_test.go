package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/matching"
	"github.com/your-org/visitrack/internal/models"
	"github.com/your-org/visitrack/internal/storage"
)

var (
	venue     = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	camEntry  = uuid.MustParse("00000000-0000-0000-0000-00000000c001")
	camAtrium = uuid.MustParse("00000000-0000-0000-0000-00000000c002")
	camExit   = uuid.MustParse("00000000-0000-0000-0000-00000000c003")
	epoch     = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
)

// --- fakes ---

type fakeSource struct {
	failures int // LoadTracklets fails this many times before succeeding
	calls    int
}

func (f *fakeSource) LoadCameras(context.Context, uuid.UUID) ([]models.Camera, []models.CameraEdge, error) {
	return []models.Camera{
			{ID: camEntry, VenueID: venue, PinType: models.PinTypeEntrance},
			{ID: camAtrium, VenueID: venue, PinType: models.PinTypeNormal},
			{ID: camExit, VenueID: venue, PinType: models.PinTypeExit},
		}, []models.CameraEdge{
			{From: camEntry, To: camAtrium},
			{From: camAtrium, To: camExit},
		}, nil
}

func (f *fakeSource) LoadTracklets(context.Context, uuid.UUID, time.Time, time.Time) ([]models.Tracklet, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return []models.Tracklet{
		sighting(1, camEntry, 0, 10),
		sighting(2, camAtrium, 70, 100),
		sighting(3, camExit, 160, 170),
	}, nil
}

func sighting(n byte, camera uuid.UUID, inSec, outSec int) models.Tracklet {
	var id uuid.UUID
	id[15] = n
	embedding := make([]float32, 128)
	embedding[1] = 1
	garment := func(typ string, l, a, b float64) *models.Garment {
		return &models.Garment{Type: typ, Lab: [3]float64{l, a, b}}
	}
	return models.Tracklet{
		ID:       id,
		VenueID:  venue,
		CameraID: camera,
		TIn:      epoch.Add(time.Duration(inSec) * time.Second),
		TOut:     epoch.Add(time.Duration(outSec) * time.Second),
		Outfit: models.Outfit{
			Top:    garment("jacket", 25, 5, -30),
			Bottom: garment("jeans", 35, 0, -20),
			Shoes:  garment("sneakers", 90, 0, 0),
		},
		Embedding:      embedding,
		HeightCategory: models.HeightTall,
		AspectRatio:    0.42,
		Quality:        0.9,
	}
}

type fakeSink struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]*models.Run
	progress  []int
	assocs    []models.Association
	journeys  []models.Journey
	commitErr error
}

func newFakeSink(runs ...*models.Run) *fakeSink {
	s := &fakeSink{runs: map[uuid.UUID]*models.Run{}}
	for _, r := range runs {
		s.runs[r.ID] = r
	}
	return s
}

func (s *fakeSink) GetRun(_ context.Context, id uuid.UUID) (*models.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *fakeSink) MarkRunning(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].Status = models.RunStatusRunning
	return nil
}

func (s *fakeSink) UpdateProgress(_ context.Context, id uuid.UUID, pct int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].ProgressPercent = pct
	s.progress = append(s.progress, pct)
	return nil
}

func (s *fakeSink) SetCalibrationVersion(_ context.Context, id uuid.UUID, v string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id].CalibrationVersion = v
	return nil
}

func (s *fakeSink) FailRun(_ context.Context, id uuid.UUID, msg string, n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.runs[id]
	r.Status = models.RunStatusFailed
	r.ErrorMessage = msg
	r.ErrorCount = n
	s.assocs, s.journeys = nil, nil
	return nil
}

func (s *fakeSink) CommitRun(_ context.Context, run *models.Run, assocs []models.Association, journeys []models.Journey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	r := s.runs[run.ID]
	r.Status = models.RunStatusCompleted
	r.ProgressPercent = 100
	r.AssociationsCreated = len(assocs)
	r.JourneysCreated = len(journeys)
	r.ErrorCount = run.ErrorCount
	r.ReportKey = run.ReportKey
	s.assocs, s.journeys = assocs, journeys
	return nil
}

type fakeReports struct {
	err     error
	reports map[string]*storage.Report
}

func (f *fakeReports) PutReport(_ context.Context, key string, r *storage.Report) error {
	if f.err != nil {
		return f.err
	}
	if f.reports == nil {
		f.reports = map[string]*storage.Report{}
	}
	f.reports[key] = r
	return nil
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []models.RunProgress
}

func (f *fakeNotifier) PublishProgress(_ context.Context, ev models.RunProgress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// --- helpers ---

func queuedRun() *models.Run {
	return &models.Run{
		ID:         uuid.New(),
		VenueID:    venue,
		WindowFrom: epoch.Add(-time.Hour),
		WindowTo:   epoch.Add(time.Hour),
		Status:     models.RunStatusQueued,
	}
}

func newRunner(t *testing.T, src *fakeSource, sink *fakeSink, reports *fakeReports, notifier *fakeNotifier) *Runner {
	t.Helper()
	cal, err := calibration.New(calibration.Default())
	require.NoError(t, err)
	params := matching.DefaultParams()
	params.Workers = 2
	// Pass untyped nils so the runner's nil checks see an absent dependency.
	var rs ReportStore
	if reports != nil {
		rs = reports
	}
	var n Notifier
	if notifier != nil {
		n = notifier
	}
	return New(matching.NewEngine(params), src, calibration.StaticSource{Cal: cal}, sink, rs, n, Options{
		FetchInitialInterval: time.Millisecond,
		FetchMaxElapsed:      time.Second,
	})
}

func taskFor(r *models.Run) models.RunTask {
	return models.RunTask{RunID: r.ID, VenueID: r.VenueID, From: r.WindowFrom, To: r.WindowTo}
}

// --- tests ---

func TestExecute_CompletesRun(t *testing.T) {
	run := queuedRun()
	sink := newFakeSink(run)
	reports := &fakeReports{}
	notifier := &fakeNotifier{}

	err := newRunner(t, &fakeSource{}, sink, reports, notifier).Execute(t.Context(), taskFor(run))
	require.NoError(t, err)

	got := sink.runs[run.ID]
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 3, got.AssociationsCreated)
	assert.Equal(t, 1, got.JourneysCreated)
	assert.Equal(t, calibration.Default().Version, got.CalibrationVersion)
	assert.Equal(t, storage.ReportKey(venue, run.ID), got.ReportKey)
	assert.Equal(t, []int{10, 60, 75, 90, 95}, sink.progress)

	for _, a := range sink.assocs {
		assert.Equal(t, run.ID, a.RunID)
		assert.Equal(t, venue, a.VenueID)
		assert.NotEqual(t, uuid.Nil, a.ID)
	}
	require.Len(t, sink.journeys, 1)
	assert.Equal(t, run.ID, sink.journeys[0].RunID)
	assert.Equal(t, models.JourneyCompleted, sink.journeys[0].Status)

	report := reports.reports[got.ReportKey]
	require.NotNil(t, report)
	assert.Equal(t, models.RunStatusCompleted, report.Run.Status)
	assert.Len(t, report.Associations, 3)
	assert.Equal(t, 2, report.Stats.Linked)

	last := notifier.events[len(notifier.events)-1]
	assert.Equal(t, models.RunStatusCompleted, last.Status)
	assert.Equal(t, 100, last.Percent)
	assert.Equal(t, 3, last.Associations)
}

func TestExecute_RetriesFetch(t *testing.T) {
	run := queuedRun()
	sink := newFakeSink(run)
	src := &fakeSource{failures: 2}

	require.NoError(t, newRunner(t, src, sink, nil, nil).Execute(t.Context(), taskFor(run)))

	got := sink.runs[run.ID]
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Equal(t, 2, got.ErrorCount)
	assert.Equal(t, 3, src.calls)
	assert.Empty(t, got.ReportKey, "no report store configured")
}

func TestExecute_FetchExhaustedFailsRun(t *testing.T) {
	run := queuedRun()
	sink := newFakeSink(run)
	notifier := &fakeNotifier{}
	src := &fakeSource{failures: 1 << 30}

	require.NoError(t, newRunner(t, src, sink, nil, notifier).Execute(t.Context(), taskFor(run)))

	got := sink.runs[run.ID]
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Contains(t, got.ErrorMessage, "connection refused")
	assert.Positive(t, got.ErrorCount)

	last := notifier.events[len(notifier.events)-1]
	assert.Equal(t, models.RunStatusFailed, last.Status)
	assert.NotEmpty(t, last.Error)
}

func TestExecute_IntegrityViolationFailsRun(t *testing.T) {
	run := queuedRun()
	sink := newFakeSink(run)
	sink.commitErr = errors.Join(errors.New("copy associations"), matching.ErrIntegrity)

	require.NoError(t, newRunner(t, &fakeSource{}, sink, nil, nil).Execute(t.Context(), taskFor(run)))

	got := sink.runs[run.ID]
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Empty(t, sink.assocs, "a failed run exposes no associations")
}

func TestExecute_ReportUploadFailureIsNotFatal(t *testing.T) {
	run := queuedRun()
	sink := newFakeSink(run)

	err := newRunner(t, &fakeSource{}, sink, &fakeReports{err: errors.New("bucket gone")}, nil).Execute(t.Context(), taskFor(run))
	require.NoError(t, err)

	got := sink.runs[run.ID]
	assert.Equal(t, models.RunStatusCompleted, got.Status)
	assert.Empty(t, got.ReportKey)
}

func TestExecute_SkipsSettledRuns(t *testing.T) {
	for _, status := range []models.RunStatus{models.RunStatusCompleted, models.RunStatusFailed} {
		t.Run(string(status), func(t *testing.T) {
			run := queuedRun()
			run.Status = status
			sink := newFakeSink(run)
			src := &fakeSource{}

			require.NoError(t, newRunner(t, src, sink, nil, nil).Execute(t.Context(), taskFor(run)))
			assert.Equal(t, status, sink.runs[run.ID].Status)
			assert.Zero(t, src.calls)
		})
	}
}

func TestExecute_UnknownRun(t *testing.T) {
	err := newRunner(t, &fakeSource{}, newFakeSink(), nil, nil).Execute(t.Context(), models.RunTask{RunID: uuid.New(), VenueID: venue})
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestExecute_ShutdownLeavesRunForRedelivery(t *testing.T) {
	run := queuedRun()
	sink := newFakeSink(run)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	err := newRunner(t, &fakeSource{}, sink, nil, nil).Execute(ctx, taskFor(run))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.RunStatusRunning, sink.runs[run.ID].Status)
}
