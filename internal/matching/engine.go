package matching

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/models"
	"github.com/your-org/visitrack/internal/observability"
)

// Phase names reported through ProgressFunc and the phase histogram.
const (
	PhaseCandidates = "candidates"
	PhaseConflicts  = "conflicts"
	PhaseJourneys   = "journeys"
	PhaseIntegrity  = "integrity"
)

// Input is everything one run needs. Tracklets outside Window are ignored.
type Input struct {
	VenueID     uuid.UUID
	Window      Window
	Tracklets   []models.Tracklet
	Cameras     []models.Camera
	Edges       []models.CameraEdge
	Calibration *calibration.Calibration
	Options     models.RunOptions
}

type Stats struct {
	Sources    int            `json:"sources"`
	Invalid    int            `json:"invalid"`
	Linked     int            `json:"linked"`
	NewVisitor int            `json:"new_visitor"`
	Ambiguous  int            `json:"ambiguous"`
	Conflicts  int            `json:"conflicts"`
	Journeys   int            `json:"journeys"`
	Defects    map[string]int `json:"defects,omitempty"`
}

type Result struct {
	Params       Params
	Associations []models.Association
	Journeys     []models.Journey
	Stats        Stats
}

// ProgressFunc is told when a phase finishes.
type ProgressFunc func(phase string)

// Engine runs the three matching phases over one window. It holds no
// per-run state and can serve concurrent runs.
type Engine struct {
	defaults Params
}

func NewEngine(defaults Params) *Engine {
	return &Engine{defaults: defaults}
}

// Run executes Phase A, B and C followed by the integrity check. It stops
// between phases when ctx is cancelled; nothing it returns on error is
// meant to be kept.
func (e *Engine) Run(ctx context.Context, in Input, progress ProgressFunc) (*Result, error) {
	if in.Calibration == nil {
		return nil, fmt.Errorf("run matching: calibration is required")
	}
	if progress == nil {
		progress = func(string) {}
	}
	params := e.defaults.Resolve(in.Calibration, in.VenueID, in.Options)
	graph := NewGraph(in.Cameras, in.Edges, params.MaxHops)

	sources := make([]*models.Tracklet, 0, len(in.Tracklets))
	for i := range in.Tracklets {
		t := &in.Tracklets[i]
		if in.Window.Contains(t.TIn) {
			sources = append(sources, t)
		}
	}
	sortByArrival(sources)

	defects := make([]string, len(sources))
	valid := make([]*models.Tracklet, 0, len(sources))
	for i, t := range sources {
		defects[i] = Validate(t, graph, in.Calibration.EmbeddingDim())
		if defects[i] == "" {
			valid = append(valid, t)
			continue
		}
		slog.Warn("tracklet excluded from matching", "tracklet_id", t.ID, "camera_id", t.CameraID, "reason", defects[i])
		observability.InvalidTracklets.WithLabelValues(defects[i]).Inc()
	}
	idx := NewIndex(valid)

	// Phase A
	start := time.Now()
	states, err := e.decideAll(ctx, in.VenueID, params, graph, idx, in.Calibration, sources, defects)
	if err != nil {
		return nil, fmt.Errorf("decide candidates: %w", err)
	}
	observability.PhaseDuration.WithLabelValues(PhaseCandidates).Observe(time.Since(start).Seconds())
	progress(PhaseCandidates)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Phase B
	start = time.Now()
	conflicts := NewResolver(NewDecider(params), params).Resolve(states)
	observability.PhaseDuration.WithLabelValues(PhaseConflicts).Observe(time.Since(start).Seconds())
	observability.ConflictsResolved.Add(float64(conflicts))
	progress(PhaseConflicts)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	assocs := make([]models.Association, len(states))
	for i, p := range states {
		assocs[i] = p.Association()
		if assocs[i].Decision != models.DecisionLinked {
			slog.Debug("no link for tracklet", "source_tracklet", p.Source.ID, "decision", assocs[i].Decision, "reason", assocs[i].Reason)
		}
	}

	// Phase C
	start = time.Now()
	journeys, err := NewJourneyBuilder(graph, params).Build(ctx, idx, in.Window, assocs)
	if err != nil {
		return nil, fmt.Errorf("build journeys: %w", err)
	}
	observability.PhaseDuration.WithLabelValues(PhaseJourneys).Observe(time.Since(start).Seconds())
	progress(PhaseJourneys)

	start = time.Now()
	ids := make([]uuid.UUID, len(sources))
	for i, t := range sources {
		ids[i] = t.ID
	}
	if err := CheckIntegrity(ids, assocs, journeys); err != nil {
		return nil, err
	}
	observability.PhaseDuration.WithLabelValues(PhaseIntegrity).Observe(time.Since(start).Seconds())
	progress(PhaseIntegrity)

	res := &Result{Params: params, Associations: assocs, Journeys: journeys}
	res.Stats = summarize(assocs, defects, conflicts, len(journeys))
	return res, nil
}

// decideAll is Phase A. Each source is retrieved, scored and decided on
// its own goroutine and writes only its own slot.
func (e *Engine) decideAll(ctx context.Context, venueID uuid.UUID, params Params, graph *Graph, idx *Index,
	cal *calibration.Calibration, sources []*models.Tracklet, defects []string,
) ([]*Provisional, error) {
	retriever := NewRetriever(graph, idx, params)
	scorer := NewScorer(cal, graph, params)
	decider := NewDecider(params)

	states := make([]*Provisional, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(params.Workers)
	for i, src := range sources {
		if defects[i] != "" {
			states[i] = &Provisional{
				Source:  src,
				Defect:  defects[i],
				Outcome: Outcome{Decision: models.DecisionNewVisitor, Reason: defectReason(defects[i])},
			}
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			cands := retriever.Candidates(src)
			ranked := scorer.ScoreAll(venueID, src, cands)
			states[i] = &Provisional{
				Source:         src,
				Ranked:         ranked,
				CandidateCount: len(cands),
				Outcome:        decider.Decide(ranked),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return states, nil
}

func summarize(assocs []models.Association, defects []string, conflicts, journeys int) Stats {
	s := Stats{Sources: len(assocs), Conflicts: conflicts, Journeys: journeys}
	for _, d := range defects {
		if d == "" {
			continue
		}
		if s.Defects == nil {
			s.Defects = make(map[string]int)
		}
		s.Invalid++
		s.Defects[d]++
	}
	for _, a := range assocs {
		switch a.Decision {
		case models.DecisionLinked:
			s.Linked++
		case models.DecisionNewVisitor:
			s.NewVisitor++
		case models.DecisionAmbiguous:
			s.Ambiguous++
		}
	}
	return s
}
