package matching

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/your-org/visitrack/internal/models"
)

// visitorNamespace seeds the deterministic visitor ids derived from the
// entry tracklet of each journey.
var visitorNamespace = uuid.MustParse("6f1c1b3e-3a0e-4c55-9a57-2f4f0b8d9e21")

type link struct {
	to    uuid.UUID
	score float64
}

type chain struct {
	steps     []*models.Tracklet
	scores    []float64
	completed bool
}

// JourneyBuilder walks the conflict-free link forest from entry cameras.
type JourneyBuilder struct {
	graph  *Graph
	params Params
}

func NewJourneyBuilder(g *Graph, p Params) *JourneyBuilder {
	return &JourneyBuilder{graph: g, params: p}
}

// Build returns journeys ordered by entry (t_in, id). Walks run in
// parallel; claiming tracklets is a sequential pass in that same order so
// no tracklet lands in two journeys.
func (b *JourneyBuilder) Build(ctx context.Context, idx *Index, window Window, assocs []models.Association) ([]models.Journey, error) {
	links := make(map[uuid.UUID]link, len(assocs))
	for _, a := range assocs {
		if a.Decision == models.DecisionLinked && a.ToTrackletID != nil {
			links[a.FromTrackletID] = link{to: *a.ToTrackletID, score: a.Score}
		}
	}

	var starts []*models.Tracklet
	for _, list := range idx.byCamera {
		for _, t := range list {
			if b.graph.IsEntry(t.CameraID) && window.Contains(t.TIn) {
				starts = append(starts, t)
			}
		}
	}
	sortByArrival(starts)

	chains := make([]chain, len(starts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.params.Workers)
	for i, start := range starts {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			chains[i] = b.walk(idx, links, start)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	claimed := make(map[uuid.UUID]bool)
	journeys := make([]models.Journey, 0, len(chains))
	for _, c := range chains {
		if len(c.steps) == 0 || claimed[c.steps[0].ID] {
			continue
		}
		for i, t := range c.steps {
			if claimed[t.ID] {
				c.steps, c.scores, c.completed = c.steps[:i], c.scores[:i-1], false
				break
			}
		}
		if len(c.steps) < b.params.MinChainLength {
			continue
		}
		for _, t := range c.steps {
			claimed[t.ID] = true
		}
		journeys = append(journeys, b.journey(c))
	}
	return journeys, nil
}

func (b *JourneyBuilder) walk(idx *Index, links map[uuid.UUID]link, start *models.Tracklet) chain {
	c := chain{steps: []*models.Tracklet{start}}
	visited := map[uuid.UUID]bool{start.ID: true}
	cur := start
	for {
		l, ok := links[cur.ID]
		if !ok {
			return c
		}
		next, ok := idx.Get(l.to)
		if !ok || visited[next.ID] {
			return c
		}
		if next.TIn.Sub(cur.TOut) > b.params.InactivityThreshold {
			return c
		}
		visited[next.ID] = true
		c.steps = append(c.steps, next)
		c.scores = append(c.scores, l.score)
		if b.graph.IsExit(next.CameraID) {
			c.completed = true
			return c
		}
		cur = next
	}
}

func (b *JourneyBuilder) journey(c chain) models.Journey {
	first, last := c.steps[0], c.steps[len(c.steps)-1]

	path := make([]models.JourneyStep, len(c.steps))
	for i, t := range c.steps {
		path[i] = models.JourneyStep{
			CameraID:        t.CameraID,
			TrackletID:      t.ID,
			TIn:             t.TIn,
			TOut:            t.TOut,
			DurationSeconds: int(t.TOut.Sub(t.TIn) / time.Second),
		}
		if i > 0 {
			score := c.scores[i-1]
			path[i].LinkScore = &score
		}
	}

	j := models.Journey{
		VenueID:              first.VenueID,
		VisitorID:            uuid.NewSHA1(visitorNamespace, first.ID[:]),
		JourneyDate:          time.Date(first.TIn.Year(), first.TIn.Month(), first.TIn.Day(), 0, 0, 0, 0, first.TIn.Location()),
		EntryTime:            first.TIn,
		ExitTime:             last.TOut,
		TotalDurationMinutes: int(last.TOut.Sub(first.TIn) / time.Minute),
		Confidence:           Confidence(c.scores, len(c.steps)),
		Status:               models.JourneyIncomplete,
		EntryPoint:           first.CameraID,
		Path:                 path,
	}
	if c.completed {
		j.Status = models.JourneyCompleted
		exit := last.CameraID
		j.ExitPoint = &exit
	}
	return j
}

// Confidence blends the mean link score, the chain length and the link
// score spread into [0,1].
func Confidence(scores []float64, length int) float64 {
	if len(scores) == 0 {
		return 0
	}
	mean, std := stat.PopMeanStdDev(scores, nil)
	lengthTerm := math.Min(float64(length)/5, 1)
	spreadTerm := 1 - math.Min(std, 0.3)/0.3
	return clamp01(0.7*mean + 0.2*lengthTerm + 0.1*spreadTerm)
}
