package matching

import (
	"math"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/models"
)

// aspectFalloff is the absolute aspect-ratio difference at which the
// closeness term reaches zero.
const aspectFalloff = 0.1

// Scorer computes the four signal scores for one candidate pair. It only
// reads the calibration and graph and is safe for concurrent use.
type Scorer struct {
	cal    *calibration.Calibration
	graph  *Graph
	params Params
}

func NewScorer(cal *calibration.Calibration, g *Graph, p Params) *Scorer {
	return &Scorer{cal: cal, graph: g, params: p}
}

// Outfit scores garment type agreement, colour agreement and embedding
// similarity. Regions missing on either side score 0.
func (s *Scorer) Outfit(src, dst *models.Tracklet, embeddingSim float64, c *models.Components) float64 {
	cp := s.cal.Color()
	a, b := src.Outfit.Regions(), dst.Outfit.Regions()

	var typeSum, colorSum float64
	for i := range a {
		if a[i] == nil || b[i] == nil {
			continue
		}
		typeSum += s.cal.TypeSimilarity(a[i].Type, b[i].Type)
		colorSum += softColor(deltaE76(a[i].Lab, b[i].Lab), cp.Midpoint, cp.Scale)
	}
	c.TypeMatch = typeSum / float64(len(a))
	c.ColorSim = colorSum / float64(len(a))
	c.EmbeddingSim = embeddingSim

	w := s.cal.OutfitWeights()
	total := w.Type + w.Color + w.Embedding
	if total <= 0 {
		return 0
	}
	return clamp01((w.Type*c.TypeMatch + w.Color*c.ColorSim + w.Embedding*c.EmbeddingSim) / total)
}

// Time scores the observed transit against the expected transit of the
// camera pair. Transit shorter than MinTransit or at least mu+3tau is
// rejected outright.
func (s *Scorer) Time(src, dst *models.Tracklet, c *models.Components) float64 {
	mu, tau := s.transit(src, dst)
	dt := dst.TIn.Sub(src.TOut).Seconds()

	c.DeltaTSec = dt
	c.MuSec = mu
	c.TauSec = tau

	if dt < s.params.MinTransit.Seconds() || dt >= mu+3*tau {
		c.TimeRejected = true
		return 0
	}
	return clamp01(math.Exp(-math.Abs(dt-mu) / tau))
}

// transit prefers a calibrated edge entry, then the learned estimate on
// the adjacency edge, then the calibrated fallback.
func (s *Scorer) transit(src, dst *models.Tracklet) (mu, tau float64) {
	if s.cal.HasTransit(src.CameraID, dst.CameraID) {
		mu, tau, _ = s.cal.Transit(src.CameraID, dst.CameraID)
		return mu, tau
	}
	if mu, tau, ok := s.graph.Transit(src.CameraID, dst.CameraID); ok {
		return mu, tau
	}
	mu, tau, _ = s.cal.Transit(src.CameraID, dst.CameraID)
	return mu, tau
}

func (s *Scorer) Adjacency(hops int, c *models.Components) float64 {
	c.Hops = hops
	switch hops {
	case 1:
		return 1
	case 2:
		return 0.5
	}
	return 0
}

func (s *Scorer) Physique(src, dst *models.Tracklet, c *models.Components) float64 {
	c.HeightMatch = heightScore(src.HeightCategory, dst.HeightCategory)
	c.AspectCloseness = math.Max(0, 1-math.Abs(src.AspectRatio-dst.AspectRatio)/aspectFalloff)
	return clamp01(0.6*c.HeightMatch + 0.4*c.AspectCloseness)
}
