// Package calibration holds the per-run, read-only calibration snapshot:
// signal weights, per-venue and per-camera overrides, per-edge transit
// parameters and decision thresholds.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"
)

// Weights are the fusion weights of the four signals.
type Weights struct {
	Outfit    float64 `json:"outfit"`
	Time      float64 `json:"time"`
	Adjacency float64 `json:"adjacency"`
	Physique  float64 `json:"physique"`
}

func (w Weights) sum() float64 { return w.Outfit + w.Time + w.Adjacency + w.Physique }

func (w Weights) valid() bool {
	for _, v := range []float64{w.Outfit, w.Time, w.Adjacency, w.Physique} {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return w.sum() > 0
}

// OutfitWeights split the outfit signal into its three parts.
type OutfitWeights struct {
	Type      float64 `json:"type"`
	Color     float64 `json:"color"`
	Embedding float64 `json:"embedding"`
}

// Thresholds are the decision thresholds. Zero means "use the service
// default".
type Thresholds struct {
	MatchThreshold        float64 `json:"match_threshold"`
	OutfitFloor           float64 `json:"outfit_floor"`
	AmbiguityGap          float64 `json:"ambiguity_gap"`
	EmbeddingFloor        float64 `json:"embedding_floor"`
	MaxCandidateWindowSec float64 `json:"max_candidate_window_sec"`
}

// ColorParams shape the soft threshold applied to the CIE76 colour distance.
type ColorParams struct {
	Midpoint float64 `json:"midpoint"`
	Scale    float64 `json:"scale"`
}

type VenueOverride struct {
	Weights    *Weights    `json:"weights,omitempty"`
	Thresholds *Thresholds `json:"thresholds,omitempty"`
}

type CameraOverride struct {
	Weights *Weights `json:"weights,omitempty"`
	Trust   *float64 `json:"trust,omitempty"`
}

// EdgeTransit is the expected transit time between two cameras.
type EdgeTransit struct {
	From   uuid.UUID `json:"from"`
	To     uuid.UUID `json:"to"`
	MuSec  float64   `json:"mu_sec"`
	TauSec float64   `json:"tau_sec"`
}

// TypePair is one entry of the symmetric garment-type confusion matrix.
type TypePair struct {
	A     string  `json:"a"`
	B     string  `json:"b"`
	Score float64 `json:"score"`
}

// Snapshot is the wire/storage form of a calibration. Build a Calibration
// from it with New before use.
type Snapshot struct {
	Version        string                    `json:"version"`
	Weights        Weights                   `json:"weights"`
	OutfitWeights  OutfitWeights             `json:"outfit_weights"`
	Thresholds     Thresholds                `json:"thresholds"`
	Color          ColorParams               `json:"color"`
	FallbackMuSec  float64                   `json:"fallback_mu_sec"`
	FallbackTauSec float64                   `json:"fallback_tau_sec"`
	EmbeddingDim   int                       `json:"embedding_dim"`
	Venues         map[string]VenueOverride  `json:"venues,omitempty"`
	Cameras        map[string]CameraOverride `json:"cameras,omitempty"`
	Edges          []EdgeTransit             `json:"edges,omitempty"`
	TypeConfusion  []TypePair                `json:"type_confusion,omitempty"`
}

var ErrInvalid = errors.New("invalid calibration")

type edgeKey struct{ from, to uuid.UUID }

type typeKey struct{ a, b string }

type transit struct{ mu, tau float64 }

// Calibration is the resolved, immutable form of a Snapshot. All lookups
// are read-only so one value can be shared by every worker in a run.
type Calibration struct {
	version       string
	weights       Weights
	outfitWeights OutfitWeights
	thresholds    Thresholds
	color         ColorParams
	fallback      transit
	embeddingDim  int

	venueWeights    map[uuid.UUID]Weights
	venueThresholds map[uuid.UUID]Thresholds
	cameraWeights   map[uuid.UUID]Weights
	cameraTrust     map[uuid.UUID]float64
	edges           map[edgeKey]transit
	typeConfusion   map[typeKey]float64
}

// New validates s, fills unset fields from Default and returns the
// resolved calibration.
func New(s Snapshot) (*Calibration, error) {
	def := Default()

	c := &Calibration{
		version:         s.Version,
		weights:         s.Weights,
		outfitWeights:   s.OutfitWeights,
		thresholds:      s.Thresholds,
		color:           s.Color,
		fallback:        transit{mu: s.FallbackMuSec, tau: s.FallbackTauSec},
		embeddingDim:    s.EmbeddingDim,
		venueWeights:    make(map[uuid.UUID]Weights),
		venueThresholds: make(map[uuid.UUID]Thresholds),
		cameraWeights:   make(map[uuid.UUID]Weights),
		cameraTrust:     make(map[uuid.UUID]float64),
		edges:           make(map[edgeKey]transit, len(s.Edges)),
		typeConfusion:   make(map[typeKey]float64, len(s.TypeConfusion)),
	}
	if c.version == "" {
		c.version = def.Version
	}
	if c.weights == (Weights{}) {
		c.weights = def.Weights
	}
	if !c.weights.valid() {
		return nil, fmt.Errorf("%w: weights must be non-negative with a positive sum", ErrInvalid)
	}
	if c.outfitWeights == (OutfitWeights{}) {
		c.outfitWeights = def.OutfitWeights
	}
	if c.color.Scale <= 0 {
		c.color = def.Color
	}
	if c.fallback.mu <= 0 {
		c.fallback.mu = def.FallbackMuSec
	}
	if c.fallback.tau <= 0 {
		c.fallback.tau = def.FallbackTauSec
	}
	if c.embeddingDim <= 0 {
		c.embeddingDim = def.EmbeddingDim
	}

	for key, ov := range s.Venues {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("%w: venue key %q: %v", ErrInvalid, key, err)
		}
		if ov.Weights != nil {
			if !ov.Weights.valid() {
				return nil, fmt.Errorf("%w: venue %s weights", ErrInvalid, id)
			}
			c.venueWeights[id] = *ov.Weights
		}
		if ov.Thresholds != nil {
			c.venueThresholds[id] = mergeThresholds(c.thresholds, *ov.Thresholds)
		}
	}

	for key, ov := range s.Cameras {
		id, err := uuid.Parse(key)
		if err != nil {
			return nil, fmt.Errorf("%w: camera key %q: %v", ErrInvalid, key, err)
		}
		if ov.Weights != nil {
			if !ov.Weights.valid() {
				return nil, fmt.Errorf("%w: camera %s weights", ErrInvalid, id)
			}
			c.cameraWeights[id] = *ov.Weights
		}
		if ov.Trust != nil {
			if *ov.Trust < 0 || *ov.Trust > 1 {
				return nil, fmt.Errorf("%w: camera %s trust %.3f outside [0,1]", ErrInvalid, id, *ov.Trust)
			}
			c.cameraTrust[id] = *ov.Trust
		}
	}

	for _, e := range s.Edges {
		if e.MuSec <= 0 || e.TauSec <= 0 {
			return nil, fmt.Errorf("%w: edge %s->%s needs positive mu and tau", ErrInvalid, e.From, e.To)
		}
		c.edges[edgeKey{e.From, e.To}] = transit{mu: e.MuSec, tau: e.TauSec}
	}
	// An edge given in one direction covers the reverse unless that is
	// calibrated too.
	for _, e := range s.Edges {
		rev := edgeKey{e.To, e.From}
		if _, ok := c.edges[rev]; !ok {
			c.edges[rev] = transit{mu: e.MuSec, tau: e.TauSec}
		}
	}

	confusion := s.TypeConfusion
	if len(confusion) == 0 {
		confusion = def.TypeConfusion
	}
	for _, p := range confusion {
		a, b := normType(p.A), normType(p.B)
		score := math.Max(0, math.Min(1, p.Score))
		c.typeConfusion[typeKey{a, b}] = score
		c.typeConfusion[typeKey{b, a}] = score
	}

	return c, nil
}

func mergeThresholds(base, over Thresholds) Thresholds {
	if over.MatchThreshold > 0 {
		base.MatchThreshold = over.MatchThreshold
	}
	if over.OutfitFloor > 0 {
		base.OutfitFloor = over.OutfitFloor
	}
	if over.AmbiguityGap > 0 {
		base.AmbiguityGap = over.AmbiguityGap
	}
	if over.EmbeddingFloor > 0 {
		base.EmbeddingFloor = over.EmbeddingFloor
	}
	if over.MaxCandidateWindowSec > 0 {
		base.MaxCandidateWindowSec = over.MaxCandidateWindowSec
	}
	return base
}

func normType(t string) string { return strings.ToLower(strings.TrimSpace(t)) }

func (c *Calibration) Version() string { return c.version }

func (c *Calibration) EmbeddingDim() int { return c.embeddingDim }

func (c *Calibration) OutfitWeights() OutfitWeights { return c.outfitWeights }

func (c *Calibration) Color() ColorParams { return c.color }

// Weights resolves the fusion weights: camera override, then venue
// override, then the base weights.
func (c *Calibration) Weights(venueID, cameraID uuid.UUID) Weights {
	if w, ok := c.cameraWeights[cameraID]; ok {
		return w
	}
	if w, ok := c.venueWeights[venueID]; ok {
		return w
	}
	return c.weights
}

// Thresholds resolves the decision thresholds for a venue.
func (c *Calibration) Thresholds(venueID uuid.UUID) Thresholds {
	if t, ok := c.venueThresholds[venueID]; ok {
		return t
	}
	return c.thresholds
}

// CameraTrust returns the trust multiplier for a camera, 1 when unset.
func (c *Calibration) CameraTrust(cameraID uuid.UUID) float64 {
	if t, ok := c.cameraTrust[cameraID]; ok {
		return t
	}
	return 1
}

// Transit returns the expected transit mean and spread in seconds for
// from->to. ok is false when the fallback values were used.
func (c *Calibration) Transit(from, to uuid.UUID) (mu, tau float64, ok bool) {
	if t, found := c.edges[edgeKey{from, to}]; found {
		return t.mu, t.tau, true
	}
	return c.fallback.mu, c.fallback.tau, false
}

// HasTransit reports whether the snapshot carries an entry for from->to,
// directly or mirrored from to->from.
func (c *Calibration) HasTransit(from, to uuid.UUID) bool {
	_, ok := c.edges[edgeKey{from, to}]
	return ok
}

// TypeSimilarity looks up the confusion score of two garment types.
// Identical known types score 1; unknown pairs score 0.
func (c *Calibration) TypeSimilarity(a, b string) float64 {
	a, b = normType(a), normType(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return c.typeConfusion[typeKey{a, b}]
}
