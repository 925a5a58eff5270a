// Package matching links per-camera tracklets into visitor journeys.
//
// A run goes through three phases. Phase A retrieves, scores and decides
// candidates for every source tracklet independently. Phase B resolves
// conflicts so no target is claimed by more than one source. Phase C walks
// the resulting link forest into journeys.
package matching

import (
	"math"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/models"
)

// scoreEpsilon absorbs floating point noise in threshold comparisons.
const scoreEpsilon = 1e-9

// Params are the effective parameters of one run.
type Params struct {
	MatchThreshold      float64
	OutfitFloor         float64
	AmbiguityGap        float64
	EmbeddingFloor      float64
	MinTransit          time.Duration
	MaxCandidateWindow  time.Duration
	MaxCandidates       int
	MaxHops             int
	Cooldown            time.Duration
	InactivityThreshold time.Duration
	MinChainLength      int
	Workers             int
}

func DefaultParams() Params {
	return Params{
		MatchThreshold:      0.78,
		OutfitFloor:         0.70,
		AmbiguityGap:        0.04,
		EmbeddingFloor:      0.75,
		MinTransit:          time.Second,
		MaxCandidateWindow:  480 * time.Second,
		MaxCandidates:       50,
		MaxHops:             2,
		Cooldown:            10 * time.Second,
		InactivityThreshold: 30 * time.Minute,
		MinChainLength:      2,
		Workers:             runtime.NumCPU(),
	}
}

// Resolve layers the venue's calibrated thresholds and then the run
// options on top of p.
func (p Params) Resolve(cal *calibration.Calibration, venueID uuid.UUID, opts models.RunOptions) Params {
	if cal != nil {
		t := cal.Thresholds(venueID)
		if t.MatchThreshold > 0 {
			p.MatchThreshold = t.MatchThreshold
		}
		if t.OutfitFloor > 0 {
			p.OutfitFloor = t.OutfitFloor
		}
		if t.AmbiguityGap > 0 {
			p.AmbiguityGap = t.AmbiguityGap
		}
		if t.EmbeddingFloor > 0 {
			p.EmbeddingFloor = t.EmbeddingFloor
		}
		if t.MaxCandidateWindowSec > 0 {
			p.MaxCandidateWindow = seconds(t.MaxCandidateWindowSec)
		}
	}
	if opts.MatchThreshold != nil {
		p.MatchThreshold = *opts.MatchThreshold
	}
	if opts.OutfitFloor != nil {
		p.OutfitFloor = *opts.OutfitFloor
	}
	if opts.AmbiguityGap != nil {
		p.AmbiguityGap = *opts.AmbiguityGap
	}
	if opts.MaxCandidateWindowSec != nil {
		p.MaxCandidateWindow = seconds(*opts.MaxCandidateWindowSec)
	}
	if p.Workers <= 0 {
		p.Workers = 1
	}
	return p
}

// seconds converts s to a Duration, saturating instead of overflowing.
func seconds(s float64) time.Duration {
	if s >= float64(math.MaxInt64)/float64(time.Second) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(s * float64(time.Second))
}

// Window is the closed time range a run covers.
type Window struct {
	From time.Time
	To   time.Time
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.From) && !t.After(w.To)
}
