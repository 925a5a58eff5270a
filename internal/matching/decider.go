package matching

import (
	"github.com/your-org/visitrack/internal/models"
)

// Decision reasons.
const (
	ReasonNoCandidates        = "no_candidates"
	ReasonBelowMatchThreshold = "below_match_threshold"
	ReasonOutfitBelowFloor    = "outfit_below_floor"
	ReasonSingleQualifying    = "single_qualifying_candidate"
	ReasonClearMargin         = "clear_margin"
	ReasonWithinAmbiguityGap  = "within_ambiguity_gap"
	ReasonCandidatesExhausted = "candidates_exhausted"

	conflictLostPrefix = "conflict_lost:"
)

// Outcome is the decider's verdict for one source. Best is the top-ranked
// candidate that was considered, or nil when there was none.
type Outcome struct {
	Decision models.Decision
	Best     *Scored
	Reason   string
}

// Target returns the linked candidate, or nil unless the outcome is linked.
func (o Outcome) Target() *Scored {
	if o.Decision != models.DecisionLinked {
		return nil
	}
	return o.Best
}

// Decider applies the link rule to a ranked candidate list. It always
// prefers leaving a visitor split over merging two visitors.
type Decider struct {
	params Params
}

func NewDecider(p Params) *Decider {
	return &Decider{params: p}
}

// Decide expects ranked to be sorted by final score descending.
func (d *Decider) Decide(ranked []Scored) Outcome {
	if len(ranked) == 0 {
		return Outcome{Decision: models.DecisionNewVisitor, Reason: ReasonNoCandidates}
	}

	best := &ranked[0]
	if best.Scores.Final+scoreEpsilon < d.params.MatchThreshold {
		return Outcome{Decision: models.DecisionNewVisitor, Best: best, Reason: ReasonBelowMatchThreshold}
	}
	if best.Scores.OutfitSim+scoreEpsilon < d.params.OutfitFloor {
		return Outcome{Decision: models.DecisionNewVisitor, Best: best, Reason: ReasonOutfitBelowFloor}
	}

	second := d.runnerUp(ranked)
	if second == nil {
		return Outcome{Decision: models.DecisionLinked, Best: best, Reason: ReasonSingleQualifying}
	}
	if best.Scores.Final-second.Scores.Final+scoreEpsilon >= d.params.AmbiguityGap {
		return Outcome{Decision: models.DecisionLinked, Best: best, Reason: ReasonClearMargin}
	}
	return Outcome{Decision: models.DecisionAmbiguous, Best: best, Reason: ReasonWithinAmbiguityGap}
}

// runnerUp returns the highest ranked candidate after the best whose
// outfit similarity clears the floor.
func (d *Decider) runnerUp(ranked []Scored) *Scored {
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Scores.OutfitSim+scoreEpsilon >= d.params.OutfitFloor {
			return &ranked[i]
		}
	}
	return nil
}

// association renders an outcome as the persisted record. The run and
// record ids are stamped later.
func association(src *models.Tracklet, o Outcome, candidateCount, conflicts int) models.Association {
	a := models.Association{
		VenueID:        src.VenueID,
		FromTrackletID: src.ID,
		FromCameraID:   src.CameraID,
		FromTIn:        src.TIn,
		Decision:       o.Decision,
		CandidateCount: candidateCount,
		Reason:         o.Reason,
	}
	if o.Best != nil {
		a.Score = o.Best.Scores.Final
		a.Scores = o.Best.Scores
		a.Components = o.Best.Components
	}
	if t := o.Target(); t != nil {
		id := t.Target.ID
		a.ToTrackletID = &id
		a.Rank = t.Rank
	}
	a.Components.Conflicts = conflicts
	return a
}
