package matching

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/models"
)

// Provisional is the per-source state carried from Phase A into conflict
// resolution. Ranked shrinks every time the source loses a target.
type Provisional struct {
	Source         *models.Tracklet
	Ranked         []Scored
	CandidateCount int
	Outcome        Outcome
	Conflicts      int
	Defect         string
}

func (p *Provisional) Association() models.Association {
	return association(p.Source, p.Outcome, p.CandidateCount, p.Conflicts)
}

// Resolver makes linked decisions injective over targets. It owns every
// Provisional it is handed and must run on a single goroutine.
type Resolver struct {
	decider *Decider
	params  Params
}

func NewResolver(d *Decider, p Params) *Resolver {
	return &Resolver{decider: d, params: p}
}

// Resolve processes an explicit worklist of linked sources. When two
// sources claim the same target the higher score keeps it, ties going to
// the lower source id. The loser drops the target plus any candidate at
// the same camera that arrived within the cool-down of it, then is decided
// again on what remains. Every loss strictly shrinks a candidate list, so
// the loop terminates. It returns the number of conflicts resolved.
func (r *Resolver) Resolve(states []*Provisional) int {
	sorted := make([]*Provisional, len(states))
	copy(sorted, states)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Source.ID[:], sorted[j].Source.ID[:]) < 0
	})

	var queue []*Provisional
	for _, p := range sorted {
		if p.Outcome.Decision == models.DecisionLinked {
			queue = append(queue, p)
		}
	}

	owner := make(map[uuid.UUID]*Provisional, len(queue))
	conflicts := 0
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]

		target := p.Outcome.Target()
		if target == nil {
			continue
		}
		held, taken := owner[target.Target.ID]
		if !taken || held == p {
			owner[target.Target.ID] = p
			continue
		}

		conflicts++
		winner, loser := held, p
		if beats(p, held) {
			winner, loser = p, held
		}
		owner[target.Target.ID] = winner
		winner.Conflicts++
		loser.Conflicts++

		r.demote(loser, target.Target)
		if loser.Outcome.Decision == models.DecisionLinked {
			queue = append(queue, loser)
		}
	}
	return conflicts
}

func beats(a, b *Provisional) bool {
	sa, sb := a.Outcome.Best.Scores.Final, b.Outcome.Best.Scores.Final
	if sa != sb {
		return sa > sb
	}
	return bytes.Compare(a.Source.ID[:], b.Source.ID[:]) < 0
}

func (r *Resolver) demote(p *Provisional, lost *models.Tracklet) {
	remaining := make([]Scored, 0, len(p.Ranked))
	for _, s := range p.Ranked {
		if s.Target.ID == lost.ID || r.coolingDown(s.Target, lost) {
			continue
		}
		remaining = append(remaining, s)
	}
	p.Ranked = remaining

	if len(remaining) == 0 {
		p.Outcome = Outcome{Decision: models.DecisionNewVisitor, Reason: conflictLostPrefix + ReasonCandidatesExhausted}
		return
	}
	p.Outcome = r.decider.Decide(remaining)
	p.Outcome.Reason = conflictLostPrefix + p.Outcome.Reason
}

// coolingDown reports whether t is the same camera sighting window as a
// target just lost to another source.
func (r *Resolver) coolingDown(t, lost *models.Tracklet) bool {
	if t.CameraID != lost.CameraID {
		return false
	}
	d := t.TIn.Sub(lost.TIn)
	if d < 0 {
		d = -d
	}
	return d <= r.params.Cooldown
}
