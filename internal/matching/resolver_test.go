package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/visitrack/internal/models"
)

type claim struct {
	target *models.Tracklet
	final  float64
}

func provisional(t *testing.T, d *Decider, source int, claims ...claim) *Provisional {
	t.Helper()
	src := sighting(source, camEntry, 0, 10, navyOutfit(), emb(1))
	list := make([]Scored, len(claims))
	for i, c := range claims {
		list[i] = Scored{
			Candidate: Candidate{Target: c.target, Hops: 1, EmbeddingSim: 1},
			Scores:    models.Scores{Final: c.final, OutfitSim: 0.9},
		}
	}
	list = ranked(list...)
	p := &Provisional{Source: &src, Ranked: list, CandidateCount: len(list), Outcome: d.Decide(list)}
	require.Equal(t, models.DecisionLinked, p.Outcome.Decision, "fixture source %d must start linked", source)
	return p
}

func TestResolver_DisplacementChain(t *testing.T) {
	p := DefaultParams()
	d := NewDecider(p)

	a := sighting(50, camAtrium, 70, 80, navyOutfit(), emb(1))
	b := sighting(51, camAtrium, 200, 210, navyOutfit(), emb(1))
	c := sighting(52, camExit, 300, 310, navyOutfit(), emb(1))

	s1 := provisional(t, d, 1, claim{&a, 0.95}, claim{&b, 0.85})
	s2 := provisional(t, d, 2, claim{&a, 0.90}, claim{&c, 0.84})
	s3 := provisional(t, d, 3, claim{&c, 0.93})

	conflicts := NewResolver(d, p).Resolve([]*Provisional{s3, s2, s1})
	assert.Equal(t, 2, conflicts)

	require.NotNil(t, s1.Outcome.Target())
	assert.Equal(t, a.ID, s1.Outcome.Target().Target.ID)
	require.NotNil(t, s3.Outcome.Target())
	assert.Equal(t, c.ID, s3.Outcome.Target().Target.ID)

	assert.Equal(t, models.DecisionNewVisitor, s2.Outcome.Decision)
	assert.Equal(t, conflictLostPrefix+ReasonCandidatesExhausted, s2.Outcome.Reason)
	assert.Empty(t, s2.Ranked)
	assert.Equal(t, 2, s2.Conflicts)
	assert.Equal(t, 1, s1.Conflicts)
	assert.Equal(t, 1, s3.Conflicts)
}

func TestResolver_EqualScoresGoToLowerSourceID(t *testing.T) {
	p := DefaultParams()
	d := NewDecider(p)
	a := sighting(50, camAtrium, 70, 80, navyOutfit(), emb(1))

	high := provisional(t, d, 9, claim{&a, 0.9})
	low := provisional(t, d, 4, claim{&a, 0.9})

	NewResolver(d, p).Resolve([]*Provisional{high, low})
	assert.Equal(t, models.DecisionLinked, low.Outcome.Decision)
	assert.Equal(t, models.DecisionNewVisitor, high.Outcome.Decision)
}

func TestResolver_LoserMayBecomeAmbiguous(t *testing.T) {
	p := DefaultParams()
	d := NewDecider(p)
	a := sighting(50, camAtrium, 70, 80, navyOutfit(), emb(1))
	b := sighting(51, camAtrium, 200, 210, navyOutfit(), emb(1))
	c := sighting(52, camExit, 300, 310, navyOutfit(), emb(1))

	winner := provisional(t, d, 1, claim{&a, 0.99})
	loser := provisional(t, d, 2, claim{&a, 0.95}, claim{&b, 0.88}, claim{&c, 0.87})

	NewResolver(d, p).Resolve([]*Provisional{winner, loser})
	assert.Equal(t, models.DecisionAmbiguous, loser.Outcome.Decision)
	assert.Equal(t, conflictLostPrefix+ReasonWithinAmbiguityGap, loser.Outcome.Reason)
	assert.Nil(t, loser.Outcome.Target())
}

func TestResolver_CooldownDropsNearbySightings(t *testing.T) {
	p := DefaultParams()
	d := NewDecider(p)
	a := sighting(50, camAtrium, 70, 80, navyOutfit(), emb(1))
	nearby := sighting(51, camAtrium, 80, 90, navyOutfit(), emb(1))
	elsewhere := sighting(52, camExit, 75, 85, navyOutfit(), emb(1))

	winner := provisional(t, d, 1, claim{&a, 0.99})
	loser := provisional(t, d, 2, claim{&a, 0.95}, claim{&nearby, 0.90}, claim{&elsewhere, 0.80})

	NewResolver(d, p).Resolve([]*Provisional{winner, loser})
	require.Len(t, loser.Ranked, 1)
	require.NotNil(t, loser.Outcome.Target())
	assert.Equal(t, elsewhere.ID, loser.Outcome.Target().Target.ID)
	assert.Equal(t, 3, loser.Outcome.Target().Rank)
}

func TestResolver_NoConflictLeavesDecisionsAlone(t *testing.T) {
	p := DefaultParams()
	d := NewDecider(p)
	a := sighting(50, camAtrium, 70, 80, navyOutfit(), emb(1))
	b := sighting(51, camAtrium, 200, 210, navyOutfit(), emb(1))

	s1 := provisional(t, d, 1, claim{&a, 0.9})
	s2 := provisional(t, d, 2, claim{&b, 0.9})

	assert.Zero(t, NewResolver(d, p).Resolve([]*Provisional{s1, s2}))
	assert.Equal(t, ReasonSingleQualifying, s1.Outcome.Reason)
	assert.Equal(t, ReasonSingleQualifying, s2.Outcome.Reason)
}
