package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/visitrack/internal/models"
)

func scored(id int, final, outfit float64) Scored {
	tr := sighting(id, camAtrium, 70, 80, navyOutfit(), emb(1))
	return Scored{
		Candidate: Candidate{Target: &tr, Hops: 1, EmbeddingSim: 1},
		Scores:    models.Scores{Final: final, OutfitSim: outfit},
	}
}

func ranked(list ...Scored) []Scored {
	rank(list)
	for i := range list {
		list[i].Rank = i + 1
	}
	return list
}

func TestDecider_Rules(t *testing.T) {
	d := NewDecider(DefaultParams())

	tests := []struct {
		name     string
		ranked   []Scored
		decision models.Decision
		reason   string
		target   int
	}{
		{"no candidates", nil, models.DecisionNewVisitor, ReasonNoCandidates, 0},
		{"best below threshold", ranked(scored(1, 0.77, 0.95)), models.DecisionNewVisitor, ReasonBelowMatchThreshold, 0},
		{"best at threshold", ranked(scored(1, 0.78, 0.95)), models.DecisionLinked, ReasonSingleQualifying, 1},
		{"outfit below floor", ranked(scored(1, 0.90, 0.69)), models.DecisionNewVisitor, ReasonOutfitBelowFloor, 0},
		{"gap exactly ambiguity gap", ranked(scored(1, 0.90, 0.9), scored(2, 0.86, 0.9)), models.DecisionLinked, ReasonClearMargin, 1},
		{"gap just under ambiguity gap", ranked(scored(1, 0.90, 0.9), scored(2, 0.8601, 0.9)), models.DecisionAmbiguous, ReasonWithinAmbiguityGap, 0},
		{"close runner-up with poor outfit", ranked(scored(1, 0.90, 0.9), scored(2, 0.89, 0.5)), models.DecisionLinked, ReasonSingleQualifying, 1},
		{"runner-up found past a poor outfit", ranked(scored(1, 0.90, 0.9), scored(2, 0.89, 0.5), scored(3, 0.88, 0.8)), models.DecisionAmbiguous, ReasonWithinAmbiguityGap, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := d.Decide(tt.ranked)
			assert.Equal(t, tt.decision, got.Decision)
			assert.Equal(t, tt.reason, got.Reason)
			if tt.target == 0 {
				assert.Nil(t, got.Target())
				return
			}
			require.NotNil(t, got.Target())
			assert.Equal(t, tid(tt.target), got.Target().Target.ID)
		})
	}
}

func TestDecider_TieBreaksOnLowerTargetID(t *testing.T) {
	list := ranked(scored(9, 0.9, 0.9), scored(4, 0.9, 0.9))
	assert.Equal(t, tid(4), list[0].Target.ID)

	got := NewDecider(DefaultParams()).Decide(list)
	assert.Equal(t, models.DecisionAmbiguous, got.Decision)
	assert.Equal(t, tid(4), got.Best.Target.ID)
}

func TestAssociation_RecordsOutcome(t *testing.T) {
	src := sighting(1, camEntry, 0, 10, navyOutfit(), emb(1))
	list := ranked(scored(2, 0.95, 0.9), scored(3, 0.5, 0.9))

	linked := association(&src, NewDecider(DefaultParams()).Decide(list), 5, 1)
	require.NotNil(t, linked.ToTrackletID)
	assert.Equal(t, tid(2), *linked.ToTrackletID)
	assert.Equal(t, 0.95, linked.Score)
	assert.Equal(t, 1, linked.Rank)
	assert.Equal(t, 5, linked.CandidateCount)
	assert.Equal(t, 1, linked.Components.Conflicts)
	assert.Equal(t, src.CameraID, linked.FromCameraID)

	none := association(&src, NewDecider(DefaultParams()).Decide(nil), 0, 0)
	assert.Nil(t, none.ToTrackletID)
	assert.Zero(t, none.Score)
	assert.Zero(t, none.Rank)
}
