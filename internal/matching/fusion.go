package matching

import (
	"bytes"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/models"
)

// Scored is a candidate with its signal scores and fused result. Rank is
// its 1-based position in the source's original ranking.
type Scored struct {
	Candidate
	Scores     models.Scores
	Components models.Components
	Rank       int
}

// Fuse combines the four signal scores using the weights resolved for the
// source camera and clamps the weighted sum to [0, 1]. Weights are used
// as calibrated, without renormalising. The outfit term is scaled by the
// lower trust of the two cameras.
func (s *Scorer) Fuse(venueID uuid.UUID, src *models.Tracklet, cand Candidate) Scored {
	out := Scored{Candidate: cand}
	c := &out.Components

	out.Scores.OutfitSim = s.Outfit(src, cand.Target, cand.EmbeddingSim, c)
	out.Scores.TimeScore = s.Time(src, cand.Target, c)
	out.Scores.AdjScore = s.Adjacency(cand.Hops, c)
	out.Scores.PhysiqueScore = s.Physique(src, cand.Target, c)

	c.CameraTrust = math.Min(s.cal.CameraTrust(src.CameraID), s.cal.CameraTrust(cand.Target.CameraID))

	w := s.cal.Weights(venueID, src.CameraID)
	if w.Outfit+w.Time+w.Adjacency+w.Physique <= 0 {
		return out
	}
	final := w.Outfit*out.Scores.OutfitSim*c.CameraTrust +
		w.Time*out.Scores.TimeScore +
		w.Adjacency*out.Scores.AdjScore +
		w.Physique*out.Scores.PhysiqueScore
	out.Scores.Final = clamp01(final)
	return out
}

// ScoreAll fuses every candidate and returns those that survive the time
// gate, ranked by final score descending with the lower target id first on
// ties.
func (s *Scorer) ScoreAll(venueID uuid.UUID, src *models.Tracklet, cands []Candidate) []Scored {
	ranked := make([]Scored, 0, len(cands))
	for _, c := range cands {
		sc := s.Fuse(venueID, src, c)
		if sc.Components.TimeRejected {
			continue
		}
		ranked = append(ranked, sc)
	}
	rank(ranked)
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	return ranked
}

func rank(list []Scored) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Scores.Final != list[j].Scores.Final {
			return list[i].Scores.Final > list[j].Scores.Final
		}
		return bytes.Compare(list[i].Target.ID[:], list[j].Target.ID[:]) < 0
	})
}
