package matching

import (
	"bytes"
	"sort"

	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/models"
)

// Candidate is a target that passed the retrieval pre-filters.
type Candidate struct {
	Target       *models.Tracklet
	Hops         int
	EmbeddingSim float64
}

// Index holds the valid tracklets of a window grouped by camera and
// sorted by (t_in, id). It is read-only once built.
type Index struct {
	byCamera map[uuid.UUID][]*models.Tracklet
	byID     map[uuid.UUID]*models.Tracklet
}

func NewIndex(tracklets []*models.Tracklet) *Index {
	idx := &Index{
		byCamera: make(map[uuid.UUID][]*models.Tracklet),
		byID:     make(map[uuid.UUID]*models.Tracklet, len(tracklets)),
	}
	for _, t := range tracklets {
		idx.byCamera[t.CameraID] = append(idx.byCamera[t.CameraID], t)
		idx.byID[t.ID] = t
	}
	for _, list := range idx.byCamera {
		sortByArrival(list)
	}
	return idx
}

func (idx *Index) Get(id uuid.UUID) (*models.Tracklet, bool) {
	t, ok := idx.byID[id]
	return t, ok
}

// arrivedBetween returns the tracklets at camera whose t_in lies in [lo, hi].
func (idx *Index) arrivedBetween(camera uuid.UUID, lo, hi int64) []*models.Tracklet {
	list := idx.byCamera[camera]
	start := sort.Search(len(list), func(i int) bool { return list[i].TIn.UnixNano() >= lo })
	end := sort.Search(len(list), func(i int) bool { return list[i].TIn.UnixNano() > hi })
	if start >= end {
		return nil
	}
	return list[start:end]
}

func sortByArrival(list []*models.Tracklet) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].TIn.Equal(list[j].TIn) {
			return list[i].TIn.Before(list[j].TIn)
		}
		return bytes.Compare(list[i].ID[:], list[j].ID[:]) < 0
	})
}

// Retriever applies the spatial, temporal and appearance pre-filters in
// that order. Each stage short-circuits on an empty result.
type Retriever struct {
	graph  *Graph
	index  *Index
	params Params
}

func NewRetriever(g *Graph, idx *Index, p Params) *Retriever {
	return &Retriever{graph: g, index: idx, params: p}
}

// Candidates returns at most MaxCandidates targets for src ordered by
// arrival time. An empty result means no evidence, not an error.
func (r *Retriever) Candidates(src *models.Tracklet) []Candidate {
	reachable := r.graph.Reachable(src.CameraID)
	if len(reachable) == 0 {
		return nil
	}

	lo := src.TOut.Add(r.params.MinTransit).UnixNano()
	hi := src.TOut.Add(r.params.MaxCandidateWindow).UnixNano()

	type hit struct {
		t    *models.Tracklet
		hops int
	}
	var temporal []hit
	for camera, hops := range reachable {
		for _, t := range r.index.arrivedBetween(camera, lo, hi) {
			if t.ID == src.ID {
				continue
			}
			temporal = append(temporal, hit{t: t, hops: hops})
		}
	}
	if len(temporal) == 0 {
		return nil
	}

	out := make([]Candidate, 0, len(temporal))
	for _, h := range temporal {
		sim := cosine(src.Embedding, h.t.Embedding)
		if sim+scoreEpsilon < r.params.EmbeddingFloor {
			continue
		}
		out = append(out, Candidate{Target: h.t, Hops: h.hops, EmbeddingSim: sim})
	}
	if len(out) == 0 {
		return nil
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Target, out[j].Target
		if !a.TIn.Equal(b.TIn) {
			return a.TIn.Before(b.TIn)
		}
		return bytes.Compare(a.ID[:], b.ID[:]) < 0
	})
	if r.params.MaxCandidates > 0 && len(out) > r.params.MaxCandidates {
		out = out[:r.params.MaxCandidates]
	}
	return out
}
