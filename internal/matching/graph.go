package matching

import (
	"github.com/google/uuid"

	"github.com/your-org/visitrack/internal/models"
)

type transitEstimate struct {
	mu, tau float64
}

// Graph is the read-only camera adjacency graph of a venue. Edges are
// undirected; hop distances up to maxHops are precomputed.
type Graph struct {
	cameras map[uuid.UUID]models.Camera
	adj     map[uuid.UUID][]uuid.UUID
	transit map[[2]uuid.UUID]transitEstimate
	hops    map[uuid.UUID]map[uuid.UUID]int
	maxHops int
}

// NewGraph builds the graph. Edges referencing unknown cameras are ignored.
func NewGraph(cameras []models.Camera, edges []models.CameraEdge, maxHops int) *Graph {
	g := &Graph{
		cameras: make(map[uuid.UUID]models.Camera, len(cameras)),
		adj:     make(map[uuid.UUID][]uuid.UUID, len(cameras)),
		transit: make(map[[2]uuid.UUID]transitEstimate),
		hops:    make(map[uuid.UUID]map[uuid.UUID]int, len(cameras)),
		maxHops: maxHops,
	}
	for _, c := range cameras {
		g.cameras[c.ID] = c
	}

	seen := make(map[[2]uuid.UUID]bool)
	for _, e := range edges {
		if e.From == e.To {
			continue
		}
		if _, ok := g.cameras[e.From]; !ok {
			continue
		}
		if _, ok := g.cameras[e.To]; !ok {
			continue
		}
		if !seen[[2]uuid.UUID{e.From, e.To}] {
			seen[[2]uuid.UUID{e.From, e.To}] = true
			seen[[2]uuid.UUID{e.To, e.From}] = true
			g.adj[e.From] = append(g.adj[e.From], e.To)
			g.adj[e.To] = append(g.adj[e.To], e.From)
		}
		if e.MuSec != nil && e.TauSec != nil && *e.MuSec > 0 && *e.TauSec > 0 {
			est := transitEstimate{mu: *e.MuSec, tau: *e.TauSec}
			g.transit[[2]uuid.UUID{e.From, e.To}] = est
			if _, ok := g.transit[[2]uuid.UUID{e.To, e.From}]; !ok {
				g.transit[[2]uuid.UUID{e.To, e.From}] = est
			}
		}
	}

	for id := range g.cameras {
		g.hops[id] = g.bfs(id)
	}
	return g
}

func (g *Graph) bfs(start uuid.UUID) map[uuid.UUID]int {
	dist := map[uuid.UUID]int{start: 0}
	frontier := []uuid.UUID{start}
	for depth := 1; depth <= g.maxHops && len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, c := range frontier {
			for _, n := range g.adj[c] {
				if _, ok := dist[n]; ok {
					continue
				}
				dist[n] = depth
				next = append(next, n)
			}
		}
		frontier = next
	}
	return dist
}

// Hops returns the hop distance between two cameras, or -1 if it exceeds
// the graph's maxHops or either camera is unknown.
func (g *Graph) Hops(from, to uuid.UUID) int {
	d, ok := g.hops[from][to]
	if !ok {
		return -1
	}
	return d
}

// Reachable lists every other camera within maxHops of from, with its distance.
func (g *Graph) Reachable(from uuid.UUID) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(g.hops[from]))
	for id, d := range g.hops[from] {
		if d > 0 {
			out[id] = d
		}
	}
	return out
}

// Transit returns the learned transit estimate stored on the edge, if any.
func (g *Graph) Transit(from, to uuid.UUID) (mu, tau float64, ok bool) {
	t, ok := g.transit[[2]uuid.UUID{from, to}]
	return t.mu, t.tau, ok
}

func (g *Graph) Camera(id uuid.UUID) (models.Camera, bool) {
	c, ok := g.cameras[id]
	return c, ok
}

func (g *Graph) IsEntry(id uuid.UUID) bool {
	return g.cameras[id].PinType == models.PinTypeEntrance
}

func (g *Graph) IsExit(id uuid.UUID) bool {
	return g.cameras[id].PinType == models.PinTypeExit
}
