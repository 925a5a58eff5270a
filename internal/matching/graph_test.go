package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/models"
)

func TestGraph_Hops(t *testing.T) {
	cams, edges := lineVenue()
	g := NewGraph(cams, edges, 2)

	assert.Equal(t, 0, g.Hops(camEntry, camEntry))
	assert.Equal(t, 1, g.Hops(camEntry, camAtrium))
	assert.Equal(t, 1, g.Hops(camAtrium, camEntry))
	assert.Equal(t, 2, g.Hops(camEntry, camExit))
	assert.Equal(t, -1, g.Hops(camEntry, camFar))
	assert.Equal(t, -1, g.Hops(camEntry, uuid.New()))

	assert.Equal(t, map[uuid.UUID]int{camAtrium: 1, camExit: 2}, g.Reachable(camEntry))
	assert.True(t, g.IsEntry(camEntry))
	assert.True(t, g.IsExit(camExit))
	assert.False(t, g.IsExit(camAtrium))
}

func TestGraph_IgnoresDanglingEdges(t *testing.T) {
	cams, edges := lineVenue()
	edges = append(edges,
		models.CameraEdge{From: camEntry, To: uuid.New()},
		models.CameraEdge{From: camEntry, To: camEntry},
		models.CameraEdge{From: camAtrium, To: camEntry},
	)
	g := NewGraph(cams, edges, 2)
	assert.Equal(t, map[uuid.UUID]int{camAtrium: 1, camExit: 2}, g.Reachable(camEntry))
}

func TestParams_Resolve(t *testing.T) {
	snap := calibration.Default()
	snap.Venues = map[string]calibration.VenueOverride{
		testVenue.String(): {Thresholds: &calibration.Thresholds{MatchThreshold: 0.82, MaxCandidateWindowSec: 300}},
	}
	cal, err := calibration.New(snap)
	assert.NoError(t, err)

	p := DefaultParams().Resolve(cal, testVenue, models.RunOptions{AmbiguityGap: ptr(0.1)})
	assert.Equal(t, 0.82, p.MatchThreshold)
	assert.Equal(t, 300*time.Second, p.MaxCandidateWindow)
	assert.Equal(t, 0.1, p.AmbiguityGap)
	assert.Equal(t, 0.70, p.OutfitFloor)

	p = DefaultParams().Resolve(cal, testVenue, models.RunOptions{MatchThreshold: ptr(0.6), MaxCandidateWindowSec: ptr(90.0)})
	assert.Equal(t, 0.6, p.MatchThreshold)
	assert.Equal(t, 90*time.Second, p.MaxCandidateWindow)

	other := DefaultParams().Resolve(cal, uuid.New(), models.RunOptions{})
	assert.Equal(t, 0.78, other.MatchThreshold)
}

func TestParams_ResolveKeepsConfiguredDefaults(t *testing.T) {
	configured := DefaultParams()
	configured.MatchThreshold = 0.95
	configured.OutfitFloor = 0.9
	configured.AmbiguityGap = 0.07
	configured.EmbeddingFloor = 0.6
	configured.MaxCandidateWindow = 5 * time.Minute

	for name, snap := range map[string]calibration.Snapshot{
		"empty snapshot":   {},
		"builtin snapshot": calibration.Default(),
	} {
		t.Run(name, func(t *testing.T) {
			cal, err := calibration.New(snap)
			require.NoError(t, err)

			p := configured.Resolve(cal, testVenue, models.RunOptions{})
			assert.Equal(t, 0.95, p.MatchThreshold)
			assert.Equal(t, 0.9, p.OutfitFloor)
			assert.Equal(t, 0.07, p.AmbiguityGap)
			assert.Equal(t, 0.6, p.EmbeddingFloor)
			assert.Equal(t, 5*time.Minute, p.MaxCandidateWindow)
		})
	}
}

func TestParams_ResolveSaturatesHugeWindow(t *testing.T) {
	p := DefaultParams().Resolve(testCalibration(t), testVenue, models.RunOptions{MaxCandidateWindowSec: ptr(1e10)})
	assert.Greater(t, p.MaxCandidateWindow, time.Duration(0))
}

func TestValidate(t *testing.T) {
	cams, edges := lineVenue()
	g := NewGraph(cams, edges, 2)

	tests := []struct {
		name   string
		mutate func(*models.Tracklet)
		want   string
	}{
		{"valid", func(*models.Tracklet) {}, ""},
		{"unknown camera", func(tr *models.Tracklet) { tr.CameraID = uuid.New() }, DefectUnknownCamera},
		{"exit before entry", func(tr *models.Tracklet) { tr.TOut = tr.TIn.Add(-time.Second) }, DefectTimeRange},
		{"zero embedding", func(tr *models.Tracklet) { tr.Embedding = make([]float32, 128) }, DefectEmbeddingZeroNorm},
		{"garment without type", func(tr *models.Tracklet) { tr.Outfit.Top.Type = " " }, DefectMissingGarmentType},
		{"unknown height", func(tr *models.Tracklet) { tr.HeightCategory = "giant" }, DefectHeightCategory},
		{"zero aspect", func(tr *models.Tracklet) { tr.AspectRatio = 0 }, DefectAspectRatio},
		{"quality out of range", func(tr *models.Tracklet) { tr.Quality = 1.5 }, DefectQuality},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := sighting(1, camEntry, 0, 10, navyOutfit(), emb(1))
			tt.mutate(&tr)
			assert.Equal(t, tt.want, Validate(&tr, g, 128))
		})
	}
	assert.True(t, IsInputDefect(defectReason(DefectQuality)))
	assert.False(t, IsInputDefect(ReasonNoCandidates))
}
