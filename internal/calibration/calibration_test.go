package calibration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	venueA  = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	cameraA = uuid.MustParse("22222222-2222-2222-2222-222222222222")
	cameraB = uuid.MustParse("33333333-3333-3333-3333-333333333333")
)

func TestNew_FillsDefaults(t *testing.T) {
	c, err := New(Snapshot{})
	require.NoError(t, err)

	def := Default()
	assert.Equal(t, def.Version, c.Version())
	assert.Equal(t, def.Weights, c.Weights(venueA, cameraA))
	assert.Equal(t, Thresholds{}, c.Thresholds(venueA), "uncalibrated thresholds stay unset")
	assert.Equal(t, 128, c.EmbeddingDim())
	assert.Equal(t, 1.0, c.CameraTrust(cameraA))

	mu, tau, ok := c.Transit(cameraA, cameraB)
	assert.False(t, ok)
	assert.Equal(t, 60.0, mu)
	assert.Equal(t, 30.0, tau)
}

func TestNew_OverridePrecedence(t *testing.T) {
	venueWeights := Weights{Outfit: 0.7, Time: 0.1, Adjacency: 0.1, Physique: 0.1}
	cameraWeights := Weights{Outfit: 0.4, Time: 0.4, Adjacency: 0.1, Physique: 0.1}
	trust := 0.6

	c, err := New(Snapshot{
		Version: "v7",
		Venues: map[string]VenueOverride{
			venueA.String(): {Weights: &venueWeights, Thresholds: &Thresholds{MatchThreshold: 0.8}},
		},
		Cameras: map[string]CameraOverride{
			cameraA.String(): {Weights: &cameraWeights, Trust: &trust},
		},
		Edges: []EdgeTransit{{From: cameraA, To: cameraB, MuSec: 45, TauSec: 12}},
	})
	require.NoError(t, err)

	assert.Equal(t, "v7", c.Version())
	assert.Equal(t, cameraWeights, c.Weights(venueA, cameraA))
	assert.Equal(t, venueWeights, c.Weights(venueA, cameraB))
	assert.Equal(t, Default().Weights, c.Weights(uuid.New(), cameraB))

	th := c.Thresholds(venueA)
	assert.Equal(t, 0.8, th.MatchThreshold)
	assert.Zero(t, th.OutfitFloor, "unset venue thresholds stay unset")

	assert.Equal(t, 0.6, c.CameraTrust(cameraA))

	mu, tau, ok := c.Transit(cameraA, cameraB)
	assert.True(t, ok)
	assert.Equal(t, 45.0, mu)
	assert.Equal(t, 12.0, tau)
	assert.True(t, c.HasTransit(cameraA, cameraB))
	assert.True(t, c.HasTransit(cameraB, cameraA))
	assert.False(t, c.HasTransit(cameraA, uuid.New()))
}

func TestNew_Rejects(t *testing.T) {
	badTrust := 1.5
	tests := []struct {
		name string
		snap Snapshot
	}{
		{"negative weight", Snapshot{Weights: Weights{Outfit: -1, Time: 1}}},
		{"bad venue key", Snapshot{Venues: map[string]VenueOverride{"lobby": {}}}},
		{"trust out of range", Snapshot{Cameras: map[string]CameraOverride{cameraA.String(): {Trust: &badTrust}}}},
		{"edge without spread", Snapshot{Edges: []EdgeTransit{{From: cameraA, To: cameraB, MuSec: 30}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.snap)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestTypeSimilarity(t *testing.T) {
	c, err := New(Default())
	require.NoError(t, err)

	assert.Equal(t, 1.0, c.TypeSimilarity("jeans", "jeans"))
	assert.Equal(t, 1.0, c.TypeSimilarity(" Jeans", "jeans"))
	assert.Equal(t, 0.8, c.TypeSimilarity("jacket", "coat"))
	assert.Equal(t, 0.8, c.TypeSimilarity("coat", "jacket"))
	assert.Equal(t, 0.0, c.TypeSimilarity("jacket", "sandals"))
	assert.Equal(t, 0.0, c.TypeSimilarity("", ""))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	body := `
version: venue-2026-03
weights:
  outfit: 0.5
  time: 0.3
  adjacency: 0.1
  physique: 0.1
thresholds:
  match_threshold: 0.8
edges:
  - from: 22222222-2222-2222-2222-222222222222
    to: 33333333-3333-3333-3333-333333333333
    mu_sec: 40
    tau_sec: 10
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	t.Run("file only", func(t *testing.T) {
		s, err := LoadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "venue-2026-03", s.Version)
		assert.Equal(t, 0.3, s.Weights.Time)
		assert.Equal(t, 0.8, s.Thresholds.MatchThreshold)
		require.Len(t, s.Edges, 1)
		assert.Equal(t, cameraA, s.Edges[0].From)
	})

	t.Run("environment override", func(t *testing.T) {
		t.Setenv("VT_CAL_THRESHOLDS__MATCH_THRESHOLD", "0.9")
		t.Setenv("VT_CAL_VERSION", "hotfix")

		c, err := FileSource{Path: path}.Calibration(context.Background(), venueA)
		require.NoError(t, err)
		assert.Equal(t, "hotfix", c.Version())
		assert.Equal(t, 0.9, c.Thresholds(venueA).MatchThreshold)
		mu, _, ok := c.Transit(cameraA, cameraB)
		assert.True(t, ok)
		assert.Equal(t, 40.0, mu)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
