package matching

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/your-org/visitrack/internal/calibration"
	"github.com/your-org/visitrack/internal/models"
)

var (
	testVenue = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	camEntry  = uuid.MustParse("00000000-0000-0000-0000-00000000c001")
	camAtrium = uuid.MustParse("00000000-0000-0000-0000-00000000c002")
	camExit   = uuid.MustParse("00000000-0000-0000-0000-00000000c003")
	camFar    = uuid.MustParse("00000000-0000-0000-0000-00000000c004")
	epoch     = time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
)

// lineVenue is entrance - atrium - exit - far, each one hop from the next.
func lineVenue() ([]models.Camera, []models.CameraEdge) {
	cams := []models.Camera{
		{ID: camEntry, VenueID: testVenue, Name: "entrance", PinType: models.PinTypeEntrance},
		{ID: camAtrium, VenueID: testVenue, Name: "atrium", PinType: models.PinTypeNormal},
		{ID: camExit, VenueID: testVenue, Name: "exit", PinType: models.PinTypeExit},
		{ID: camFar, VenueID: testVenue, Name: "loading dock", PinType: models.PinTypeNormal},
	}
	edges := []models.CameraEdge{
		{From: camEntry, To: camAtrium},
		{From: camAtrium, To: camExit},
		{From: camExit, To: camFar},
	}
	return cams, edges
}

func tid(n int) uuid.UUID {
	var id uuid.UUID
	id[14] = byte(n >> 8)
	id[15] = byte(n)
	return id
}

// emb returns a unit embedding along axis k.
func emb(k int) []float32 {
	v := make([]float32, 128)
	v[k%128] = 1
	return v
}

func garment(typ string, l, a, b float64) *models.Garment {
	return &models.Garment{Type: typ, Lab: [3]float64{l, a, b}}
}

func navyOutfit() models.Outfit {
	return models.Outfit{
		Top:    garment("jacket", 25, 5, -30),
		Bottom: garment("jeans", 35, 0, -20),
		Shoes:  garment("sneakers", 90, 0, 0),
	}
}

func redOutfit() models.Outfit {
	return models.Outfit{
		Top:    garment("tee", 50, 70, 50),
		Bottom: garment("skirt", 20, 0, 0),
		Shoes:  garment("heels", 10, 0, 0),
	}
}

// sighting builds a valid tracklet seen from inSec to outSec after epoch.
func sighting(id int, camera uuid.UUID, inSec, outSec float64, outfit models.Outfit, embedding []float32) models.Tracklet {
	return models.Tracklet{
		ID:             tid(id),
		VenueID:        testVenue,
		CameraID:       camera,
		TIn:            epoch.Add(time.Duration(inSec * float64(time.Second))),
		TOut:           epoch.Add(time.Duration(outSec * float64(time.Second))),
		Outfit:         outfit,
		Embedding:      embedding,
		HeightCategory: models.HeightTall,
		AspectRatio:    0.42,
		Quality:        0.9,
	}
}

func testCalibration(t *testing.T) *calibration.Calibration {
	t.Helper()
	cal, err := calibration.New(calibration.Default())
	require.NoError(t, err)
	return cal
}

func testParams() Params {
	p := DefaultParams()
	p.Workers = 4
	return p
}

func testWindow() Window {
	return Window{From: epoch.Add(-time.Hour), To: epoch.Add(2 * time.Hour)}
}

func runEngine(t *testing.T, tracklets []models.Tracklet, opts models.RunOptions) *Result {
	t.Helper()
	cams, edges := lineVenue()
	res, err := NewEngine(testParams()).Run(t.Context(), Input{
		VenueID:     testVenue,
		Window:      testWindow(),
		Tracklets:   tracklets,
		Cameras:     cams,
		Edges:       edges,
		Calibration: testCalibration(t),
		Options:     opts,
	}, nil)
	require.NoError(t, err)
	return res
}

func assocFor(t *testing.T, res *Result, source uuid.UUID) models.Association {
	t.Helper()
	for _, a := range res.Associations {
		if a.FromTrackletID == source {
			return a
		}
	}
	t.Fatalf("no association for source %s", source)
	return models.Association{}
}

func linkedCount(res *Result) int {
	n := 0
	for _, a := range res.Associations {
		if a.Decision == models.DecisionLinked {
			n++
		}
	}
	return n
}
