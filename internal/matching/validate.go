package matching

import (
	"math"
	"strings"

	"github.com/your-org/visitrack/internal/models"
)

// Input defect reasons. A defective tracklet is never a candidate and its
// own association is forced to new_visitor with the reason attached.
const (
	DefectEmbeddingLength    = "embedding_length"
	DefectEmbeddingNonFinite = "embedding_non_finite"
	DefectEmbeddingZeroNorm  = "embedding_zero_norm"
	DefectMissingOutfit      = "missing_outfit"
	DefectMissingGarmentType = "missing_garment_type"
	DefectColorNonFinite     = "color_non_finite"
	DefectHeightCategory     = "height_category"
	DefectAspectRatio        = "aspect_ratio"
	DefectTimeRange          = "time_range"
	DefectQuality            = "quality"
	DefectUnknownCamera      = "unknown_camera"
)

const invalidInputPrefix = "invalid_input:"

var heightRank = map[string]int{
	models.HeightShort:  0,
	models.HeightMedium: 1,
	models.HeightTall:   2,
}

// Validate returns the first defect found in t, or "" when t is usable.
func Validate(t *models.Tracklet, g *Graph, embeddingDim int) string {
	if _, ok := g.Camera(t.CameraID); !ok {
		return DefectUnknownCamera
	}
	if t.TIn.IsZero() || t.TOut.Before(t.TIn) {
		return DefectTimeRange
	}
	if len(t.Embedding) != embeddingDim {
		return DefectEmbeddingLength
	}
	var norm float64
	for _, v := range t.Embedding {
		f := float64(v)
		if !finite(f) {
			return DefectEmbeddingNonFinite
		}
		norm += f * f
	}
	if norm == 0 {
		return DefectEmbeddingZeroNorm
	}
	if t.Outfit.Empty() {
		return DefectMissingOutfit
	}
	for _, gm := range t.Outfit.Regions() {
		if gm == nil {
			continue
		}
		if strings.TrimSpace(gm.Type) == "" {
			return DefectMissingGarmentType
		}
		for _, c := range gm.Lab {
			if !finite(c) {
				return DefectColorNonFinite
			}
		}
	}
	if _, ok := heightRank[t.HeightCategory]; !ok {
		return DefectHeightCategory
	}
	if !finite(t.AspectRatio) || t.AspectRatio <= 0 {
		return DefectAspectRatio
	}
	if !finite(t.Quality) || t.Quality < 0 || t.Quality > 1 {
		return DefectQuality
	}
	return ""
}

func defectReason(defect string) string {
	return invalidInputPrefix + defect
}

// IsInputDefect reports whether an association reason records an input defect.
func IsInputDefect(reason string) bool {
	return strings.HasPrefix(reason, invalidInputPrefix)
}

func heightScore(a, b string) float64 {
	ra, okA := heightRank[a]
	rb, okB := heightRank[b]
	if !okA || !okB {
		return 0
	}
	switch int(math.Abs(float64(ra - rb))) {
	case 0:
		return 1
	case 1:
		return 0.5
	}
	return 0
}
