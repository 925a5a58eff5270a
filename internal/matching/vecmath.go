package matching

import "math"

// cosine returns the cosine similarity of two equal-length vectors,
// accumulated in float64 so results do not depend on summation width.
// Zero-norm or mismatched inputs score 0.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return clamp01(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// deltaE76 is the CIE76 colour difference between two CIELAB coordinates.
func deltaE76(a, b [3]float64) float64 {
	dl, da, db := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return math.Sqrt(dl*dl + da*da + db*db)
}

// softColor maps a colour distance onto [0,1] with a logistic falloff
// centred on midpoint. Identical colours score exactly 1.
func softColor(d, midpoint, scale float64) float64 {
	num := 1 + math.Exp(-midpoint/scale)
	den := 1 + math.Exp((d-midpoint)/scale)
	return clamp01(num / den)
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
