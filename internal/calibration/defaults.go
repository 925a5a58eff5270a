package calibration

// Default returns the built-in snapshot used when no calibration has been
// published for a venue. It carries no thresholds, so the service's
// configured matching defaults apply.
func Default() Snapshot {
	return Snapshot{
		Version: "builtin-1",
		Weights: Weights{
			Outfit:    0.55,
			Time:      0.20,
			Adjacency: 0.15,
			Physique:  0.10,
		},
		OutfitWeights: OutfitWeights{
			Type:      0.35,
			Color:     0.35,
			Embedding: 0.30,
		},
		Color: ColorParams{
			Midpoint: 20,
			Scale:    4,
		},
		FallbackMuSec:  60,
		FallbackTauSec: 30,
		EmbeddingDim:   128,
		TypeConfusion: []TypePair{
			// tops
			{A: "jacket", B: "coat", Score: 0.8},
			{A: "shirt", B: "blouse", Score: 0.8},
			{A: "shirt", B: "tee", Score: 0.5},
			{A: "tee", B: "blouse", Score: 0.4},
			{A: "sweater", B: "jacket", Score: 0.4},
			{A: "sweater", B: "shirt", Score: 0.3},
			{A: "top", B: "shirt", Score: 0.5},
			{A: "top", B: "tee", Score: 0.5},
			{A: "top", B: "blouse", Score: 0.5},
			{A: "top", B: "sweater", Score: 0.5},
			// bottoms
			{A: "pants", B: "jeans", Score: 0.8},
			{A: "shorts", B: "skirt", Score: 0.3},
			{A: "dress", B: "skirt", Score: 0.5},
			{A: "bottom", B: "pants", Score: 0.5},
			{A: "bottom", B: "jeans", Score: 0.5},
			// shoes
			{A: "sneakers", B: "loafers", Score: 0.4},
			{A: "sneakers", B: "boots", Score: 0.3},
			{A: "loafers", B: "heels", Score: 0.3},
			{A: "sandals", B: "heels", Score: 0.3},
		},
	}
}
