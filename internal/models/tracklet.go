package models

import (
	"time"

	"github.com/google/uuid"
)

// Garment regions in the order they are compared.
const (
	RegionTop    = "top"
	RegionBottom = "bottom"
	RegionShoes  = "shoes"
)

// Height categories, ordered from smallest to largest.
const (
	HeightShort  = "short"
	HeightMedium = "medium"
	HeightTall   = "tall"
)

// Garment describes one outfit region as classified upstream.
type Garment struct {
	Type  string     `json:"type"`
	Color string     `json:"color"`
	Lab   [3]float64 `json:"lab"` // CIELAB L*, a*, b*
}

// Outfit is the per-region garment descriptor of a tracklet.
// A nil region means the classifier could not see it.
type Outfit struct {
	Top    *Garment `json:"top,omitempty"`
	Bottom *Garment `json:"bottom,omitempty"`
	Shoes  *Garment `json:"shoes,omitempty"`
}

// Regions returns the garments in fixed top, bottom, shoes order.
func (o Outfit) Regions() [3]*Garment {
	return [3]*Garment{o.Top, o.Bottom, o.Shoes}
}

// Empty reports whether no region was classified.
func (o Outfit) Empty() bool {
	return o.Top == nil && o.Bottom == nil && o.Shoes == nil
}

// Tracklet is one person's appearance within a single camera view.
// It is produced by the tracking subsystem and never modified here.
type Tracklet struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	VenueID        uuid.UUID  `json:"venue_id" db:"venue_id"`
	CameraID       uuid.UUID  `json:"camera_id" db:"camera_id"`
	VideoID        *uuid.UUID `json:"video_id,omitempty" db:"video_id"`
	TrackID        int        `json:"track_id" db:"track_id"`
	TIn            time.Time  `json:"t_in" db:"t_in"`
	TOut           time.Time  `json:"t_out" db:"t_out"`
	Outfit         Outfit     `json:"outfit" db:"outfit"`
	Embedding      []float32  `json:"embedding" db:"embedding"`
	HeightCategory string     `json:"height_category" db:"height_category"`
	AspectRatio    float64    `json:"aspect_ratio" db:"aspect_ratio"`
	Quality        float64    `json:"quality" db:"quality"`
}
