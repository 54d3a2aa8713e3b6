// Package catalog manages the persistent reference asset catalog: the
// human models and products a storyboard can feature. Assets survive
// restarts; storyboards do not.
package catalog

import (
	"time"

	"github.com/reelboard/reelboard-agent/internal/gateway"
)

// MaxReferenceImages caps the reference photos per model. More references
// dilute the image model's consistency rather than improving it.
const MaxReferenceImages = 4

// SheetStyle selects the rendering of a generated model sheet.
type SheetStyle string

const (
	SheetStyleMonochrome SheetStyle = "monochrome"
	SheetStyleColor      SheetStyle = "color"
)

func (s SheetStyle) Valid() bool {
	return s == SheetStyleMonochrome || s == SheetStyleColor
}

// Model is a reusable human model asset. ReferenceImages are the ground
// truth for the model's appearance; Sheet is an optional generated comp
// card derived from them.
type Model struct {
	ID              string              `json:"id"`
	Name            string              `json:"name"`
	Description     string              `json:"description"`
	ReferenceImages []gateway.ImageBlob `json:"-"`
	Sheet           *gateway.ImageBlob  `json:"-"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// UsableForGeneration reports whether the model can anchor image
// generation: it needs at least one reference image or a sheet.
func (m *Model) UsableForGeneration() bool {
	return len(m.ReferenceImages) > 0 || (m.Sheet != nil && !m.Sheet.IsZero())
}

// Product is a product asset with a single reference image.
type Product struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Image     gateway.ImageBlob `json:"-"`
	CreatedAt time.Time         `json:"created_at"`
}
