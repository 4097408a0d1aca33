package fusion

import (
	"lungfuse/internal/models"
)

// DefaultOffset maps the scanner's -10000 "no value" sentinel to 0
const DefaultOffset int32 = 10000

// Converter turns raw intensity frames into presence masks
type Converter struct {
	// Offset is added to every raw value before clamping
	Offset int32
}

// NewConverter creates a converter with the given offset
func NewConverter(offset int32) *Converter {
	return &Converter{Offset: offset}
}

// Convert normalizes frame by the offset and clamps every element to
// [0, label]. Sentinel and negative results floor to 0, anything at or above
// label ceils to exactly label.
//
// The second return value is the slice's presence count, sum(mask)/label,
// which equals the plain voxel count as long as present voxels hold label.
func (c *Converter) Convert(frame *models.SliceFrame, label int) (models.PresenceMask, int64) {
	mask := models.PresenceMask{
		Width:  frame.Width,
		Height: frame.Height,
		Data:   make([]int8, len(frame.Data)),
	}

	hi := int64(label)
	var sum int64
	for i, raw := range frame.Data {
		v := int64(raw) + int64(c.Offset)
		if v < 0 {
			v = 0
		} else if v > hi {
			v = hi
		}
		mask.Data[i] = int8(v)
		sum += v
	}

	return mask, sum / hi
}
