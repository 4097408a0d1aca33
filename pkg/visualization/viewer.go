// Package visualization renders slices of a fused label volume for quality review.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"lungfuse/internal/models"
)

// palette colours label ids 1..8; background is black
var palette = []color.RGBA{
	{0, 0, 0, 255},
	{230, 230, 230, 255}, // bronchus
	{31, 119, 180, 255},
	{44, 160, 44, 255},
	{214, 39, 40, 255},
	{148, 103, 189, 255},
	{255, 127, 14, 255},
	{140, 86, 75, 255},
	{23, 190, 207, 255},
}

// invalidColor marks voxels holding a value that is no label id
var invalidColor = color.RGBA{255, 0, 255, 255}

// Viewer extracts and saves label slices of a fused volume
type Viewer struct {
	volume *models.Volume
	valid  map[int8]bool

	// scale is the integer upscaling factor applied when saving
	scale int

	// caption draws the axis and position on saved slices
	caption bool
}

// NewViewer creates a viewer. Values not in table are drawn as invalid.
func NewViewer(volume *models.Volume, table models.LabelTable, scale int, caption bool) *Viewer {
	if scale < 1 {
		scale = 1
	}
	valid := make(map[int8]bool, len(table))
	for _, s := range table {
		valid[int8(s.LabelID)] = true
	}
	return &Viewer{volume: volume, valid: valid, scale: scale, caption: caption}
}

// ColorOf returns the render colour of a stored voxel value
func (v *Viewer) ColorOf(val int8) color.RGBA {
	if val == 0 {
		return palette[0]
	}
	if !v.valid[val] {
		return invalidColor
	}
	if int(val) < len(palette) {
		return palette[val]
	}
	// spread ids beyond the palette over the hue-less greys
	g := uint8(64 + (int(val)*37)%160)
	return color.RGBA{g, g, g, 255}
}

// ExtractSlice extracts a 2D slice along the specified axis
func (v *Viewer) ExtractSlice(axis string, position int) (*image.RGBA, error) {
	if position < 0 {
		return nil, fmt.Errorf("position must be non-negative")
	}
	vol := v.volume

	var img *image.RGBA
	switch axis {
	case "x", "X":
		// YZ plane
		if position >= vol.Width {
			return nil, fmt.Errorf("position %d exceeds width %d", position, vol.Width)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.Depth, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for z := 0; z < vol.Depth; z++ {
				img.SetRGBA(z, y, v.ColorOf(vol.At(z, y, position)))
			}
		}

	case "y", "Y":
		// XZ plane
		if position >= vol.Height {
			return nil, fmt.Errorf("position %d exceeds height %d", position, vol.Height)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Depth))
		for z := 0; z < vol.Depth; z++ {
			for x := 0; x < vol.Width; x++ {
				img.SetRGBA(x, z, v.ColorOf(vol.At(z, position, x)))
			}
		}

	case "z", "Z":
		// XY plane
		if position >= vol.Depth {
			return nil, fmt.Errorf("position %d exceeds depth %d", position, vol.Depth)
		}
		img = image.NewRGBA(image.Rect(0, 0, vol.Width, vol.Height))
		for y := 0; y < vol.Height; y++ {
			for x := 0; x < vol.Width; x++ {
				img.SetRGBA(x, y, v.ColorOf(vol.At(position, y, x)))
			}
		}

	default:
		return nil, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	return img, nil
}

// prepare upscales img and draws the caption
func (v *Viewer) prepare(img *image.RGBA, text string) *image.RGBA {
	out := img
	if v.scale > 1 {
		b := img.Bounds()
		out = image.NewRGBA(image.Rect(0, 0, b.Dx()*v.scale, b.Dy()*v.scale))
		draw.NearestNeighbor.Scale(out, out.Bounds(), img, b, draw.Src, nil)
	}

	if v.caption && text != "" {
		d := &font.Drawer{
			Dst:  out,
			Src:  image.NewUniform(color.RGBA{255, 255, 0, 255}),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(2, 12),
		}
		d.DrawString(text)
	}
	return out
}

// SaveSlice saves an extracted slice as a PNG image
func (v *Viewer) SaveSlice(img *image.RGBA, caption, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, v.prepare(img, caption))
}

// SaveSliceSequence extracts and saves every slice along the specified axis
func (v *Viewer) SaveSliceSequence(axis string, outputDir string) (int, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return 0, err
	}

	var maxPos int
	switch axis {
	case "x", "X":
		maxPos = v.volume.Width
	case "y", "Y":
		maxPos = v.volume.Height
	case "z", "Z":
		maxPos = v.volume.Depth
	default:
		return 0, fmt.Errorf("invalid axis: %s (must be x, y, or z)", axis)
	}

	for pos := 0; pos < maxPos; pos++ {
		img, err := v.ExtractSlice(axis, pos)
		if err != nil {
			return pos, err
		}

		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%s_%03d.png", axis, pos))
		if err := v.SaveSlice(img, fmt.Sprintf("%s=%d", axis, pos), filename); err != nil {
			return pos, err
		}
	}

	return maxPos, nil
}
