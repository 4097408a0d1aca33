package models

// Volume is the fused 3D label volume
type Volume struct {
	// Data is stored row-major as (z, y, x)
	Data []int8

	// Depth is the slice count, Height and Width the frame size
	Depth  int
	Height int
	Width  int
}

// NewVolume allocates a zeroed volume
func NewVolume(depth, height, width int) *Volume {
	return &Volume{
		Data:   make([]int8, depth*height*width),
		Depth:  depth,
		Height: height,
		Width:  width,
	}
}

// At returns the label at (z, y, x)
func (v *Volume) At(z, y, x int) int8 {
	return v.Data[z*v.Height*v.Width+y*v.Width+x]
}

// Slice returns the backing storage of depth index z
func (v *Volume) Slice(z int) []int8 {
	size := v.Height * v.Width
	return v.Data[z*size : (z+1)*size]
}

// Shape returns (depth, height, width)
func (v *Volume) Shape() [3]int {
	return [3]int{v.Depth, v.Height, v.Width}
}

// CountNonZero returns the number of voxels holding any label
func (v *Volume) CountNonZero() int64 {
	var n int64
	for _, val := range v.Data {
		if val != 0 {
			n++
		}
	}
	return n
}

// LabelHistogram counts voxels per stored value, background excluded
func (v *Volume) LabelHistogram() map[int8]int64 {
	hist := make(map[int8]int64)
	for _, val := range v.Data {
		if val != 0 {
			hist[val]++
		}
	}
	return hist
}
