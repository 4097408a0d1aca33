package fusion

import "fmt"

// ShapeMismatchError is returned when a structure's stack does not fit the volume
type ShapeMismatchError struct {
	Structure string

	// Dimension is "depth", "height" or "width"
	Dimension string
	Expected  int
	Actual    int
}

func (e *ShapeMismatchError) Error() string {
	return fmt.Sprintf("structure %s: %s mismatch, volume has %d, structure has %d",
		e.Structure, e.Dimension, e.Expected, e.Actual)
}

// CoordinateOverlapError reports that the conservation check failed: at least
// one voxel was claimed by more than one structure and its label was lost.
type CoordinateOverlapError struct {
	Expected int64
	Actual   int64
}

func (e *CoordinateOverlapError) Error() string {
	return fmt.Sprintf("coordinate overlap: structures contributed %d presence voxels but the volume holds %d non-zero voxels, %d label(s) lost",
		e.Expected, e.Actual, e.Expected-e.Actual)
}
