package fusion

import (
	"lungfuse/internal/models"
)

// Conservation holds both sides of the overlap check
type Conservation struct {
	// Expected is the sum of every structure's presence count
	Expected int64

	// Actual is the number of non-zero voxels in the fused volume
	Actual int64
}

// Lost is the number of presence voxels that did not survive fusion
func (c Conservation) Lost() int64 {
	return c.Expected - c.Actual
}

// Validate compares the per-structure presence counts against the volume's
// non-zero voxels. It only tells that some coordinates collided, not which.
// The volume must not be mutated while Validate runs.
func Validate(volume *models.Volume, counts []int64) (Conservation, error) {
	var c Conservation
	for _, n := range counts {
		c.Expected += n
	}
	if volume != nil {
		c.Actual = volume.CountNonZero()
	}

	if c.Expected != c.Actual {
		return c, &CoordinateOverlapError{Expected: c.Expected, Actual: c.Actual}
	}
	return c, nil
}
