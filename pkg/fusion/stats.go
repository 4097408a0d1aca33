package fusion

import (
	"gonum.org/v1/gonum/stat"
)

// Occupancy summarizes where along the stack a structure is present
type Occupancy struct {
	Structure string
	LabelID   int

	// Voxels is the structure's presence count
	Voxels int64

	// OccupiedSlices is the number of depth indices with any presence
	OccupiedSlices int

	// FirstSlice and LastSlice bound the occupied range, -1 when empty
	FirstSlice int
	LastSlice  int

	// Mean and StdDev of the per-slice presence counts over the whole stack
	Mean   float64
	StdDev float64
}

func occupancy(structure string, label int, perSlice []int64) Occupancy {
	o := Occupancy{Structure: structure, LabelID: label, FirstSlice: -1, LastSlice: -1}

	values := make([]float64, len(perSlice))
	for z, n := range perSlice {
		values[z] = float64(n)
		o.Voxels += n
		if n == 0 {
			continue
		}
		o.OccupiedSlices++
		if o.FirstSlice < 0 {
			o.FirstSlice = z
		}
		o.LastSlice = z
	}

	switch len(values) {
	case 0:
	case 1:
		o.Mean = values[0]
	default:
		o.Mean, o.StdDev = stat.MeanStdDev(values, nil)
	}

	return o
}
