package persist

import (
	"encoding/json"
	"strconv"
	"time"

	"lungfuse/pkg/fusion"
)

// StructureEntry is one row of the manifest's structure table
type StructureEntry struct {
	Name           string  `json:"name"`
	LabelID        int     `json:"id"`
	Voxels         int64   `json:"voxels"`
	OccupiedSlices int     `json:"occupiedSlices"`
	FirstSlice     int     `json:"firstSlice"`
	LastSlice      int     `json:"lastSlice"`
	MeanPerSlice   float64 `json:"meanPerSlice"`
	StdDevPerSlice float64 `json:"stdDevPerSlice"`
}

// Manifest describes a persisted volume. Overlap marks an artifact whose
// conservation check failed and whose labels must not be trusted.
// Histogram is keyed by stored voxel value; under overlap a summed value can
// coincide with a real label id.
type Manifest struct {
	PatientID  string           `json:"patientId"`
	Artifact   string           `json:"artifact"`
	Shape      [3]int           `json:"shape"`
	DType      string           `json:"dtype"`
	Structures []StructureEntry `json:"structures"`
	Expected   int64            `json:"expectedVoxels"`
	Actual     int64            `json:"nonZeroVoxels"`
	Overlap    bool             `json:"overlap"`
	Histogram  map[string]int64 `json:"histogram"`
	CreatedAt  time.Time        `json:"createdAt"`
}

// NewManifest builds the manifest of a fusion result
func NewManifest(res *fusion.Result, artifact string, now time.Time) *Manifest {
	m := &Manifest{
		PatientID: res.PatientID,
		Artifact:  artifact,
		DType:     "int8",
		Expected:  res.Conservation.Expected,
		Actual:    res.Conservation.Actual,
		Overlap:   res.Overlapping(),
		Histogram: make(map[string]int64),
		CreatedAt: now.UTC(),
	}
	if res.Volume != nil {
		m.Shape = res.Volume.Shape()
		for val, n := range res.Volume.LabelHistogram() {
			m.Histogram[strconv.Itoa(int(val))] = n
		}
	}
	for _, o := range res.Occupancy {
		m.Structures = append(m.Structures, StructureEntry{
			Name:           o.Structure,
			LabelID:        o.LabelID,
			Voxels:         o.Voxels,
			OccupiedSlices: o.OccupiedSlices,
			FirstSlice:     o.FirstSlice,
			LastSlice:      o.LastSlice,
			MeanPerSlice:   o.Mean,
			StdDevPerSlice: o.StdDev,
		})
	}
	return m
}

// Encode renders the manifest as indented JSON
func (m *Manifest) Encode() ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
