package models

import (
	"fmt"
	"math"
)

// StructureSpec names one anatomical structure and the label written for it
type StructureSpec struct {
	// Name is also the directory the structure's frames live in
	Name string `yaml:"name" json:"name"`

	// LabelID is the value written into the volume where the structure is present
	LabelID int `yaml:"id" json:"id"`
}

// LabelTable is the ordered structure list. The order is the merge order.
type LabelTable []StructureSpec

// DefaultLabelTable returns the bronchus plus the five lung lobes
func DefaultLabelTable() LabelTable {
	return LabelTable{
		{Name: "Bronchus", LabelID: 1},
		{Name: "LeftLowerLobe", LabelID: 2},
		{Name: "LeftUpperLobe", LabelID: 3},
		{Name: "RightLowerLobe", LabelID: 4},
		{Name: "RightMiddleLobe", LabelID: 5},
		{Name: "RightUpperLobe", LabelID: 6},
	}
}

// Validate checks that ids are distinct, contiguous from 1 and small enough that
// summing every id (a collision of all structures) still fits a voxel.
func (t LabelTable) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("label table is empty")
	}

	names := make(map[string]bool, len(t))
	ids := make(map[int]string, len(t))
	sum := 0
	for _, s := range t {
		if s.Name == "" {
			return fmt.Errorf("structure with id %d has no name", s.LabelID)
		}
		if names[s.Name] {
			return fmt.Errorf("structure %q listed twice", s.Name)
		}
		names[s.Name] = true

		if s.LabelID < 1 {
			return fmt.Errorf("structure %q has non-positive id %d", s.Name, s.LabelID)
		}
		if other, ok := ids[s.LabelID]; ok {
			return fmt.Errorf("structures %q and %q share id %d", other, s.Name, s.LabelID)
		}
		ids[s.LabelID] = s.Name
		sum += s.LabelID
	}

	for id := 1; id <= len(t); id++ {
		if _, ok := ids[id]; !ok {
			return fmt.Errorf("label ids must be contiguous from 1, missing %d", id)
		}
	}

	if sum > math.MaxInt8 {
		return fmt.Errorf("label ids sum to %d, exceeding the voxel range %d", sum, math.MaxInt8)
	}

	return nil
}

// Name returns the structure name for a label id, or "" if none
func (t LabelTable) Name(id int) string {
	for _, s := range t {
		if s.LabelID == id {
			return s.Name
		}
	}
	return ""
}

// SliceFrame is one decoded intensity frame of a structure's stack
type SliceFrame struct {
	// ID is the identifier the frame was discovered under (its file name)
	ID string

	// Index is the numeric slice index parsed from ID
	Index int

	// Width and Height of the frame in pixels
	Width  int
	Height int

	// Data holds raw intensities in row-major order
	Data []int32
}

// PresenceMask marks, for one structure and slice, which pixels are occupied.
// Elements are 0 or the structure's label id.
type PresenceMask struct {
	Width  int
	Height int
	Data   []int8
}
