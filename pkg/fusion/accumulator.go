package fusion

import (
	"fmt"
	"runtime"
	"sync"

	"lungfuse/internal/models"
)

// Accumulator owns the fused volume while structures are merged into it
type Accumulator struct {
	volume  *models.Volume
	workers int
}

// NewAccumulator creates an accumulator. workers <= 0 uses every core.
func NewAccumulator(workers int) *Accumulator {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Accumulator{workers: workers}
}

// Depth returns the established slice count, or 0 before the first merge
func (a *Accumulator) Depth() int {
	if a.volume == nil {
		return 0
	}
	return a.volume.Depth
}

// Volume hands off the fused volume
func (a *Accumulator) Volume() *models.Volume {
	return a.volume
}

// Merge adds one structure's masks, one per depth index, into the volume.
//
// The first merge sizes the volume from its own masks. Every merge checks all
// shapes before touching the volume, so a mismatch leaves it unchanged.
// Masks are added, not assigned: at a voxel claimed by two structures the
// result is the sum of both ids, which the overlap check detects later.
func (a *Accumulator) Merge(structure string, masks []models.PresenceMask, label int) error {
	if len(masks) == 0 {
		return fmt.Errorf("structure %s: no masks to merge", structure)
	}

	if a.volume == nil {
		a.volume = models.NewVolume(len(masks), masks[0].Height, masks[0].Width)
	}

	if err := a.checkShape(structure, masks); err != nil {
		return err
	}

	a.addInParallel(masks)
	return nil
}

func (a *Accumulator) checkShape(structure string, masks []models.PresenceMask) error {
	v := a.volume
	if len(masks) != v.Depth {
		return &ShapeMismatchError{Structure: structure, Dimension: "depth", Expected: v.Depth, Actual: len(masks)}
	}
	for _, m := range masks {
		if m.Height != v.Height {
			return &ShapeMismatchError{Structure: structure, Dimension: "height", Expected: v.Height, Actual: m.Height}
		}
		if m.Width != v.Width {
			return &ShapeMismatchError{Structure: structure, Dimension: "width", Expected: v.Width, Actual: m.Width}
		}
		if len(m.Data) != v.Height*v.Width {
			return fmt.Errorf("structure %s: mask holds %d values for %dx%d", structure, len(m.Data), m.Width, m.Height)
		}
	}
	return nil
}

// addInParallel splits the depth range into contiguous chunks, one per
// worker, so no two goroutines ever write the same depth slice
func (a *Accumulator) addInParallel(masks []models.PresenceMask) {
	depth := a.volume.Depth
	workers := a.workers
	if workers > depth {
		workers = depth
	}
	perWorker := (depth + workers - 1) / workers

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if end > depth {
			end = depth
		}
		if start >= end {
			continue
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for z := start; z < end; z++ {
				dst := a.volume.Slice(z)
				for i, val := range masks[z].Data {
					dst[i] += val
				}
			}
		}(start, end)
	}
	wg.Wait()
}
