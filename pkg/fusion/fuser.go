// Package fusion merges per-structure presence masks into one labeled volume
// and checks that no label was lost on the way.
package fusion

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"lungfuse/internal/models"
	"lungfuse/pkg/slicestack"
)

// State is the fusion run's position in Idle -> Accumulating -> Validating -> Done|Failed
type State int

const (
	Idle State = iota
	Accumulating
	Validating
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Validating:
		return "validating"
	case Done:
		return "done"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Recorder receives run measurements; pkg/metrics provides one
type Recorder interface {
	StructureMerged(structure string, slices int, voxels int64)
	Validated(c Conservation, elapsed time.Duration)
}

// Params holds the fusion parameters
type Params struct {
	// SourceDir holds one sub-directory per structure, named after it.
	// Its base name is taken as the patient id.
	SourceDir string

	// Structures is merged in order
	Structures models.LabelTable

	// Naming is how slice indices are embedded in frame names
	Naming slicestack.Naming

	// Decoder reads a stored frame; DICOM when nil
	Decoder slicestack.FrameDecoder

	// Offset maps the no-value sentinel to 0
	Offset int32

	// Workers bounds concurrent frame conversion; <= 0 uses every core
	Workers int

	// Progress receives human-readable counts; nil discards them
	Progress io.Writer

	// Logger defaults to slog.Default()
	Logger *slog.Logger

	// Recorder is optional
	Recorder Recorder
}

// Result is what a fusion run produced. It is returned alongside a
// CoordinateOverlapError so the caller can still persist and inspect it.
type Result struct {
	PatientID    string
	Volume       *models.Volume
	Structures   models.LabelTable
	Counts       []int64
	Occupancy    []Occupancy
	Conservation Conservation
	State        State
	Elapsed      time.Duration
}

// Overlapping reports whether the conservation check failed
func (r *Result) Overlapping() bool {
	return r.Conservation.Expected != r.Conservation.Actual
}

// Fuser runs one fusion pass over a patient's structure stacks
type Fuser struct {
	params    *Params
	reader    *slicestack.Reader
	converter *Converter
	acc       *Accumulator
	logger    *slog.Logger
	progress  io.Writer
	state     State
}

// NewFuser creates a fuser with the provided parameters
func NewFuser(params *Params) *Fuser {
	decoder := params.Decoder
	if decoder == nil {
		decoder = slicestack.DICOMDecoder{}
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	progress := params.Progress
	if progress == nil {
		progress = io.Discard
	}
	workers := params.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	params.Workers = workers

	return &Fuser{
		params:    params,
		reader:    slicestack.NewReader(params.Naming, decoder),
		converter: NewConverter(params.Offset),
		acc:       NewAccumulator(workers),
		logger:    logger,
		progress:  progress,
		state:     Idle,
	}
}

// State returns where the run currently is
func (f *Fuser) State() State {
	return f.state
}

// Run merges every structure in table order and validates the result.
// DiscoveryError and ShapeMismatchError abort with a nil result; a
// CoordinateOverlapError comes with the complete, suspect result.
func (f *Fuser) Run(ctx context.Context) (*Result, error) {
	if f.state != Idle {
		return nil, fmt.Errorf("fuser already ran (state %s)", f.state)
	}
	if err := f.params.Structures.Validate(); err != nil {
		f.state = Failed
		return nil, fmt.Errorf("invalid structure table: %w", err)
	}

	start := time.Now()
	res := &Result{
		PatientID:  filepath.Base(filepath.Clean(f.params.SourceDir)),
		Structures: f.params.Structures,
		Counts:     make([]int64, 0, len(f.params.Structures)),
	}
	log := f.logger.With("patient", res.PatientID)

	f.state = Accumulating
	for _, spec := range f.params.Structures {
		perSlice, err := f.mergeStructure(ctx, spec)
		if err != nil {
			f.state = Failed
			log.Error("fusion aborted", "structure", spec.Name, "error", err)
			return nil, err
		}

		occ := occupancy(spec.Name, spec.LabelID, perSlice)
		res.Counts = append(res.Counts, occ.Voxels)
		res.Occupancy = append(res.Occupancy, occ)

		fmt.Fprintf(f.progress, "%s pixel count:\t %s\n", spec.Name, humanize.Comma(occ.Voxels))
		log.Debug("structure merged", "structure", spec.Name, "label", spec.LabelID,
			"voxels", occ.Voxels, "occupiedSlices", occ.OccupiedSlices)
		if f.params.Recorder != nil {
			f.params.Recorder.StructureMerged(spec.Name, len(perSlice), occ.Voxels)
		}
	}

	// every merge has returned; the volume is no longer written to
	f.state = Validating
	res.Volume = f.acc.Volume()
	cons, err := Validate(res.Volume, res.Counts)
	res.Conservation = cons
	res.Elapsed = time.Since(start)

	fmt.Fprintf(f.progress, "Non empty pixels:\t %s\n", humanize.Comma(cons.Actual))
	if f.params.Recorder != nil {
		f.params.Recorder.Validated(cons, res.Elapsed)
	}

	if err != nil {
		f.state = Failed
		res.State = Failed
		log.Warn("coordinate overlap detected", "expected", cons.Expected, "actual", cons.Actual, "lost", cons.Lost())
		return res, err
	}

	f.state = Done
	res.State = Done
	log.Info("fusion complete", "depth", res.Volume.Depth, "nonZero", cons.Actual, "elapsed", res.Elapsed)
	return res, nil
}

// mergeStructure converts one structure's frames in parallel and merges them.
// It returns the presence count of every slice.
func (f *Fuser) mergeStructure(ctx context.Context, spec models.StructureSpec) ([]int64, error) {
	dir := filepath.Join(f.params.SourceDir, spec.Name)
	refs, err := f.reader.Discover(spec.Name, dir)
	if err != nil {
		return nil, err
	}

	// reject a wrong stack size before anything is decoded
	if depth := f.acc.Depth(); depth != 0 && len(refs) != depth {
		return nil, &ShapeMismatchError{Structure: spec.Name, Dimension: "depth", Expected: depth, Actual: len(refs)}
	}

	masks := make([]models.PresenceMask, len(refs))
	perSlice := make([]int64, len(refs))

	// one goroutine per depth index, each writing only its own entries
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.params.Workers)
	for i, ref := range refs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			frame, err := f.reader.Load(ref)
			if err != nil {
				return fmt.Errorf("structure %s: %w", spec.Name, err)
			}
			masks[i], perSlice[i] = f.converter.Convert(frame, spec.LabelID)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if err := f.acc.Merge(spec.Name, masks, spec.LabelID); err != nil {
		return nil, err
	}
	return perSlice, nil
}
