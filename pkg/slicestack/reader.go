// Package slicestack discovers and loads the ordered frame stack of one structure.
package slicestack

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lungfuse/internal/models"
)

// FrameDecoder turns a stored frame into raw intensities
type FrameDecoder interface {
	DecodeFrame(path string) (*models.SliceFrame, error)
}

// Naming describes how a slice index is embedded in a frame identifier,
// e.g. prefix "IMG" for IMG1, IMG2, ... IMG10.
type Naming struct {
	Prefix string
	Suffix string
}

// FrameRef locates one frame before it is decoded
type FrameRef struct {
	ID    string
	Index int
	Path  string
}

// DiscoveryError reports a missing, empty or malformed structure source
type DiscoveryError struct {
	Structure string
	Path      string
	Reason    string
	Err       error
}

func (e *DiscoveryError) Error() string {
	msg := fmt.Sprintf("discovery failed for %s at %s: %s", e.Structure, e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Reader loads structure stacks from a directory per structure
type Reader struct {
	naming  Naming
	decoder FrameDecoder
}

// NewReader creates a reader using the given naming convention and decoder
func NewReader(naming Naming, decoder FrameDecoder) *Reader {
	return &Reader{naming: naming, decoder: decoder}
}

// ParseIndex strips the naming prefix and suffix from id and parses the rest
func (n Naming) ParseIndex(id string) (int, error) {
	s := id
	if n.Prefix != "" {
		if !strings.HasPrefix(s, n.Prefix) {
			return 0, fmt.Errorf("%q does not start with %q", id, n.Prefix)
		}
		s = strings.TrimPrefix(s, n.Prefix)
	}
	if n.Suffix != "" {
		if !strings.HasSuffix(s, n.Suffix) {
			return 0, fmt.Errorf("%q does not end with %q", id, n.Suffix)
		}
		s = strings.TrimSuffix(s, n.Suffix)
	}
	idx, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q has no numeric slice index: %w", id, err)
	}
	return idx, nil
}

// Discover lists the frames of one structure sorted by numeric slice index.
// Lexical file order is never used: IMG10 sorts after IMG2.
func (r *Reader) Discover(structure, dir string) ([]FrameRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		reason := "cannot read directory"
		if errors.Is(err, fs.ErrNotExist) {
			reason = "directory does not exist"
		}
		return nil, &DiscoveryError{Structure: structure, Path: dir, Reason: reason, Err: err}
	}

	refs := make([]FrameRef, 0, len(entries))
	seen := make(map[int]string, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}

		idx, err := r.naming.ParseIndex(name)
		if err != nil {
			return nil, &DiscoveryError{Structure: structure, Path: dir, Reason: "unparseable frame name", Err: err}
		}
		if other, ok := seen[idx]; ok {
			return nil, &DiscoveryError{
				Structure: structure,
				Path:      dir,
				Reason:    fmt.Sprintf("frames %s and %s share slice index %d", other, name, idx),
			}
		}
		seen[idx] = name

		refs = append(refs, FrameRef{ID: name, Index: idx, Path: filepath.Join(dir, name)})
	}

	if len(refs) == 0 {
		return nil, &DiscoveryError{Structure: structure, Path: dir, Reason: "no frames found"}
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Index < refs[j].Index
	})

	return refs, nil
}

// Load decodes one discovered frame
func (r *Reader) Load(ref FrameRef) (*models.SliceFrame, error) {
	frame, err := r.decoder.DecodeFrame(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %s: %w", ref.ID, err)
	}
	if len(frame.Data) != frame.Width*frame.Height {
		return nil, fmt.Errorf("frame %s has %d values for %dx%d pixels", ref.ID, len(frame.Data), frame.Width, frame.Height)
	}
	frame.ID = ref.ID
	frame.Index = ref.Index
	return frame, nil
}

// ReadStack discovers and decodes every frame of a structure in slice order
func (r *Reader) ReadStack(structure, dir string) ([]*models.SliceFrame, error) {
	refs, err := r.Discover(structure, dir)
	if err != nil {
		return nil, err
	}

	frames := make([]*models.SliceFrame, 0, len(refs))
	for _, ref := range refs {
		frame, err := r.Load(ref)
		if err != nil {
			return nil, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}
