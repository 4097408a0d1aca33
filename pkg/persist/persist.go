package persist

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"lungfuse/pkg/fusion"
)

// Saved lists the keys written for one result
type Saved struct {
	Volume   string
	Manifest string
}

// Save writes the result's volume as <prefix>/<name>.npy and, when manifest is
// set, a <prefix>/<name>.json sidecar. It is called even for results that
// failed the overlap check; the manifest then carries overlap=true.
func Save(ctx context.Context, store Store, prefix, name string, res *fusion.Result, manifest bool) (Saved, error) {
	var saved Saved
	if res == nil || res.Volume == nil {
		return saved, fmt.Errorf("no volume to save")
	}

	var buf bytes.Buffer
	buf.Grow(len(res.Volume.Data) + 128)
	if err := WriteNPY(&buf, res.Volume); err != nil {
		return saved, err
	}

	saved.Volume = path.Join(prefix, name+".npy")
	if err := store.Put(ctx, saved.Volume, buf.Bytes()); err != nil {
		return saved, fmt.Errorf("failed to store volume: %w", err)
	}

	if !manifest {
		return saved, nil
	}

	m := NewManifest(res, name+".npy", time.Now())
	data, err := m.Encode()
	if err != nil {
		return saved, fmt.Errorf("failed to encode manifest: %w", err)
	}
	saved.Manifest = path.Join(prefix, name+".json")
	if err := store.Put(ctx, saved.Manifest, data); err != nil {
		return saved, fmt.Errorf("failed to store manifest: %w", err)
	}

	return saved, nil
}
