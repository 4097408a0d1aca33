package persist

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lungfuse/internal/models"
	"lungfuse/pkg/fusion"
)

func testVolume() *models.Volume {
	v := models.NewVolume(2, 2, 3)
	v.Data[0] = 1
	v.Data[4] = 2
	v.Data[11] = 3
	return v
}

func TestWriteNPYHeader(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteNPY(&buf, testVolume()); err != nil {
		t.Fatalf("WriteNPY failed: %v", err)
	}
	out := buf.Bytes()

	if !bytes.HasPrefix(out, []byte("\x93NUMPY\x01\x00")) {
		t.Fatalf("Missing magic/version: %q", out[:8])
	}
	headerLen := int(binary.LittleEndian.Uint16(out[8:10]))
	if (10+headerLen)%64 != 0 {
		t.Errorf("Header end %d is not 64-byte aligned", 10+headerLen)
	}
	header := string(out[10 : 10+headerLen])
	if !strings.HasSuffix(header, "\n") {
		t.Error("Header must end with a newline")
	}
	for _, want := range []string{"'descr': '|i1'", "'fortran_order': False", "'shape': (2, 2, 3)"} {
		if !strings.Contains(header, want) {
			t.Errorf("Header %q missing %q", header, want)
		}
	}

	data := out[10+headerLen:]
	if len(data) != 12 {
		t.Fatalf("Expected 12 data bytes, got %d", len(data))
	}
	if data[0] != 1 || data[4] != 2 || data[11] != 3 {
		t.Errorf("Unexpected data %v", data)
	}
}

func TestNPYRoundTrip(t *testing.T) {
	v := testVolume()
	var buf bytes.Buffer
	if err := WriteNPY(&buf, v); err != nil {
		t.Fatal(err)
	}

	got, err := ReadNPY(&buf)
	if err != nil {
		t.Fatalf("ReadNPY failed: %v", err)
	}
	if got.Shape() != v.Shape() {
		t.Fatalf("Shape mismatch: %v vs %v", got.Shape(), v.Shape())
	}
	if !bytes.Equal(int8Bytes(got.Data), int8Bytes(v.Data)) {
		t.Error("Data mismatch after round trip")
	}
}

func TestReadNPYRejectsGarbage(t *testing.T) {
	if _, err := ReadNPY(strings.NewReader("not a numpy file")); err == nil {
		t.Fatal("Expected error for garbage input")
	}
}

func int8Bytes(v []int8) []byte {
	out := make([]byte, len(v))
	for i, x := range v {
		out[i] = byte(x)
	}
	return out
}

func testResult(overlap bool) *fusion.Result {
	res := &fusion.Result{
		PatientID:  "patient42",
		Volume:     testVolume(),
		Structures: models.LabelTable{{Name: "A", LabelID: 1}, {Name: "B", LabelID: 2}},
		Counts:     []int64{1, 1},
		Occupancy: []fusion.Occupancy{
			{Structure: "A", LabelID: 1, Voxels: 1, OccupiedSlices: 1, FirstSlice: 0, LastSlice: 0, Mean: 0.5},
			{Structure: "B", LabelID: 2, Voxels: 1, OccupiedSlices: 1, FirstSlice: 0, LastSlice: 0, Mean: 0.5},
		},
		Conservation: fusion.Conservation{Expected: 3, Actual: 3},
		State:        fusion.Done,
	}
	if overlap {
		res.Conservation.Expected = 4
		res.State = fusion.Failed
	}
	return res
}

func TestNewManifest(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewManifest(testResult(true), "model.npy", now)

	if m.PatientID != "patient42" || m.Artifact != "model.npy" || m.DType != "int8" {
		t.Errorf("Unexpected header fields %+v", m)
	}
	if m.Shape != [3]int{2, 2, 3} {
		t.Errorf("Unexpected shape %v", m.Shape)
	}
	if !m.Overlap || m.Expected != 4 || m.Actual != 3 {
		t.Errorf("Expected overlap flagged with 4 vs 3, got %+v", m)
	}
	if m.Histogram["1"] != 1 || m.Histogram["2"] != 1 || m.Histogram["3"] != 1 {
		t.Errorf("Unexpected histogram %v", m.Histogram)
	}
	if len(m.Structures) != 2 || m.Structures[1].Name != "B" {
		t.Errorf("Unexpected structures %+v", m.Structures)
	}

	data, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	if decoded["overlap"] != true {
		t.Errorf("Expected overlap true in JSON, got %v", decoded["overlap"])
	}
}

func TestLocalStoreCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does", "not", "exist")
	store := NewLocalStore(dir)
	ctx := context.Background()

	if err := store.Put(ctx, "model.npy", []byte("abc")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "model.npy")); err != nil {
		t.Fatalf("Expected file on disk: %v", err)
	}

	got, err := store.Get(ctx, "model.npy")
	if err != nil || string(got) != "abc" {
		t.Errorf("Get returned %q, %v", got, err)
	}
	if _, err := store.Get(ctx, "missing.npy"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	keys, err := store.List(ctx, "")
	if err != nil || len(keys) != 1 || keys[0] != "model.npy" {
		t.Errorf("List returned %v, %v", keys, err)
	}
}

func TestLocalStoreRejectsEscapingKeys(t *testing.T) {
	store := NewLocalStore(t.TempDir())
	if err := store.Put(context.Background(), "../outside", []byte("x")); err == nil {
		t.Fatal("Expected error for a key leaving the store")
	}
	if err := store.Put(context.Background(), "  ", []byte("x")); err == nil {
		t.Fatal("Expected error for an empty key")
	}
}

func TestSaveWritesVolumeAndManifest(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir)

	saved, err := Save(context.Background(), store, "", "model", testResult(false), true)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Volume != "model.npy" || saved.Manifest != "model.json" {
		t.Errorf("Unexpected keys %+v", saved)
	}

	f, err := os.Open(filepath.Join(dir, "model.npy"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	v, err := ReadNPY(f)
	if err != nil {
		t.Fatalf("ReadNPY failed: %v", err)
	}
	if v.CountNonZero() != 3 {
		t.Errorf("Expected 3 labeled voxels, got %d", v.CountNonZero())
	}

	if _, err := os.Stat(filepath.Join(dir, "model.json")); err != nil {
		t.Errorf("Expected manifest on disk: %v", err)
	}
}

func TestSaveWithPrefixAndWithoutManifest(t *testing.T) {
	dir := t.TempDir()
	saved, err := Save(context.Background(), NewLocalStore(dir), "patient42", "model", testResult(false), false)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Volume != "patient42/model.npy" || saved.Manifest != "" {
		t.Errorf("Unexpected keys %+v", saved)
	}
	if _, err := os.Stat(filepath.Join(dir, "patient42", "model.npy")); err != nil {
		t.Errorf("Expected prefixed volume: %v", err)
	}
}

func TestSaveWithoutVolume(t *testing.T) {
	if _, err := Save(context.Background(), NewLocalStore(t.TempDir()), "", "model", &fusion.Result{}, true); err == nil {
		t.Fatal("Expected error without a volume")
	}
}

func TestNewS3StoreValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  S3Config
	}{
		{"no endpoint", S3Config{AccessKey: "a", SecretKey: "b", Bucket: "c"}},
		{"no credentials", S3Config{Endpoint: "localhost:9000", Bucket: "c"}},
		{"no bucket", S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewS3Store(tc.cfg); err == nil {
				t.Fatal("Expected configuration error")
			}
		})
	}

	store, err := NewS3Store(S3Config{Endpoint: "localhost:9000", AccessKey: "a", SecretKey: "b", Bucket: "models"})
	if err != nil {
		t.Fatalf("NewS3Store failed: %v", err)
	}
	if store.region != "us-east-1" {
		t.Errorf("Expected default region, got %q", store.region)
	}
}

func TestObjectKeyAndContentType(t *testing.T) {
	if got := objectKey(" /patient42/model.npy "); got != "patient42/model.npy" {
		t.Errorf("Unexpected key %q", got)
	}
	if contentType("p/model.json") != "application/json" || contentType("p/model.npy") != "application/octet-stream" {
		t.Error("Unexpected content types")
	}
}
