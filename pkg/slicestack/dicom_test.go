package slicestack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/frame"
	"github.com/suyashkumar/dicom/pkg/tag"
)

func mustNewElement(t *testing.T, tg tag.Tag, value any) *dicom.Element {
	t.Helper()
	elem, err := dicom.NewElement(tg, value)
	if err != nil {
		t.Fatalf("Failed to create element %v: %v", tg, err)
	}
	return elem
}

// writeSignedFrame stores a 16-bit signed MONOCHROME2 frame the way the
// segmentation export does
func writeSignedFrame(t *testing.T, path string, width, height int, values []int16) {
	t.Helper()

	nativeFrame := frame.NewNativeFrame[uint16](16, height, width, width*height, 1)
	for i, v := range values {
		nativeFrame.RawData[i] = uint16(v)
	}

	pixelDataInfo := dicom.PixelDataInfo{
		Frames: []*frame.Frame{
			{
				Encapsulated: false,
				NativeData:   nativeFrame,
			},
		},
	}

	elements := []*dicom.Element{
		mustNewElement(t, tag.MediaStorageSOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustNewElement(t, tag.MediaStorageSOPInstanceUID, []string{"1.2.3.4.5"}),
		mustNewElement(t, tag.TransferSyntaxUID, []string{"1.2.840.10008.1.2.1"}),
		mustNewElement(t, tag.SOPClassUID, []string{"1.2.840.10008.5.1.4.1.1.2"}),
		mustNewElement(t, tag.SOPInstanceUID, []string{"1.2.3.4.5"}),
		mustNewElement(t, tag.Modality, []string{"CT"}),
		mustNewElement(t, tag.Rows, []int{height}),
		mustNewElement(t, tag.Columns, []int{width}),
		mustNewElement(t, tag.BitsAllocated, []int{16}),
		mustNewElement(t, tag.BitsStored, []int{16}),
		mustNewElement(t, tag.HighBit, []int{15}),
		mustNewElement(t, tag.PixelRepresentation, []int{1}),
		mustNewElement(t, tag.SamplesPerPixel, []int{1}),
		mustNewElement(t, tag.PhotometricInterpretation, []string{"MONOCHROME2"}),
		mustNewElement(t, tag.PixelData, pixelDataInfo),
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create %s: %v", path, err)
	}
	defer f.Close()

	if err := dicom.Write(f, dicom.Dataset{Elements: elements}); err != nil {
		t.Fatalf("Failed to write DICOM: %v", err)
	}
}

func TestDICOMDecoderSignedPixels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "IMG1")
	values := []int16{-10000, -10000, -500, 0, -1000, -10000}
	writeSignedFrame(t, path, 3, 2, values)

	got, err := DICOMDecoder{}.DecodeFrame(path)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}

	if got.Width != 3 || got.Height != 2 {
		t.Fatalf("Expected 3x2 frame, got %dx%d", got.Width, got.Height)
	}
	for i, v := range values {
		if got.Data[i] != int32(v) {
			t.Errorf("Pixel %d: expected %d, got %d", i, v, got.Data[i])
		}
	}
}

func TestDICOMDecoderThroughReader(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "Bronchus")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	writeSignedFrame(t, filepath.Join(dir, "IMG2"), 1, 1, []int16{-2})
	writeSignedFrame(t, filepath.Join(dir, "IMG1"), 1, 1, []int16{-1})

	reader := NewReader(Naming{Prefix: "IMG"}, DICOMDecoder{})
	frames, err := reader.ReadStack("Bronchus", dir)
	if err != nil {
		t.Fatalf("ReadStack failed: %v", err)
	}
	if len(frames) != 2 || frames[0].Data[0] != -1 || frames[1].Data[0] != -2 {
		t.Errorf("Unexpected frames: %+v %+v", frames[0], frames[1])
	}
}

func TestIntensitiesUnsupportedType(t *testing.T) {
	if _, err := intensities([]float32{1}, false); err == nil {
		t.Fatal("Expected error for float samples")
	}
	got, err := intensities([]uint8{255}, true)
	if err != nil || got[0] != -1 {
		t.Errorf("Expected signed byte -1, got %v (%v)", got, err)
	}
}
