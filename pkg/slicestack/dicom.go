package slicestack

import (
	"fmt"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"

	"lungfuse/internal/models"
)

// DICOMDecoder reads the first native frame of a DICOM file
type DICOMDecoder struct{}

// DecodeFrame parses path and returns its pixel intensities without applying
// rescale slope/intercept, matching what the masks were exported with.
func (DICOMDecoder) DecodeFrame(path string) (*models.SliceFrame, error) {
	ds, err := dicom.ParseFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	pixelElem, err := ds.FindElementByTag(tag.PixelData)
	if err != nil {
		return nil, fmt.Errorf("no pixel data in %s: %w", path, err)
	}
	info := dicom.MustGetPixelDataInfo(pixelElem.Value)
	if len(info.Frames) == 0 {
		return nil, fmt.Errorf("no frames in %s", path)
	}

	fr := info.Frames[0]
	if fr.Encapsulated || fr.NativeData == nil {
		return nil, fmt.Errorf("%s holds encapsulated pixel data, only native frames are supported", path)
	}
	native := fr.NativeData
	if native.SamplesPerPixel() != 1 {
		return nil, fmt.Errorf("%s has %d samples per pixel, expected 1", path, native.SamplesPerPixel())
	}

	signed := false
	if elem, err := ds.FindElementByTag(tag.PixelRepresentation); err == nil {
		if v := dicom.MustGetInts(elem.Value); len(v) > 0 {
			signed = v[0] == 1
		}
	}

	data, err := intensities(native.RawDataSlice(), signed)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return &models.SliceFrame{
		Width:  native.Cols(),
		Height: native.Rows(),
		Data:   data,
	}, nil
}

// intensities widens the decoder's sample slice to int32. Signed data stored in
// unsigned samples is reinterpreted as two's complement.
func intensities(raw any, signed bool) ([]int32, error) {
	switch v := raw.(type) {
	case []uint16:
		out := make([]int32, len(v))
		for i, s := range v {
			if signed {
				out[i] = int32(int16(s))
			} else {
				out[i] = int32(s)
			}
		}
		return out, nil
	case []int16:
		out := make([]int32, len(v))
		for i, s := range v {
			out[i] = int32(s)
		}
		return out, nil
	case []uint8:
		out := make([]int32, len(v))
		for i, s := range v {
			if signed {
				out[i] = int32(int8(s))
			} else {
				out[i] = int32(s)
			}
		}
		return out, nil
	case []int8:
		out := make([]int32, len(v))
		for i, s := range v {
			out[i] = int32(s)
		}
		return out, nil
	case []uint32:
		out := make([]int32, len(v))
		for i, s := range v {
			out[i] = int32(s)
		}
		return out, nil
	case []int32:
		out := make([]int32, len(v))
		copy(out, v)
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported sample type %T", raw)
	}
}
