// Package persist serializes the fused volume and stores it locally or in S3.
package persist

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"lungfuse/internal/models"
)

var npyMagic = []byte("\x93NUMPY")

// npyAlign is the header alignment numpy itself writes
const npyAlign = 64

// WriteNPY encodes the volume as a NumPy v1.0 array: int8, C order,
// shape (depth, height, width)
func WriteNPY(w io.Writer, v *models.Volume) error {
	header := fmt.Sprintf("{'descr': '|i1', 'fortran_order': False, 'shape': (%d, %d, %d), }",
		v.Depth, v.Height, v.Width)

	// magic(6) + version(2) + header length(2) + header + '\n' is padded to the alignment
	pre := len(npyMagic) + 2 + 2
	total := pre + len(header) + 1
	if rem := total % npyAlign; rem != 0 {
		header += strings.Repeat(" ", npyAlign-rem)
	}
	header += "\n"

	var buf bytes.Buffer
	buf.Write(npyMagic)
	buf.Write([]byte{1, 0})
	if err := binary.Write(&buf, binary.LittleEndian, uint16(len(header))); err != nil {
		return fmt.Errorf("failed to write npy header length: %w", err)
	}
	buf.WriteString(header)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write npy header: %w", err)
	}

	data := make([]byte, len(v.Data))
	for i, val := range v.Data {
		data[i] = byte(val)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write npy data: %w", err)
	}
	return nil
}

// ReadNPY decodes an array written by WriteNPY
func ReadNPY(r io.Reader) (*models.Volume, error) {
	pre := make([]byte, len(npyMagic)+4)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, fmt.Errorf("failed to read npy preamble: %w", err)
	}
	if !bytes.Equal(pre[:len(npyMagic)], npyMagic) {
		return nil, fmt.Errorf("not an npy file")
	}
	if pre[6] != 1 {
		return nil, fmt.Errorf("unsupported npy version %d.%d", pre[6], pre[7])
	}

	headerLen := binary.LittleEndian.Uint16(pre[8:])
	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("failed to read npy header: %w", err)
	}
	h := string(header)
	if !strings.Contains(h, "'descr': '|i1'") {
		return nil, fmt.Errorf("unsupported npy dtype in header %q", strings.TrimSpace(h))
	}
	if strings.Contains(h, "'fortran_order': True") {
		return nil, fmt.Errorf("fortran order is not supported")
	}

	var d, hgt, wid int
	start := strings.Index(h, "'shape': (")
	if start < 0 {
		return nil, fmt.Errorf("npy header has no shape")
	}
	if _, err := fmt.Sscanf(h[start:], "'shape': (%d, %d, %d)", &d, &hgt, &wid); err != nil {
		return nil, fmt.Errorf("npy shape is not 3D: %w", err)
	}

	v := models.NewVolume(d, hgt, wid)
	data := make([]byte, len(v.Data))
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("failed to read npy data: %w", err)
	}
	for i, b := range data {
		v.Data[i] = int8(b)
	}
	return v, nil
}
