package net

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrame is the largest frame the length header can describe.
const MaxFrame = 65535

// ReadFrame reads one frame from r.
// Wire format: [2 bytes LE: total length including header][payload].
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	n := int(binary.LittleEndian.Uint16(header[:])) - 2
	if n <= 0 {
		return nil, fmt.Errorf("invalid frame length: %d", n+2)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload (%d bytes): %w", n, err)
	}
	return payload, nil
}

// WriteFrame writes data as one frame to w in a single write.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data)+2 > MaxFrame {
		return fmt.Errorf("frame too large: %d bytes", len(data))
	}
	buf := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(buf, uint16(len(buf)))
	copy(buf[2:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
