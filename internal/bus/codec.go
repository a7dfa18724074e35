package bus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize caps a single payload. A full underwater snapshot for the
// largest mainnet position is well under 1 MiB; anything bigger is corruption.
const MaxFrameSize = 16 << 20

var (
	// ErrFrameTooLarge marks frames whose declared length exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
	// ErrShortFrame marks frames truncated before length bytes arrived.
	ErrShortFrame = errors.New("short frame")
)

// WriteFrame writes one {kind u8, len u32 big-endian, payload} frame.
func WriteFrame(w io.Writer, kind uint8, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	header := make([]byte, 5)
	header[0] = kind
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame. io.EOF is returned cleanly only at a frame
// boundary; mid-frame truncation surfaces as ErrShortFrame.
func ReadFrame(r io.Reader) (uint8, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		if err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, errors.Join(ErrShortFrame, err)
	}
	kind := header[0]
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxFrameSize {
		return kind, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return kind, nil, errors.Join(ErrShortFrame, err)
	}
	return kind, payload, nil
}
