package frame

import (
	"errors"
	"fmt"

	"github.com/multiformats/go-varint"
)

const (
	// MaxLengthBytes caps the variable-byte length field.
	MaxLengthBytes = 4
	// MaxRemainingLength is the largest length representable in MaxLengthBytes.
	MaxRemainingLength = 1<<(7*MaxLengthBytes) - 1

	minFrameBytes = 2
	continueBit   = 0x80
	valueMask     = 0x7f
)

var (
	ErrIncomplete       = errors.New("frame: more bytes required")
	ErrMalformed        = errors.New("frame: malformed variable byte integer")
	ErrFrameTooLarge    = errors.New("frame: frame too large")
	ErrLengthOutOfRange = errors.New("frame: remaining length out of range")
)

// Frame is one complete wire message: header byte, length field, payload.
type Frame struct {
	raw         []byte
	lengthBytes int
}

// Limits constrains decode memory use.
type Limits struct {
	// MaxFrameBytes bounds the total frame size. Zero leaves only the
	// protocol bound of MaxRemainingLength.
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 1 << 20}
}

// Bytes returns the full frame including header and length field.
func (f Frame) Bytes() []byte { return f.raw }

func (f Frame) Len() int { return len(f.raw) }

func (f Frame) Header() byte {
	if len(f.raw) == 0 {
		return 0
	}
	return f.raw[0]
}

func (f Frame) Payload() []byte {
	if len(f.raw) == 0 {
		return nil
	}
	return f.raw[1+f.lengthBytes:]
}

// FrameSize inspects the front of b and reports the total size of the first
// frame and the number of length bytes it uses. ErrIncomplete is returned
// with a non-zero total once the length field has terminated but the payload
// has not fully arrived.
func FrameSize(b []byte, limits Limits) (total, lengthBytes int, err error) {
	if len(b) < minFrameBytes {
		return 0, 0, ErrIncomplete
	}

	length, multiplier := 0, 1
	terminated := false
	end := min(len(b), 1+MaxLengthBytes)
	for i := 1; i < end; i++ {
		c := b[i]
		length += int(c&valueMask) * multiplier
		multiplier *= 128
		lengthBytes++
		if c&continueBit == 0 {
			terminated = true
			break
		}
	}
	if !terminated {
		if lengthBytes == MaxLengthBytes {
			return 0, lengthBytes, ErrMalformed
		}
		return 0, lengthBytes, ErrIncomplete
	}

	total = 1 + lengthBytes + length
	if limits.MaxFrameBytes > 0 && total > limits.MaxFrameBytes {
		return total, lengthBytes, fmt.Errorf("%w: %d bytes exceeds limit %d", ErrFrameTooLarge, total, limits.MaxFrameBytes)
	}
	if len(b) < total {
		return total, lengthBytes, ErrIncomplete
	}
	return total, lengthBytes, nil
}

// Decode splits the first complete frame off the front of buf. On any error
// buf is left untouched.
func Decode(buf *Buffer, limits Limits) (Frame, error) {
	total, lengthBytes, err := FrameSize(buf.Bytes(), limits)
	if err != nil {
		return Frame{}, err
	}
	return Frame{raw: buf.Next(total), lengthBytes: lengthBytes}, nil
}

// AppendLength appends the minimal variable-byte encoding of n to dst.
func AppendLength(dst []byte, n int) ([]byte, error) {
	if n < 0 || n > MaxRemainingLength {
		return dst, fmt.Errorf("%w: %d", ErrLengthOutOfRange, n)
	}
	return append(dst, varint.ToUvarint(uint64(n))...), nil
}

// Encode builds a complete frame from a header byte and payload.
func Encode(header byte, payload []byte) ([]byte, error) {
	size := 1 + varint.UvarintSize(uint64(len(payload))) + len(payload)
	out := make([]byte, 1, size)
	out[0] = header
	out, err := AppendLength(out, len(payload))
	if err != nil {
		return nil, err
	}
	return append(out, payload...), nil
}
