// Package bcs implements a strict reader for the Binary Canonical
// Serialization format used by the chain's transaction encoding. The reader
// is total: every operation either succeeds within the input bounds or
// returns an error, and callers can assert that the full input was consumed.
package bcs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxSequenceLength bounds ULEB128-encoded lengths. BCS itself caps
// sequences at 2^31-1; this tighter bound rejects absurd allocations from
// hostile inputs long before that.
const MaxSequenceLength = 1 << 20

var (
	ErrUnexpectedEOF    = errors.New("bcs: unexpected end of input")
	ErrTrailingBytes    = errors.New("bcs: trailing bytes after value")
	ErrLengthOutOfRange = errors.New("bcs: sequence length out of range")
	ErrNonCanonical     = errors.New("bcs: non-canonical ULEB128 encoding")
)

// Reader consumes a BCS byte stream front to back.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Remaining reports how many bytes are left unconsumed.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// ExpectEOF fails unless the input was consumed exactly.
func (r *Reader) ExpectEOF() error {
	if r.pos != len(r.buf) {
		return ErrTrailingBytes
	}
	return nil
}

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, ErrUnexpectedEOF
	}
	out := r.buf[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadBool() (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("bcs: invalid bool byte %d", b)
	}
}

func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadULEB reads a canonical ULEB128-encoded sequence length.
func (r *Reader) ReadULEB() (int, error) {
	var value uint64
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, err
		}
		if shift >= 32 {
			return 0, ErrLengthOutOfRange
		}
		value |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			if b == 0 && shift > 0 {
				return 0, ErrNonCanonical
			}
			break
		}
		shift += 7
	}
	if value > MaxSequenceLength {
		return 0, ErrLengthOutOfRange
	}
	return int(value), nil
}

// ReadFixedBytes reads exactly n raw bytes (no length prefix).
func (r *Reader) ReadFixedBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadBytes reads a ULEB128-length-prefixed byte vector.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadULEB()
	if err != nil {
		return nil, err
	}
	return r.ReadFixedBytes(n)
}

// ReadString reads a length-prefixed UTF-8 string.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
