package packet

import (
	"encoding/binary"
	"errors"
	"math"

	"golang.org/x/text/encoding/traditionalchinese"
)

// ErrShortPacket is reported by Reader.Err when a read ran past the payload.
var ErrShortPacket = errors.New("packet too short")

// Reader reads packet fields from a payload. Byte 0 is always the opcode.
// Reads past the end return zero values and latch Err.
type Reader struct {
	data  []byte
	off   int
	short bool
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data, off: 1} // skip opcode byte
}

func (r *Reader) Opcode() byte {
	if len(r.data) == 0 {
		return 0
	}
	return r.data[0]
}

func (r *Reader) need(n int) bool {
	if r.off+n > len(r.data) {
		r.short = true
		r.off = len(r.data)
		return false
	}
	return true
}

// ReadC reads 1 unsigned byte.
func (r *Reader) ReadC() byte {
	if !r.need(1) {
		return 0
	}
	v := r.data[r.off]
	r.off++
	return v
}

// ReadH reads 2 bytes as little-endian uint16.
func (r *Reader) ReadH() uint16 {
	if !r.need(2) {
		return 0
	}
	v := binary.LittleEndian.Uint16(r.data[r.off:])
	r.off += 2
	return v
}

// ReadD reads 4 bytes as little-endian int32.
func (r *Reader) ReadD() int32 {
	return int32(r.ReadDU())
}

// ReadDU reads 4 bytes as little-endian uint32.
func (r *Reader) ReadDU() uint32 {
	if !r.need(4) {
		return 0
	}
	v := binary.LittleEndian.Uint32(r.data[r.off:])
	r.off += 4
	return v
}

// ReadQ reads 8 bytes as little-endian uint64.
func (r *Reader) ReadQ() uint64 {
	if !r.need(8) {
		return 0
	}
	v := binary.LittleEndian.Uint64(r.data[r.off:])
	r.off += 8
	return v
}

// ReadF reads an IEEE-754 float32.
func (r *Reader) ReadF() float32 {
	return math.Float32frombits(r.ReadDU())
}

// ReadS reads a null-terminated MS950 (Big5) string and returns UTF-8.
// A missing terminator latches Err.
func (r *Reader) ReadS() string {
	start := r.off
	for r.off < len(r.data) {
		if r.data[r.off] == 0 {
			raw := r.data[start:r.off]
			r.off++ // skip null terminator
			return ms950ToUTF8(raw)
		}
		r.off++
	}
	r.short = true
	return ms950ToUTF8(r.data[start:r.off])
}

// ms950ToUTF8 converts MS950 (Big5) bytes to a UTF-8 string.
// Pure ASCII passes through unchanged; only multi-byte sequences are decoded.
func ms950ToUTF8(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	allASCII := true
	for _, b := range raw {
		if b >= 0x80 {
			allASCII = false
			break
		}
	}
	if allASCII {
		return string(raw)
	}
	decoded, err := traditionalchinese.Big5.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// ReadBytes reads n raw bytes into a fresh slice.
func (r *Reader) ReadBytes(n int) []byte {
	if n < 0 || !r.need(n) {
		r.short = true
		return nil
	}
	b := make([]byte, n)
	copy(b, r.data[r.off:r.off+n])
	r.off += n
	return b
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.data) - r.off
}

// Err returns ErrShortPacket if any read ran past the payload.
func (r *Reader) Err() error {
	if r.short {
		return ErrShortPacket
	}
	return nil
}
