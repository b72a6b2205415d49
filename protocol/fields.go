package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// MaxStringLen is the largest string a body field can carry (u16 length prefix).
const MaxStringLen = 65535

// PasswordFieldLen is the fixed width of a password16 field on the wire.
const PasswordFieldLen = 16

// Writer accumulates typed body fields in wire order. It never fails —
// callers build a body incrementally and hand the result to Encode.
type Writer struct {
	buf []byte
}

// NewWriter returns an empty body writer.
func NewWriter() *Writer {
	return &Writer{}
}

// Bytes returns the accumulated body.
func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) PutU16(v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutU64(v uint64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *Writer) PutI32(v int32) {
	w.PutU32(uint32(v))
}

// PutDouble writes v's raw IEEE-754 bit pattern (math.Float64bits) as a
// big-endian u64, the same sequence as the original implementation's
// memcpy-into-a-uint64-then-write-big-endian described in spec §9. Because
// Float64bits does not depend on host byte order, the bytes written are the
// standard big-endian IEEE-754 encoding of v on every host.
func (w *Writer) PutDouble(v float64) {
	w.PutU64(math.Float64bits(v))
}

// PutString writes a u16 length prefix followed by the raw bytes. Strings
// longer than MaxStringLen are silently truncated to the max length, mirroring
// the original encoder's "return without writing" quirk turned into a safe
// truncation rather than a dropped field.
func (w *Writer) PutString(s string) {
	if len(s) > MaxStringLen {
		s = s[:MaxStringLen]
	}
	w.PutU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// PutPassword16 writes exactly PasswordFieldLen bytes, truncating longer
// input and zero-padding shorter input.
func (w *Writer) PutPassword16(s string) {
	var field [PasswordFieldLen]byte
	n := copy(field[:], s)
	_ = n
	w.buf = append(w.buf, field[:]...)
}

// Reader consumes typed body fields from a fixed buffer, advancing an
// internal cursor. Every method fails (returns an error) rather than
// panicking when it would read past the buffer.
type Reader struct {
	buf []byte
	off int
}

// NewReader wraps body in a cursor-based reader.
func NewReader(body []byte) *Reader {
	return &Reader{buf: body}
}

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.off
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("protocol: short read: need %d, have %d", n, r.Remaining())
	}
	return nil
}

func (r *Reader) U16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.off : r.off+2])
	r.off += 2
	return v, nil
}

func (r *Reader) U32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v, nil
}

func (r *Reader) U64() (uint64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v, nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// Double undoes PutDouble's raw-bit big-endian encoding — see spec §9.
func (r *Reader) Double() (float64, error) {
	bits, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func (r *Reader) String() (string, error) {
	n, err := r.U16()
	if err != nil {
		return "", err
	}
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.off : r.off+int(n)])
	r.off += int(n)
	return s, nil
}

// Password16 reads a fixed 16-byte field and strips trailing zero bytes.
// A password legitimately ending in a NUL byte is therefore lossy — a
// documented limitation carried over from the original wire format.
func (r *Reader) Password16() (string, error) {
	if err := r.need(PasswordFieldLen); err != nil {
		return "", err
	}
	field := r.buf[r.off : r.off+PasswordFieldLen]
	r.off += PasswordFieldLen

	end := PasswordFieldLen
	for end > 0 && field[end-1] == 0 {
		end--
	}
	return string(field[:end]), nil
}
