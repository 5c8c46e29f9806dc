package protocol

import (
	"encoding/binary"
	"io"
	"math"
)

// Decoder reads wire primitives from an underlying reader.
// Errors from the reader are returned unchanged (io.EOF, io.ErrUnexpectedEOF, ...).
type Decoder struct {
	r   io.Reader
	buf [8]byte
}

// NewDecoder creates a Decoder. Callers should pass a buffered reader.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

func (d *Decoder) fill(n int) ([]byte, error) {
	b := d.buf[:n]
	if _, err := io.ReadFull(d.r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadInt32 reads a big-endian int32.
func (d *Decoder) ReadInt32() (int32, error) {
	b, err := d.fill(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

// ReadInt64 reads a big-endian int64.
func (d *Decoder) ReadInt64() (int64, error) {
	b, err := d.fill(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// ReadFloat64 reads a big-endian IEEE 754 double.
func (d *Decoder) ReadFloat64() (float64, error) {
	b, err := d.fill(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

// ReadBool reads a single byte; any non-zero value is true.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.fill(1)
	if err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

// ReadString reads a uint16 length-prefixed string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.fill(2)
	if err != nil {
		return "", err
	}
	n := int(binary.BigEndian.Uint16(b))
	if n == 0 {
		return "", nil
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(d.r, s); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return "", err
	}
	return string(s), nil
}

// Encoder writes wire primitives. The first write error is sticky:
// subsequent writes are skipped and the error is reported by Err and Flush.
type Encoder struct {
	w   io.Writer
	buf [8]byte
	err error
}

// NewEncoder creates an Encoder. Callers should pass a buffered writer.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) write(b []byte) {
	if e.err != nil {
		return
	}
	_, e.err = e.w.Write(b)
}

// WriteInt32 writes a big-endian int32.
func (e *Encoder) WriteInt32(v int32) {
	binary.BigEndian.PutUint32(e.buf[:4], uint32(v))
	e.write(e.buf[:4])
}

// WriteInt64 writes a big-endian int64.
func (e *Encoder) WriteInt64(v int64) {
	binary.BigEndian.PutUint64(e.buf[:8], uint64(v))
	e.write(e.buf[:8])
}

// WriteFloat64 writes a big-endian IEEE 754 double.
func (e *Encoder) WriteFloat64(v float64) {
	binary.BigEndian.PutUint64(e.buf[:8], math.Float64bits(v))
	e.write(e.buf[:8])
}

// WriteBool writes 1 for true and 0 for false.
func (e *Encoder) WriteBool(v bool) {
	e.buf[0] = 0
	if v {
		e.buf[0] = 1
	}
	e.write(e.buf[:1])
}

// WriteString writes a uint16 length-prefixed string.
func (e *Encoder) WriteString(s string) {
	if len(s) > math.MaxUint16 {
		if e.err == nil {
			e.err = ErrStringTooLong
		}
		return
	}
	binary.BigEndian.PutUint16(e.buf[:2], uint16(len(s)))
	e.write(e.buf[:2])
	if len(s) > 0 && e.err == nil {
		_, e.err = io.WriteString(e.w, s)
	}
}

// Err returns the first write error, if any.
func (e *Encoder) Err() error {
	return e.err
}

// Flush flushes the underlying writer if it supports it and returns the first error.
func (e *Encoder) Flush() error {
	if e.err != nil {
		return e.err
	}
	if f, ok := e.w.(interface{ Flush() error }); ok {
		e.err = f.Flush()
	}
	return e.err
}
