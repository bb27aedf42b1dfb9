package field

import "fmt"

// Reader walks a byte slice field by field.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Next returns the next n bytes and advances past them.
func (r *Reader) Next(n int) ([]byte, error) {
	if r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.pos, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// Skip advances the position by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.Next(n)
	return err
}

// Seek moves the read position to an absolute offset.
func (r *Reader) Seek(offset int) error {
	if offset < 0 || offset > len(r.buf) {
		return fmt.Errorf("%w: offset %d outside %d-byte buffer", ErrShortBuffer, offset, len(r.buf))
	}
	r.pos = offset
	return nil
}

// Pos returns the current read offset.
func (r *Reader) Pos() int { return r.pos }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

// Rest returns the unread bytes and moves to the end.
func (r *Reader) Rest() []byte {
	b := r.buf[r.pos:]
	r.pos = len(r.buf)
	return b
}

// Writer accumulates encoded fields.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with room for size bytes.
func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// grow extends the buffer by n zero bytes and returns the new region.
func (w *Writer) grow(n int) []byte {
	start := len(w.buf)
	w.buf = append(w.buf, make([]byte, n)...)
	return w.buf[start:]
}

// Zero appends n zero bytes (reserved fields).
func (w *Writer) Zero(n int) {
	w.grow(n)
}

// Raw appends b verbatim.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte { return w.buf }
