package protocol

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"
)

// Frame is one length-prefixed message read from a hub stream.
type Frame struct {
	Length uint16 // Total length including the 2-byte prefix
	Raw    []byte // Complete frame bytes, prefix included
}

// Type returns the frame's packet type code without parsing it.
func (f *Frame) Type() (uint16, error) {
	return PeekType(f.Raw)
}

// String returns a debug representation of the frame
func (f *Frame) String() string {
	code, err := f.Type()
	if err != nil {
		return fmt.Sprintf("Frame{Length=%d, Type=?}", f.Length)
	}
	return fmt.Sprintf("Frame{Length=%d, Type=%s}", f.Length, TypeName(code))
}

// Hex returns the frame as a hex string for logging.
func (f *Frame) Hex() string {
	return hex.EncodeToString(f.Raw)
}

// ReadFrame reads one frame from r. io.EOF is returned unchanged when the
// stream ends cleanly before a new frame; a zero length prefix is reported
// as io.EOF too, since hubs send it while closing.
func ReadFrame(r io.Reader) (*Frame, error) {
	prefix := make([]byte, 2)
	if _, err := io.ReadFull(r, prefix); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: partial length prefix", ErrFrameTruncated)
		}
		return nil, err
	}

	length, _ := hdrSize.Decode(prefix)
	if length == 0 {
		return nil, io.EOF
	}
	if length < 2 {
		return nil, fmt.Errorf("%w: length prefix %d", ErrFrameTooShort, length)
	}

	frame := &Frame{Length: length, Raw: make([]byte, length)}
	copy(frame.Raw, prefix)
	if _, err := io.ReadFull(r, frame.Raw[2:]); err != nil {
		return nil, fmt.Errorf("%w: read %d-byte frame body: %v", ErrFrameTruncated, length-2, err)
	}
	return frame, nil
}

// FrameWriter serializes packets onto a stream. Writes from concurrent
// goroutines never interleave.
type FrameWriter struct {
	mu sync.Mutex
	w  io.Writer
}

// NewFrameWriter returns a FrameWriter writing to w.
func NewFrameWriter(w io.Writer) *FrameWriter {
	return &FrameWriter{w: w}
}

// WritePacket marshals p and writes the resulting frame. It returns the
// bytes written so callers can log or record them.
func (fw *FrameWriter) WritePacket(p *Packet) ([]byte, error) {
	data, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	return data, fw.WriteFrame(data)
}

// WriteFrame writes an already encoded frame.
func (fw *FrameWriter) WriteFrame(data []byte) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	_, err := fw.w.Write(data)
	return err
}
