package capture

import (
	"errors"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileRecorder appends records to a file.
// It is safe for concurrent use from multiple goroutines.
type FileRecorder struct {
	file    *os.File
	encoder *cbor.Encoder
	mu      sync.Mutex
	closed  bool
	count   int
}

// NewFileRecorder opens path for appending, creating it with permissions
// 0644 if needed.
func NewFileRecorder(path string) (*FileRecorder, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}
	return &FileRecorder{
		file:    f,
		encoder: NewEncoder(f),
	}, nil
}

// Record writes r. Encoding errors are ignored; capture must not disrupt
// the connection being captured.
func (fr *FileRecorder) Record(r Record) {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	if fr.closed {
		return
	}
	if err := fr.encoder.Encode(r); err == nil {
		fr.count++
	}
}

// Count returns the number of records written.
func (fr *FileRecorder) Count() int {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	return fr.count
}

// Close closes the file. It is safe to call Close multiple times; later
// Record calls are ignored.
func (fr *FileRecorder) Close() error {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	if fr.closed {
		return nil
	}
	fr.closed = true
	return fr.file.Close()
}

var _ Recorder = (*FileRecorder)(nil)

// Filter selects records. Zero fields match everything.
type Filter struct {
	Direction *Direction
	Type      *uint16
	Remote    string
}

func (f *Filter) matches(r Record) bool {
	if f.Direction != nil && r.Direction != *f.Direction {
		return false
	}
	if f.Type != nil && r.Type != *f.Type {
		return false
	}
	if f.Remote != "" && r.Remote != f.Remote {
		return false
	}
	return true
}

// Reader streams records from a capture file.
type Reader struct {
	file    *os.File
	decoder *cbor.Decoder
	filter  Filter
}

// NewReader reads every record in path.
func NewReader(path string) (*Reader, error) {
	return NewFilteredReader(path, Filter{})
}

// NewFilteredReader reads the records in path that match filter.
func NewFilteredReader(path string, filter Filter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{
		file:    f,
		decoder: NewDecoder(f),
		filter:  filter,
	}, nil
}

// Next returns the next matching record, or io.EOF at the end of the file.
func (r *Reader) Next() (Record, error) {
	for {
		var rec Record
		if err := r.decoder.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return Record{}, io.EOF
			}
			return Record{}, err
		}
		if r.filter.matches(rec) {
			return rec, nil
		}
	}
}

// Close closes the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// Memory keeps records in memory, mainly for tests.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

// Record appends r.
func (m *Memory) Record(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

// Records returns a copy of everything recorded so far.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}
