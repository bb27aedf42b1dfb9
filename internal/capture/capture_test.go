package capture

import (
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestCapture(t *testing.T, records []Record) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.lcap")

	rec, err := NewFileRecorder(path)
	require.NoError(t, err)
	for _, r := range records {
		rec.Record(r)
	}
	require.Equal(t, len(records), rec.Count())
	require.NoError(t, rec.Close())
	return path
}

func readAll(t *testing.T, r *Reader) []Record {
	t.Helper()
	var out []Record
	for {
		rec, err := r.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestRecordEncoding(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	in := Record{
		Time:      now,
		HubID:     "c0ffee",
		Remote:    "192.168.1.20:56700",
		Direction: DirectionOut,
		Type:      0x66,
		Frame:     []byte{0x31, 0x00, 0x00, 0x34},
	}

	data, err := EncodeRecord(in)
	require.NoError(t, err)
	out, err := DecodeRecord(data)
	require.NoError(t, err)

	assert.True(t, in.Time.Equal(out.Time), "time keeps nanoseconds")
	assert.Equal(t, in.HubID, out.HubID)
	assert.Equal(t, in.Remote, out.Remote)
	assert.Equal(t, in.Direction, out.Direction)
	assert.Equal(t, in.Type, out.Type)
	assert.Equal(t, in.Frame, out.Frame)
}

func TestReaderIteratesRecords(t *testing.T) {
	records := []Record{
		{Time: time.Now(), Remote: "a:1", Direction: DirectionIn, Type: 0x6B},
		{Time: time.Now(), Remote: "b:1", Direction: DirectionOut, Type: 0x65},
		{Time: time.Now(), Remote: "a:1", Direction: DirectionBroadcast, Type: 0x03},
	}
	path := writeTestCapture(t, records)

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()

	got := readAll(t, r)
	require.Len(t, got, 3)
	assert.Equal(t, uint16(0x6B), got[0].Type)
	assert.Equal(t, uint16(0x03), got[2].Type)
}

func TestReaderFilter(t *testing.T) {
	records := []Record{
		{Remote: "a:1", Direction: DirectionIn, Type: 0x6B},
		{Remote: "b:1", Direction: DirectionIn, Type: 0x16},
		{Remote: "a:1", Direction: DirectionOut, Type: 0x6B},
	}
	path := writeTestCapture(t, records)

	in := DirectionIn
	status := uint16(0x6B)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"direction", Filter{Direction: &in}, 2},
		{"type", Filter{Type: &status}, 2},
		{"remote", Filter{Remote: "b:1"}, 1},
		{"combined", Filter{Direction: &in, Type: &status, Remote: "a:1"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			require.NoError(t, err)
			defer r.Close()
			assert.Len(t, readAll(t, r), tt.want)
		})
	}
}

func TestFileRecorderConcurrentAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.lcap")
	rec, err := NewFileRecorder(path)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec.Record(Record{Type: uint16(i), Frame: make([]byte, 40)})
		}(i)
	}
	wg.Wait()

	require.NoError(t, rec.Close())
	require.NoError(t, rec.Close())
	rec.Record(Record{Type: 99})

	r, err := NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	assert.Len(t, readAll(t, r), 20)
}

func TestDirection(t *testing.T) {
	for _, d := range []Direction{DirectionIn, DirectionOut, DirectionBroadcast} {
		got, err := ParseDirection(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, got)
	}
	_, err := ParseDirection("sideways")
	assert.Error(t, err)
}
