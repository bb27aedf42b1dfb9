package response

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muurk/lifxlan/internal/protocol"
)

func TestTrackerFirstUnfulfilledMatchWins(t *testing.T) {
	tr := NewTracker()
	first := NewHandle(protocol.New(&protocol.GetPower{}, addr1))
	second := NewHandle(protocol.New(&protocol.GetPower{}, addr1))
	tr.Add(first)
	tr.Add(second)

	got, err := tr.Offer(incoming(&protocol.StatePower{}, addr1))
	require.NoError(t, err)
	assert.Same(t, first, got)
	assert.True(t, first.IsFulfilled())
	assert.False(t, second.IsFulfilled())

	got, err = tr.Offer(incoming(&protocol.StatePower{}, addr1))
	require.NoError(t, err)
	assert.Same(t, second, got)
	assert.Equal(t, 1, tr.Len(), "first handle swept on the second offer")

	_, err = tr.Offer(incoming(&protocol.StatePower{}, addr1))
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.Equal(t, 0, tr.Len())
}

func TestTrackerConcurrentHandlesSameType(t *testing.T) {
	for round := 0; round < 50; round++ {
		tr := NewTracker()
		handles := make([]*Handle, 2)
		var wg sync.WaitGroup
		for i := range handles {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				handles[i] = NewHandle(protocol.New(&protocol.GetLabel{}, addr1))
				tr.Add(handles[i])
			}(i)
		}
		wg.Wait()

		_, err := tr.Offer(incoming(&protocol.StateLabel{}, addr1))
		require.NoError(t, err)

		fulfilled := 0
		for _, h := range handles {
			if h.IsFulfilled() {
				fulfilled++
			}
		}
		require.Equal(t, 1, fulfilled, "exactly one handle must take the response")
	}
}

func TestTrackerUnmatchedLeavesOthersAlone(t *testing.T) {
	tr := NewTracker()
	h := NewHandle(protocol.New(&protocol.GetPower{}, addr1))
	tr.Add(h)

	_, err := tr.Offer(incoming(&protocol.StateLabel{}, addr1))
	assert.ErrorIs(t, err, ErrUnexpectedResponse)
	assert.Equal(t, 1, h.Pending())
	assert.Empty(t, h.Responses())
}

func TestTrackerAbandonedHandleConsumesLateResponse(t *testing.T) {
	tr := NewTracker()
	abandoned := NewHandle(protocol.New(&protocol.GetPower{}, addr1))
	tr.Add(abandoned)
	require.ErrorIs(t, abandoned.AwaitTimeout(10*time.Millisecond), ErrResponseTimeout)

	waiting := NewHandle(protocol.New(&protocol.GetPower{}, addr1))
	tr.Add(waiting)

	got, err := tr.Offer(incoming(&protocol.StatePower{}, addr1))
	require.NoError(t, err)
	assert.Same(t, abandoned, got, "late response goes to the timed-out handle, not the newer one")
	assert.False(t, waiting.IsFulfilled())
}

func TestTrackerRetiresEmptyHandles(t *testing.T) {
	tr := NewTracker()
	h := NewHandle(protocol.New(&protocol.SetLabel{Label: "x"}, addr1))
	assert.ErrorIs(t, h.Expect(protocol.TypeStateLabel), ErrHandleClosed)
	tr.Add(h)

	assert.Equal(t, 1, tr.Sweep())
	assert.Equal(t, 0, tr.Len())

	// Options supply expectations before the handle is ever tracked.
	h = NewHandle(protocol.New(&protocol.SetLabel{Label: "x"}, addr1), Expect(protocol.TypeStateLabel))
	tr.Add(h)
	assert.Equal(t, 0, tr.Sweep())
	_, err := tr.Offer(incoming(&protocol.StateLabel{Label: "x"}, addr1))
	require.NoError(t, err)
}

func TestTrackerAbort(t *testing.T) {
	tr := NewTracker()
	h1 := NewHandle(protocol.New(&protocol.GetPower{}, addr1))
	h2 := NewHandle(protocol.New(&protocol.GetLabel{}, addr2))
	tr.Add(h1)
	tr.Add(h2)

	closed := errors.New("closed")
	tr.Abort(closed)

	assert.Equal(t, 0, tr.Len())
	assert.ErrorIs(t, h1.AwaitTimeout(time.Second), closed)
	assert.ErrorIs(t, h2.AwaitTimeout(time.Second), closed)
}

func TestTrackerRemove(t *testing.T) {
	tr := NewTracker()
	h := NewHandle(protocol.New(&protocol.GetPower{}, addr1))
	tr.Add(h)
	assert.True(t, tr.Remove(h))
	assert.False(t, tr.Remove(h))
	assert.Equal(t, 0, tr.Len())
}
