package response

import (
	"fmt"

	"github.com/muurk/lifxlan/internal/field"
	"github.com/muurk/lifxlan/internal/protocol"
)

type sourcedKey struct {
	code uint16
	addr field.Address
}

// Expectations is the set of responses still awaited by one command: a
// multiset of bare type codes and a multiset of (type, device) pairs.
// It is not safe for concurrent use; Handle guards it.
type Expectations struct {
	bare    map[uint16]int
	sourced map[sourcedKey]int
	n       int
}

// NewExpectations seeds bare expectations from codes.
func NewExpectations(codes ...uint16) *Expectations {
	e := &Expectations{
		bare:    make(map[uint16]int),
		sourced: make(map[sourcedKey]int),
	}
	for _, code := range codes {
		e.Add(code)
	}
	return e
}

// Add expects one more packet of type code from any device.
func (e *Expectations) Add(code uint16) {
	e.bare[code]++
	e.n++
}

// AddFrom expects one more packet of type code from addr.
func (e *Expectations) AddFrom(code uint16, addr field.Address) {
	e.sourced[sourcedKey{code, addr}]++
	e.n++
}

// Matches reports whether a packet of type code from addr would be
// consumed. Bare expectations are checked first.
func (e *Expectations) Matches(code uint16, addr field.Address) bool {
	return e.bare[code] > 0 || e.sourced[sourcedKey{code, addr}] > 0
}

// Consume removes one expectation matching code from addr, preferring a
// bare one. Removing an expectation that does not exist is an error.
func (e *Expectations) Consume(code uint16, addr field.Address) error {
	if e.bare[code] > 0 {
		decrement(e.bare, code)
		e.n--
		return nil
	}
	key := sourcedKey{code, addr}
	if e.sourced[key] > 0 {
		decrement(e.sourced, key)
		e.n--
		return nil
	}
	return fmt.Errorf("%w: %s from %s", ErrUnexpectedResponse, protocol.TypeName(code), addr)
}

func decrement[K comparable](m map[K]int, k K) {
	if m[k] <= 1 {
		delete(m, k)
		return
	}
	m[k]--
}

// Empty reports whether nothing is awaited.
func (e *Expectations) Empty() bool { return e.n == 0 }

// Len returns the number of outstanding expectations.
func (e *Expectations) Len() int { return e.n }

func (e *Expectations) String() string {
	return fmt.Sprintf("Expectations{bare=%v, sourced=%d, pending=%d}", e.bare, len(e.sourced), e.n)
}
