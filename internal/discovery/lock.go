package discovery

// MulticastLock keeps broadcast receipt alive on platforms that filter it
// while the process is idle. Acquire is called when a Listener starts and
// Release when it closes.
type MulticastLock interface {
	Acquire() error
	Release()
}

// NopLock is the default MulticastLock.
type NopLock struct{}

func (NopLock) Acquire() error { return nil }
func (NopLock) Release()       {}
