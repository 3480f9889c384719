package poller

import (
	"sync"
	"time"
)

// FlagState is the edit state of the enabled flag
type FlagState int

const (
	// Idle shows the store's value as it arrives
	Idle FlagState = iota
	// UserEditing ignores store values until the suppression deadline
	UserEditing
)

func (s FlagState) String() string {
	switch s {
	case Idle:
		return "idle"
	case UserEditing:
		return "user_editing"
	}
	return "unknown"
}

// FlagDebouncer keeps a locally edited flag value on display while the store
// catches up. An edit opens a suppression window anchored to the edit time; a
// confirmed write shortens it to a short grace period, a failed write ends it.
// All transitions take the current time explicitly.
type FlagDebouncer struct {
	mu            sync.Mutex
	state         FlagState
	displayed     bool
	edit          uint64
	suppressUntil time.Time

	suppression time.Duration
	ackGrace    time.Duration
}

// NewFlagDebouncer creates a debouncer in the Idle state
func NewFlagDebouncer(suppression, ackGrace time.Duration) *FlagDebouncer {
	return &FlagDebouncer{suppression: suppression, ackGrace: ackGrace}
}

// BeginEdit records a local edit and returns its edit id for the write callbacks
func (f *FlagDebouncer) BeginEdit(now time.Time, value bool) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.edit++
	f.state = UserEditing
	f.displayed = value
	f.suppressUntil = now.Add(f.suppression)
	return f.edit
}

// WriteAcked handles a confirmed write for edit. The suppression window becomes
// the earlier of its current deadline and now plus the ack grace.
func (f *FlagDebouncer) WriteAcked(edit uint64, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expire(now)
	if f.state != UserEditing || edit != f.edit {
		return
	}
	if deadline := now.Add(f.ackGrace); deadline.Before(f.suppressUntil) {
		f.suppressUntil = deadline
	}
	f.expire(now)
}

// WriteFailed handles a failed write for edit by returning to Idle at once
func (f *FlagDebouncer) WriteFailed(edit uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if edit != f.edit {
		return
	}
	f.state = Idle
	f.suppressUntil = time.Time{}
}

// Observe offers a value read from the store. It returns the value to display
// and whether the store value was applied.
func (f *FlagDebouncer) Observe(now time.Time, storeValue bool) (displayed, applied bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expire(now)
	if f.state == UserEditing {
		return f.displayed, false
	}
	f.displayed = storeValue
	return f.displayed, true
}

// State returns the state at now
func (f *FlagDebouncer) State(now time.Time) FlagState {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expire(now)
	return f.state
}

// Displayed returns the value currently shown
func (f *FlagDebouncer) Displayed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.displayed
}

// SuppressUntil returns the suppression deadline; zero when Idle
func (f *FlagDebouncer) SuppressUntil(now time.Time) time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expire(now)
	if f.state == Idle {
		return time.Time{}
	}
	return f.suppressUntil
}

// expire must be called with f.mu held
func (f *FlagDebouncer) expire(now time.Time) {
	if f.state == UserEditing && !now.Before(f.suppressUntil) {
		f.state = Idle
		f.suppressUntil = time.Time{}
	}
}
