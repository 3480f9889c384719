package poller

import (
	"testing"
	"time"
)

var t0 = time.Date(2025, 5, 14, 12, 0, 0, 0, time.UTC)

func TestFlagDebouncerSuppressesStoreValues(t *testing.T) {
	f := NewFlagDebouncer(10*time.Second, 2*time.Second)

	if got, applied := f.Observe(t0, true); !got || !applied {
		t.Fatalf("idle Observe = %v, %v", got, applied)
	}

	f.BeginEdit(t0, false)
	if f.State(t0) != UserEditing {
		t.Fatalf("state = %s, want user_editing", f.State(t0))
	}

	// Store still reports the old value while the write is pending.
	if got, applied := f.Observe(t0.Add(3*time.Second), true); got || applied {
		t.Fatalf("Observe during edit = %v, %v; want false, false", got, applied)
	}
	if got := f.SuppressUntil(t0); !got.Equal(t0.Add(10 * time.Second)) {
		t.Fatalf("SuppressUntil = %s", got)
	}

	// Deadline reached without an ack.
	if got, applied := f.Observe(t0.Add(10*time.Second), true); !got || !applied {
		t.Fatalf("Observe after deadline = %v, %v", got, applied)
	}
	if f.State(t0.Add(10*time.Second)) != Idle {
		t.Fatal("expected Idle after deadline")
	}
}

func TestFlagDebouncerAckShortensWindow(t *testing.T) {
	f := NewFlagDebouncer(10*time.Second, 2*time.Second)
	edit := f.BeginEdit(t0, true)

	f.WriteAcked(edit, t0.Add(1*time.Second))
	if got := f.SuppressUntil(t0.Add(time.Second)); !got.Equal(t0.Add(3 * time.Second)) {
		t.Fatalf("SuppressUntil after ack = %s, want %s", got, t0.Add(3*time.Second))
	}
	if f.State(t0.Add(3*time.Second)) != Idle {
		t.Fatal("expected Idle once the grace elapsed")
	}
}

func TestFlagDebouncerLateAckKeepsAnchor(t *testing.T) {
	f := NewFlagDebouncer(10*time.Second, 2*time.Second)
	edit := f.BeginEdit(t0, true)

	// Ack at t0+9s: ack+grace would be t0+11s, the original deadline wins.
	f.WriteAcked(edit, t0.Add(9*time.Second))
	if got := f.SuppressUntil(t0.Add(9 * time.Second)); !got.Equal(t0.Add(10 * time.Second)) {
		t.Fatalf("SuppressUntil = %s, want %s", got, t0.Add(10*time.Second))
	}
}

func TestFlagDebouncerWriteFailed(t *testing.T) {
	f := NewFlagDebouncer(10*time.Second, 2*time.Second)
	f.Observe(t0, false)
	edit := f.BeginEdit(t0, true)

	f.WriteFailed(edit)
	if f.State(t0) != Idle {
		t.Fatal("expected Idle after failed write")
	}
	if got, applied := f.Observe(t0.Add(time.Second), false); got || !applied {
		t.Fatalf("Observe after failure = %v, %v", got, applied)
	}
}

func TestFlagDebouncerIgnoresStaleEdits(t *testing.T) {
	f := NewFlagDebouncer(10*time.Second, 2*time.Second)
	first := f.BeginEdit(t0, true)
	second := f.BeginEdit(t0.Add(5*time.Second), false)

	f.WriteAcked(first, t0.Add(5*time.Second))
	if got := f.SuppressUntil(t0.Add(5 * time.Second)); !got.Equal(t0.Add(15 * time.Second)) {
		t.Fatalf("stale ack shortened window: %s", got)
	}
	f.WriteFailed(first)
	if f.State(t0.Add(6*time.Second)) != UserEditing {
		t.Fatal("stale failure ended the newer edit")
	}

	f.WriteAcked(second, t0.Add(6*time.Second))
	if got := f.SuppressUntil(t0.Add(6 * time.Second)); !got.Equal(t0.Add(8 * time.Second)) {
		t.Fatalf("SuppressUntil = %s", got)
	}
	if f.Displayed() {
		t.Fatal("displayed value should be the latest edit")
	}
}

func TestFlagStateString(t *testing.T) {
	if Idle.String() != "idle" || UserEditing.String() != "user_editing" || FlagState(9).String() != "unknown" {
		t.Fatal("unexpected FlagState strings")
	}
}
