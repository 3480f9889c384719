package timewindow

import (
	"testing"
	"time"
)

func at(h, m, s int) time.Time {
	return time.Date(2025, 3, 14, h, m, s, 0, time.Local)
}

func TestIsRecentTimeOfDay(t *testing.T) {
	tests := []struct {
		name     string
		observed string
		now      time.Time
		window   time.Duration
		want     bool
	}{
		{"one minute old", "12:00:00", at(12, 1, 0), 2 * time.Minute, true},
		{"five minutes old", "12:00:00", at(12, 5, 0), 2 * time.Minute, false},
		{"exactly on window", "12:00:00", at(12, 2, 0), 2 * time.Minute, true},
		{"one second past window", "12:00:00", at(12, 2, 1), 2 * time.Minute, false},
		{"slightly in the future", "12:00:30", at(12, 0, 0), time.Minute, true},
		{"future within window", "12:03:30", at(12, 2, 0), 2 * time.Minute, true},
		{"future past window", "12:04:01", at(12, 2, 0), 2 * time.Minute, false},
		{"hour minute only", "12:00", at(12, 0, 45), time.Minute, true},
		{"zero window same second", "08:15:30", at(8, 15, 30), 0, true},
		{"negative window", "08:15:30", at(8, 15, 30), -time.Second, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRecentRaw(tt.observed, tt.now, tt.window); got != tt.want {
				t.Fatalf("IsRecentRaw(%q, %v, %v) = %v, want %v", tt.observed, tt.now, tt.window, got, tt.want)
			}
		})
	}
}

func TestIsRecentUnparseable(t *testing.T) {
	for _, raw := range []string{"", "N/A", "-", "25:99:00", "yesterday", "12-00-00"} {
		if IsRecentRaw(raw, at(12, 0, 0), time.Hour) {
			t.Errorf("IsRecentRaw(%q) = true, want false", raw)
		}
	}
}

func TestIsRecentFullTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	recent := now.Add(-30 * time.Second).Format(time.RFC3339)
	if !IsRecentRaw(recent, now, 2*time.Minute) {
		t.Fatalf("expected %s to be recent", recent)
	}

	// Same clock time but a different day must not match.
	stale := now.Add(-24 * time.Hour).Format(time.RFC3339)
	if IsRecentRaw(stale, now, 2*time.Minute) {
		t.Fatalf("expected %s not to be recent", stale)
	}
}

// A time of day just before midnight evaluated just after midnight is placed on the
// new day and therefore looks ~24h away.
func TestIsRecentCrossMidnightLimitation(t *testing.T) {
	now := time.Date(2025, 3, 15, 0, 0, 30, 0, time.Local)
	if IsRecentRaw("23:59:45", now, 2*time.Minute) {
		t.Fatal("cross-midnight observation unexpectedly treated as recent")
	}
}

func TestParse(t *testing.T) {
	o := Parse(" 07:08:09 ")
	if !o.Valid || !o.TimeOnly {
		t.Fatalf("expected valid time-of-day, got %+v", o)
	}
	inst, ok := o.Instant(at(23, 0, 0))
	if !ok {
		t.Fatal("Instant returned !ok")
	}
	if inst.Hour() != 7 || inst.Minute() != 8 || inst.Second() != 9 || inst.Day() != 14 {
		t.Fatalf("unexpected instant %v", inst)
	}

	full := Parse("2025-03-14 10:11:12")
	if !full.Valid || full.TimeOnly {
		t.Fatalf("expected full timestamp, got %+v", full)
	}
}

func TestPolicy(t *testing.T) {
	p := Policy{Window: time.Minute}
	if !p.IsRecent(Parse("12:00:00"), at(12, 0, 59)) {
		t.Fatal("expected recent")
	}
	if p.IsRecent(Parse("12:00:00"), at(12, 1, 1)) {
		t.Fatal("expected not recent")
	}
}
