package adsb

import (
	"testing"
	"time"
)

func TestBucketKey(t *testing.T) {
	tests := []struct {
		at      time.Time
		minutes int
		want    string
	}{
		{time.Date(2025, 5, 14, 12, 37, 12, 0, time.UTC), 10, "2025-05-14/12:30"},
		{time.Date(2025, 5, 14, 12, 30, 0, 0, time.UTC), 10, "2025-05-14/12:30"},
		{time.Date(2025, 5, 14, 12, 39, 59, 0, time.UTC), 10, "2025-05-14/12:30"},
		{time.Date(2025, 5, 14, 0, 5, 0, 0, time.UTC), 10, "2025-05-14/00:00"},
		{time.Date(2025, 5, 14, 23, 59, 0, 0, time.UTC), 15, "2025-05-14/23:45"},
		{time.Date(2025, 5, 14, 9, 7, 0, 0, time.UTC), 0, "2025-05-14/09:00"},
		{time.Date(2025, 5, 14, 9, 7, 0, 0, time.UTC), 90, "2025-05-14/09:00"},
	}
	for _, tt := range tests {
		if got := BucketKey(tt.at, tt.minutes).String(); got != tt.want {
			t.Errorf("BucketKey(%s, %d) = %q, want %q", tt.at.Format(time.RFC3339), tt.minutes, got, tt.want)
		}
	}
}

func TestDayKey(t *testing.T) {
	k := DayKey(time.Date(2025, 1, 2, 23, 59, 0, 0, time.UTC))
	if !k.IsDay() || k.String() != "2025-01-02" {
		t.Fatalf("DayKey = %+v", k)
	}
}

func TestParsePartitionKey(t *testing.T) {
	tests := []struct {
		in      string
		want    PartitionKey
		wantErr bool
	}{
		{"2025-05-14", PartitionKey{Day: "2025-05-14"}, false},
		{"/2025-05-14/12:30", PartitionKey{Day: "2025-05-14", Bucket: "12:30"}, false},
		{"2025-05-14/12:30", PartitionKey{Day: "2025-05-14", Bucket: "12:30"}, false},
		{"2025-13-14", PartitionKey{}, true},
		{"2025-05-14/25:00", PartitionKey{}, true},
		{"", PartitionKey{}, true},
	}
	for _, tt := range tests {
		got, err := ParsePartitionKey(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePartitionKey(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParsePartitionKey(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
