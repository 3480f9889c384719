package adsb

import (
	"fmt"
	"strings"
	"time"
)

// Partition key layouts
const (
	DayLayout    = "2006-01-02"
	BucketLayout = "15:04"

	DefaultBucketMinutes = 10
)

// PartitionKey addresses a slice of the record store: a whole day, or a
// time bucket within a day.
type PartitionKey struct {
	Day    string // YYYY-MM-DD
	Bucket string // HH:MM, empty for the whole day
}

// DayKey returns the key for now's calendar day
func DayKey(now time.Time) PartitionKey {
	return PartitionKey{Day: now.Format(DayLayout)}
}

// BucketKey returns the key for the bucket containing now. The minute is rounded
// down to the nearest multiple of bucketMinutes; values outside 1..60 use the default.
func BucketKey(now time.Time, bucketMinutes int) PartitionKey {
	if bucketMinutes <= 0 || bucketMinutes > 60 {
		bucketMinutes = DefaultBucketMinutes
	}
	minute := (now.Minute() / bucketMinutes) * bucketMinutes
	bucket := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
	return PartitionKey{
		Day:    now.Format(DayLayout),
		Bucket: bucket.Format(BucketLayout),
	}
}

// IsDay reports whether the key addresses a whole day
func (k PartitionKey) IsDay() bool {
	return k.Bucket == ""
}

// String renders the key as a store path, "YYYY-MM-DD" or "YYYY-MM-DD/HH:MM"
func (k PartitionKey) String() string {
	if k.IsDay() {
		return k.Day
	}
	return k.Day + "/" + k.Bucket
}

// ParsePartitionKey parses a key produced by String. A leading slash is tolerated.
func ParsePartitionKey(s string) (PartitionKey, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	day, bucket, hasBucket := strings.Cut(s, "/")

	if _, err := time.Parse(DayLayout, day); err != nil {
		return PartitionKey{}, fmt.Errorf("invalid partition day %q: %w", day, err)
	}
	if !hasBucket {
		return PartitionKey{Day: day}, nil
	}
	if _, err := time.Parse(BucketLayout, bucket); err != nil {
		return PartitionKey{}, fmt.Errorf("invalid partition bucket %q: %w", bucket, err)
	}
	return PartitionKey{Day: day, Bucket: bucket}, nil
}
