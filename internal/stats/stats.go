// Package stats groups observation records by a categorical field and ranks the
// result for dashboard display.
package stats

import (
	"sort"
	"strings"
	"time"

	"github.com/yegors/planetracker/internal/adsb"
)

// NoData is reported by top queries over an empty breakdown
const NoData = adsb.NotAvailable

// Entry is one category of a breakdown
type Entry struct {
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Breakdown is a ranked count-and-percentage summary. Entries are ordered by
// descending count, ties by ascending label.
type Breakdown struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
}

// KeyFunc extracts the category of a record. An empty or placeholder result drops
// the record.
type KeyFunc func(adsb.Record) string

// Common key functions
var (
	ByManufacturer KeyFunc = func(r adsb.Record) string { return r.Manufacturer }
	ByModel        KeyFunc = func(r adsb.Record) string { return r.Model }
	ByAirline      KeyFunc = func(r adsb.Record) string { return r.Owner }
)

// Missing reports whether a category label is absent
func Missing(label string) bool {
	s := strings.TrimSpace(label)
	return s == "" || s == "-" || s == adsb.NotAvailable
}

// Aggregate groups records by key and ranks the result
func Aggregate(records []adsb.Record, key KeyFunc) Breakdown {
	counts := make(map[string]int)
	for _, rec := range records {
		label := key(rec)
		if Missing(label) {
			continue
		}
		counts[strings.TrimSpace(label)]++
	}
	return AggregateCounts(counts)
}

// AggregateCounts ranks a precomputed count map. Non-positive counts are dropped
// and percentages are computed against the retained total.
func AggregateCounts(counts map[string]int) Breakdown {
	b := Breakdown{Entries: make([]Entry, 0, len(counts))}
	for label, count := range counts {
		if count <= 0 {
			continue
		}
		b.Entries = append(b.Entries, Entry{Label: label, Count: count})
		b.Total += count
	}

	sort.Slice(b.Entries, func(i, j int) bool {
		if b.Entries[i].Count != b.Entries[j].Count {
			return b.Entries[i].Count > b.Entries[j].Count
		}
		return b.Entries[i].Label < b.Entries[j].Label
	})

	for i := range b.Entries {
		b.Entries[i].Percent = 100 * float64(b.Entries[i].Count) / float64(b.Total)
	}
	return b
}

// Top returns the highest ranked entry. ok is false when the breakdown is empty.
func (b Breakdown) Top() (Entry, bool) {
	if len(b.Entries) == 0 {
		return Entry{Label: NoData}, false
	}
	return b.Entries[0], true
}

// TopN returns up to n leading entries
func (b Breakdown) TopN(n int) []Entry {
	if n <= 0 {
		return nil
	}
	if n > len(b.Entries) {
		n = len(b.Entries)
	}
	out := make([]Entry, n)
	copy(out, b.Entries[:n])
	return out
}

// Labels returns entry labels in rank order
func (b Breakdown) Labels() []string {
	out := make([]string, len(b.Entries))
	for i, e := range b.Entries {
		out[i] = e.Label
	}
	return out
}

// Leader is a top query result for the dashboard
type Leader struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// DashboardStats is the per-day statistics view
type DashboardStats struct {
	Date                  string    `json:"date"`
	Total                 int       `json:"total"`
	TopAirline            Leader    `json:"top_airline"`
	TopModel              Leader    `json:"top_model"`
	TopManufacturer       Leader    `json:"top_manufacturer"`
	ManufacturerBreakdown Breakdown `json:"manufacturer_breakdown"`
	LastUpdated           string    `json:"last_updated"`
}

// Dashboard builds the day view. Records missing a manufacturer, model or owner
// are excluded before counting.
func Dashboard(date string, records []adsb.Record, now time.Time) DashboardStats {
	complete := make([]adsb.Record, 0, len(records))
	for _, rec := range records {
		if Missing(rec.Manufacturer) || Missing(rec.Model) || Missing(rec.Owner) {
			continue
		}
		complete = append(complete, rec)
	}

	manufacturers := Aggregate(complete, ByManufacturer)
	return DashboardStats{
		Date:                  date,
		Total:                 len(complete),
		TopAirline:            leader(Aggregate(complete, ByAirline)),
		TopModel:              leader(Aggregate(complete, ByModel)),
		TopManufacturer:       leader(manufacturers),
		ManufacturerBreakdown: manufacturers,
		LastUpdated:           now.Format("15:04:05"),
	}
}

func leader(b Breakdown) Leader {
	top, _ := b.Top()
	return Leader{Label: top.Label, Count: top.Count}
}
