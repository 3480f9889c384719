package adsb

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
)

// AircraftMetadata holds static aircraft info keyed by transponder hex
type AircraftMetadata struct {
	Registration string
	TypeCode     string
	Manufacturer string
	Model        string
	Owner        string
	OperatorFlag string
}

// Manufacturer names too long for display
var manufacturerShortNames = map[string]string{
	"Avions de Transport Regional": "ATR",
	"Honda Aircraft Company":       "Honda",
}

// Characters that break store paths and display text
var unsafeChars = regexp.MustCompile(`[/\\.,:]`)

// CleanText replaces characters that are unsafe in store keys with spaces
func CleanText(s string) string {
	return strings.TrimSpace(unsafeChars.ReplaceAllString(s, " "))
}

// ShortManufacturer returns the display form of a manufacturer name
func ShortManufacturer(name string) string {
	if short, ok := manufacturerShortNames[name]; ok {
		return short
	}
	return name
}

// AircraftDB is an in-memory aircraft metadata lookup
type AircraftDB struct {
	mu      sync.RWMutex
	entries map[string]AircraftMetadata
}

// NewAircraftDB creates an empty database
func NewAircraftDB() *AircraftDB {
	return &AircraftDB{entries: make(map[string]AircraftMetadata)}
}

// LoadAircraftDB loads aircraft metadata from a ';' separated file
func LoadAircraftDB(path string) (*AircraftDB, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open aircraft db: %w", err)
	}
	defer file.Close()

	db := NewAircraftDB()
	if _, err := db.Read(file); err != nil {
		return nil, fmt.Errorf("failed to read aircraft db %s: %w", path, err)
	}
	return db, nil
}

// Read parses lines of the form
// Hex;Registration;TypeCode;Manufacturer;Model;Owner;OperatorFlag
// and returns the number of entries loaded. Lines with fewer than 3 parts are skipped.
func (db *AircraftDB) Read(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	count := 0

	db.mu.Lock()
	defer db.mu.Unlock()

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ";")
		if len(parts) < 3 {
			continue
		}
		hex := strings.ToUpper(strings.TrimSpace(parts[0]))
		if hex == "" {
			continue
		}

		part := func(i int) string {
			if i < len(parts) {
				return CleanText(parts[i])
			}
			return ""
		}
		db.entries[hex] = AircraftMetadata{
			Registration: part(1),
			TypeCode:     part(2),
			Manufacturer: ShortManufacturer(part(3)),
			Model:        part(4),
			Owner:        part(5),
			OperatorFlag: part(6),
		}
		count++
	}

	return count, scanner.Err()
}

// Lookup returns metadata for a transponder hex
func (db *AircraftDB) Lookup(hex string) (AircraftMetadata, bool) {
	if db == nil {
		return AircraftMetadata{}, false
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	meta, ok := db.entries[strings.ToUpper(strings.TrimSpace(hex))]
	return meta, ok
}

// Len returns the number of entries
func (db *AircraftDB) Len() int {
	if db == nil {
		return 0
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.entries)
}

// Enrich fills the record's descriptive fields from the database. Fields already
// known on the record are kept.
func (db *AircraftDB) Enrich(rec Record) Record {
	meta, ok := db.Lookup(rec.ICAO)
	if !ok {
		return rec
	}
	fill := func(dst *string, v string) {
		if v == "" {
			return
		}
		if *dst == "" || *dst == "-" || *dst == NotAvailable {
			*dst = v
		}
	}
	fill(&rec.Registration, meta.Registration)
	fill(&rec.TypeCode, meta.TypeCode)
	fill(&rec.Manufacturer, meta.Manufacturer)
	fill(&rec.Model, meta.Model)
	fill(&rec.Owner, meta.Owner)
	fill(&rec.OperatorFlag, meta.OperatorFlag)
	return rec
}
