// Package biztime computes settlement-day boundaries. All storage and transport
// use UTC; the chain timezone is only used to decide which calendar day a
// timestamp falls on.
package biztime

import (
	"fmt"
	"sync"
	"time"
)

// DefaultTimezone matches block timestamps, which are UTC.
const DefaultTimezone = "UTC"

var (
	mu          sync.RWMutex
	bizLocation = time.UTC
)

// Init sets the settlement timezone. Should be called once at startup.
func Init(tz string) error {
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}
	mu.Lock()
	bizLocation = loc
	mu.Unlock()
	return nil
}

// Location returns the settlement timezone.
func Location() *time.Location {
	mu.RLock()
	defer mu.RUnlock()
	return bizLocation
}

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// DayOf returns the settlement day t falls on, as a UTC-midnight date value.
// Two timestamps share a quota day iff their DayOf values are equal.
func DayOf(t time.Time) time.Time {
	local := t.In(Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatMetadataTime formats a UTC time for storage in metadata using RFC3339 format.
func FormatMetadataTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
