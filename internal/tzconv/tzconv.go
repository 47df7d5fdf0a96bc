// Package tzconv converts UTC catch-up timestamps into the local wall-clock
// form Xtream-Codes providers expect in timeshift URLs.
package tzconv

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	// Embedded zone database so conversions work on minimal images.
	_ "time/tzdata"
)

// Layout is the provider timeshift format: date, colon, hour-minute.
const Layout = "2006-01-02:15-04"

// FallbackZone is used when the configured zone cannot be loaded.
const FallbackZone = "Europe/Brussels"

// ErrInvalidZone is returned when a zone name is not in the tz database.
var ErrInvalidZone = errors.New("tzconv: invalid time zone")

// ToLocal formats t in zone using Layout.
func ToLocal(t time.Time, zone string) (string, error) {
	loc, err := loadZone(zone)
	if err != nil {
		return "", err
	}
	return t.In(loc).Format(Layout), nil
}

// ToLocalOrDefault is ToLocal with FallbackZone (then UTC) substituted for an
// unusable zone. usedZone reports the zone actually applied.
func ToLocalOrDefault(t time.Time, zone string) (formatted, usedZone string) {
	if s, err := ToLocal(t, zone); err == nil {
		return s, zone
	}
	if s, err := ToLocal(t, FallbackZone); err == nil {
		return s, FallbackZone
	}
	return t.UTC().Format(Layout), "UTC"
}

// ParseStart reads the start segment of a timeshift path. Clients send either
// UNIX seconds or the provider Layout, both in UTC.
func ParseStart(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("tzconv: empty timestamp")
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	t, err := time.ParseInLocation(Layout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("tzconv: timestamp %q: %w", s, err)
	}
	return t, nil
}

func loadZone(zone string) (*time.Location, error) {
	zone = strings.TrimSpace(zone)
	// LoadLocation maps "" and "UTC" to UTC and "Local" to the host zone;
	// only explicit IANA names are accepted here.
	if zone == "" || zone == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidZone, zone)
	}
	return loc, nil
}
