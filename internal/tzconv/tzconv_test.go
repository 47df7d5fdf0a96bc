package tzconv

import (
	"errors"
	"testing"
	"time"
)

func TestToLocal(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		zone string
		want string
	}{
		{"brussels winter", time.Unix(1700000000, 0).UTC(), "Europe/Brussels", "2023-11-14:23-13"},
		{"utc", time.Unix(1700000000, 0).UTC(), "UTC", "2023-11-14:22-13"},
		{"new york", time.Unix(1700000000, 0).UTC(), "America/New_York", "2023-11-14:17-13"},
		{"brussels summer", time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC), "Europe/Brussels", "2024-07-01:14-00"},
		{"day rollover", time.Date(2024, 1, 1, 23, 30, 0, 0, time.UTC), "Europe/Brussels", "2024-01-02:00-30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ToLocal(tt.t, tt.zone)
			if err != nil {
				t.Fatalf("ToLocal: %v", err)
			}
			if got != tt.want {
				t.Errorf("ToLocal = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestToLocal_dstSpringForward(t *testing.T) {
	// Europe/Brussels moves from UTC+1 to UTC+2 at 2024-03-31 01:00 UTC.
	before := time.Date(2024, 3, 31, 0, 30, 0, 0, time.UTC)
	after := time.Date(2024, 3, 31, 1, 30, 0, 0, time.UTC)
	b, err := ToLocal(before, "Europe/Brussels")
	if err != nil {
		t.Fatal(err)
	}
	a, err := ToLocal(after, "Europe/Brussels")
	if err != nil {
		t.Fatal(err)
	}
	if b != "2024-03-31:01-30" {
		t.Errorf("before = %q", b)
	}
	// One UTC hour apart, two local hours apart.
	if a != "2024-03-31:03-30" {
		t.Errorf("after = %q", a)
	}
}

func TestToLocal_dstFallBack(t *testing.T) {
	// 2024-10-27 01:00 UTC: CEST ends, 03:00 local becomes 02:00.
	before := time.Date(2024, 10, 27, 0, 30, 0, 0, time.UTC)
	after := time.Date(2024, 10, 27, 1, 30, 0, 0, time.UTC)
	b, _ := ToLocal(before, "Europe/Brussels")
	a, _ := ToLocal(after, "Europe/Brussels")
	if b != "2024-10-27:02-30" || a != "2024-10-27:02-30" {
		t.Errorf("fall back: before=%q after=%q, both want 02-30", b, a)
	}
}

func TestToLocal_invalidZone(t *testing.T) {
	for _, zone := range []string{"Mars/Olympus", "", "Local", "not a zone"} {
		_, err := ToLocal(time.Now(), zone)
		if !errors.Is(err, ErrInvalidZone) {
			t.Errorf("ToLocal(%q) err = %v, want ErrInvalidZone", zone, err)
		}
	}
}

func TestToLocalOrDefault(t *testing.T) {
	ts := time.Unix(1700000000, 0).UTC()
	got, used := ToLocalOrDefault(ts, "Mars/Olympus")
	if used != FallbackZone || got != "2023-11-14:23-13" {
		t.Errorf("fallback = (%q, %q)", got, used)
	}
	got, used = ToLocalOrDefault(ts, "Asia/Tokyo")
	if used != "Asia/Tokyo" || got != "2023-11-15:07-13" {
		t.Errorf("tokyo = (%q, %q)", got, used)
	}
}

func TestParseStart(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Time
		wantErr bool
	}{
		{"1700000000", time.Unix(1700000000, 0).UTC(), false},
		{" 1700000000 ", time.Unix(1700000000, 0).UTC(), false},
		{"2023-11-14:22-13", time.Date(2023, 11, 14, 22, 13, 0, 0, time.UTC), false},
		{"", time.Time{}, true},
		{"yesterday", time.Time{}, true},
		{"2023-11-14 22:13", time.Time{}, true},
	}
	for _, tt := range tests {
		got, err := ParseStart(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseStart(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && !got.Equal(tt.want) {
			t.Errorf("ParseStart(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
