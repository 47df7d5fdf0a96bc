// Package capability decides whether a provider stream supports catch-up
// playback, and for how many days back, from the stream's metadata bag.
//
// Providers describe archive support in several dialects (Xtream's
// tv_archive flags, M3U catchup attributes, a bare timeshift count). Each
// dialect is one rule; rules are tried in order and the first that
// recognises the metadata wins.
package capability

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DefaultDays is the retention assumed when a provider flags catch-up
// support but gives no usable day count.
const DefaultDays = 7

// Metadata is a stream's loosely typed property bag, as decoded from JSON.
type Metadata map[string]any

// rule reports ok=false when it does not recognise the metadata.
type rule struct {
	name  string
	match func(Metadata) (days int, ok bool)
}

var rules = []rule{
	{"tv_archive", nativeArchive},
	{"catchup-type", typedCatchup},
	{"catchup", appendCatchup},
	{"timeshift", genericTimeshift},
}

// Detect returns whether meta advertises catch-up and the retention in days.
// It never fails: unrecognised or malformed metadata yields (false, 0).
func Detect(meta Metadata) (bool, int) {
	_, ok, days := DetectRule(meta)
	return ok, days
}

// DetectRule is Detect plus the name of the rule that matched, for logging.
func DetectRule(meta Metadata) (name string, ok bool, days int) {
	if len(meta) == 0 {
		return "", false, 0
	}
	for _, r := range rules {
		if d, matched := r.match(meta); matched {
			if d < 0 {
				d = 0
			}
			return r.name, true, d
		}
	}
	return "", false, 0
}

func nativeArchive(m Metadata) (int, bool) {
	if !truthy(m["tv_archive"]) {
		return 0, false
	}
	days, _ := toInt(m["tv_archive_duration"])
	return days, true
}

var archiveTypes = map[string]bool{
	"default":       true,
	"append":        true,
	"shift":         true,
	"flussonic":     true,
	"flussonic-hls": true,
	"flussonic-ts":  true,
	"fs":            true,
	"xc":            true,
}

func typedCatchup(m Metadata) (int, bool) {
	v, ok := lookup(m, "catchup-type", "catchup_type")
	if !ok || !archiveTypes[strings.ToLower(asString(v))] {
		return 0, false
	}
	raw, present := lookup(m, "catchup-days", "catchup_days")
	if !present {
		return 0, true
	}
	if days, ok := toInt(raw); ok {
		return days, true
	}
	return DefaultDays, true
}

var appendStyles = map[string]bool{
	"append":    true,
	"default":   true,
	"shift":     true,
	"xc":        true,
	"flussonic": true,
}

func appendCatchup(m Metadata) (int, bool) {
	v, ok := m["catchup"]
	if !ok || !appendStyles[strings.ToLower(asString(v))] {
		return 0, false
	}
	if raw, present := lookup(m, "catchup-days", "catchup_days"); present {
		if days, ok := toInt(raw); ok {
			return days, true
		}
	}
	return DefaultDays, true
}

func genericTimeshift(m Metadata) (int, bool) {
	v, ok := m["timeshift"]
	if !ok {
		return 0, false
	}
	return toInt(v)
}

func lookup(m Metadata, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func asString(v any) string {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case nil:
		return ""
	case json.Number:
		return x.String()
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	}
	return ""
}

func truthy(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case nil:
		return false
	}
	s := strings.ToLower(asString(v))
	if s == "true" || s == "yes" {
		return true
	}
	n, ok := toInt(v)
	return ok && n > 0
}

// toInt accepts integers, integral floats and numeric strings ("7", "7.0").
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0, false
		}
		return int(x), true
	case bool, nil:
		return 0, false
	}
	s := asString(v)
	if s == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return int(f), true
	}
	return 0, false
}

