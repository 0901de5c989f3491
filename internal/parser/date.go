package parser

import (
	"strings"
	"time"
)

// dateFormat is one entry of the fallback list. pattern is the
// SimpleDateFormat-style notation the format is known by; layouts are the
// Go layouts that together accept what that pattern accepts.
type dateFormat struct {
	pattern string
	layouts []string
}

// RFC-822 variants come before ISO-8601.
var dateFormats = []dateFormat{
	{pattern: "EEE, dd MMM yy HH:mm:ss z", layouts: expandLayout("{wd}, {d} Jan {y} 15:04:05 {z}")},
	{pattern: "EEE, dd MMM yy HH:mm z", layouts: expandLayout("{wd}, {d} Jan {y} 15:04 {z}")},
	{pattern: "dd MMM yy HH:mm:ss z", layouts: expandLayout("{d} Jan {y} 15:04:05 {z}")},
	{pattern: "dd MMM yy HH:mm z", layouts: expandLayout("{d} Jan {y} 15:04 {z}")},
	{pattern: "yyyy-MM-dd'T'HH:mm:ssXXX", layouts: []string{
		"2006-01-02T15:04:05Z07:00",
		"2006-01-02T15:04:05MST",
	}},
}

// zoneOffsets holds the RFC-822 zone names plus the abbreviations feeds
// commonly use. time.Parse only knows the offset of UTC and of the local
// zone's own abbreviations; any other name parses at offset zero.
var zoneOffsets = map[string]int{
	"UTC": 0,
	"GMT": 0,
	"EST": -5 * 3600,
	"EDT": -4 * 3600,
	"CST": -6 * 3600,
	"CDT": -5 * 3600,
	"MST": -7 * 3600,
	"MDT": -6 * 3600,
	"PST": -8 * 3600,
	"PDT": -7 * 3600,

	"AKST": -9 * 3600,
	"AKDT": -8 * 3600,
	"HST":  -10 * 3600,
	"WET":  0,
	"WEST": 1 * 3600,
	"BST":  1 * 3600,
	"CET":  1 * 3600,
	"CEST": 2 * 3600,
	"EET":  2 * 3600,
	"EEST": 3 * 3600,
	"MSK":  3 * 3600,
	"HKT":  8 * 3600,
	"SGT":  8 * 3600,
	"AWST": 8 * 3600,
	"JST":  9 * 3600,
	"KST":  9 * 3600,
	"ACST": 9*3600 + 1800,
	"AEST": 10 * 3600,
	"AEDT": 11 * 3600,
	"NZST": 12 * 3600,
	"NZDT": 13 * 3600,
}

func expandLayout(template string) []string {
	var out []string
	for _, wd := range []string{"Mon", "Monday"} {
		if !strings.Contains(template, "{wd}") && wd != "Mon" {
			continue
		}
		for _, y := range []string{"2006", "06"} {
			for _, z := range []string{"MST", "-0700", "-07:00"} {
				r := strings.NewReplacer("{wd}", wd, "{d}", "2", "{y}", y, "{z}", z)
				out = append(out, r.Replace(template))
			}
		}
	}
	return out
}

// normalizeDate rewrites the nonstandard zone tokens some feeds emit.
// "UT" is replaced before "Z"; a literal "UTC" turns into "UTCC" on the
// way and is collapsed back.
func normalizeDate(raw string) string {
	s := strings.ReplaceAll(raw, "UT", "UTC")
	s = strings.ReplaceAll(s, "Z", "UTC")
	s = strings.ReplaceAll(s, "UTCC", "UTC")
	return strings.TrimSpace(s)
}

// ParseDate parses a feed timestamp, trying each supported format in order.
func ParseDate(raw string) (time.Time, error) {
	s := normalizeDate(raw)
	for _, f := range dateFormats {
		for _, layout := range f.layouts {
			t, err := time.Parse(layout, s)
			if err != nil {
				continue
			}
			t, ok := fixZone(t)
			if !ok {
				continue
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, &DateFormatError{Raw: raw}
}

// fixZone applies the offset of a known zone abbreviation. It reports false
// for an abbreviation time.Parse could not resolve, which it records at
// offset zero.
func fixZone(t time.Time) (time.Time, bool) {
	name, offset := t.Zone()
	known, ok := zoneOffsets[name]
	if !ok {
		return t, offset != 0 || !isAbbreviation(name)
	}
	if offset == known {
		return t, true
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(),
		time.FixedZone(name, known)), true
}

// isAbbreviation reports whether name is alphabetic, as opposed to the
// numeric names like "+00" some tz database zones use.
func isAbbreviation(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
