// Package xtime extends time.Duration parsing and formatting with calendar
// units, so that retention periods can be written as e.g. "30d" or "1M2w".
package xtime

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

var calendarUnits = map[string]time.Duration{
	"d": Day, "D": Day,
	"w": Week, "W": Week,
	"M": Month,
	"y": Year, "Y": Year,
}

// ParseDuration parses a duration string such as "10d", "-1.5w" or "3Y4M5d".
// In addition to the units accepted by time.ParseDuration, it accepts "d"
// (day), "w" (week), "M" (30 days) and "Y" (365 days). Units can be mixed, e.g.
// "1d12h".
func ParseDuration(s string) (time.Duration, error) {
	orig := s
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+")
	if s == "" {
		return 0, fmt.Errorf("invalid duration %q", orig)
	}
	if s == "0" {
		return 0, nil
	}

	var total time.Duration
	for s != "" {
		i := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsDigit(r) && r != '.' })
		switch {
		case i == 0:
			return 0, fmt.Errorf("invalid duration %q", orig)
		case i < 0:
			i = len(s)
		}
		num := s[:i]
		s = s[i:]

		j := strings.IndexFunc(s, func(r rune) bool { return unicode.IsDigit(r) || r == '.' })
		if j < 0 {
			j = len(s)
		}
		unit := s[:j]
		s = s[j:]

		if mult, ok := calendarUnits[unit]; ok {
			n, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid duration %q: %w", orig, err)
			}
			total += time.Duration(n * float64(mult))
			continue
		}

		d, err := time.ParseDuration(num + unit)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q: %w", orig, err)
		}
		total += d
	}

	if neg {
		total = -total
	}

	return total, nil
}

// FormatDuration formats a duration using the largest units first, e.g.
// "1Y2M", "-1w2d" or "3d4h". Parts smaller than round are omitted. The result
// can be parsed back with ParseDuration.
func FormatDuration(d, round time.Duration) string {
	if round > 0 {
		d = d.Round(round)
	}
	if d == 0 {
		return "0d"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}

	for _, u := range []struct {
		size time.Duration
		name string
	}{
		{Year, "Y"}, {Month, "M"}, {Week, "w"}, {Day, "d"},
		{time.Hour, "h"}, {time.Minute, "m"}, {time.Second, "s"},
		{time.Millisecond, "ms"}, {time.Microsecond, "µs"}, {time.Nanosecond, "ns"},
	} {
		if u.size < round {
			break
		}
		if n := d / u.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, u.name)
			d -= n * u.size
		}
	}

	return b.String()
}
