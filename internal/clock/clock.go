// Package clock parses and formats the duration and time-of-day strings
// that flow through every split record: net times (H:MM:SS or MM:SS),
// pass-clocks (HH:MM:SS[.fff]), and paces (MM:SS per km).
package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Time-shaped regexes, grounded on config/constants.py's TIME_RX/HM_RX/HMS_RX.
var timeRx = regexp.MustCompile(`\b\d{1,2}:\d{2}(?::\d{2}(?:\.\d{1,3})?)?\b`)

// LooksTime reports whether s contains any time-shaped substring.
func LooksTime(s string) bool {
	return s != "" && timeRx.MatchString(s)
}

// FirstTime returns the first time-shaped substring in s, or "".
func FirstTime(s string) string {
	return timeRx.FindString(s)
}

// AllTimes returns every time-shaped substring in s.
func AllTimes(s string) []string {
	return timeRx.FindAllString(s, -1)
}

// ParseDurationSeconds parses "H:MM:SS", "HH:MM:SS[.fff]" or "MM:SS[.fff]"
// into whole seconds, rounding fractional seconds. Returns ok=false if t
// does not parse.
func ParseDurationSeconds(t string) (sec int, ok bool) {
	t = strings.TrimSpace(t)
	if t == "" {
		return 0, false
	}
	parts := strings.Split(t, ":")
	switch len(parts) {
	case 3:
		h, err1 := strconv.Atoi(parts[0])
		m, err2 := strconv.Atoi(parts[1])
		s, err3 := strconv.ParseFloat(parts[2], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			return 0, false
		}
		return int(float64(h)*3600+float64(m)*60+s + 0.5), true
	case 2:
		m, err1 := strconv.Atoi(parts[0])
		s, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 != nil || err2 != nil {
			return 0, false
		}
		return int(float64(m)*60+s + 0.5), true
	default:
		return 0, false
	}
}

// SecPerKM parses a pace string (MM:SS form) to seconds-per-km.
func SecPerKM(pace string) (float64, bool) {
	sec, ok := ParseDurationSeconds(pace)
	if !ok {
		return 0, false
	}
	return float64(sec), true
}

// FormatDuration formats seconds as "H:MM:SS" when hours > 0, else "MM:SS".
func FormatDuration(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

// FormatHMS always formats seconds as "HH:MM:SS", used by the net-time
// backfill accumulator (§4.8) and the records view.
func FormatHMS(totalSeconds int) string {
	if totalSeconds < 0 {
		totalSeconds = 0
	}
	h := totalSeconds / 3600
	m := (totalSeconds % 3600) / 60
	s := totalSeconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ETAFromClock adds deltaSec seconds to a "HH:MM:SS" time-of-day and
// returns the resulting time-of-day, again as "HH:MM:SS".
//
// This deliberately does not carry a date: a race crossing midnight
// produces a wrapped value, exactly like the source's
// datetime.strptime(...).time() round-trip. Preserved intentionally —
// see the Open Questions resolution in SPEC_FULL.md.
func ETAFromClock(clock string, deltaSec int) (string, bool) {
	base, err := time.Parse("15:04:05", strings.TrimSpace(clock))
	if err != nil {
		return "", false
	}
	return base.Add(time.Duration(deltaSec) * time.Second).Format("15:04:05"), true
}

// ClockToSecondsOfDay parses a "HH:MM:SS[.fff]" wall-clock into seconds
// since midnight, truncating any fractional part. Used by the net-time
// clock-gap accumulator (§4.8), which only needs whole-second precision.
func ClockToSecondsOfDay(clock string) (int, bool) {
	t := FirstTime(clock)
	if t == "" {
		return 0, false
	}
	parts := strings.SplitN(t, ":", 3)
	if len(parts) != 3 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	secPart := parts[2]
	if dot := strings.IndexByte(secPart, '.'); dot >= 0 {
		secPart = secPart[:dot]
	}
	s, err3 := strconv.Atoi(secPart)
	if err1 != nil || err2 != nil || err3 != nil {
		return 0, false
	}
	return h*3600 + m*60 + s, true
}
