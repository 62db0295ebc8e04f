package ingest

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/JakeFAU/catalog-crawler/internal/catalog"
)

// DefaultCenturyBase widens the origin's two digit years. Years are read as
// 2000-2099 with no rollover.
const DefaultCenturyBase = 2000

const (
	rangeSeparator   = "-"
	dateSeparator    = "/"
	weekdayGap       = "."
	maxWeekdaySlots  = 7
	hoursFieldLength = 4
)

// ScheduleParser converts the origin's schedule strings into typed values.
type ScheduleParser struct {
	CenturyBase int
}

// WidenYear turns a two digit year into a full year.
func (p ScheduleParser) WidenYear(twoDigit int) int {
	return p.CenturyBase + twoDigit
}

// ParsePeriod reads a "dd/mm/yy - dd/mm/yy" date range.
func (p ScheduleParser) ParsePeriod(raw string) (time.Time, time.Time, error) {
	parts := strings.Split(raw, rangeSeparator)
	if len(parts) != 2 {
		return time.Time{}, time.Time{}, fmt.Errorf("period %q: want start-end", raw)
	}
	start, err := p.ParseDate(parts[0])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("period %q start: %w", raw, err)
	}
	end, err := p.ParseDate(parts[1])
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("period %q end: %w", raw, err)
	}
	return start, end, nil
}

// ParseDate reads "dd/mm/yy" into a UTC midnight.
func (p ScheduleParser) ParseDate(raw string) (time.Time, error) {
	parts := strings.Split(strings.TrimSpace(raw), dateSeparator)
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("date %q: want dd/mm/yy", raw)
	}
	var nums [3]int
	for i, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return time.Time{}, fmt.Errorf("date %q: %w", raw, err)
		}
		nums[i] = n
	}
	day, month, year := nums[0], nums[1], p.WidenYear(nums[2])
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month || t.Year() != year {
		return time.Time{}, fmt.Errorf("date %q: out of range", raw)
	}
	return t, nil
}

// ParseHours reads an "HHMM-HHMM" time range.
func ParseHours(raw string) (catalog.TimeOfDay, catalog.TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(raw), rangeSeparator)
	if len(parts) != 2 {
		return catalog.TimeOfDay{}, catalog.TimeOfDay{}, fmt.Errorf("hours %q: want HHMM-HHMM", raw)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return catalog.TimeOfDay{}, catalog.TimeOfDay{}, fmt.Errorf("hours %q: %w", raw, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return catalog.TimeOfDay{}, catalog.TimeOfDay{}, fmt.Errorf("hours %q: %w", raw, err)
	}
	return start, end, nil
}

func parseClock(raw string) (catalog.TimeOfDay, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) != hoursFieldLength {
		return catalog.TimeOfDay{}, fmt.Errorf("clock %q: want HHMM", raw)
	}
	hour, err := strconv.Atoi(raw[:2])
	if err != nil {
		return catalog.TimeOfDay{}, fmt.Errorf("clock %q: %w", raw, err)
	}
	minute, err := strconv.Atoi(raw[2:])
	if err != nil {
		return catalog.TimeOfDay{}, fmt.Errorf("clock %q: %w", raw, err)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return catalog.TimeOfDay{}, fmt.Errorf("clock %q: out of range", raw)
	}
	return catalog.TimeOfDay{Hour: hour, Minute: minute}, nil
}

// ParseWeekdays returns the weekday numbers (1-7) marked in a slot string.
// Slots are whitespace separated (". M . J . .") or, when the string has no
// whitespace, one character each ("LMIJV."). A "." marks an empty slot.
func ParseWeekdays(raw string) ([]int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	var slots []string
	if strings.IndexFunc(raw, unicode.IsSpace) >= 0 {
		slots = strings.Fields(raw)
	} else {
		for _, r := range raw {
			slots = append(slots, string(r))
		}
	}
	if len(slots) > maxWeekdaySlots {
		return nil, fmt.Errorf("weekdays %q: %d slots, want at most %d", raw, len(slots), maxWeekdaySlots)
	}
	var days []int
	for i, slot := range slots {
		if slot != weekdayGap {
			days = append(days, i+1)
		}
	}
	return days, nil
}

// ParseSeats reads a seat count. Unlike credits, seats must be numeric.
func ParseSeats(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("seats %q: %w", raw, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("seats %q: negative", raw)
	}
	return n, nil
}

// ParseCredits reads a credit count, returning 0 for anything unparsable.
func ParseCredits(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
