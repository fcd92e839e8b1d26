// Package slots parses the booking site's slot text ("11 AM - 12 PM",
// "6 - 7 PM") into concrete instants and computes reservation trigger
// times from them.
package slots

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSlot is returned for slot text that cannot be resolved to a
// concrete start instant.
var ErrInvalidSlot = errors.New("invalid slot")

// Slot is a bookable time window on a specific date. Text is kept verbatim
// because the provider matches slots by their display string.
type Slot struct {
	Text  string
	Start time.Time
	End   time.Time
}

// TriggerAt is the instant the provider opens this slot for reservation:
// the slot start minus the advance window.
func (s Slot) TriggerAt(advance time.Duration) time.Time {
	return s.Start.Add(-advance)
}

var slotRe = regexp.MustCompile(`(?i)^\s*(\d{1,2})(?::(\d{2}))?\s*(AM|PM)?\s*-\s*(\d{1,2})(?::(\d{2}))?\s*(AM|PM)?\s*$`)

// Parse resolves slot text like "11 AM - 12 PM" or "6 - 7 PM" to a Slot on
// the given date in loc. At least one AM/PM designator is required; a side
// without one inherits the other side's, rolled back twelve hours when the
// inherited designator would put the start after the end (so "11 - 12 PM"
// is 11:00, not 23:00). Text with no designator at all is rejected rather
// than assumed to be AM.
func Parse(text string, date time.Time, loc *time.Location) (Slot, error) {
	m := slotRe.FindStringSubmatch(text)
	if m == nil {
		return Slot{}, fmt.Errorf("%w: %q", ErrInvalidSlot, text)
	}

	startDes := strings.ToUpper(m[3])
	endDes := strings.ToUpper(m[6])
	if startDes == "" && endDes == "" {
		return Slot{}, fmt.Errorf("%w: %q has no AM/PM designator", ErrInvalidSlot, text)
	}
	if startDes == "" {
		startDes = endDes
	}
	if endDes == "" {
		endDes = startDes
	}

	startHour, startMin, err := clockParts(m[1], m[2], startDes)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: %q: %v", ErrInvalidSlot, text, err)
	}
	endHour, endMin, err := clockParts(m[4], m[5], endDes)
	if err != nil {
		return Slot{}, fmt.Errorf("%w: %q: %v", ErrInvalidSlot, text, err)
	}

	// An inherited designator that makes the window run backwards means the
	// start is on the other side of noon ("11 - 12 PM" starts at 11 AM).
	if m[3] == "" && (startHour > endHour || (startHour == endHour && startMin >= endMin)) {
		startHour = (startHour + 12) % 24
	}

	y, mo, d := date.In(loc).Date()
	start := time.Date(y, mo, d, startHour, startMin, 0, 0, loc)
	end := time.Date(y, mo, d, endHour, endMin, 0, 0, loc)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}

	return Slot{Text: strings.TrimSpace(text), Start: start, End: end}, nil
}

func clockParts(hourStr, minStr, designator string) (hour, min int, err error) {
	hour, err = strconv.Atoi(hourStr)
	if err != nil || hour < 1 || hour > 12 {
		return 0, 0, fmt.Errorf("hour %q out of range", hourStr)
	}
	if minStr != "" {
		min, err = strconv.Atoi(minStr)
		if err != nil || min > 59 {
			return 0, 0, fmt.Errorf("minute %q out of range", minStr)
		}
	}
	hour = hour % 12
	if designator == "PM" {
		hour += 12
	}
	return hour, min, nil
}
