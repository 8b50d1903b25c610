package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Shift is one of the two 12-hour production windows.
type Shift int

const (
	ShiftDay   Shift = 1
	ShiftNight Shift = 2
)

// ShiftAt returns the shift whose window contains t. 07:00-19:00 is the day
// shift, everything else (crossing midnight) is the night shift.
func ShiftAt(t time.Time) Shift {
	hour := t.Hour()
	if hour >= 7 && hour < 19 {
		return ShiftDay
	}
	return ShiftNight
}

// ParseShift accepts "1" or "2".
func ParseShift(raw string) (Shift, error) {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid shift %q: %w", raw, err)
	}
	shift := Shift(value)
	if !shift.Valid() {
		return 0, fmt.Errorf("invalid shift %d: must be 1 or 2", value)
	}
	return shift, nil
}

func (s Shift) Valid() bool {
	return s == ShiftDay || s == ShiftNight
}

// Window returns the start and end time-of-day the portal expects for the shift.
func (s Shift) Window() (start, end string) {
	if s == ShiftDay {
		return "07:00:00", "19:00:00"
	}
	return "19:00:00", "07:00:00"
}

func (s Shift) String() string {
	return strconv.Itoa(int(s))
}
