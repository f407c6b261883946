package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// MinutesPerDay is the exclusive upper bound of a ClockTime.
const MinutesPerDay = 24 * 60

// ClockTime is a wall-clock time of day stored as minutes since midnight.
type ClockTime int

// NewClockTime builds a ClockTime from hour and minute.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime parses "HH:MM" (24h).
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid time %q, expected HH:MM", ErrValidation, s)
	}
	return NewClockTime(t.Hour(), t.Minute()), nil
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

// Valid reports whether c falls inside a single day.
func (c ClockTime) Valid() bool {
	return c >= 0 && c < MinutesPerDay
}

// Add returns c shifted by d, truncated to whole minutes.
func (c ClockTime) Add(d time.Duration) ClockTime {
	return c + ClockTime(d/time.Minute)
}

// On places c on the calendar day of date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: time must be a string", ErrValidation)
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
