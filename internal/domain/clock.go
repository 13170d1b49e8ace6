package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ClockTime is a wall-clock time of day in minutes since midnight.
type ClockTime int

// NewClockTime builds a ClockTime from hours and minutes.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime accepts "19:30" or "19:30:00".
func ParseClockTime(s string) (ClockTime, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewClockTime(t.Hour(), t.Minute()), nil
		}
	}
	return 0, fmt.Errorf("%w: bad time %q", ErrInvalidEvent, s)
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// On returns the instant this time falls on the given calendar date, in London.
func (c ClockTime) On(date time.Time) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, London)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
