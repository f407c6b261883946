package model

import (
	"fmt"
	"time"
)

// Availability is a doctor's recurring weekly window for appointments.
type Availability struct {
	ID        int64     `json:"id"`
	DoctorID  string    `json:"doctor_id"`
	DayOfWeek int       `json:"day_of_week"` // 0 = Sunday, 6 = Saturday
	StartTime ClockTime `json:"start_time"`
	EndTime   ClockTime `json:"end_time"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Weekday returns the day of week as time.Weekday.
func (a *Availability) Weekday() time.Weekday {
	return time.Weekday(a.DayOfWeek)
}

// Duration is the length of the window.
func (a *Availability) Duration() time.Duration {
	return time.Duration(a.EndTime-a.StartTime) * time.Minute
}

// Validate checks the window shape. Overlap with sibling windows is checked by the service.
func (a *Availability) Validate() error {
	if a.DoctorID == "" {
		return fmt.Errorf("%w: doctor_id is required", ErrValidation)
	}
	if a.DayOfWeek < 0 || a.DayOfWeek > 6 {
		return fmt.Errorf("%w: day_of_week must be between 0 and 6", ErrValidation)
	}
	if !a.StartTime.Valid() || a.EndTime <= 0 || a.EndTime > MinutesPerDay {
		return fmt.Errorf("%w: time of day out of range", ErrValidation)
	}
	if a.StartTime >= a.EndTime {
		return fmt.Errorf("%w: start_time must be before end_time", ErrValidation)
	}
	return nil
}

// Overlaps reports whether two windows of the same doctor collide on the same day.
func (a *Availability) Overlaps(other *Availability) bool {
	if a.DoctorID != other.DoctorID || a.DayOfWeek != other.DayOfWeek {
		return false
	}
	return a.StartTime < other.EndTime && other.StartTime < a.EndTime
}
