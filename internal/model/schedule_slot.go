package model

import "time"

// ScheduleSlot is a dated, capacity-bounded bookable unit generated from an Availability.
type ScheduleSlot struct {
	ID             int64      `json:"id"`
	DoctorID       string     `json:"doctor_id"`
	AvailabilityID *int64     `json:"availability_id"` // nil once the source availability is deleted
	Date           time.Time  `json:"date"`
	StartTime      ClockTime  `json:"start_time"`
	EndTime        ClockTime  `json:"end_time"`
	StartsAt       time.Time  `json:"starts_at"`
	EndsAt         time.Time  `json:"ends_at"`
	Capacity       int        `json:"capacity"`
	BookedCount    int        `json:"booked_count"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"` // set when the doctor cancels the slot
	CreatedAt      time.Time  `json:"created_at"`
}

// IsCancelled reports whether the doctor withdrew the slot.
func (s *ScheduleSlot) IsCancelled() bool {
	return s.CancelledAt != nil
}

// Overlaps reports whether [start, end) intersects the slot's window on the same day.
func (s *ScheduleSlot) Overlaps(start, end ClockTime) bool {
	return s.StartTime < end && start < s.EndTime
}

// IsFull reports whether every seat is taken.
func (s *ScheduleSlot) IsFull() bool {
	return s.BookedCount >= s.Capacity
}

// SeatsLeft returns the number of free seats.
func (s *ScheduleSlot) SeatsLeft() int {
	if s.IsFull() {
		return 0
	}
	return s.Capacity - s.BookedCount
}

// HasStarted reports whether the slot start is not in the future relative to now.
func (s *ScheduleSlot) HasStarted(now time.Time) bool {
	return !s.StartsAt.After(now)
}

// SlotFilter narrows listings of bookable slots. Zero values mean "no constraint".
type SlotFilter struct {
	DoctorID string
	From     *time.Time // inclusive date
	To       *time.Time // inclusive date
	Now      time.Time
}
