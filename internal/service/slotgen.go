package service

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

// SlotSettings controls how availability windows are cut into slots.
type SlotSettings struct {
	Duration time.Duration
	Capacity int
	Location *time.Location
}

func DefaultSlotSettings() SlotSettings {
	return SlotSettings{
		Duration: 30 * time.Minute,
		Capacity: 1,
		Location: time.UTC,
	}
}

func (s SlotSettings) Validate() error {
	if s.Duration < time.Minute || s.Duration%time.Minute != 0 {
		return fmt.Errorf("%w: slot duration must be a positive whole number of minutes", model.ErrValidation)
	}
	if s.Capacity < 1 {
		return fmt.Errorf("%w: slot capacity must be positive", model.ErrValidation)
	}
	if s.Location == nil {
		return fmt.Errorf("%w: slot location is required", model.ErrValidation)
	}
	return nil
}

// WeekStart returns the Monday of the calendar week containing t, as a UTC date.
func WeekStart(t time.Time) time.Time {
	date := DateOf(t)
	offset := (int(date.Weekday()) + 6) % 7
	return date.AddDate(0, 0, -offset)
}

// DateOf drops the clock part of t, keeping its calendar day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ExpandAvailability cuts one weekly window into slots dated within the week of weekStart.
// A trailing remainder shorter than the slot duration is dropped.
func ExpandAvailability(a *model.Availability, weekStart time.Time, settings SlotSettings) ([]*model.ScheduleSlot, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}

	monday := WeekStart(weekStart)
	date := monday.AddDate(0, 0, (a.DayOfWeek+6)%7)
	step := model.ClockTime(settings.Duration / time.Minute)

	var availabilityID *int64
	if a.ID != 0 {
		id := a.ID
		availabilityID = &id
	}

	var slots []*model.ScheduleSlot
	for start := a.StartTime; start+step <= a.EndTime; start += step {
		end := start + step
		startsAt, endsAt, ok := SlotBounds(date, start, end, settings.Location)
		if !ok {
			// Начало попадает в переход на летнее время
			continue
		}
		slots = append(slots, &model.ScheduleSlot{
			DoctorID:       a.DoctorID,
			AvailabilityID: availabilityID,
			Date:           date,
			StartTime:      start,
			EndTime:        end,
			StartsAt:       startsAt,
			EndsAt:         endsAt,
			Capacity:       settings.Capacity,
		})
	}

	return slots, nil
}

// SlotBounds places the wall-clock window [start, end) on date in loc. The end is
// start plus the window length, so it never precedes the start across a DST change.
// ok is false when start does not exist on that date (a spring-forward gap).
func SlotBounds(date time.Time, start, end model.ClockTime, loc *time.Location) (startsAt, endsAt time.Time, ok bool) {
	startsAt = start.On(date, loc)
	if startsAt.Hour() != start.Hour() || startsAt.Minute() != start.Minute() {
		return time.Time{}, time.Time{}, false
	}
	return startsAt, startsAt.Add(time.Duration(end-start) * time.Minute), true
}
