package httpapi

import (
	"fmt"
	"time"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/service"
)

const dateLayout = "2006-01-02"

type createAvailabilityRequest struct {
	DayOfWeek *int    `json:"day_of_week" validate:"required,min=0,max=6"`
	StartTime *string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime   *string `json:"end_time" validate:"required,datetime=15:04"`
	IsActive  *bool   `json:"is_active"`
}

type updateAvailabilityRequest struct {
	DayOfWeek *int    `json:"day_of_week" validate:"omitempty,min=0,max=6"`
	StartTime *string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime   *string `json:"end_time" validate:"omitempty,datetime=15:04"`
	IsActive  *bool   `json:"is_active"`
}

type createSlotRequest struct {
	AvailabilityID int64  `json:"availability_id" validate:"required,gt=0"`
	Date           string `json:"date" validate:"required,datetime=2006-01-02"`
	StartTime      string `json:"start_time" validate:"required,datetime=15:04"`
	EndTime        string `json:"end_time" validate:"required,datetime=15:04"`
	Capacity       int    `json:"capacity" validate:"omitempty,min=1,max=100"`
}

type updateSlotRequest struct {
	StartTime *string `json:"start_time" validate:"omitempty,datetime=15:04"`
	EndTime   *string `json:"end_time" validate:"omitempty,datetime=15:04"`
	Capacity  *int    `json:"capacity" validate:"omitempty,min=1,max=100"`
}

type bookRequest struct {
	SlotID int64 `json:"slot_id" validate:"required,gt=0"`
}

type availableSlotsQuery struct {
	DoctorID string `query:"doctor_id" validate:"omitempty,max=128"`
	From     string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To       string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

type doctorScheduleQuery struct {
	From string `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To   string `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

type weekImageQuery struct {
	Week string `query:"week" validate:"omitempty,datetime=2006-01-02"`
}

type generateRequest struct {
	WeekStart string `json:"week_start" validate:"required,datetime=2006-01-02"`
}

type purgeRequest struct {
	Now string `json:"now" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
}

func toAvailabilityInput(dayOfWeek *int, start, end *string, isActive *bool) (service.AvailabilityInput, error) {
	in := service.AvailabilityInput{DayOfWeek: dayOfWeek, IsActive: isActive}
	if start != nil {
		t, err := model.ParseClockTime(*start)
		if err != nil {
			return in, err
		}
		in.StartTime = &t
	}
	if end != nil {
		t, err := model.ParseClockTime(*end)
		if err != nil {
			return in, err
		}
		in.EndTime = &t
	}
	return in, nil
}

func (r createSlotRequest) toInput() (service.SlotInput, error) {
	in := service.SlotInput{AvailabilityID: r.AvailabilityID, Capacity: r.Capacity}

	date, err := parseDate(r.Date)
	if err != nil {
		return in, err
	}
	in.Date = *date

	if in.StartTime, err = model.ParseClockTime(r.StartTime); err != nil {
		return in, err
	}
	if in.EndTime, err = model.ParseClockTime(r.EndTime); err != nil {
		return in, err
	}
	return in, nil
}

func (r updateSlotRequest) toUpdate() (service.SlotUpdate, error) {
	in := service.SlotUpdate{Capacity: r.Capacity}
	if r.StartTime != nil {
		t, err := model.ParseClockTime(*r.StartTime)
		if err != nil {
			return in, err
		}
		in.StartTime = &t
	}
	if r.EndTime != nil {
		t, err := model.ParseClockTime(*r.EndTime)
		if err != nil {
			return in, err
		}
		in.EndTime = &t
	}
	return in, nil
}

// parseDate returns nil for an empty string.
func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", model.ErrValidation, s)
	}
	return &t, nil
}
