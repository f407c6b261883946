package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

type AvailabilityRepository struct {
	s *Store
}

func (r *AvailabilityRepository) Create(ctx context.Context, a *model.Availability) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	now := time.Now()
	a.ID = r.s.newID()
	a.CreatedAt = now
	a.UpdatedAt = now
	stored := *a
	r.s.availabilities[a.ID] = &stored
	return nil
}

func (r *AvailabilityRepository) GetByID(ctx context.Context, id int64) (*model.Availability, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	a, ok := r.s.availabilities[id]
	if !ok {
		return nil, nil
	}
	out := *a
	return &out, nil
}

func (r *AvailabilityRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*model.Availability, error) {
	return r.filter(ctx, func(a *model.Availability) bool { return a.DoctorID == doctorID })
}

func (r *AvailabilityRepository) ListActive(ctx context.Context) ([]*model.Availability, error) {
	return r.filter(ctx, func(a *model.Availability) bool { return a.IsActive })
}

func (r *AvailabilityRepository) ListActiveOnDay(ctx context.Context, doctorID string, dayOfWeek int) ([]*model.Availability, error) {
	return r.filter(ctx, func(a *model.Availability) bool {
		return a.IsActive && a.DoctorID == doctorID && a.DayOfWeek == dayOfWeek
	})
}

func (r *AvailabilityRepository) Update(ctx context.Context, a *model.Availability) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	stored, ok := r.s.availabilities[a.ID]
	if !ok {
		return fmt.Errorf("update availability: %w", model.ErrNotFound)
	}
	stored.DayOfWeek = a.DayOfWeek
	stored.StartTime = a.StartTime
	stored.EndTime = a.EndTime
	stored.IsActive = a.IsActive
	stored.UpdatedAt = time.Now()
	a.UpdatedAt = stored.UpdatedAt
	return nil
}

// Delete keeps generated slots and detaches them from the availability.
func (r *AvailabilityRepository) Delete(ctx context.Context, id int64) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := r.s.availabilities[id]; !ok {
		return fmt.Errorf("delete availability: %w", model.ErrNotFound)
	}
	delete(r.s.availabilities, id)
	for _, slot := range r.s.slots {
		if slot.AvailabilityID != nil && *slot.AvailabilityID == id {
			slot.AvailabilityID = nil
		}
	}
	return nil
}

// LockDoctor is a no-op: transactions already hold the whole store.
func (r *AvailabilityRepository) LockDoctor(ctx context.Context, _ string) error {
	return checkCtx(ctx)
}

func (r *AvailabilityRepository) filter(ctx context.Context, keep func(*model.Availability) bool) ([]*model.Availability, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.Availability
	for _, a := range r.s.availabilities {
		if keep(a) {
			c := *a
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DoctorID != out[j].DoctorID {
			return out[i].DoctorID < out[j].DoctorID
		}
		if out[i].DayOfWeek != out[j].DayOfWeek {
			return out[i].DayOfWeek < out[j].DayOfWeek
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}
