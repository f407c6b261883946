package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

type SlotRepository struct {
	s *Store
}

func (r *SlotRepository) CreateIfAbsent(ctx context.Context, slot *model.ScheduleSlot) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	if r.overlaps(slot.DoctorID, slot.Date, slot.StartTime, slot.EndTime, 0) {
		return false, nil
	}

	slot.ID = r.s.newID()
	slot.BookedCount = 0
	slot.CreatedAt = time.Now()
	stored := copySlot(slot)
	r.s.slots[slot.ID] = stored
	return true, nil
}

func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.ScheduleSlot, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	slot, ok := r.s.slots[id]
	if !ok {
		return nil, nil
	}
	return copySlot(slot), nil
}

func (r *SlotRepository) ListAvailable(ctx context.Context, filter model.SlotFilter) ([]*model.ScheduleSlot, error) {
	return r.filter(ctx, func(slot *model.ScheduleSlot) bool {
		if !slot.StartsAt.After(filter.Now) || slot.IsFull() || slot.IsCancelled() {
			return false
		}
		if filter.DoctorID != "" && slot.DoctorID != filter.DoctorID {
			return false
		}
		day := dateOnly(slot.Date)
		if filter.From != nil && day.Before(dateOnly(*filter.From)) {
			return false
		}
		if filter.To != nil && day.After(dateOnly(*filter.To)) {
			return false
		}
		return true
	})
}

func (r *SlotRepository) ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]*model.ScheduleSlot, error) {
	return r.filter(ctx, func(slot *model.ScheduleSlot) bool {
		return slot.DoctorID == doctorID && !slot.StartsAt.Before(from) && slot.StartsAt.Before(to)
	})
}

func (r *SlotRepository) Reserve(ctx context.Context, slotID int64) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	slot, ok := r.s.slots[slotID]
	if !ok || slot.BookedCount >= slot.Capacity || slot.IsCancelled() {
		return false, nil
	}
	slot.BookedCount++
	return true, nil
}

func (r *SlotRepository) Release(ctx context.Context, slotID int64) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	slot, ok := r.s.slots[slotID]
	if !ok || slot.BookedCount <= 0 {
		return false, nil
	}
	slot.BookedCount--
	return true, nil
}

func (r *SlotRepository) ReleaseSeats(ctx context.Context, slotID int64, n int) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	if n == 0 {
		return true, nil
	}
	slot, ok := r.s.slots[slotID]
	if !ok || slot.BookedCount < n {
		return false, nil
	}
	slot.BookedCount -= n
	return true, nil
}

func (r *SlotRepository) HasOverlap(ctx context.Context, doctorID string, date time.Time, start, end model.ClockTime, excludeID int64) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	return r.overlaps(doctorID, date, start, end, excludeID), nil
}

func (r *SlotRepository) Update(ctx context.Context, slot *model.ScheduleSlot) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	stored, ok := r.s.slots[slot.ID]
	if !ok || stored.IsCancelled() || stored.BookedCount > slot.Capacity {
		return false, nil
	}
	moved := stored.StartTime != slot.StartTime || stored.EndTime != slot.EndTime
	if moved && stored.BookedCount > 0 {
		return false, nil
	}
	for _, other := range r.s.slots {
		if other.ID != slot.ID && other.DoctorID == stored.DoctorID &&
			sameDay(other.Date, stored.Date) && other.StartTime == slot.StartTime {
			return false, fmt.Errorf("update slot: %w", model.ErrSlotOverlap)
		}
	}

	stored.StartTime = slot.StartTime
	stored.EndTime = slot.EndTime
	stored.StartsAt = slot.StartsAt
	stored.EndsAt = slot.EndsAt
	stored.Capacity = slot.Capacity
	slot.BookedCount = stored.BookedCount
	return true, nil
}

func (r *SlotRepository) MarkCancelled(ctx context.Context, slotID int64, at time.Time) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	slot, ok := r.s.slots[slotID]
	if !ok || slot.IsCancelled() {
		return false, nil
	}
	slot.CancelledAt = &at
	return true, nil
}

func (r *SlotRepository) Restore(ctx context.Context, slotID int64) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	slot, ok := r.s.slots[slotID]
	if !ok || !slot.IsCancelled() {
		return false, nil
	}
	slot.CancelledAt = nil
	return true, nil
}

// overlaps expects the store to be held.
func (r *SlotRepository) overlaps(doctorID string, date time.Time, start, end model.ClockTime, excludeID int64) bool {
	for _, existing := range r.s.slots {
		if existing.ID != excludeID &&
			existing.DoctorID == doctorID &&
			sameDay(existing.Date, date) &&
			existing.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (r *SlotRepository) ListExpiredUnbooked(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	expired, err := r.filter(ctx, func(slot *model.ScheduleSlot) bool {
		return slot.EndsAt.Before(now) && slot.BookedCount == 0
	})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(expired))
	for _, slot := range expired {
		if limit > 0 && len(ids) == limit {
			break
		}
		ids = append(ids, slot.ID)
	}
	return ids, nil
}

func (r *SlotRepository) DeleteExpiredUnbooked(ctx context.Context, slotID int64, now time.Time) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	slot, ok := r.s.slots[slotID]
	if !ok || !slot.EndsAt.Before(now) || slot.BookedCount != 0 {
		return false, nil
	}
	for _, v := range r.s.visits {
		if v.SlotID == slotID && v.IsActive() {
			return false, nil
		}
	}

	delete(r.s.slots, slotID)
	// ON DELETE SET NULL
	for _, v := range r.s.visits {
		if v.SlotID == slotID {
			v.SlotID = 0
		}
	}
	return true, nil
}

func (r *SlotRepository) filter(ctx context.Context, keep func(*model.ScheduleSlot) bool) ([]*model.ScheduleSlot, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.ScheduleSlot
	for _, slot := range r.s.slots {
		if keep(slot) {
			out = append(out, copySlot(slot))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartsAt.Equal(out[j].StartsAt) {
			return out[i].StartsAt.Before(out[j].StartsAt)
		}
		return out[i].DoctorID < out[j].DoctorID
	})
	return out, nil
}

func copySlot(slot *model.ScheduleSlot) *model.ScheduleSlot {
	out := *slot
	if slot.AvailabilityID != nil {
		id := *slot.AvailabilityID
		out.AvailabilityID = &id
	}
	if slot.CancelledAt != nil {
		at := *slot.CancelledAt
		out.CancelledAt = &at
	}
	return &out
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func sameDay(a, b time.Time) bool {
	return dateOnly(a).Equal(dateOnly(b))
}
