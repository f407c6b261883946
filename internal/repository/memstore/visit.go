package memstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

type VisitRepository struct {
	s *Store
}

func (r *VisitRepository) Create(ctx context.Context, visit *model.Visit) error {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	if visit.IsActive() {
		for _, v := range r.s.visits {
			if v.IsActive() && v.StudentID == visit.StudentID && v.SlotID == visit.SlotID {
				return fmt.Errorf("create visit: %w", model.ErrDuplicateBooking)
			}
		}
	}

	now := time.Now()
	visit.ID = r.s.newID()
	visit.CreatedAt = now
	visit.UpdatedAt = now
	stored := *visit
	stored.Slot = nil
	r.s.visits[visit.ID] = &stored
	return nil
}

func (r *VisitRepository) GetByID(ctx context.Context, id int64) (*model.Visit, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	v, ok := r.s.visits[id]
	if !ok {
		return nil, nil
	}
	out := *v
	return &out, nil
}

func (r *VisitRepository) HasActive(ctx context.Context, studentID, slotID int64) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	for _, v := range r.s.visits {
		if v.IsActive() && v.StudentID == studentID && v.SlotID == slotID {
			return true, nil
		}
	}
	return false, nil
}

func (r *VisitRepository) TransitionStatus(ctx context.Context, id int64, from, to model.VisitStatus) (bool, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	v, ok := r.s.visits[id]
	if !ok || v.Status != from {
		return false, nil
	}
	v.Status = to
	v.UpdatedAt = time.Now()
	return true, nil
}

func (r *VisitRepository) CancelActiveBySlot(ctx context.Context, slotID int64) ([]*model.Visit, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.Visit
	now := time.Now()
	for _, v := range r.s.visits {
		if v.SlotID != slotID || v.Status != model.VisitStatusBooked {
			continue
		}
		v.Status = model.VisitStatusCancelled
		v.UpdatedAt = now
		c := *v
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *VisitRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.Visit, error) {
	unlock, err := r.s.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out []*model.Visit
	for _, v := range r.s.visits {
		if v.StudentID != studentID {
			continue
		}
		c := *v
		if slot, ok := r.s.slots[v.SlotID]; ok {
			c.Slot = copySlot(slot)
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].VisitDate.Equal(out[j].VisitDate) {
			return out[i].VisitDate.After(out[j].VisitDate)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}
