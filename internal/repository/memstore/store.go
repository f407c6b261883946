// Package memstore keeps availabilities, slots and visits in memory with the same
// contracts as the Postgres repositories. Transactions are serialised and rolled
// back from a snapshot on error.
package memstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

type txKey struct{}

type Store struct {
	mu sync.Mutex

	nextID         int64
	availabilities map[int64]*model.Availability
	slots          map[int64]*model.ScheduleSlot
	visits         map[int64]*model.Visit
}

func New() *Store {
	return &Store{
		availabilities: make(map[int64]*model.Availability),
		slots:          make(map[int64]*model.ScheduleSlot),
		visits:         make(map[int64]*model.Visit),
	}
}

func (s *Store) Availabilities() *AvailabilityRepository { return &AvailabilityRepository{s} }
func (s *Store) Slots() *SlotRepository                  { return &SlotRepository{s} }
func (s *Store) Visits() *VisitRepository                { return &VisitRepository{s} }

// WithinTx runs fn while holding the store. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}
	if err := checkCtx(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, s)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func (s *Store) inTx(ctx context.Context) bool {
	owner, _ := ctx.Value(txKey{}).(*Store)
	return owner == s
}

// enter locks the store for a single call unless ctx already holds it.
func (s *Store) enter(ctx context.Context) (func(), error) {
	if err := checkCtx(ctx); err != nil {
		return nil, err
	}
	if s.inTx(ctx) {
		return func() {}, nil
	}
	s.mu.Lock()
	return s.mu.Unlock, nil
}

func (s *Store) newID() int64 {
	s.nextID++
	return s.nextID
}

// checkCtx reports an expired or cancelled context as a transient store failure.
func checkCtx(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrTransientStore, err)
	}
	return nil
}

type snapshot struct {
	nextID         int64
	availabilities map[int64]model.Availability
	slots          map[int64]model.ScheduleSlot
	visits         map[int64]model.Visit
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		nextID:         s.nextID,
		availabilities: make(map[int64]model.Availability, len(s.availabilities)),
		slots:          make(map[int64]model.ScheduleSlot, len(s.slots)),
		visits:         make(map[int64]model.Visit, len(s.visits)),
	}
	for id, a := range s.availabilities {
		snap.availabilities[id] = *a
	}
	for id, slot := range s.slots {
		snap.slots[id] = *slot
	}
	for id, v := range s.visits {
		snap.visits[id] = *v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.nextID = snap.nextID
	s.availabilities = make(map[int64]*model.Availability, len(snap.availabilities))
	s.slots = make(map[int64]*model.ScheduleSlot, len(snap.slots))
	s.visits = make(map[int64]*model.Visit, len(snap.visits))
	for id, a := range snap.availabilities {
		s.availabilities[id] = &a
	}
	for id, slot := range snap.slots {
		s.slots[id] = &slot
	}
	for id, v := range snap.visits {
		s.visits[id] = &v
	}
}
