package service

import (
	"context"
	"time"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

// DefaultStoreTimeout bounds every store call made by the services.
const DefaultStoreTimeout = 5 * time.Second

// Transactor runs fn inside a single store transaction carried by ctx.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type AvailabilityStore interface {
	Create(ctx context.Context, a *model.Availability) error
	GetByID(ctx context.Context, id int64) (*model.Availability, error)
	ListByDoctor(ctx context.Context, doctorID string) ([]*model.Availability, error)
	ListActive(ctx context.Context) ([]*model.Availability, error)
	ListActiveOnDay(ctx context.Context, doctorID string, dayOfWeek int) ([]*model.Availability, error)
	Update(ctx context.Context, a *model.Availability) error
	Delete(ctx context.Context, id int64) error
	LockDoctor(ctx context.Context, doctorID string) error
}

type SlotStore interface {
	CreateIfAbsent(ctx context.Context, slot *model.ScheduleSlot) (bool, error)
	GetByID(ctx context.Context, id int64) (*model.ScheduleSlot, error)
	ListAvailable(ctx context.Context, filter model.SlotFilter) ([]*model.ScheduleSlot, error)
	ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]*model.ScheduleSlot, error)
	Reserve(ctx context.Context, slotID int64) (bool, error)
	Release(ctx context.Context, slotID int64) (bool, error)
	ReleaseSeats(ctx context.Context, slotID int64, n int) (bool, error)
	HasOverlap(ctx context.Context, doctorID string, date time.Time, start, end model.ClockTime, excludeID int64) (bool, error)
	Update(ctx context.Context, slot *model.ScheduleSlot) (bool, error)
	MarkCancelled(ctx context.Context, slotID int64, at time.Time) (bool, error)
	Restore(ctx context.Context, slotID int64) (bool, error)
	ListExpiredUnbooked(ctx context.Context, now time.Time, limit int) ([]int64, error)
	DeleteExpiredUnbooked(ctx context.Context, slotID int64, now time.Time) (bool, error)
}

type VisitStore interface {
	Create(ctx context.Context, visit *model.Visit) error
	GetByID(ctx context.Context, id int64) (*model.Visit, error)
	HasActive(ctx context.Context, studentID, slotID int64) (bool, error)
	TransitionStatus(ctx context.Context, id int64, from, to model.VisitStatus) (bool, error)
	CancelActiveBySlot(ctx context.Context, slotID int64) ([]*model.Visit, error)
	ListByStudent(ctx context.Context, studentID int64) ([]*model.Visit, error)
}

// storeOptions is embedded by services that talk to the store.
type storeOptions struct {
	timeout time.Duration
	now     func() time.Time
}

func defaultStoreOptions() storeOptions {
	return storeOptions{timeout: DefaultStoreTimeout, now: time.Now}
}

// SetTimeout overrides the per-call store deadline.
func (o *storeOptions) SetTimeout(d time.Duration) {
	if d > 0 {
		o.timeout = d
	}
}

// SetClock overrides the time source.
func (o *storeOptions) SetClock(now func() time.Time) {
	if now != nil {
		o.now = now
	}
}

func (o *storeOptions) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.timeout)
}
