package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/repository/memstore"
)

type fixture struct {
	store        *memstore.Store
	availability *AvailabilityService
	schedule     *ScheduleService
	booking      *BookingService
	now          time.Time
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()

	store := memstore.New()
	logger := zap.NewNop()

	f := &fixture{store: store, now: now}
	clock := func() time.Time { return f.now }

	f.availability = NewAvailabilityService(store, store.Availabilities(), logger)
	f.schedule = NewScheduleService(store, store.Availabilities(), store.Slots(), store.Visits(), DefaultSlotSettings(), 1, logger)
	f.schedule.SetClock(clock)
	f.booking = NewBookingService(store, store.Slots(), store.Visits(), nil, logger)
	f.booking.SetClock(clock)

	return f
}

func (f *fixture) addAvailability(t *testing.T, doctorID string, day int, start, end string) *model.Availability {
	t.Helper()

	s, err := model.ParseClockTime(start)
	require.NoError(t, err)
	e, err := model.ParseClockTime(end)
	require.NoError(t, err)

	a, err := f.availability.Create(context.Background(), doctorID, AvailabilityInput{
		DayOfWeek: &day,
		StartTime: &s,
		EndTime:   &e,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) slots(t *testing.T) []*model.ScheduleSlot {
	t.Helper()

	slots, err := f.store.Slots().ListAvailable(context.Background(), model.SlotFilter{})
	require.NoError(t, err)
	return slots
}

func (f *fixture) slot(t *testing.T, id int64) *model.ScheduleSlot {
	t.Helper()

	slot, err := f.store.Slots().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, slot)
	return slot
}
