package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

func newSlot(doctorID string, start time.Time) *model.ScheduleSlot {
	return &model.ScheduleSlot{
		DoctorID:  doctorID,
		Date:      dateOnly(start),
		StartTime: model.NewClockTime(start.Hour(), start.Minute()),
		EndTime:   model.NewClockTime(start.Hour(), start.Minute()).Add(30 * time.Minute),
		StartsAt:  start,
		EndsAt:    start.Add(30 * time.Minute),
		Capacity:  1,
	}
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := New()
	slots := store.Slots()

	slot := newSlot("doc", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	created, err := slots.CreateIfAbsent(ctx, slot)
	require.NoError(t, err)
	require.True(t, created)

	boom := errors.New("boom")
	err = store.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := slots.Reserve(ctx, slot.ID)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := slots.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.BookedCount)
}

func TestStore_CreateIfAbsentIsUniquePerStart(t *testing.T) {
	ctx := context.Background()
	slots := New().Slots()
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	created, err := slots.CreateIfAbsent(ctx, newSlot("doc", start))
	require.NoError(t, err)
	assert.True(t, created)

	created, err = slots.CreateIfAbsent(ctx, newSlot("doc", start))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = slots.CreateIfAbsent(ctx, newSlot("other", start))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestStore_ReserveNeverExceedsCapacity(t *testing.T) {
	ctx := context.Background()
	slots := New().Slots()

	slot := newSlot("doc", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	_, err := slots.CreateIfAbsent(ctx, slot)
	require.NoError(t, err)

	ok, err := slots.Reserve(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = slots.Reserve(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = slots.Release(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = slots.Release(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_DeleteExpiredUnbookedRechecks(t *testing.T) {
	ctx := context.Background()
	store := New()
	slots := store.Slots()
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	slot := newSlot("doc", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	_, err := slots.CreateIfAbsent(ctx, slot)
	require.NoError(t, err)

	ids, err := slots.ListExpiredUnbooked(ctx, now, 10)
	require.NoError(t, err)
	require.Equal(t, []int64{slot.ID}, ids)

	// A booking lands between listing and deleting
	_, err = slots.Reserve(ctx, slot.ID)
	require.NoError(t, err)

	deleted, err := slots.DeleteExpiredUnbooked(ctx, slot.ID, now)
	require.NoError(t, err)
	assert.False(t, deleted)

	got, err := slots.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestStore_CancelledContextIsTransient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().Slots().GetByID(ctx, 1)
	assert.ErrorIs(t, err, model.ErrTransientStore)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_ConcurrentReserveWithoutTx(t *testing.T) {
	ctx := context.Background()
	slots := New().Slots()

	slot := newSlot("doc", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	slot.Capacity = 3
	_, err := slots.CreateIfAbsent(ctx, slot)
	require.NoError(t, err)

	const callers = 40
	var (
		wg       sync.WaitGroup
		reserved atomic.Int32
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			ok, err := slots.Reserve(ctx, slot.ID)
			assert.NoError(t, err)
			if ok {
				reserved.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(3), reserved.Load())
	got, err := slots.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.BookedCount)
}

func TestStore_CreateIfAbsentSkipsOverlap(t *testing.T) {
	ctx := context.Background()
	slots := New().Slots()
	start := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	created, err := slots.CreateIfAbsent(ctx, newSlot("doc", start))
	require.NoError(t, err)
	require.True(t, created)

	created, err = slots.CreateIfAbsent(ctx, newSlot("doc", start.Add(15*time.Minute)))
	require.NoError(t, err)
	assert.False(t, created)

	created, err = slots.CreateIfAbsent(ctx, newSlot("doc", start.Add(30*time.Minute)))
	require.NoError(t, err)
	assert.True(t, created)
}

func TestStore_CancelledSlot(t *testing.T) {
	ctx := context.Background()
	store := New()
	slots := store.Slots()
	at := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	slot := newSlot("doc", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC))
	slot.Capacity = 2
	_, err := slots.CreateIfAbsent(ctx, slot)
	require.NoError(t, err)
	_, err = slots.Reserve(ctx, slot.ID)
	require.NoError(t, err)

	ok, err := slots.MarkCancelled(ctx, slot.ID, at)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = slots.MarkCancelled(ctx, slot.ID, at)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = slots.Reserve(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	available, err := slots.ListAvailable(ctx, model.SlotFilter{})
	require.NoError(t, err)
	assert.Empty(t, available)

	ok, err = slots.ReleaseSeats(ctx, slot.ID, 2)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = slots.ReleaseSeats(ctx, slot.ID, 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = slots.Restore(ctx, slot.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := slots.GetByID(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, got.IsCancelled())
	assert.Equal(t, 0, got.BookedCount)
}

func TestStore_CancelActiveBySlot(t *testing.T) {
	ctx := context.Background()
	store := New()
	visits := store.Visits()

	for i, status := range []model.VisitStatus{model.VisitStatusBooked, model.VisitStatusCompleted, model.VisitStatusBooked} {
		require.NoError(t, visits.Create(ctx, &model.Visit{StudentID: int64(i + 1), DoctorID: "doc", SlotID: 7, Status: status}))
	}
	require.NoError(t, visits.Create(ctx, &model.Visit{StudentID: 9, DoctorID: "doc", SlotID: 8, Status: model.VisitStatusBooked}))

	cancelled, err := visits.CancelActiveBySlot(ctx, 7)
	require.NoError(t, err)
	require.Len(t, cancelled, 2)
	for _, v := range cancelled {
		assert.Equal(t, model.VisitStatusCancelled, v.Status)
		assert.Equal(t, int64(7), v.SlotID)
	}

	again, err := visits.CancelActiveBySlot(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, again)
}
