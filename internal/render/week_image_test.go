package render

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

func testSlot(date time.Time, start model.ClockTime, booked, capacity int) *model.ScheduleSlot {
	end := start.Add(30 * time.Minute)
	return &model.ScheduleSlot{
		DoctorID:    "doc-1",
		Date:        date,
		StartTime:   start,
		EndTime:     end,
		StartsAt:    start.On(date, time.UTC),
		EndsAt:      end.On(date, time.UTC),
		Capacity:    capacity,
		BookedCount: booked,
	}
}

func TestWeekImage(t *testing.T) {
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	slots := []*model.ScheduleSlot{
		testSlot(monday, model.NewClockTime(9, 0), 0, 1),
		testSlot(monday, model.NewClockTime(9, 30), 1, 1),
		testSlot(monday.AddDate(0, 0, 2), model.NewClockTime(14, 0), 1, 3),
	}

	data, err := WeekImage(monday.AddDate(0, 0, 3), slots, time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, ImageWidth, img.Bounds().Dx())
	assert.Equal(t, ImageHeight, img.Bounds().Dy())
}

func TestWeekImage_Empty(t *testing.T) {
	data, err := WeekImage(time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), nil, time.Now())
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")))
}

func TestNormalizeToWeekBounds(t *testing.T) {
	sunday := time.Date(2025, 6, 8, 17, 0, 0, 0, time.UTC)
	week := normalizeToWeekBounds(sunday)
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), week.start)
	assert.Equal(t, time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC), week.end)
}

func TestCalculateHourRange(t *testing.T) {
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	hours := calculateHourRange([]*model.ScheduleSlot{
		testSlot(monday, model.NewClockTime(9, 0), 0, 1),
		testSlot(monday, model.NewClockTime(16, 30), 0, 1),
	})
	assert.Equal(t, hourRange{start: 8, end: 18, total: 10}, hours)

	assert.Equal(t, hourRange{start: 7, end: 19, total: 12}, calculateHourRange(nil))
}

func TestSlotColor(t *testing.T) {
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	before := monday.Add(-time.Hour)

	assert.Equal(t, slotFreeColor, slotColor(testSlot(monday, model.NewClockTime(9, 0), 0, 2), before))
	assert.Equal(t, slotPartialColor, slotColor(testSlot(monday, model.NewClockTime(9, 0), 1, 2), before))
	assert.Equal(t, slotFullColor, slotColor(testSlot(monday, model.NewClockTime(9, 0), 2, 2), before))
	assert.Equal(t, slotPastColor, slotColor(testSlot(monday, model.NewClockTime(9, 0), 0, 2), monday.Add(10*time.Hour)))

	cancelled := testSlot(monday, model.NewClockTime(9, 0), 2, 2)
	cancelled.CancelledAt = &before
	assert.Equal(t, slotCanceledColor, slotColor(cancelled, before))
	assert.Equal(t, slotCanceledColor, slotColor(cancelled, monday.Add(10*time.Hour)))
}
