package notify

import (
	"fmt"
	"html"
	"time"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

// FormatDate форматирует только дату
func FormatDate(t time.Time) string {
	return t.Format("02.01.2006")
}

// FormatDateWithWeekday форматирует дату с днём недели
func FormatDateWithWeekday(t time.Time) string {
	return fmt.Sprintf("%s (%s)", FormatDate(t), WeekdayShortName(int(t.Weekday())))
}

// FormatTimeRange форматирует диапазон времени
func FormatTimeRange(start, end model.ClockTime) string {
	return fmt.Sprintf("%s-%s", start, end)
}

// WeekdayShortName возвращает краткое название дня недели
func WeekdayShortName(weekday int) string {
	names := []string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}
	if weekday >= 0 && weekday < len(names) {
		return names[weekday]
	}
	return "?"
}

func bookingCreatedText(visit *model.Visit, slot *model.ScheduleSlot) string {
	return fmt.Sprintf(
		"✅ <b>New booking</b>\nVisit #%d, student %d\nDoctor: %s\n📅 %s %s\nSeats: %d/%d",
		visit.ID,
		visit.StudentID,
		html.EscapeString(slot.DoctorID),
		FormatDateWithWeekday(slot.Date),
		FormatTimeRange(slot.StartTime, slot.EndTime),
		slot.BookedCount,
		slot.Capacity,
	)
}

func bookingCancelledText(visit *model.Visit) string {
	return fmt.Sprintf(
		"❌ <b>Booking cancelled</b>\nVisit #%d, student %d\nDoctor: %s\n📅 %s",
		visit.ID,
		visit.StudentID,
		html.EscapeString(visit.DoctorID),
		FormatDateWithWeekday(visit.VisitDate),
	)
}
