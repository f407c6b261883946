package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

// SlotInput describes one slot a doctor adds by hand inside an availability.
type SlotInput struct {
	AvailabilityID int64
	Date           time.Time
	StartTime      model.ClockTime
	EndTime        model.ClockTime
	Capacity       int // 0 means the configured default
}

// SlotUpdate holds the fields to change; nil keeps the current value.
type SlotUpdate struct {
	StartTime *model.ClockTime
	EndTime   *model.ClockTime
	Capacity  *int
}

// CreateSlot adds a single dated slot inside an active availability of the doctor.
func (s *ScheduleService) CreateSlot(ctx context.Context, doctorID string, in SlotInput) (*model.ScheduleSlot, error) {
	if in.Capacity < 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", model.ErrValidation)
	}
	if in.Capacity == 0 {
		in.Capacity = s.settings.Capacity
	}
	if in.StartTime >= in.EndTime || !in.StartTime.Valid() || in.EndTime > model.MinutesPerDay {
		return nil, fmt.Errorf("%w: start_time must be before end_time", model.ErrValidation)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var slot *model.ScheduleSlot
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.availabilityRepo.GetByID(ctx, in.AvailabilityID)
		if err != nil {
			return fmt.Errorf("get availability: %w", err)
		}
		if a == nil || a.DoctorID != doctorID || !a.IsActive {
			return fmt.Errorf("availability %d: %w", in.AvailabilityID, model.ErrNotFound)
		}

		date := DateOf(in.Date)
		if int(date.Weekday()) != a.DayOfWeek {
			return fmt.Errorf("%w: %s is not a %s", model.ErrValidation, FormatDay(date), a.Weekday())
		}
		if in.StartTime < a.StartTime || in.EndTime > a.EndTime {
			return fmt.Errorf("%w: slot must lie within %s-%s", model.ErrValidation, a.StartTime, a.EndTime)
		}

		startsAt, endsAt, ok := SlotBounds(date, in.StartTime, in.EndTime, s.settings.Location)
		if !ok {
			return fmt.Errorf("%w: %s does not exist on %s", model.ErrValidation, in.StartTime, FormatDay(date))
		}
		if !startsAt.After(s.now()) {
			return fmt.Errorf("%w: slot must start in the future", model.ErrValidation)
		}

		if err := s.availabilityRepo.LockDoctor(ctx, doctorID); err != nil {
			return fmt.Errorf("lock doctor: %w", err)
		}

		availabilityID := a.ID
		slot = &model.ScheduleSlot{
			DoctorID:       doctorID,
			AvailabilityID: &availabilityID,
			Date:           date,
			StartTime:      in.StartTime,
			EndTime:        in.EndTime,
			StartsAt:       startsAt,
			EndsAt:         endsAt,
			Capacity:       in.Capacity,
		}
		created, err := s.slotRepo.CreateIfAbsent(ctx, slot)
		if err != nil {
			return fmt.Errorf("create slot: %w", err)
		}
		if !created {
			return fmt.Errorf("slot %s %s: %w", FormatDay(date), in.StartTime, model.ErrSlotOverlap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot created",
		zap.Int64("slot_id", slot.ID),
		zap.String("doctor_id", doctorID),
		zap.Time("starts_at", slot.StartsAt),
	)

	return slot, nil
}

// UpdateSlot changes a slot's window or capacity. A slot with bookings keeps its window.
func (s *ScheduleService) UpdateSlot(ctx context.Context, doctorID string, slotID int64, in SlotUpdate) (*model.ScheduleSlot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var slot *model.ScheduleSlot
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		slot, err = s.ownSlot(ctx, doctorID, slotID)
		if err != nil {
			return err
		}
		if slot.IsCancelled() {
			return fmt.Errorf("slot %d is cancelled: %w", slotID, model.ErrInvalidState)
		}
		if slot.HasStarted(s.now()) {
			return fmt.Errorf("slot %d: %w", slotID, model.ErrSlotExpired)
		}

		start, end := slot.StartTime, slot.EndTime
		if in.StartTime != nil {
			start = *in.StartTime
		}
		if in.EndTime != nil {
			end = *in.EndTime
		}
		moved := start != slot.StartTime || end != slot.EndTime

		if in.Capacity != nil {
			if *in.Capacity < 1 {
				return fmt.Errorf("%w: capacity must be positive", model.ErrValidation)
			}
			if *in.Capacity < slot.BookedCount {
				return fmt.Errorf("%w: capacity %d is below %d booked seats", model.ErrValidation, *in.Capacity, slot.BookedCount)
			}
			slot.Capacity = *in.Capacity
		}

		if moved {
			if slot.BookedCount > 0 {
				return fmt.Errorf("slot %d has bookings and cannot be moved: %w", slotID, model.ErrInvalidState)
			}
			if start >= end || !start.Valid() || end > model.MinutesPerDay {
				return fmt.Errorf("%w: start_time must be before end_time", model.ErrValidation)
			}
			startsAt, endsAt, ok := SlotBounds(slot.Date, start, end, s.settings.Location)
			if !ok {
				return fmt.Errorf("%w: %s does not exist on %s", model.ErrValidation, start, FormatDay(slot.Date))
			}
			if !startsAt.After(s.now()) {
				return fmt.Errorf("%w: slot must start in the future", model.ErrValidation)
			}

			if err := s.availabilityRepo.LockDoctor(ctx, doctorID); err != nil {
				return fmt.Errorf("lock doctor: %w", err)
			}
			overlap, err := s.slotRepo.HasOverlap(ctx, doctorID, slot.Date, start, end, slotID)
			if err != nil {
				return fmt.Errorf("check overlap: %w", err)
			}
			if overlap {
				return fmt.Errorf("slot %s %s: %w", FormatDay(slot.Date), start, model.ErrSlotOverlap)
			}

			slot.StartTime, slot.EndTime = start, end
			slot.StartsAt, slot.EndsAt = startsAt, endsAt
		}

		updated, err := s.slotRepo.Update(ctx, slot)
		if err != nil {
			return fmt.Errorf("update slot: %w", err)
		}
		if !updated {
			// Бронь появилась между чтением и записью
			return fmt.Errorf("slot %d changed concurrently: %w", slotID, model.ErrInvalidState)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot updated",
		zap.Int64("slot_id", slotID),
		zap.String("doctor_id", doctorID),
		zap.Time("starts_at", slot.StartsAt),
		zap.Int("capacity", slot.Capacity),
	)

	return slot, nil
}

// CancelSlot cancels a future slot together with its booked visits and frees their seats.
// Completed visits keep their seats.
func (s *ScheduleService) CancelSlot(ctx context.Context, doctorID string, slotID int64) (*model.ScheduleSlot, []*model.Visit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		slot      *model.ScheduleSlot
		cancelled []*model.Visit
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		slot, err = s.ownSlot(ctx, doctorID, slotID)
		if err != nil {
			return err
		}
		if slot.IsCancelled() {
			return fmt.Errorf("slot %d is already cancelled: %w", slotID, model.ErrInvalidState)
		}
		if slot.HasStarted(s.now()) {
			return fmt.Errorf("slot %d: %w", slotID, model.ErrSlotExpired)
		}

		now := s.now()
		// Сначала помечаем слот, чтобы новые брони не прошли
		marked, err := s.slotRepo.MarkCancelled(ctx, slotID, now)
		if err != nil {
			return fmt.Errorf("mark slot cancelled: %w", err)
		}
		if !marked {
			return fmt.Errorf("slot %d is already cancelled: %w", slotID, model.ErrInvalidState)
		}

		cancelled, err = s.visitRepo.CancelActiveBySlot(ctx, slotID)
		if err != nil {
			return fmt.Errorf("cancel slot visits: %w", err)
		}

		released, err := s.slotRepo.ReleaseSeats(ctx, slotID, len(cancelled))
		if err != nil {
			return fmt.Errorf("release seats: %w", err)
		}
		if !released {
			return fmt.Errorf("slot %d holds fewer seats than visits: %w", slotID, model.ErrInvalidState)
		}

		slot.CancelledAt = &now
		slot.BookedCount -= len(cancelled)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	s.logger.Info("Slot cancelled",
		zap.Int64("slot_id", slotID),
		zap.String("doctor_id", doctorID),
		zap.Int("visits_cancelled", len(cancelled)),
	)

	for _, visit := range cancelled {
		notifyAsync(s.logger, func(ctx context.Context) error {
			return s.notifier.BookingCancelled(ctx, visit)
		})
	}

	return slot, cancelled, nil
}

// RestoreSlot reopens a cancelled slot that has not started yet. Cancelled visits stay cancelled.
func (s *ScheduleService) RestoreSlot(ctx context.Context, doctorID string, slotID int64) (*model.ScheduleSlot, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var slot *model.ScheduleSlot
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		slot, err = s.ownSlot(ctx, doctorID, slotID)
		if err != nil {
			return err
		}
		if !slot.IsCancelled() {
			return fmt.Errorf("slot %d is not cancelled: %w", slotID, model.ErrInvalidState)
		}
		if slot.HasStarted(s.now()) {
			return fmt.Errorf("slot %d: %w", slotID, model.ErrSlotExpired)
		}

		restored, err := s.slotRepo.Restore(ctx, slotID)
		if err != nil {
			return fmt.Errorf("restore slot: %w", err)
		}
		if !restored {
			return fmt.Errorf("slot %d is not cancelled: %w", slotID, model.ErrInvalidState)
		}

		slot.CancelledAt = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot restored",
		zap.Int64("slot_id", slotID),
		zap.String("doctor_id", doctorID),
	)

	return slot, nil
}

func (s *ScheduleService) ownSlot(ctx context.Context, doctorID string, slotID int64) (*model.ScheduleSlot, error) {
	slot, err := s.slotRepo.GetByID(ctx, slotID)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	if slot == nil || slot.DoctorID != doctorID {
		return nil, fmt.Errorf("slot %d: %w", slotID, model.ErrNotFound)
	}
	return slot, nil
}
