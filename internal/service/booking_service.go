package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/notify"
)

const notifyTimeout = 10 * time.Second

type BookingService struct {
	storeOptions
	tx        Transactor
	slotRepo  SlotStore
	visitRepo VisitStore
	notifier  notify.Notifier
	logger    *zap.Logger
}

func NewBookingService(
	tx Transactor,
	slotRepo SlotStore,
	visitRepo VisitStore,
	notifier notify.Notifier,
	logger *zap.Logger,
) *BookingService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &BookingService{
		storeOptions: defaultStoreOptions(),
		tx:           tx,
		slotRepo:     slotRepo,
		visitRepo:    visitRepo,
		notifier:     notifier,
		logger:       logger,
	}
}

// Book бронирует место в слоте для студента.
// Capacity is enforced by a single conditional increment in the store.
func (s *BookingService) Book(ctx context.Context, studentID, slotID int64) (*model.Visit, error) {
	if studentID <= 0 || slotID <= 0 {
		return nil, fmt.Errorf("%w: student_id and slot_id must be positive", model.ErrValidation)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var (
		visit *model.Visit
		slot  *model.ScheduleSlot
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		slot, err = s.slotRepo.GetByID(ctx, slotID)
		if err != nil {
			return fmt.Errorf("get slot: %w", err)
		}
		if slot == nil {
			return fmt.Errorf("slot %d: %w", slotID, model.ErrNotFound)
		}

		// Проверяем что слот в будущем
		if slot.HasStarted(s.now()) {
			return fmt.Errorf("slot %d: %w", slotID, model.ErrSlotExpired)
		}
		if slot.IsCancelled() {
			return fmt.Errorf("slot %d is cancelled: %w", slotID, model.ErrInvalidState)
		}

		active, err := s.visitRepo.HasActive(ctx, studentID, slotID)
		if err != nil {
			return fmt.Errorf("check active visit: %w", err)
		}
		if active {
			return fmt.Errorf("slot %d: %w", slotID, model.ErrDuplicateBooking)
		}

		reserved, err := s.slotRepo.Reserve(ctx, slotID)
		if err != nil {
			return fmt.Errorf("reserve slot: %w", err)
		}
		if !reserved {
			// Слот могли отменить после чтения
			if current, err := s.slotRepo.GetByID(ctx, slotID); err == nil && current != nil && current.IsCancelled() {
				return fmt.Errorf("slot %d is cancelled: %w", slotID, model.ErrInvalidState)
			}
			return fmt.Errorf("slot %d: %w", slotID, model.ErrSlotFull)
		}

		visit = &model.Visit{
			StudentID: studentID,
			DoctorID:  slot.DoctorID,
			SlotID:    slotID,
			VisitDate: slot.Date,
			Status:    model.VisitStatusBooked,
		}
		if err := s.visitRepo.Create(ctx, visit); err != nil {
			return fmt.Errorf("create visit: %w", err)
		}

		slot.BookedCount++
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Slot booked",
		zap.Int64("visit_id", visit.ID),
		zap.Int64("student_id", studentID),
		zap.Int64("slot_id", slotID),
		zap.String("doctor_id", slot.DoctorID),
	)

	visit.Slot = slot
	s.notifyAsync(func(ctx context.Context) error {
		return s.notifier.BookingCreated(ctx, visit, slot)
	})

	return visit, nil
}

// Cancel отменяет визит студента и освобождает место в слоте
func (s *BookingService) Cancel(ctx context.Context, visitID, studentID int64) (*model.Visit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var visit *model.Visit
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		visit, err = s.visitRepo.GetByID(ctx, visitID)
		if err != nil {
			return fmt.Errorf("get visit: %w", err)
		}
		if visit == nil {
			return fmt.Errorf("visit %d: %w", visitID, model.ErrNotFound)
		}
		if visit.StudentID != studentID {
			return fmt.Errorf("visit %d: %w", visitID, model.ErrForbidden)
		}

		changed, err := s.visitRepo.TransitionStatus(ctx, visitID, model.VisitStatusBooked, model.VisitStatusCancelled)
		if err != nil {
			return fmt.Errorf("cancel visit: %w", err)
		}
		if !changed {
			return fmt.Errorf("visit %d is %s: %w", visitID, visit.Status, model.ErrInvalidState)
		}

		if visit.SlotID != 0 {
			released, err := s.slotRepo.Release(ctx, visit.SlotID)
			if err != nil {
				return fmt.Errorf("release slot: %w", err)
			}
			if !released {
				s.logger.Warn("Slot had no seat to release",
					zap.Int64("visit_id", visitID),
					zap.Int64("slot_id", visit.SlotID),
				)
			}
		}

		visit.Status = model.VisitStatusCancelled
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Visit cancelled",
		zap.Int64("visit_id", visitID),
		zap.Int64("student_id", studentID),
		zap.Int64("slot_id", visit.SlotID),
	)

	s.notifyAsync(func(ctx context.Context) error {
		return s.notifier.BookingCancelled(ctx, visit)
	})

	return visit, nil
}

// Complete отмечает визит как состоявшийся. Место в слоте остаётся занятым.
func (s *BookingService) Complete(ctx context.Context, visitID int64, doctorID string) (*model.Visit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var visit *model.Visit
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		visit, err = s.visitRepo.GetByID(ctx, visitID)
		if err != nil {
			return fmt.Errorf("get visit: %w", err)
		}
		if visit == nil || visit.DoctorID != doctorID {
			return fmt.Errorf("visit %d: %w", visitID, model.ErrNotFound)
		}

		changed, err := s.visitRepo.TransitionStatus(ctx, visitID, model.VisitStatusBooked, model.VisitStatusCompleted)
		if err != nil {
			return fmt.Errorf("complete visit: %w", err)
		}
		if !changed {
			return fmt.Errorf("visit %d is %s: %w", visitID, visit.Status, model.ErrInvalidState)
		}

		visit.Status = model.VisitStatusCompleted
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Visit completed",
		zap.Int64("visit_id", visitID),
		zap.String("doctor_id", doctorID),
	)

	return visit, nil
}

// ListAvailable возвращает будущие слоты со свободными местами
func (s *BookingService) ListAvailable(ctx context.Context, filter model.SlotFilter) ([]*model.ScheduleSlot, error) {
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("%w: date range end is before its start", model.ErrValidation)
	}
	if filter.Now.IsZero() {
		filter.Now = s.now()
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	slots, err := s.slotRepo.ListAvailable(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// ListMySchedules возвращает визиты студента, новые сначала
func (s *BookingService) ListMySchedules(ctx context.Context, studentID int64) ([]*model.Visit, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	visits, err := s.visitRepo.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list student visits: %w", err)
	}
	return visits, nil
}

// ListDoctorSchedule возвращает слоты врача, начинающиеся в [from, to)
func (s *BookingService) ListDoctorSchedule(ctx context.Context, doctorID string, from, to time.Time) ([]*model.ScheduleSlot, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("%w: date range end must be after its start", model.ErrValidation)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	slots, err := s.slotRepo.ListByDoctor(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doctor schedule: %w", err)
	}
	return slots, nil
}

func (s *BookingService) notifyAsync(send func(ctx context.Context) error) {
	notifyAsync(s.logger, send)
}

// notifyAsync sends a post-commit event without holding up the caller.
func notifyAsync(logger *zap.Logger, send func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		if err := send(ctx); err != nil {
			logger.Warn("Failed to send booking notification", zap.Error(err))
		}
	}()
}
