package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

// AvailabilityInput carries the fields of a create or update request.
// Nil fields are left unchanged on update.
type AvailabilityInput struct {
	DayOfWeek *int
	StartTime *model.ClockTime
	EndTime   *model.ClockTime
	IsActive  *bool
}

type AvailabilityService struct {
	storeOptions
	tx               Transactor
	availabilityRepo AvailabilityStore
	logger           *zap.Logger
}

func NewAvailabilityService(tx Transactor, availabilityRepo AvailabilityStore, logger *zap.Logger) *AvailabilityService {
	return &AvailabilityService{
		storeOptions:     defaultStoreOptions(),
		tx:               tx,
		availabilityRepo: availabilityRepo,
		logger:           logger,
	}
}

// Create создаёт окно доступности врача
func (s *AvailabilityService) Create(ctx context.Context, doctorID string, in AvailabilityInput) (*model.Availability, error) {
	if in.DayOfWeek == nil || in.StartTime == nil || in.EndTime == nil {
		return nil, fmt.Errorf("%w: day_of_week, start_time and end_time are required", model.ErrValidation)
	}

	a := &model.Availability{
		DoctorID:  doctorID,
		DayOfWeek: *in.DayOfWeek,
		StartTime: *in.StartTime,
		EndTime:   *in.EndTime,
		IsActive:  true,
	}
	if in.IsActive != nil {
		a.IsActive = *in.IsActive
	}

	if err := a.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.checkOverlap(ctx, a); err != nil {
			return err
		}
		return s.availabilityRepo.Create(ctx, a)
	})
	if err != nil {
		return nil, fmt.Errorf("create availability: %w", err)
	}

	s.logger.Info("Availability created",
		zap.Int64("availability_id", a.ID),
		zap.String("doctor_id", doctorID),
		zap.Int("day_of_week", a.DayOfWeek),
		zap.Stringer("start", a.StartTime),
		zap.Stringer("end", a.EndTime),
	)

	return a, nil
}

// List возвращает все окна врача
func (s *AvailabilityService) List(ctx context.Context, doctorID string) ([]*model.Availability, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	list, err := s.availabilityRepo.ListByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list availabilities: %w", err)
	}
	return list, nil
}

// Update частично обновляет окно; врач может менять только свои окна
func (s *AvailabilityService) Update(ctx context.Context, doctorID string, id int64, in AvailabilityInput) (*model.Availability, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var updated *model.Availability
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		a, err := s.owned(ctx, doctorID, id)
		if err != nil {
			return err
		}

		if in.DayOfWeek != nil {
			a.DayOfWeek = *in.DayOfWeek
		}
		if in.StartTime != nil {
			a.StartTime = *in.StartTime
		}
		if in.EndTime != nil {
			a.EndTime = *in.EndTime
		}
		if in.IsActive != nil {
			a.IsActive = *in.IsActive
		}

		if err := a.Validate(); err != nil {
			return err
		}
		if err := s.checkOverlap(ctx, a); err != nil {
			return err
		}
		if err := s.availabilityRepo.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update availability: %w", err)
	}

	s.logger.Info("Availability updated",
		zap.Int64("availability_id", id),
		zap.String("doctor_id", doctorID),
	)

	return updated, nil
}

// Delete удаляет окно. Уже созданные слоты остаются.
func (s *AvailabilityService) Delete(ctx context.Context, doctorID string, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.owned(ctx, doctorID, id); err != nil {
			return err
		}
		return s.availabilityRepo.Delete(ctx, id)
	})
	if err != nil {
		return fmt.Errorf("delete availability: %w", err)
	}

	s.logger.Info("Availability deleted",
		zap.Int64("availability_id", id),
		zap.String("doctor_id", doctorID),
	)

	return nil
}

func (s *AvailabilityService) owned(ctx context.Context, doctorID string, id int64) (*model.Availability, error) {
	a, err := s.availabilityRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	// Чужие окна не раскрываем
	if a == nil || a.DoctorID != doctorID {
		return nil, fmt.Errorf("availability %d: %w", id, model.ErrNotFound)
	}
	return a, nil
}

// checkOverlap must run inside a transaction: the doctor lock is held until it ends.
func (s *AvailabilityService) checkOverlap(ctx context.Context, a *model.Availability) error {
	if !a.IsActive {
		return nil
	}

	if err := s.availabilityRepo.LockDoctor(ctx, a.DoctorID); err != nil {
		return err
	}

	siblings, err := s.availabilityRepo.ListActiveOnDay(ctx, a.DoctorID, a.DayOfWeek)
	if err != nil {
		return err
	}

	for _, other := range siblings {
		if other.ID == a.ID {
			continue
		}
		if a.Overlaps(other) {
			return fmt.Errorf("%w: overlaps availability %d (%s-%s)",
				model.ErrValidation, other.ID, other.StartTime, other.EndTime)
		}
	}

	return nil
}
