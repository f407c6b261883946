package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/notify"
)

// DefaultPurgeBatch is how many expired slots one purge round inspects.
const DefaultPurgeBatch = 500

// ScheduleService materialises slots from availabilities, lets doctors manage
// single slots and reaps the unused ones.
type ScheduleService struct {
	storeOptions
	tx               Transactor
	availabilityRepo AvailabilityStore
	slotRepo         SlotStore
	visitRepo        VisitStore
	notifier         notify.Notifier
	settings         SlotSettings
	weeksAhead       int
	purgeBatch       int
	logger           *zap.Logger
}

func NewScheduleService(
	tx Transactor,
	availabilityRepo AvailabilityStore,
	slotRepo SlotStore,
	visitRepo VisitStore,
	settings SlotSettings,
	weeksAhead int,
	logger *zap.Logger,
) *ScheduleService {
	if weeksAhead < 0 {
		weeksAhead = 0
	}
	return &ScheduleService{
		storeOptions:     defaultStoreOptions(),
		tx:               tx,
		availabilityRepo: availabilityRepo,
		slotRepo:         slotRepo,
		visitRepo:        visitRepo,
		notifier:         notify.Nop{},
		settings:         settings,
		weeksAhead:       weeksAhead,
		purgeBatch:       DefaultPurgeBatch,
		logger:           logger,
	}
}

// SetNotifier sets where students hear about visits cancelled with their slot.
func (s *ScheduleService) SetNotifier(n notify.Notifier) {
	if n != nil {
		s.notifier = n
	}
}

// SetPurgeBatch overrides the purge round size.
func (s *ScheduleService) SetPurgeBatch(n int) {
	if n > 0 {
		s.purgeBatch = n
	}
}

// Location returns the clinic time zone slots are generated in.
func (s *ScheduleService) Location() *time.Location {
	return s.settings.Location
}

// GenerateSlots creates the missing slots of every active availability for the week
// containing targetWeekStart and returns how many were created. Re-running is a no-op.
func (s *ScheduleService) GenerateSlots(ctx context.Context, targetWeekStart time.Time) (int, error) {
	if err := s.settings.Validate(); err != nil {
		return 0, err
	}

	weekStart := WeekStart(targetWeekStart)

	listCtx, cancel := s.withTimeout(ctx)
	availabilities, err := s.availabilityRepo.ListActive(listCtx)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("list active availabilities: %w", err)
	}

	total := 0
	for _, a := range availabilities {
		created, err := s.generateForAvailability(ctx, a, weekStart)
		if err != nil {
			// Одно битое окно не останавливает генерацию
			s.logger.Warn("Failed to generate slots for availability",
				zap.Error(err),
				zap.Int64("availability_id", a.ID),
				zap.String("doctor_id", a.DoctorID),
			)
		}
		total += created
	}

	s.logger.Info("Generated slots for week",
		zap.Time("week_start", weekStart),
		zap.Int("availabilities", len(availabilities)),
		zap.Int("slots_created", total),
	)

	return total, nil
}

// GenerateUpcoming generates the current week and the configured number of weeks after it.
func (s *ScheduleService) GenerateUpcoming(ctx context.Context) (int, error) {
	current := WeekStart(s.now().In(s.settings.Location))

	total := 0
	for week := 0; week <= s.weeksAhead; week++ {
		created, err := s.GenerateSlots(ctx, current.AddDate(0, 0, 7*week))
		if err != nil {
			return total, err
		}
		total += created
	}

	return total, nil
}

func (s *ScheduleService) generateForAvailability(ctx context.Context, a *model.Availability, weekStart time.Time) (int, error) {
	slots, err := ExpandAvailability(a, weekStart, s.settings)
	if err != nil {
		return 0, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	// Блокировка врача сериализует генерацию с ручным созданием слотов
	created := 0
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		created = 0
		if err := s.availabilityRepo.LockDoctor(ctx, a.DoctorID); err != nil {
			return fmt.Errorf("lock doctor: %w", err)
		}
		for _, slot := range slots {
			ok, err := s.slotRepo.CreateIfAbsent(ctx, slot)
			if err != nil {
				return fmt.Errorf("create slot %s %s: %w", FormatDay(slot.Date), slot.StartTime, err)
			}
			if !ok {
				s.logger.Debug("Slot already exists or overlaps, skipping",
					zap.String("doctor_id", slot.DoctorID),
					zap.Time("starts_at", slot.StartsAt),
				)
				continue
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return created, nil
}

// PurgeExpiredUnbooked deletes slots that ended before now and were never booked.
// Each delete re-applies the condition, so a slot booked in between is kept.
func (s *ScheduleService) PurgeExpiredUnbooked(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		listCtx, cancel := s.withTimeout(ctx)
		ids, err := s.slotRepo.ListExpiredUnbooked(listCtx, now, s.purgeBatch)
		cancel()
		if err != nil {
			return total, fmt.Errorf("list expired slots: %w", err)
		}
		if len(ids) == 0 {
			break
		}

		deleted := 0
		for _, id := range ids {
			delCtx, cancel := s.withTimeout(ctx)
			ok, err := s.slotRepo.DeleteExpiredUnbooked(delCtx, id, now)
			cancel()
			if err != nil {
				s.logger.Warn("Failed to delete expired slot", zap.Error(err), zap.Int64("slot_id", id))
				continue
			}
			if !ok {
				s.logger.Debug("Slot got booked before purge, keeping", zap.Int64("slot_id", id))
				continue
			}
			deleted++
		}
		total += deleted

		if deleted == 0 || len(ids) < s.purgeBatch {
			break
		}
	}

	s.logger.Info("Purged expired unbooked slots",
		zap.Time("now", now),
		zap.Int("slots_deleted", total),
	)

	return total, nil
}

// FormatDay renders a slot date as YYYY-MM-DD.
func FormatDay(t time.Time) string {
	return t.Format(time.DateOnly)
}
