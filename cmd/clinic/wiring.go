package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/app"
	"github.com/Freeeeeet/clinic_scheduler/internal/config"
	"github.com/Freeeeeet/clinic_scheduler/internal/notify"
	"github.com/Freeeeeet/clinic_scheduler/internal/repository"
	"github.com/Freeeeeet/clinic_scheduler/internal/repository/base"
	"github.com/Freeeeeet/clinic_scheduler/internal/service"
	"github.com/Freeeeeet/clinic_scheduler/migrations"
)

// runtime bundles what every command needs.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
}

func openRuntime(ctx context.Context) (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := app.NewLogger(cfg.Environment)

	pool, err := app.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	logger.Info("Connected to database")

	return &runtime{cfg: cfg, logger: logger, pool: pool}, nil
}

func (rt *runtime) Close() {
	rt.pool.Close()
	_ = rt.logger.Sync()
}

func (rt *runtime) migrator() (*app.Migrator, error) {
	return app.NewMigrator(rt.pool, migrations.FS, rt.logger)
}

type services struct {
	availability *service.AvailabilityService
	schedule     *service.ScheduleService
	booking      *service.BookingService
}

func (rt *runtime) services() (*services, error) {
	loc, err := rt.cfg.Location()
	if err != nil {
		return nil, err
	}

	settings := service.SlotSettings{
		Duration: rt.cfg.SlotDuration(),
		Capacity: rt.cfg.SlotCapacity,
		Location: loc,
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	db := base.NewRepository(rt.pool)
	availabilityRepo := repository.NewAvailabilityRepository(db, rt.logger)
	slotRepo := repository.NewSlotRepository(db)
	visitRepo := repository.NewVisitRepository(db)

	var notifier notify.Notifier = notify.Nop{}
	if rt.cfg.NotificationsEnabled() {
		tg, err := notify.NewTelegramNotifier(rt.cfg.TelegramToken, rt.cfg.TelegramChatID, rt.logger)
		if err != nil {
			return nil, err
		}
		notifier = tg
		rt.logger.Info("Telegram notifications enabled", zap.Int64("chat_id", rt.cfg.TelegramChatID))
	}

	svc := &services{
		availability: service.NewAvailabilityService(db, availabilityRepo, rt.logger),
		schedule:     service.NewScheduleService(db, availabilityRepo, slotRepo, visitRepo, settings, rt.cfg.GenerateWeeksAhead, rt.logger),
		booking:      service.NewBookingService(db, slotRepo, visitRepo, notifier, rt.logger),
	}
	svc.schedule.SetNotifier(notifier)
	svc.availability.SetTimeout(rt.cfg.DBTimeout)
	svc.schedule.SetTimeout(rt.cfg.DBTimeout)
	svc.booking.SetTimeout(rt.cfg.DBTimeout)

	return svc, nil
}
