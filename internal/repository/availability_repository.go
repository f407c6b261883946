package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/repository/base"
)

const availabilityColumns = `id, doctor_id, day_of_week, start_minute, end_minute, is_active, created_at, updated_at`

// AvailabilityRepository управляет окнами доступности врачей
type AvailabilityRepository struct {
	db     *base.Repository
	logger *zap.Logger
}

func NewAvailabilityRepository(db *base.Repository, logger *zap.Logger) *AvailabilityRepository {
	return &AvailabilityRepository{db: db, logger: logger}
}

// Create создаёт новое окно доступности
func (r *AvailabilityRepository) Create(ctx context.Context, a *model.Availability) error {
	query := `
		INSERT INTO availabilities (doctor_id, day_of_week, start_minute, end_minute, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		a.DoctorID,
		a.DayOfWeek,
		int(a.StartTime),
		int(a.EndTime),
		a.IsActive,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)

	if err != nil {
		return fmt.Errorf("create availability: %w", base.Classify(err))
	}

	return nil
}

// GetByID получает окно по ID; nil, nil если не найдено
func (r *AvailabilityRepository) GetByID(ctx context.Context, id int64) (*model.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE id = $1`

	a, err := scanAvailability(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get availability by id: %w", base.Classify(err))
	}

	return a, nil
}

// ListByDoctor получает все окна врача
func (r *AvailabilityRepository) ListByDoctor(ctx context.Context, doctorID string) ([]*model.Availability, error) {
	query := `SELECT ` + availabilityColumns + `
		FROM availabilities
		WHERE doctor_id = $1
		ORDER BY day_of_week, start_minute
	`

	return r.list(ctx, "list availabilities by doctor", query, doctorID)
}

// ListActive получает все активные окна (для генератора слотов)
func (r *AvailabilityRepository) ListActive(ctx context.Context) ([]*model.Availability, error) {
	query := `SELECT ` + availabilityColumns + `
		FROM availabilities
		WHERE is_active = true
		ORDER BY doctor_id, day_of_week, start_minute
	`

	return r.list(ctx, "list active availabilities", query)
}

// ListActiveOnDay returns the doctor's active windows on one weekday.
func (r *AvailabilityRepository) ListActiveOnDay(ctx context.Context, doctorID string, dayOfWeek int) ([]*model.Availability, error) {
	query := `SELECT ` + availabilityColumns + `
		FROM availabilities
		WHERE doctor_id = $1 AND day_of_week = $2 AND is_active = true
		ORDER BY start_minute
	`

	return r.list(ctx, "list active availabilities on day", query, doctorID, dayOfWeek)
}

// Update обновляет окно доступности
func (r *AvailabilityRepository) Update(ctx context.Context, a *model.Availability) error {
	query := `
		UPDATE availabilities
		SET day_of_week = $2, start_minute = $3, end_minute = $4, is_active = $5, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		a.ID,
		a.DayOfWeek,
		int(a.StartTime),
		int(a.EndTime),
		a.IsActive,
	).Scan(&a.UpdatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return fmt.Errorf("update availability: %w", model.ErrNotFound)
		}
		return fmt.Errorf("update availability: %w", base.Classify(err))
	}

	return nil
}

// Delete удаляет окно; уже созданные слоты остаются (availability_id обнуляется)
func (r *AvailabilityRepository) Delete(ctx context.Context, id int64) error {
	affected, err := r.db.ExecAffected(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete availability: %w", base.Classify(err))
	}

	if affected == 0 {
		return fmt.Errorf("delete availability: %w", model.ErrNotFound)
	}

	r.logger.Debug("availability deleted", zap.Int64("availability_id", id))
	return nil
}

// LockDoctor serialises availability writes of one doctor until the surrounding transaction ends.
func (r *AvailabilityRepository) LockDoctor(ctx context.Context, doctorID string) error {
	_, err := r.db.Conn(ctx).Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, doctorID)
	if err != nil {
		return fmt.Errorf("lock doctor availabilities: %w", base.Classify(err))
	}
	return nil
}

func (r *AvailabilityRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.Availability, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, base.Classify(err))
	}
	defer rows.Close()

	var availabilities []*model.Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		availabilities = append(availabilities, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, base.Classify(err))
	}

	return availabilities, nil
}

func scanAvailability(row pgx.Row) (*model.Availability, error) {
	var (
		a          model.Availability
		start, end int
	)
	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.DayOfWeek,
		&start,
		&end,
		&a.IsActive,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.StartTime = model.ClockTime(start)
	a.EndTime = model.ClockTime(end)
	return &a, nil
}
