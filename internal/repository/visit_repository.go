package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/repository/base"
)

// Name of the partial unique index over active visits.
const activeVisitConstraint = "visits_active_student_slot_key"

const visitColumns = `v.id, v.student_id, v.doctor_id, COALESCE(v.slot_id, 0), v.visit_date, v.status, v.created_at, v.updated_at`

type VisitRepository struct {
	db *base.Repository
}

func NewVisitRepository(db *base.Repository) *VisitRepository {
	return &VisitRepository{db: db}
}

// Create создаёт визит. Второй активный визит на тот же слот даёт ErrDuplicateBooking.
func (r *VisitRepository) Create(ctx context.Context, visit *model.Visit) error {
	query := `
		INSERT INTO visits (student_id, doctor_id, slot_id, visit_date, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRow(
		ctx, query,
		visit.StudentID,
		visit.DoctorID,
		visit.SlotID,
		visit.VisitDate,
		visit.Status,
	).Scan(&visit.ID, &visit.CreatedAt, &visit.UpdatedAt)

	if err != nil {
		if base.IsUniqueViolation(err, activeVisitConstraint) {
			return fmt.Errorf("create visit: %w", model.ErrDuplicateBooking)
		}
		return fmt.Errorf("create visit: %w", base.Classify(err))
	}

	return nil
}

// GetByID получает визит по ID; nil, nil если не найден
func (r *VisitRepository) GetByID(ctx context.Context, id int64) (*model.Visit, error) {
	query := `SELECT ` + visitColumns + ` FROM visits v WHERE v.id = $1`

	visit, err := scanVisit(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get visit by id: %w", base.Classify(err))
	}

	return visit, nil
}

// HasActive проверяет, есть ли у студента не отменённый визит на слот
func (r *VisitRepository) HasActive(ctx context.Context, studentID, slotID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM visits
			WHERE student_id = $1 AND slot_id = $2 AND status <> 'cancelled'
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, studentID, slotID).Scan(&exists); err != nil {
		return false, fmt.Errorf("check active visit: %w", base.Classify(err))
	}

	return exists, nil
}

// TransitionStatus moves the visit from one status to another. It reports false
// when the visit was not in the expected status.
func (r *VisitRepository) TransitionStatus(ctx context.Context, id int64, from, to model.VisitStatus) (bool, error) {
	query := `
		UPDATE visits
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`

	affected, err := r.db.ExecAffected(ctx, query, id, from, to)
	if err != nil {
		return false, fmt.Errorf("update visit status: %w", base.Classify(err))
	}

	return affected == 1, nil
}

// CancelActiveBySlot cancels every booked visit of the slot and returns them.
// Completed visits are left alone.
func (r *VisitRepository) CancelActiveBySlot(ctx context.Context, slotID int64) ([]*model.Visit, error) {
	query := `
		UPDATE visits v
		SET status = 'cancelled', updated_at = NOW()
		WHERE v.slot_id = $1 AND v.status = 'booked'
		RETURNING ` + visitColumns

	rows, err := r.db.Query(ctx, query, slotID)
	if err != nil {
		return nil, fmt.Errorf("cancel visits by slot: %w", base.Classify(err))
	}
	defer rows.Close()

	var visits []*model.Visit
	for rows.Next() {
		visit, err := scanVisit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, visit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("cancel visits by slot: %w", base.Classify(err))
	}

	return visits, nil
}

// ListByStudent получает визиты студента вместе со слотами, новые сначала
func (r *VisitRepository) ListByStudent(ctx context.Context, studentID int64) ([]*model.Visit, error) {
	query := `SELECT ` + visitColumns + `,
			s.id, s.availability_id, s.slot_date, s.start_minute, s.end_minute,
			s.starts_at, s.ends_at, s.capacity, s.booked_count, s.cancelled_at, s.created_at
		FROM visits v
		LEFT JOIN schedule_slots s ON s.id = v.slot_id
		WHERE v.student_id = $1
		ORDER BY v.visit_date DESC, s.start_minute DESC NULLS LAST, v.id DESC
	`

	rows, err := r.db.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("list visits by student: %w", base.Classify(err))
	}
	defer rows.Close()

	var visits []*model.Visit
	for rows.Next() {
		visit, err := scanVisitWithSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan visit: %w", err)
		}
		visits = append(visits, visit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list visits by student: %w", base.Classify(err))
	}

	return visits, nil
}

func scanVisit(row pgx.Row) (*model.Visit, error) {
	var v model.Visit
	err := row.Scan(
		&v.ID,
		&v.StudentID,
		&v.DoctorID,
		&v.SlotID,
		&v.VisitDate,
		&v.Status,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func scanVisitWithSlot(row pgx.Row) (*model.Visit, error) {
	var (
		v              model.Visit
		slotID         *int64
		availabilityID *int64
		slotDate       *time.Time
		start, end     *int
		startsAt       *time.Time
		endsAt         *time.Time
		capacity       *int
		booked         *int
		cancelledAt    *time.Time
		slotCreatedAt  *time.Time
	)
	err := row.Scan(
		&v.ID,
		&v.StudentID,
		&v.DoctorID,
		&v.SlotID,
		&v.VisitDate,
		&v.Status,
		&v.CreatedAt,
		&v.UpdatedAt,
		&slotID,
		&availabilityID,
		&slotDate,
		&start,
		&end,
		&startsAt,
		&endsAt,
		&capacity,
		&booked,
		&cancelledAt,
		&slotCreatedAt,
	)
	if err != nil {
		return nil, err
	}

	// Слот мог быть удалён очисткой после отмены визита
	if slotID != nil {
		v.Slot = &model.ScheduleSlot{
			ID:             *slotID,
			DoctorID:       v.DoctorID,
			AvailabilityID: availabilityID,
			Date:           *slotDate,
			StartTime:      model.ClockTime(*start),
			EndTime:        model.ClockTime(*end),
			StartsAt:       *startsAt,
			EndsAt:         *endsAt,
			Capacity:       *capacity,
			BookedCount:    *booked,
			CancelledAt:    cancelledAt,
			CreatedAt:      *slotCreatedAt,
		}
	}

	return &v, nil
}
