package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
	"github.com/Freeeeeet/clinic_scheduler/internal/repository/base"
)

const slotColumns = `id, doctor_id, availability_id, slot_date, start_minute, end_minute, starts_at, ends_at, capacity, booked_count, cancelled_at, created_at`

// Name of the (doctor, date, start) unique constraint.
const slotStartConstraint = "schedule_slots_doctor_start_key"

type SlotRepository struct {
	db *base.Repository
}

func NewSlotRepository(db *base.Repository) *SlotRepository {
	return &SlotRepository{db: db}
}

// CreateIfAbsent вставляет слот, если у врача в этот день нет слота, пересекающегося с ним.
// Возвращает false, когда такой слот уже существовал.
func (r *SlotRepository) CreateIfAbsent(ctx context.Context, slot *model.ScheduleSlot) (bool, error) {
	query := `
		INSERT INTO schedule_slots (doctor_id, availability_id, slot_date, start_minute, end_minute, starts_at, ends_at, capacity)
		SELECT $1::text, $2::bigint, $3::date, $4::integer, $5::integer, $6::timestamptz, $7::timestamptz, $8::integer
		WHERE NOT EXISTS (
			SELECT 1 FROM schedule_slots
			WHERE doctor_id = $1 AND slot_date = $3
			  AND start_minute < $5 AND end_minute > $4
		)
		ON CONFLICT (doctor_id, slot_date, start_minute) DO NOTHING
		RETURNING id, booked_count, created_at
	`

	err := r.db.QueryRow(
		ctx, query,
		slot.DoctorID,
		slot.AvailabilityID,
		slot.Date,
		int(slot.StartTime),
		int(slot.EndTime),
		slot.StartsAt,
		slot.EndsAt,
		slot.Capacity,
	).Scan(&slot.ID, &slot.BookedCount, &slot.CreatedAt)

	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("create slot: %w", base.Classify(err))
	}

	return true, nil
}

// GetByID получает слот по ID; nil, nil если не найден
func (r *SlotRepository) GetByID(ctx context.Context, id int64) (*model.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM schedule_slots WHERE id = $1`

	slot, err := scanSlot(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get slot by id: %w", base.Classify(err))
	}

	return slot, nil
}

// ListAvailable получает будущие слоты со свободными местами
func (r *SlotRepository) ListAvailable(ctx context.Context, filter model.SlotFilter) ([]*model.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE starts_at > $1
		  AND booked_count < capacity
		  AND cancelled_at IS NULL
		  AND ($2::text = '' OR doctor_id = $2)
		  AND ($3::date IS NULL OR slot_date >= $3)
		  AND ($4::date IS NULL OR slot_date <= $4)
		ORDER BY starts_at, doctor_id
	`

	return r.list(ctx, "list available slots", query, filter.Now, filter.DoctorID, filter.From, filter.To)
}

// ListByDoctor получает все слоты врача, начинающиеся в [from, to)
func (r *SlotRepository) ListByDoctor(ctx context.Context, doctorID string, from, to time.Time) ([]*model.ScheduleSlot, error) {
	query := `SELECT ` + slotColumns + `
		FROM schedule_slots
		WHERE doctor_id = $1
		  AND starts_at >= $2
		  AND starts_at < $3
		ORDER BY starts_at
	`

	return r.list(ctx, "list slots by doctor", query, doctorID, from, to)
}

// Reserve atomically takes one seat. It reports false when the slot is full, cancelled or gone.
func (r *SlotRepository) Reserve(ctx context.Context, slotID int64) (bool, error) {
	query := `
		UPDATE schedule_slots
		SET booked_count = booked_count + 1
		WHERE id = $1 AND booked_count < capacity AND cancelled_at IS NULL
	`

	affected, err := r.db.ExecAffected(ctx, query, slotID)
	if err != nil {
		return false, fmt.Errorf("reserve slot: %w", base.Classify(err))
	}

	return affected == 1, nil
}

// Release возвращает одно место в слот
func (r *SlotRepository) Release(ctx context.Context, slotID int64) (bool, error) {
	query := `
		UPDATE schedule_slots
		SET booked_count = booked_count - 1
		WHERE id = $1 AND booked_count > 0
	`

	affected, err := r.db.ExecAffected(ctx, query, slotID)
	if err != nil {
		return false, fmt.Errorf("release slot: %w", base.Classify(err))
	}

	return affected == 1, nil
}

// ReleaseSeats returns n seats at once; false when fewer than n are taken.
func (r *SlotRepository) ReleaseSeats(ctx context.Context, slotID int64, n int) (bool, error) {
	if n == 0 {
		return true, nil
	}

	query := `
		UPDATE schedule_slots
		SET booked_count = booked_count - $2
		WHERE id = $1 AND booked_count >= $2
	`

	affected, err := r.db.ExecAffected(ctx, query, slotID, n)
	if err != nil {
		return false, fmt.Errorf("release slot seats: %w", base.Classify(err))
	}

	return affected == 1, nil
}

// HasOverlap проверяет, пересекается ли окно [start, end) с другим слотом врача в этот день
func (r *SlotRepository) HasOverlap(ctx context.Context, doctorID string, date time.Time, start, end model.ClockTime, excludeID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM schedule_slots
			WHERE doctor_id = $1 AND slot_date = $2
			  AND start_minute < $4 AND end_minute > $3
			  AND id <> $5
		)
	`

	var exists bool
	err := r.db.QueryRow(ctx, query, doctorID, date, int(start), int(end), excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check slot overlap: %w", base.Classify(err))
	}

	return exists, nil
}

// Update moves or resizes a slot. Times change only while nobody is booked and the
// capacity never drops below the seats already taken; false otherwise.
func (r *SlotRepository) Update(ctx context.Context, slot *model.ScheduleSlot) (bool, error) {
	query := `
		UPDATE schedule_slots
		SET start_minute = $2, end_minute = $3, starts_at = $4, ends_at = $5, capacity = $6
		WHERE id = $1
		  AND cancelled_at IS NULL
		  AND booked_count <= $6
		  AND (booked_count = 0 OR (start_minute = $2 AND end_minute = $3))
		RETURNING booked_count
	`

	err := r.db.QueryRow(
		ctx, query,
		slot.ID,
		int(slot.StartTime),
		int(slot.EndTime),
		slot.StartsAt,
		slot.EndsAt,
		slot.Capacity,
	).Scan(&slot.BookedCount)

	if err != nil {
		if base.IsNotFound(err) {
			return false, nil
		}
		if base.IsUniqueViolation(err, slotStartConstraint) {
			return false, fmt.Errorf("update slot: %w", model.ErrSlotOverlap)
		}
		return false, fmt.Errorf("update slot: %w", base.Classify(err))
	}

	return true, nil
}

// MarkCancelled withdraws an open slot; false when it was already cancelled or is gone.
func (r *SlotRepository) MarkCancelled(ctx context.Context, slotID int64, at time.Time) (bool, error) {
	query := `
		UPDATE schedule_slots
		SET cancelled_at = $2
		WHERE id = $1 AND cancelled_at IS NULL
	`

	affected, err := r.db.ExecAffected(ctx, query, slotID, at)
	if err != nil {
		return false, fmt.Errorf("cancel slot: %w", base.Classify(err))
	}

	return affected == 1, nil
}

// Restore reopens a cancelled slot
func (r *SlotRepository) Restore(ctx context.Context, slotID int64) (bool, error) {
	query := `
		UPDATE schedule_slots
		SET cancelled_at = NULL
		WHERE id = $1 AND cancelled_at IS NOT NULL
	`

	affected, err := r.db.ExecAffected(ctx, query, slotID)
	if err != nil {
		return false, fmt.Errorf("restore slot: %w", base.Classify(err))
	}

	return affected == 1, nil
}

// ListExpiredUnbooked returns ids of slots that ended before now with no seat taken.
func (r *SlotRepository) ListExpiredUnbooked(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	query := `
		SELECT id FROM schedule_slots
		WHERE ends_at < $1 AND booked_count = 0
		ORDER BY ends_at
		LIMIT $2
	`

	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired slots: %w", base.Classify(err))
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("list expired slots: %w", base.Classify(err))
	}

	return ids, nil
}

// DeleteExpiredUnbooked deletes the slot only if it is still expired and unbooked,
// which closes the race with a booking that landed after the candidate list was read.
func (r *SlotRepository) DeleteExpiredUnbooked(ctx context.Context, slotID int64, now time.Time) (bool, error) {
	query := `
		DELETE FROM schedule_slots s
		WHERE s.id = $1
		  AND s.ends_at < $2
		  AND s.booked_count = 0
		  AND NOT EXISTS (
			SELECT 1 FROM visits v
			WHERE v.slot_id = s.id AND v.status <> 'cancelled'
		  )
	`

	affected, err := r.db.ExecAffected(ctx, query, slotID, now)
	if err != nil {
		return false, fmt.Errorf("delete expired slot: %w", base.Classify(err))
	}

	return affected == 1, nil
}

func (r *SlotRepository) list(ctx context.Context, op, query string, args ...any) ([]*model.ScheduleSlot, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, base.Classify(err))
	}
	defer rows.Close()

	var slots []*model.ScheduleSlot
	for rows.Next() {
		slot, err := scanSlot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slot: %w", err)
		}
		slots = append(slots, slot)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, base.Classify(err))
	}

	return slots, nil
}

func scanSlot(row pgx.Row) (*model.ScheduleSlot, error) {
	var (
		slot       model.ScheduleSlot
		start, end int
	)
	err := row.Scan(
		&slot.ID,
		&slot.DoctorID,
		&slot.AvailabilityID,
		&slot.Date,
		&start,
		&end,
		&slot.StartsAt,
		&slot.EndsAt,
		&slot.Capacity,
		&slot.BookedCount,
		&slot.CancelledAt,
		&slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	slot.StartTime = model.ClockTime(start)
	slot.EndTime = model.ClockTime(end)
	return &slot, nil
}
