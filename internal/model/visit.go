package model

import "time"

type VisitStatus string

const (
	VisitStatusBooked    VisitStatus = "booked"
	VisitStatusCompleted VisitStatus = "completed"
	VisitStatusCancelled VisitStatus = "cancelled"
)

// Visit is a student's booking against a schedule slot.
type Visit struct {
	ID        int64       `json:"id"`
	StudentID int64       `json:"student_id"`
	DoctorID  string      `json:"doctor_id"`
	SlotID    int64       `json:"slot_id"` // 0 once the slot of a cancelled visit was purged
	VisitDate time.Time   `json:"visit_date"`
	Status    VisitStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	// Filled by list queries, not a column
	Slot *ScheduleSlot `json:"slot,omitempty"`
}

// IsActive reports whether the visit still holds a seat.
func (v *Visit) IsActive() bool {
	return v.Status != VisitStatusCancelled
}
