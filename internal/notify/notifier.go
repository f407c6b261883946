// Package notify delivers booking events to clinic staff.
package notify

import (
	"context"

	"github.com/Freeeeeet/clinic_scheduler/internal/model"
)

// Notifier receives booking events after they are committed.
type Notifier interface {
	BookingCreated(ctx context.Context, visit *model.Visit, slot *model.ScheduleSlot) error
	BookingCancelled(ctx context.Context, visit *model.Visit) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) BookingCreated(context.Context, *model.Visit, *model.ScheduleSlot) error { return nil }
func (Nop) BookingCancelled(context.Context, *model.Visit) error                    { return nil }
