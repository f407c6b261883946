package model

import "errors"

// Domain errors shared by repositories, services and transports.
var (
	ErrNotFound         = errors.New("not found")
	ErrSlotFull         = errors.New("slot is full")
	ErrSlotExpired      = errors.New("slot has already started")
	ErrDuplicateBooking = errors.New("student already booked this slot")
	ErrSlotOverlap      = errors.New("slot overlaps another slot of the doctor")
	ErrInvalidState     = errors.New("invalid state transition")
	ErrValidation       = errors.New("validation failed")
	ErrForbidden        = errors.New("forbidden")

	// ErrTransientStore marks timeouts and connection failures; callers may retry with backoff.
	ErrTransientStore = errors.New("store temporarily unavailable")
)
