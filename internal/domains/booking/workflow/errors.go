package workflow

import (
	"errors"

	roomModel "vfast/internal/domains/room/model"
)

// Error kinds carried by the failures this package and its callers return.
// Match them with errors.Is.
var (
	ErrInvalidTransition     = errors.New("invalid transition")
	ErrBookingNotAllocatable = errors.New("booking not allocatable")
	ErrRoomUnavailable       = roomModel.ErrUnavailable
	ErrAlreadyCheckedIn      = errors.New("already checked in")
	ErrNotCheckedIn          = errors.New("not checked in")
)
