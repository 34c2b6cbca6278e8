package model

import (
	"time"

	bookingModel "vfast/internal/domains/booking/model"
	"vfast/shared/timezone"

	"github.com/google/uuid"
)

type EventType string

const (
	EventBookingCreated         EventType = "BOOKING_CREATED"
	EventBookingStatusChanged   EventType = "BOOKING_STATUS_CHANGED"
	EventRoomAllocated          EventType = "ROOM_ALLOCATED"
	EventBookingRejectedByAdmin EventType = "BOOKING_REJECTED_BY_ADMIN"
	EventBookingResubmitted     EventType = "BOOKING_RESUBMITTED"
)

const HeaderEventType = "event-type"

// Event is what downstream mailers consume. It carries ids and states only, never rendered text.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	BookingID      string    `json:"booking_id"`
	UserID         string    `json:"user_id"`
	Department     string    `json:"department,omitempty"`
	Status         string    `json:"status"`
	PreviousStatus string    `json:"previous_status,omitempty"`
	RoomNumbers    []string  `json:"room_numbers,omitempty"`
	Reason         string    `json:"reason,omitempty"`
	ActorID        string    `json:"actor_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

func NewEvent(eventType EventType, booking bookingModel.Booking, actorID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		Department: booking.DepartmentName(),
		Status:     string(booking.Status),
		ActorID:    actorID,
		OccurredAt: timezone.Now(),
	}
}

// StatusChanged builds the status change event, plus BookingRejectedByAdmin when an admin rejected.
func StatusChanged(prev bookingModel.Status, booking bookingModel.Booking, actorID string, rejection *bookingModel.Rejection) []Event {
	changed := NewEvent(EventBookingStatusChanged, booking, actorID)
	changed.PreviousStatus = string(prev)

	events := []Event{changed}

	if rejection != nil {
		changed.Reason = rejection.Reason
		events[0] = changed

		if rejection.Stage == bookingModel.RejectionStageAdmin {
			rejected := NewEvent(EventBookingRejectedByAdmin, booking, actorID)
			rejected.PreviousStatus = string(prev)
			rejected.Reason = rejection.Reason
			events = append(events, rejected)
		}
	}

	return events
}

func RoomAllocated(booking bookingModel.Booking, roomNumbers []string, actorID string) Event {
	event := NewEvent(EventRoomAllocated, booking, actorID)
	event.RoomNumbers = roomNumbers

	return event
}

func Resubmitted(booking bookingModel.Booking, actorID string) Event {
	event := NewEvent(EventBookingResubmitted, booking, actorID)
	if booking.ReconsideredFromID != nil {
		event.Reason = "resubmission of " + *booking.ReconsideredFromID
	}

	return event
}
