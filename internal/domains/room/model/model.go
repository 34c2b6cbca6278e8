package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"vfast/shared/model"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const (
	TableName  = "rooms"
	EntityName = "room"

	FieldID               = "id"
	FieldRoomNumber       = "room_number"
	FieldRoomType         = "room_type"
	FieldFloor            = "floor"
	FieldCapacity         = "capacity"
	FieldStatus           = "status"
	FieldFeatures         = "features"
	FieldTariff           = "tariff"
	FieldDescription      = "description"
	FieldImage            = "image"
	FieldReservedBy       = "reserved_by"
	FieldReservedAt       = "reserved_at"
	FieldReservationNotes = "reservation_notes"
	FieldCreatedAt        = "created_at"

	ArgExpectedStatus = "expected_status"
)

var SortableFields = []string{FieldRoomNumber, FieldFloor, FieldRoomType, FieldStatus, FieldTariff, FieldCreatedAt}

var (
	ErrUnknownStatus = errors.New("unknown room status")
	ErrUnavailable   = errors.New("room unavailable")
)

type Status string

const (
	StatusAvailable   Status = "AVAILABLE"
	StatusOccupied    Status = "OCCUPIED"
	StatusReserved    Status = "RESERVED"
	StatusMaintenance Status = "MAINTENANCE"
)

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusAvailable, StatusOccupied, StatusReserved, StatusMaintenance:
		return Status(raw), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

func (s *Status) Scan(src any) error {
	var raw string

	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("cannot scan %T into room status", src)
	}

	parsed, err := ParseStatus(raw)
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

func (s Status) Value() (driver.Value, error) {
	if _, err := ParseStatus(string(s)); err != nil {
		return nil, err
	}

	return string(s), nil
}

type Room struct {
	ID               string          `db:"id"`
	RoomNumber       string          `db:"room_number"`
	RoomType         string          `db:"room_type"`
	Floor            int             `db:"floor"`
	Capacity         int             `db:"capacity"`
	Status           Status          `db:"status"`
	Features         pq.StringArray  `db:"features"`
	Tariff           decimal.Decimal `db:"tariff"`
	Description      *string         `db:"description"`
	Image            *string         `db:"image"`
	ReservedBy       *string         `db:"reserved_by"`
	ReservedAt       *time.Time      `db:"reserved_at"`
	ReservationNotes *string         `db:"reservation_notes"`
	model.Metadata
}

func (r Room) Allocatable() bool {
	return r.Status == StatusAvailable
}

const (
	MaintenanceTableName  = "room_maintenances"
	MaintenanceEntityName = "room_maintenance"

	FieldMaintenanceRoomID = "room_id"
	FieldMaintenanceStatus = "status"
	FieldMaintenanceStart  = "start_date"
	FieldMaintenanceEnd    = "end_date"
)

type MaintenanceStatus string

const (
	MaintenanceInProgress MaintenanceStatus = "IN_PROGRESS"
	MaintenanceCompleted  MaintenanceStatus = "COMPLETED"
)

// Maintenance is a work order on a room. A room has at most one IN_PROGRESS order.
type Maintenance struct {
	ID        string            `db:"id"`
	RoomID    string            `db:"room_id"`
	Reason    string            `db:"reason"`
	StartDate time.Time         `db:"start_date"`
	EndDate   *time.Time        `db:"end_date"`
	Status    MaintenanceStatus `db:"status"`
	model.Metadata
}
