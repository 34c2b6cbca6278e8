package model

import (
	"time"

	"vfast/shared/model"
)

const (
	TableName  = "bookings"
	EntityName = "booking"

	FieldID                    = "id"
	FieldUserID                = "user_id"
	FieldPurpose               = "purpose"
	FieldBookingType           = "booking_type"
	FieldGuestCount            = "guest_count"
	FieldNumberOfRooms         = "number_of_rooms"
	FieldCheckInDate           = "check_in_date"
	FieldCheckOutDate          = "check_out_date"
	FieldSpecialRequests       = "special_requests"
	FieldStatus                = "status"
	FieldDepartment            = "department"
	FieldAdminNotes            = "admin_notes"
	FieldVFastNotes            = "vfast_notes"
	FieldDepartmentNotes       = "department_notes"
	FieldDepartmentApproverID  = "department_approver_id"
	FieldDepartmentApprovalAt  = "department_approval_at"
	FieldAdminApproverID       = "admin_approver_id"
	FieldAdminApprovalAt       = "admin_approval_at"
	FieldIsReconsidered        = "is_reconsidered"
	FieldReconsiderationCount  = "reconsideration_count"
	FieldReconsideredFromID    = "reconsidered_from_id"
	FieldIsDeleted             = "is_deleted"
	FieldCheckInStatus         = "check_in_status"
	FieldDocumentPath          = "document_path"
	FieldKeyHandedOver         = "key_handed_over"
	FieldCreatedAt             = "created_at"
)

const (
	ArgExpectedStatus        = "expected_status"
	ArgExpectedCheckInStatus = "expected_check_in_status"

	DocumentDirectory = "booking-documents"

	DefaultReconsiderationsCap = 3
)

// SortableFields are the columns a listing may be ordered by.
var SortableFields = []string{FieldCreatedAt, FieldCheckInDate, FieldCheckOutDate, FieldStatus, FieldGuestCount}

type Booking struct {
	ID                   string        `db:"id"`
	UserID               string        `db:"user_id"`
	Purpose              string        `db:"purpose"`
	BookingType          BookingType   `db:"booking_type"`
	GuestCount           int           `db:"guest_count"`
	NumberOfRooms        int           `db:"number_of_rooms"`
	CheckInDate          time.Time     `db:"check_in_date"`
	CheckOutDate         time.Time     `db:"check_out_date"`
	SpecialRequests      *string       `db:"special_requests"`
	Status               Status        `db:"status"`
	Department           *string       `db:"department"`
	AdminNotes           *string       `db:"admin_notes"`
	VFastNotes           *string       `db:"vfast_notes"`
	DepartmentNotes      *string       `db:"department_notes"`
	DepartmentApproverID *string       `db:"department_approver_id"`
	DepartmentApprovalAt *time.Time    `db:"department_approval_at"`
	AdminApproverID      *string       `db:"admin_approver_id"`
	AdminApprovalAt      *time.Time    `db:"admin_approval_at"`
	IsReconsidered       bool          `db:"is_reconsidered"`
	ReconsiderationCount int           `db:"reconsideration_count"`
	ReconsideredFromID   *string       `db:"reconsidered_from_id"`
	IsDeleted            bool          `db:"is_deleted"`
	CheckInStatus        CheckInStatus `db:"check_in_status"`
	DocumentPath         *string       `db:"document_path"`
	KeyHandedOver        bool          `db:"key_handed_over"`
	model.Metadata
}

func (b Booking) Stage() Stage {
	return StageOf(b.Status, b.CheckInStatus)
}

// Nights is the stay length in whole days.
func (b Booking) Nights() int {
	return int(b.CheckOutDate.Sub(b.CheckInDate).Hours() / 24) //nolint:mnd
}

func (b Booking) DepartmentName() string {
	if b.Department == nil {
		return ""
	}

	return *b.Department
}

const (
	RejectionTableName  = "booking_rejections"
	RejectionEntityName = "booking_rejection"

	FieldRejectionBookingID = "booking_id"
	FieldRejectedAt         = "rejected_at"
)

// RejectionStage records which review step produced a rejection.
type RejectionStage string

const (
	RejectionStageDepartment RejectionStage = "DEPARTMENT"
	RejectionStageAdmin      RejectionStage = "ADMIN"
)

// Rejection is one append-only entry of a booking's rejection history.
type Rejection struct {
	ID         string         `db:"id"`
	BookingID  string         `db:"booking_id"`
	Reason     string         `db:"reason"`
	RejectedBy string         `db:"rejected_by"`
	Stage      RejectionStage `db:"stage"`
	RejectedAt time.Time      `db:"rejected_at"`
}

const (
	BookingRoomTableName  = "booking_rooms"
	BookingRoomEntityName = "booking_room"

	FieldBookingRoomBookingID = "booking_id"
	FieldBookingRoomRoomID    = "room_id"
	FieldBookingRoomNumber    = "room_number"
	FieldBookingRoomCheckIn   = "check_in_date"
	FieldBookingRoomCheckOut  = "check_out_date"
	FieldReleasedAt           = "released_at"
)

// BookingRoom binds one room to one booking for the stay. A binding is active while ReleasedAt is nil.
type BookingRoom struct {
	ID           string     `db:"id"`
	BookingID    string     `db:"booking_id"`
	RoomID       string     `db:"room_id"`
	RoomNumber   string     `db:"room_number"`
	CheckInDate  time.Time  `db:"check_in_date"`
	CheckOutDate time.Time  `db:"check_out_date"`
	AllocatedAt  time.Time  `db:"allocated_at"`
	AllocatedBy  string     `db:"allocated_by"`
	ReleasedAt   *time.Time `db:"released_at"`
}
