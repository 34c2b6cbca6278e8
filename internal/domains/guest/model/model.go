package model

import (
	"time"

	"vfast/shared/model"
)

const (
	TableName  = "guests"
	EntityName = "guest"

	FieldID           = "id"
	FieldBookingID    = "booking_id"
	FieldName         = "name"
	FieldCheckedIn    = "checked_in"
	FieldCheckInTime  = "check_in_time"
	FieldCheckOutTime = "check_out_time"
	FieldKYCURL       = "kyc_url"
	FieldVerified     = "verified"
	FieldVerifiedBy   = "verified_by"
	FieldVerifiedAt   = "verified_at"
	FieldCreatedAt    = "created_at"

	ArgExpectedCheckedIn = "expected_checked_in"

	KYCDirectory = "guest-kyc"
)

// Guest is one person staying under a booking. Each guest checks in and out on its own,
// independently of the booking level check-in status.
type Guest struct {
	ID           string     `db:"id"`
	BookingID    string     `db:"booking_id"`
	Name         string     `db:"name"`
	Contact      *string    `db:"contact"`
	IDType       *string    `db:"id_type"`
	IDNumber     *string    `db:"id_number"`
	KYCURL       *string    `db:"kyc_url"`
	CheckedIn    bool       `db:"checked_in"`
	CheckInTime  *time.Time `db:"check_in_time"`
	CheckOutTime *time.Time `db:"check_out_time"`
	Verified     bool       `db:"verified"`
	VerifiedBy   *string    `db:"verified_by"`
	VerifiedAt   *time.Time `db:"verified_at"`
	model.Metadata
}
