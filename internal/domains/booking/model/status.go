package model

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

var (
	ErrUnknownStatus        = errors.New("unknown booking status")
	ErrUnknownBookingType   = errors.New("unknown booking type")
	ErrUnknownCheckInStatus = errors.New("unknown check-in status")
	ErrUnknownStage         = errors.New("unknown workflow stage")
)

// Status is the canonical booking state. Only the six values below are ever persisted.
type Status string

const (
	StatusPendingDepartmentApproval Status = "PENDING_DEPARTMENT_APPROVAL"
	StatusPendingAdminApproval      Status = "PENDING_ADMIN_APPROVAL"
	StatusApproved                  Status = "APPROVED"
	StatusRejected                  Status = "REJECTED"
	StatusAllocated                 Status = "ALLOCATED"
	StatusPendingReconsideration    Status = "PENDING_RECONSIDERATION"
)

var statuses = []Status{
	StatusPendingDepartmentApproval,
	StatusPendingAdminApproval,
	StatusApproved,
	StatusRejected,
	StatusAllocated,
	StatusPendingReconsideration,
}

func Statuses() []Status {
	return append([]Status(nil), statuses...)
}

func ParseStatus(raw string) (Status, error) {
	for _, s := range statuses {
		if string(s) == raw {
			return s, nil
		}
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, raw)
}

func (s Status) Valid() bool {
	_, err := ParseStatus(string(s))

	return err == nil
}

func (s *Status) Scan(src any) error {
	parsed, err := scanEnum(src, ParseStatus)
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}

func (s Status) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatus, string(s))
	}

	return string(s), nil
}

type BookingType string

const (
	BookingTypeOfficial BookingType = "OFFICIAL"
	BookingTypePersonal BookingType = "PERSONAL"
)

func ParseBookingType(raw string) (BookingType, error) {
	switch BookingType(raw) {
	case BookingTypeOfficial, BookingTypePersonal:
		return BookingType(raw), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownBookingType, raw)
}

func (t *BookingType) Scan(src any) error {
	parsed, err := scanEnum(src, ParseBookingType)
	if err != nil {
		return err
	}

	*t = parsed

	return nil
}

func (t BookingType) Value() (driver.Value, error) {
	if _, err := ParseBookingType(string(t)); err != nil {
		return nil, err
	}

	return string(t), nil
}

// CheckInStatus is the booking level stay sub-state, advanced by staff.
type CheckInStatus string

const (
	CheckInStatusNotCheckedIn CheckInStatus = "NOT_CHECKED_IN"
	CheckInStatusCheckedIn    CheckInStatus = "CHECKED_IN"
	CheckInStatusCheckedOut   CheckInStatus = "CHECKED_OUT"
)

func ParseCheckInStatus(raw string) (CheckInStatus, error) {
	switch CheckInStatus(raw) {
	case CheckInStatusNotCheckedIn, CheckInStatusCheckedIn, CheckInStatusCheckedOut:
		return CheckInStatus(raw), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownCheckInStatus, raw)
}

func (c *CheckInStatus) Scan(src any) error {
	parsed, err := scanEnum(src, ParseCheckInStatus)
	if err != nil {
		return err
	}

	*c = parsed

	return nil
}

func (c CheckInStatus) Value() (driver.Value, error) {
	if _, err := ParseCheckInStatus(string(c)); err != nil {
		return nil, err
	}

	return string(c), nil
}

// Stage is the UI facing projection of (Status, CheckInStatus). It is never stored.
type Stage string

const (
	StageDepartmentReview   Stage = "DEPARTMENT_REVIEW"
	StageAdminReview        Stage = "ADMIN_REVIEW"
	StageAwaitingAllocation Stage = "AWAITING_ALLOCATION"
	StageAllocated          Stage = "ALLOCATED"
	StageCheckedIn          Stage = "CHECKED_IN"
	StageCompleted          Stage = "COMPLETED"
	StageRejected           Stage = "REJECTED"
	StageReconsideration    Stage = "RECONSIDERATION"
)

// StageOf derives the workflow stage. It is the only way a stage is produced.
func StageOf(status Status, checkIn CheckInStatus) Stage {
	switch status {
	case StatusPendingDepartmentApproval:
		return StageDepartmentReview
	case StatusPendingAdminApproval:
		return StageAdminReview
	case StatusApproved:
		return StageAwaitingAllocation
	case StatusRejected:
		return StageRejected
	case StatusPendingReconsideration:
		return StageReconsideration
	case StatusAllocated:
		switch checkIn {
		case CheckInStatusCheckedIn:
			return StageCheckedIn
		case CheckInStatusCheckedOut:
			return StageCompleted
		default:
			return StageAllocated
		}
	}

	return ""
}

// StageCondition is the (status, check-in) pair a stage filter selects on.
// CheckIn is empty when the stage does not constrain it.
type StageCondition struct {
	Status  Status
	CheckIn CheckInStatus
}

func ParseStage(raw string) (StageCondition, error) {
	switch Stage(raw) {
	case StageDepartmentReview:
		return StageCondition{Status: StatusPendingDepartmentApproval}, nil
	case StageAdminReview:
		return StageCondition{Status: StatusPendingAdminApproval}, nil
	case StageAwaitingAllocation:
		return StageCondition{Status: StatusApproved}, nil
	case StageRejected:
		return StageCondition{Status: StatusRejected}, nil
	case StageReconsideration:
		return StageCondition{Status: StatusPendingReconsideration}, nil
	case StageAllocated:
		return StageCondition{Status: StatusAllocated, CheckIn: CheckInStatusNotCheckedIn}, nil
	case StageCheckedIn:
		return StageCondition{Status: StatusAllocated, CheckIn: CheckInStatusCheckedIn}, nil
	case StageCompleted:
		return StageCondition{Status: StatusAllocated, CheckIn: CheckInStatusCheckedOut}, nil
	}

	return StageCondition{}, fmt.Errorf("%w: %q", ErrUnknownStage, raw)
}

func scanEnum[T ~string](src any, parse func(string) (T, error)) (T, error) {
	switch v := src.(type) {
	case string:
		return parse(v)
	case []byte:
		return parse(string(v))
	}

	var zero T

	return zero, fmt.Errorf("cannot scan %T into %T", src, zero)
}
