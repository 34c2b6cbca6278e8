// Package workflow holds the booking state machine. It is pure: it validates a
// command against a booking and returns the column changes to persist, leaving
// persistence and locking to the caller.
package workflow

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"vfast/internal/domains/booking/model"
	"vfast/permissions"
	"vfast/shared"
	"vfast/shared/constant"
	"vfast/shared/failure"

	"github.com/google/uuid"
)

type Action string

const (
	ActionDepartmentApprove Action = "DEPARTMENT_APPROVE"
	ActionDepartmentReject  Action = "DEPARTMENT_REJECT"
	ActionAdminApprove      Action = "ADMIN_APPROVE"
	ActionAdminReject       Action = "ADMIN_REJECT"
	ActionAllocate          Action = "ALLOCATE"
	ActionCancelAllocation  Action = "CANCEL_ALLOCATION"
	ActionCheckIn           Action = "CHECK_IN"
	ActionCheckOut          Action = "CHECK_OUT"
)

type rule struct {
	from        []model.Status
	to          model.Status
	fromCheckIn []model.CheckInStatus
	toCheckIn   model.CheckInStatus
	roles       []string
}

// Legal source states per action. CHECK_IN and CHECK_OUT move only the stay sub-state.
var rules = map[Action]rule{
	ActionDepartmentApprove: {
		from:  []model.Status{model.StatusPendingDepartmentApproval},
		to:    model.StatusPendingAdminApproval,
		roles: []string{constant.RoleDepartment, constant.RoleAdmin},
	},
	ActionDepartmentReject: {
		from:  []model.Status{model.StatusPendingDepartmentApproval},
		to:    model.StatusRejected,
		roles: []string{constant.RoleDepartment, constant.RoleAdmin},
	},
	ActionAdminApprove: {
		from:  []model.Status{model.StatusPendingAdminApproval, model.StatusPendingReconsideration},
		to:    model.StatusApproved,
		roles: []string{constant.RoleAdmin},
	},
	ActionAdminReject: {
		from:  []model.Status{model.StatusPendingAdminApproval, model.StatusPendingReconsideration},
		to:    model.StatusRejected,
		roles: []string{constant.RoleAdmin},
	},
	ActionAllocate: {
		from:  []model.Status{model.StatusApproved, model.StatusPendingReconsideration},
		to:    model.StatusAllocated,
		roles: []string{constant.RoleVFast},
	},
	ActionCancelAllocation: {
		from:        []model.Status{model.StatusAllocated},
		to:          model.StatusPendingReconsideration,
		fromCheckIn: []model.CheckInStatus{model.CheckInStatusNotCheckedIn},
		roles:       []string{constant.RoleVFast},
	},
	ActionCheckIn: {
		from:        []model.Status{model.StatusAllocated},
		to:          model.StatusAllocated,
		fromCheckIn: []model.CheckInStatus{model.CheckInStatusNotCheckedIn},
		toCheckIn:   model.CheckInStatusCheckedIn,
		roles:       []string{constant.RoleVFast},
	},
	ActionCheckOut: {
		from:        []model.Status{model.StatusAllocated},
		to:          model.StatusAllocated,
		fromCheckIn: []model.CheckInStatus{model.CheckInStatusCheckedIn},
		toCheckIn:   model.CheckInStatusCheckedOut,
		roles:       []string{constant.RoleVFast},
	},
}

// Actor is the authenticated user issuing a command.
type Actor struct {
	ID         string
	Role       string
	Department string
}

type Command struct {
	Action Action
	Actor  Actor
	// Notes is routed to the note field owned by the acting role. Nil leaves it untouched.
	Notes *string
	// Reason is required for rejections.
	Reason        string
	KeyHandedOver *bool
	At            time.Time
}

// Transition is the validated outcome of a command.
type Transition struct {
	From      model.Status
	To        model.Status
	Booking   model.Booking
	Changes   map[string]any
	Rejection *model.Rejection
}

func (t Transition) StatusChanged() bool {
	return t.From != t.To
}

type Machine struct {
	maxReconsiderations int
}

func New(maxReconsiderations int) *Machine {
	if maxReconsiderations <= 0 {
		maxReconsiderations = model.DefaultReconsiderationsCap
	}

	return &Machine{maxReconsiderations: maxReconsiderations}
}

func (m *Machine) MaxReconsiderations() int {
	return m.maxReconsiderations
}

// CanPerform reports whether role may ever issue action.
func CanPerform(role string, action Action) bool {
	r, ok := rules[action]

	return ok && permissions.HasRole(role, r.roles...)
}

// InitialStatus routes OFFICIAL bookings to department review and PERSONAL ones straight to admin review.
func InitialStatus(bookingType model.BookingType) model.Status {
	if bookingType == model.BookingTypeOfficial {
		return model.StatusPendingDepartmentApproval
	}

	return model.StatusPendingAdminApproval
}

// Open validates a new booking drafted by a requestor and sets its initial state.
func (m *Machine) Open(draft model.Booking, actor Actor) (model.Booking, error) {
	if err := permissions.Require(actor.Role, constant.RoleRequestor); err != nil {
		return draft, err
	}

	if err := validateDraft(draft); err != nil {
		return draft, err
	}

	draft.UserID = actor.ID
	draft.Status = InitialStatus(draft.BookingType)
	draft.CheckInStatus = model.CheckInStatusNotCheckedIn
	draft.IsDeleted = false
	draft.KeyHandedOver = false

	if draft.BookingType == model.BookingTypePersonal {
		draft.Department = nil
	}

	return draft, nil
}

// Resubmit turns a rejected booking into a fresh request linked to the original.
func (m *Machine) Resubmit(prev model.Booking, draft model.Booking, actor Actor) (model.Booking, error) {
	if prev.UserID != actor.ID {
		return draft, failure.ForbiddenOf(permissions.ErrNotAuthorized, "only the requestor may resubmit this booking")
	}

	if prev.Status != model.StatusRejected || prev.IsDeleted {
		return draft, invalid(prev, "resubmit")
	}

	opened, err := m.Open(draft, actor)
	if err != nil {
		return opened, err
	}

	prevID := prev.ID
	opened.ReconsideredFromID = &prevID
	opened.IsReconsidered = true
	opened.ReconsiderationCount = prev.ReconsiderationCount

	return opened, nil
}

// Apply validates cmd against b and returns the resulting transition. b is not modified.
func (m *Machine) Apply(b model.Booking, cmd Command) (Transition, error) {
	r, ok := rules[cmd.Action]
	if !ok {
		return Transition{}, failure.ConflictOf(ErrInvalidTransition, fmt.Sprintf("unknown action %q", cmd.Action))
	}

	if err := permissions.Require(cmd.Actor.Role, r.roles...); err != nil {
		return Transition{}, err
	}

	if cmd.Actor.Role == constant.RoleDepartment && !strings.EqualFold(b.DepartmentName(), cmd.Actor.Department) {
		return Transition{}, failure.ForbiddenOf(permissions.ErrNotAuthorized, "booking belongs to another department")
	}

	if b.IsDeleted || !slices.Contains(r.from, b.Status) {
		return Transition{}, invalid(b, cmd.Action)
	}

	if len(r.fromCheckIn) > 0 && !slices.Contains(r.fromCheckIn, b.CheckInStatus) {
		return Transition{}, checkInConflict(b, cmd.Action)
	}

	at := cmd.At
	if at.IsZero() {
		at = time.Now()
	}

	t := Transition{
		From:    b.Status,
		To:      r.to,
		Booking: b,
		Changes: map[string]any{
			constant.FieldModifiedAt: at,
			constant.FieldModifiedBy: cmd.Actor.ID,
		},
	}

	if t.StatusChanged() {
		t.set(model.FieldStatus, r.to)
	}

	if r.toCheckIn != "" {
		t.set(model.FieldCheckInStatus, r.toCheckIn)
	}

	var err error

	switch cmd.Action {
	case ActionDepartmentApprove:
		t.set(model.FieldDepartmentApproverID, cmd.Actor.ID)
		t.set(model.FieldDepartmentApprovalAt, at)
		t.note(model.FieldDepartmentNotes, cmd.Notes)
	case ActionDepartmentReject:
		t.note(model.FieldDepartmentNotes, cmd.Notes)
		err = t.reject(cmd, model.RejectionStageDepartment, at)
	case ActionAdminApprove:
		if b.Status == model.StatusPendingReconsideration {
			if b.ReconsiderationCount >= m.maxReconsiderations {
				return Transition{}, failure.ConflictOf(ErrInvalidTransition,
					fmt.Sprintf("booking has reached the limit of %d reconsiderations", m.maxReconsiderations))
			}

			t.set(model.FieldReconsiderationCount, b.ReconsiderationCount+1)
			t.set(model.FieldIsReconsidered, true)
		}

		t.set(model.FieldAdminApproverID, cmd.Actor.ID)
		t.set(model.FieldAdminApprovalAt, at)
		t.note(model.FieldAdminNotes, cmd.Notes)
	case ActionAdminReject:
		t.note(model.FieldAdminNotes, cmd.Notes)
		err = t.reject(cmd, model.RejectionStageAdmin, at)
	case ActionAllocate:
		t.set(model.FieldCheckInStatus, model.CheckInStatusNotCheckedIn)
		t.set(model.FieldKeyHandedOver, false)
		t.note(model.FieldVFastNotes, cmd.Notes)
	case ActionCancelAllocation:
		t.note(model.FieldVFastNotes, cmd.Notes)
	case ActionCheckIn:
		if cmd.KeyHandedOver != nil {
			t.set(model.FieldKeyHandedOver, *cmd.KeyHandedOver)
		}

		t.note(model.FieldVFastNotes, cmd.Notes)
	case ActionCheckOut:
		t.note(model.FieldVFastNotes, cmd.Notes)
	}

	if err != nil {
		return Transition{}, err
	}

	return t, nil
}

func (t *Transition) set(field string, value any) {
	t.Changes[field] = value

	b := &t.Booking

	switch field {
	case model.FieldStatus:
		b.Status, _ = value.(model.Status)
	case model.FieldCheckInStatus:
		b.CheckInStatus, _ = value.(model.CheckInStatus)
	case model.FieldDepartmentApproverID:
		b.DepartmentApproverID = strPtr(value)
	case model.FieldDepartmentApprovalAt:
		b.DepartmentApprovalAt = timePtr(value)
	case model.FieldAdminApproverID:
		b.AdminApproverID = strPtr(value)
	case model.FieldAdminApprovalAt:
		b.AdminApprovalAt = timePtr(value)
	case model.FieldDepartmentNotes:
		b.DepartmentNotes = strPtr(value)
	case model.FieldAdminNotes:
		b.AdminNotes = strPtr(value)
	case model.FieldVFastNotes:
		b.VFastNotes = strPtr(value)
	case model.FieldReconsiderationCount:
		b.ReconsiderationCount, _ = value.(int)
	case model.FieldIsReconsidered:
		b.IsReconsidered, _ = value.(bool)
	case model.FieldKeyHandedOver:
		b.KeyHandedOver, _ = value.(bool)
	}
}

func (t *Transition) note(field string, notes *string) {
	if notes == nil {
		return
	}

	t.set(field, *notes)
}

func (t *Transition) reject(cmd Command, stage model.RejectionStage, at time.Time) error {
	reason := strings.TrimSpace(cmd.Reason)
	if reason == "" {
		return failure.BadRequestFromString("rejection reason is required")
	}

	t.Rejection = &model.Rejection{
		ID:         uuid.NewString(),
		BookingID:  t.Booking.ID,
		Reason:     reason,
		RejectedBy: cmd.Actor.ID,
		Stage:      stage,
		RejectedAt: at,
	}

	return nil
}

func validateDraft(b model.Booking) error {
	if _, err := model.ParseBookingType(string(b.BookingType)); err != nil {
		return failure.BadRequest(err)
	}

	if b.BookingType == model.BookingTypeOfficial && strings.TrimSpace(b.DepartmentName()) == "" {
		return failure.BadRequestFromString("department is required for official bookings")
	}

	if b.GuestCount < 1 {
		return failure.BadRequestFromString("guest_count must be at least 1")
	}

	if b.NumberOfRooms < 1 {
		return failure.BadRequestFromString("number_of_rooms must be at least 1")
	}

	if !b.CheckOutDate.After(b.CheckInDate) {
		return failure.BadRequestFromString("check_out_date must be after check_in_date")
	}

	return nil
}

func invalid(b model.Booking, action any) error {
	if b.IsDeleted {
		return failure.ConflictOf(ErrInvalidTransition, fmt.Sprintf("cannot %v a deleted booking", action))
	}

	return failure.ConflictOf(ErrInvalidTransition, fmt.Sprintf("cannot %v a booking in status %s", action, b.Status))
}

func checkInConflict(b model.Booking, action Action) error {
	switch b.CheckInStatus {
	case model.CheckInStatusCheckedIn, model.CheckInStatusCheckedOut:
		if action == ActionCheckIn || action == ActionCancelAllocation {
			return failure.ConflictOf(ErrAlreadyCheckedIn, "guests have already checked in for this booking")
		}
	case model.CheckInStatusNotCheckedIn:
		return failure.ConflictOf(ErrNotCheckedIn, "guests have not checked in for this booking")
	}

	return failure.ConflictOf(ErrInvalidTransition, fmt.Sprintf("cannot %v a booking whose stay is %s", action, b.CheckInStatus))
}

func strPtr(value any) *string {
	s, ok := value.(string)
	if !ok {
		return nil
	}

	return &s
}

func timePtr(value any) *time.Time {
	t, ok := value.(time.Time)
	if !ok {
		return nil
	}

	return &t
}

// ActorFromContext reads the authenticated user placed on ctx by the auth middleware.
func ActorFromContext(ctx context.Context) Actor {
	id, role, department := shared.ActorFromContext(ctx)

	return Actor{ID: id, Role: role, Department: department}
}
