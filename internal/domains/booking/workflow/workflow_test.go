package workflow_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"vfast/internal/domains/booking/model"
	"vfast/internal/domains/booking/workflow"
	"vfast/permissions"
	"vfast/shared/constant"
	"vfast/shared/failure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	requestor  = workflow.Actor{ID: "u-1", Role: constant.RoleRequestor}
	deptHead   = workflow.Actor{ID: "d-1", Role: constant.RoleDepartment, Department: "Physics"}
	otherHead  = workflow.Actor{ID: "d-2", Role: constant.RoleDepartment, Department: "Chemistry"}
	admin      = workflow.Actor{ID: "a-1", Role: constant.RoleAdmin}
	vfastStaff = workflow.Actor{ID: "v-1", Role: constant.RoleVFast}
)

func strRef(s string) *string { return &s }

func draft(bookingType model.BookingType) model.Booking {
	b := model.Booking{
		ID:            "b-1",
		Purpose:       "Conference",
		BookingType:   bookingType,
		GuestCount:    2,
		NumberOfRooms: 1,
		CheckInDate:   time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC),
		CheckOutDate:  time.Date(2025, 1, 12, 0, 0, 0, 0, time.UTC),
	}

	if bookingType == model.BookingTypeOfficial {
		b.Department = strRef("Physics")
	}

	return b
}

func inStatus(status model.Status) model.Booking {
	b := draft(model.BookingTypeOfficial)
	b.UserID = requestor.ID
	b.Status = status
	b.CheckInStatus = model.CheckInStatusNotCheckedIn

	return b
}

func TestMachine_Open(t *testing.T) {
	m := workflow.New(3)

	tests := []struct {
		name       string
		booking    model.Booking
		actor      workflow.Actor
		wantStatus model.Status
		wantCode   int
	}{
		{
			name:       "official goes to department review",
			booking:    draft(model.BookingTypeOfficial),
			actor:      requestor,
			wantStatus: model.StatusPendingDepartmentApproval,
		},
		{
			name:       "personal skips department review",
			booking:    draft(model.BookingTypePersonal),
			actor:      requestor,
			wantStatus: model.StatusPendingAdminApproval,
		},
		{
			name: "official without department",
			booking: func() model.Booking {
				b := draft(model.BookingTypeOfficial)
				b.Department = nil

				return b
			}(),
			actor:    requestor,
			wantCode: http.StatusBadRequest,
		},
		{
			name: "check out before check in",
			booking: func() model.Booking {
				b := draft(model.BookingTypePersonal)
				b.CheckOutDate = b.CheckInDate

				return b
			}(),
			actor:    requestor,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "only requestors open bookings",
			booking:  draft(model.BookingTypePersonal),
			actor:    admin,
			wantCode: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.Open(tt.booking, tt.actor)

			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, model.CheckInStatusNotCheckedIn, got.CheckInStatus)
			assert.Equal(t, tt.actor.ID, got.UserID)
		})
	}
}

func TestMachine_Apply_HappyPath(t *testing.T) {
	m := workflow.New(3)
	b, err := m.Open(draft(model.BookingTypeOfficial), requestor)
	require.NoError(t, err)

	steps := []struct {
		cmd        workflow.Command
		wantStatus model.Status
		wantStage  model.Stage
	}{
		{workflow.Command{Action: workflow.ActionDepartmentApprove, Actor: deptHead, Notes: strRef("ok")}, model.StatusPendingAdminApproval, model.StageAdminReview},
		{workflow.Command{Action: workflow.ActionAdminApprove, Actor: admin}, model.StatusApproved, model.StageAwaitingAllocation},
		{workflow.Command{Action: workflow.ActionAllocate, Actor: vfastStaff}, model.StatusAllocated, model.StageAllocated},
		{workflow.Command{Action: workflow.ActionCheckIn, Actor: vfastStaff}, model.StatusAllocated, model.StageCheckedIn},
		{workflow.Command{Action: workflow.ActionCheckOut, Actor: vfastStaff}, model.StatusAllocated, model.StageCompleted},
	}

	for _, step := range steps {
		tr, err := m.Apply(b, step.cmd)
		require.NoError(t, err, step.cmd.Action)

		assert.Equal(t, step.wantStatus, tr.Booking.Status, step.cmd.Action)
		assert.Equal(t, step.wantStage, tr.Booking.Stage(), step.cmd.Action)

		b = tr.Booking
	}

	assert.Equal(t, "ok", *b.DepartmentNotes)
	assert.Equal(t, deptHead.ID, *b.DepartmentApproverID)
	assert.Equal(t, admin.ID, *b.AdminApproverID)
	assert.Nil(t, b.AdminNotes)
}

func TestMachine_Apply_Rejections(t *testing.T) {
	m := workflow.New(3)

	tests := []struct {
		name      string
		status    model.Status
		cmd       workflow.Command
		wantStage model.RejectionStage
		wantCode  int
	}{
		{
			name:      "department rejects",
			status:    model.StatusPendingDepartmentApproval,
			cmd:       workflow.Command{Action: workflow.ActionDepartmentReject, Actor: deptHead, Reason: "no budget"},
			wantStage: model.RejectionStageDepartment,
		},
		{
			name:      "admin rejects",
			status:    model.StatusPendingAdminApproval,
			cmd:       workflow.Command{Action: workflow.ActionAdminReject, Actor: admin, Reason: "full"},
			wantStage: model.RejectionStageAdmin,
		},
		{
			name:      "admin rejects reconsideration",
			status:    model.StatusPendingReconsideration,
			cmd:       workflow.Command{Action: workflow.ActionAdminReject, Actor: admin, Reason: "still full"},
			wantStage: model.RejectionStageAdmin,
		},
		{
			name:     "reason required",
			status:   model.StatusPendingAdminApproval,
			cmd:      workflow.Command{Action: workflow.ActionAdminReject, Actor: admin, Reason: "  "},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "rejected booking cannot be rejected again",
			status:   model.StatusRejected,
			cmd:      workflow.Command{Action: workflow.ActionAdminReject, Actor: admin, Reason: "again"},
			wantCode: http.StatusConflict,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := m.Apply(inStatus(tt.status), tt.cmd)

			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, model.StatusRejected, tr.To)
			require.NotNil(t, tr.Rejection)
			assert.Equal(t, tt.wantStage, tr.Rejection.Stage)
			assert.Equal(t, tt.cmd.Actor.ID, tr.Rejection.RejectedBy)
			assert.Equal(t, "b-1", tr.Rejection.BookingID)
		})
	}
}

func TestMachine_Apply_Authorization(t *testing.T) {
	m := workflow.New(3)

	tests := []struct {
		name   string
		status model.Status
		cmd    workflow.Command
	}{
		{"requestor cannot approve", model.StatusPendingAdminApproval, workflow.Command{Action: workflow.ActionAdminApprove, Actor: requestor}},
		{"department cannot admin approve", model.StatusPendingAdminApproval, workflow.Command{Action: workflow.ActionAdminApprove, Actor: deptHead}},
		{"other department", model.StatusPendingDepartmentApproval, workflow.Command{Action: workflow.ActionDepartmentApprove, Actor: otherHead}},
		{"admin cannot allocate", model.StatusApproved, workflow.Command{Action: workflow.ActionAllocate, Actor: admin}},
		{"vfast cannot reject", model.StatusPendingAdminApproval, workflow.Command{Action: workflow.ActionAdminReject, Actor: vfastStaff, Reason: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := m.Apply(inStatus(tt.status), tt.cmd)

			require.Error(t, err)
			assert.ErrorIs(t, err, permissions.ErrNotAuthorized)
			assert.Equal(t, http.StatusForbidden, failure.GetCode(err))
		})
	}
}

func TestMachine_Apply_InvalidTransitions(t *testing.T) {
	m := workflow.New(3)

	for _, status := range model.Statuses() {
		for _, action := range []workflow.Action{workflow.ActionAllocate, workflow.ActionDepartmentApprove, workflow.ActionCancelAllocation} {
			actor := vfastStaff
			if action == workflow.ActionDepartmentApprove {
				actor = deptHead
			}

			_, err := m.Apply(inStatus(status), workflow.Command{Action: action, Actor: actor})

			legal := (action == workflow.ActionAllocate && (status == model.StatusApproved || status == model.StatusPendingReconsideration)) ||
				(action == workflow.ActionDepartmentApprove && status == model.StatusPendingDepartmentApproval) ||
				(action == workflow.ActionCancelAllocation && status == model.StatusAllocated)

			if legal {
				assert.NoError(t, err, "%s from %s", action, status)

				continue
			}

			assert.ErrorIs(t, err, workflow.ErrInvalidTransition, "%s from %s", action, status)
		}
	}

	deleted := inStatus(model.StatusPendingAdminApproval)
	deleted.IsDeleted = true

	_, err := m.Apply(deleted, workflow.Command{Action: workflow.ActionAdminApprove, Actor: admin})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	_, err = m.Apply(inStatus(model.StatusApproved), workflow.Command{Action: "TELEPORT", Actor: admin})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)
}

func TestMachine_Apply_CancelAndReconsider(t *testing.T) {
	m := workflow.New(2)

	b := inStatus(model.StatusAllocated)
	b.VFastNotes = strRef("room 101")

	tr, err := m.Apply(b, workflow.Command{Action: workflow.ActionCancelAllocation, Actor: vfastStaff, Notes: strRef("pipe burst")})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingReconsideration, tr.To)
	assert.Equal(t, model.StageReconsideration, tr.Booking.Stage())
	assert.Equal(t, "pipe burst", *tr.Booking.VFastNotes)

	b = tr.Booking

	for i := 1; i <= 2; i++ {
		tr, err = m.Apply(b, workflow.Command{Action: workflow.ActionAdminApprove, Actor: admin})
		require.NoError(t, err)
		assert.Equal(t, i, tr.Booking.ReconsiderationCount)
		assert.True(t, tr.Booking.IsReconsidered)

		b = tr.Booking
		b.Status = model.StatusPendingReconsideration
	}

	_, err = m.Apply(b, workflow.Command{Action: workflow.ActionAdminApprove, Actor: admin})
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	tr, err = m.Apply(b, workflow.Command{Action: workflow.ActionAllocate, Actor: vfastStaff})
	require.NoError(t, err)
	assert.Equal(t, model.StatusAllocated, tr.To)
}

func TestMachine_Apply_StayGuards(t *testing.T) {
	m := workflow.New(3)

	checkedIn := inStatus(model.StatusAllocated)
	checkedIn.CheckInStatus = model.CheckInStatusCheckedIn

	_, err := m.Apply(checkedIn, workflow.Command{Action: workflow.ActionCancelAllocation, Actor: vfastStaff})
	assert.ErrorIs(t, err, workflow.ErrAlreadyCheckedIn)

	_, err = m.Apply(checkedIn, workflow.Command{Action: workflow.ActionCheckIn, Actor: vfastStaff})
	assert.ErrorIs(t, err, workflow.ErrAlreadyCheckedIn)

	_, err = m.Apply(inStatus(model.StatusAllocated), workflow.Command{Action: workflow.ActionCheckOut, Actor: vfastStaff})
	assert.ErrorIs(t, err, workflow.ErrNotCheckedIn)

	handed := true
	tr, err := m.Apply(inStatus(model.StatusAllocated), workflow.Command{Action: workflow.ActionCheckIn, Actor: vfastStaff, KeyHandedOver: &handed})
	require.NoError(t, err)
	assert.False(t, tr.StatusChanged())
	assert.True(t, tr.Booking.KeyHandedOver)
	assert.Equal(t, true, tr.Changes[model.FieldKeyHandedOver])
}

func TestMachine_Resubmit(t *testing.T) {
	m := workflow.New(3)

	prev := inStatus(model.StatusRejected)
	prev.ReconsiderationCount = 1

	next := draft(model.BookingTypeOfficial)
	next.ID = "b-2"

	got, err := m.Resubmit(prev, next, requestor)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPendingDepartmentApproval, got.Status)
	assert.Equal(t, "b-1", *got.ReconsideredFromID)
	assert.True(t, got.IsReconsidered)

	_, err = m.Resubmit(inStatus(model.StatusApproved), next, requestor)
	assert.ErrorIs(t, err, workflow.ErrInvalidTransition)

	_, err = m.Resubmit(prev, next, workflow.Actor{ID: "someone-else", Role: constant.RoleRequestor})
	assert.True(t, errors.Is(err, permissions.ErrNotAuthorized))
}

func TestCanPerform(t *testing.T) {
	assert.True(t, workflow.CanPerform(constant.RoleAdmin, workflow.ActionDepartmentApprove))
	assert.True(t, workflow.CanPerform(constant.RoleVFast, workflow.ActionAllocate))
	assert.False(t, workflow.CanPerform(constant.RoleRequestor, workflow.ActionAllocate))
	assert.False(t, workflow.CanPerform(constant.RoleSuperAdmin, workflow.ActionAdminApprove))
}
