package dto

import (
	"mime/multipart"
	"strings"
	"time"

	"vfast/internal/domains/booking/model"
	"vfast/shared"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	gModel "vfast/shared/model"
	"vfast/shared/timezone"

	"github.com/google/uuid"
)

type CreateBookingRequest struct {
	Purpose         string `json:"purpose"          validate:"required,max=500"`
	BookingType     string `json:"booking_type"     validate:"required,oneof=OFFICIAL PERSONAL"`
	GuestCount      int    `json:"guest_count"      validate:"required,min=1"`
	NumberOfRooms   int    `json:"number_of_rooms"  validate:"required,min=1"`
	CheckInDate     string `json:"check_in_date"    validate:"required,datetime=2006-01-02"`
	CheckOutDate    string `json:"check_out_date"   validate:"required,datetime=2006-01-02"`
	SpecialRequests string `json:"special_requests" validate:"omitempty,max=1000"`
	Department      string `json:"department"       validate:"required_if=BookingType OFFICIAL,max=100"`
}

// ToModel drafts a booking. Status and ownership are set by the workflow.
func (c *CreateBookingRequest) ToModel(user string) (model.Booking, error) {
	checkIn, err := time.Parse(constant.DateOnlyFormat, c.CheckInDate)
	if err != nil {
		return model.Booking{}, err
	}

	checkOut, err := time.Parse(constant.DateOnlyFormat, c.CheckOutDate)
	if err != nil {
		return model.Booking{}, err
	}

	booking := model.Booking{
		ID:            uuid.NewString(),
		Purpose:       strings.TrimSpace(c.Purpose),
		BookingType:   model.BookingType(c.BookingType),
		GuestCount:    c.GuestCount,
		NumberOfRooms: c.NumberOfRooms,
		CheckInDate:   checkIn,
		CheckOutDate:  checkOut,
		Metadata: gModel.Metadata{
			CreatedAt:  timezone.Now(),
			ModifiedAt: timezone.Now(),
			CreatedBy:  user,
			ModifiedBy: user,
		},
	}

	if s := strings.TrimSpace(c.SpecialRequests); s != constant.Empty {
		booking.SpecialRequests = &s
	}

	if d := strings.TrimSpace(c.Department); d != constant.Empty {
		booking.Department = &d
	}

	return booking, nil
}

type DecisionRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

type RejectRequest struct {
	Reason string  `json:"reason" validate:"required,max=1000"`
	Notes  *string `json:"notes"  validate:"omitempty,max=1000"`
}

type AllocateRequest struct {
	RoomIDs []string `json:"room_ids" validate:"required,min=1,dive,uuid"`
	Notes   *string  `json:"notes"    validate:"omitempty,max=1000"`
}

type CancelAllocationRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

type CheckInRequest struct {
	KeyHandedOver *bool   `json:"key_handed_over"`
	Notes         *string `json:"notes"           validate:"omitempty,max=1000"`
}

type CheckOutRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

type UploadDocumentRequest struct {
	Document     *multipart.FileHeader `validate:"required,mimetypes=application/zip application/x-zip-compressed,maxfilesize=10"`
	DocumentFile multipart.File        `json:"-"`
}

// ListFilter narrows a booking listing. Empty fields do not constrain.
type ListFilter struct {
	Status      string
	Stage       string
	BookingType string
	Department  string
	UserID      string
	StartDate   string
	EndDate     string
}

// ToFilterGroup builds the where clause. Soft deleted bookings are always excluded.
func (l ListFilter) ToFilterGroup() (gDto.FilterGroup, error) {
	filters := []any{
		gDto.Filter{Field: model.FieldIsDeleted, Value: false, Operator: gDto.FilterOperatorEq, Table: model.TableName},
	}

	if l.Status != constant.Empty {
		status, err := model.ParseStatus(strings.ToUpper(l.Status))
		if err != nil {
			return gDto.FilterGroup{}, err
		}

		filters = append(filters, gDto.Filter{Field: model.FieldStatus, Value: status, Operator: gDto.FilterOperatorEq, Table: model.TableName})
	}

	if l.Stage != constant.Empty {
		cond, err := model.ParseStage(strings.ToUpper(l.Stage))
		if err != nil {
			return gDto.FilterGroup{}, err
		}

		filters = append(filters, gDto.Filter{ArgName: "stage_status", Field: model.FieldStatus, Value: cond.Status, Operator: gDto.FilterOperatorEq, Table: model.TableName})

		if cond.CheckIn != constant.Empty {
			filters = append(filters, gDto.Filter{Field: model.FieldCheckInStatus, Value: cond.CheckIn, Operator: gDto.FilterOperatorEq, Table: model.TableName})
		}
	}

	if l.BookingType != constant.Empty {
		bookingType, err := model.ParseBookingType(strings.ToUpper(l.BookingType))
		if err != nil {
			return gDto.FilterGroup{}, err
		}

		filters = append(filters, gDto.Filter{Field: model.FieldBookingType, Value: bookingType, Operator: gDto.FilterOperatorEq, Table: model.TableName})
	}

	if l.Department != constant.Empty {
		filters = append(filters, gDto.Filter{Field: model.FieldDepartment, Value: l.Department, Operator: gDto.FilterOperatorEq, Table: model.TableName})
	}

	if l.UserID != constant.Empty {
		filters = append(filters, gDto.Filter{Field: model.FieldUserID, Value: l.UserID, Operator: gDto.FilterOperatorEq, Table: model.TableName})
	}

	if l.StartDate != constant.Empty {
		start, err := time.Parse(constant.DateOnlyFormat, l.StartDate)
		if err != nil {
			return gDto.FilterGroup{}, err
		}

		filters = append(filters, gDto.Filter{Field: model.FieldCheckOutDate, Value: start, Operator: gDto.FilterOperatorGreater, Table: model.TableName})
	}

	if l.EndDate != constant.Empty {
		end, err := time.Parse(constant.DateOnlyFormat, l.EndDate)
		if err != nil {
			return gDto.FilterGroup{}, err
		}

		filters = append(filters, gDto.Filter{Field: model.FieldCheckInDate, Value: end, Operator: gDto.FilterOperatorLess, Table: model.TableName})
	}

	return gDto.FilterGroup{Operator: gDto.FilterGroupOperatorAnd, Filters: filters}, nil
}

type RejectionResponse struct {
	Reason     string `json:"reason"`
	RejectedBy string `json:"rejected_by"`
	Stage      string `json:"stage"`
	RejectedAt string `json:"rejected_at"`
}

func (r *RejectionResponse) FromModel(model model.Rejection) {
	r.Reason = model.Reason
	r.RejectedBy = model.RejectedBy
	r.Stage = string(model.Stage)
	r.RejectedAt = timezone.Format(model.RejectedAt, constant.DateFormat)
}

type BookingResponse struct {
	ID                   string              `json:"id"`
	UserID               string              `json:"user_id"`
	Purpose              string              `json:"purpose"`
	BookingType          string              `json:"booking_type"`
	GuestCount           int                 `json:"guest_count"`
	NumberOfRooms        int                 `json:"number_of_rooms"`
	CheckInDate          string              `json:"check_in_date"`
	CheckOutDate         string              `json:"check_out_date"`
	SpecialRequests      string              `json:"special_requests,omitempty"`
	Status               string              `json:"status"`
	Stage                string              `json:"current_workflow_stage"`
	CheckInStatus        string              `json:"check_in_status"`
	Department           string              `json:"department,omitempty"`
	RoomNumbers          []string            `json:"room_numbers"`
	AdminNotes           string              `json:"admin_notes,omitempty"`
	VFastNotes           string              `json:"vfast_notes,omitempty"`
	DepartmentNotes      string              `json:"department_notes,omitempty"`
	DepartmentApproverID string              `json:"department_approver_id,omitempty"`
	DepartmentApprovalAt string              `json:"department_approval_at,omitempty"`
	AdminApproverID      string              `json:"admin_approver_id,omitempty"`
	AdminApprovalAt      string              `json:"admin_approval_at,omitempty"`
	IsReconsidered       bool                `json:"is_reconsidered"`
	ReconsiderationCount int                 `json:"reconsideration_count"`
	ReconsideredFromID   string              `json:"reconsidered_from_id,omitempty"`
	DocumentPath         string              `json:"document_path,omitempty"`
	KeyHandedOver        bool                `json:"key_handed_over"`
	RejectionHistory     []RejectionResponse `json:"rejection_history,omitempty"`
	gDto.Metadata
}

func (r *BookingResponse) FromModel(model model.Booking) {
	r.ID = model.ID
	r.UserID = model.UserID
	r.Purpose = model.Purpose
	r.BookingType = string(model.BookingType)
	r.GuestCount = model.GuestCount
	r.NumberOfRooms = model.NumberOfRooms
	r.CheckInDate = model.CheckInDate.Format(constant.DateOnlyFormat)
	r.CheckOutDate = model.CheckOutDate.Format(constant.DateOnlyFormat)
	r.SpecialRequests = deref(model.SpecialRequests)
	r.Status = string(model.Status)
	r.Stage = string(model.Stage())
	r.CheckInStatus = string(model.CheckInStatus)
	r.Department = deref(model.Department)
	r.RoomNumbers = []string{}
	r.AdminNotes = deref(model.AdminNotes)
	r.VFastNotes = deref(model.VFastNotes)
	r.DepartmentNotes = deref(model.DepartmentNotes)
	r.DepartmentApproverID = deref(model.DepartmentApproverID)
	r.DepartmentApprovalAt = formatTime(model.DepartmentApprovalAt)
	r.AdminApproverID = deref(model.AdminApproverID)
	r.AdminApprovalAt = formatTime(model.AdminApprovalAt)
	r.IsReconsidered = model.IsReconsidered
	r.ReconsiderationCount = model.ReconsiderationCount
	r.ReconsideredFromID = deref(model.ReconsideredFromID)
	r.DocumentPath = deref(model.DocumentPath)
	r.KeyHandedOver = model.KeyHandedOver
	r.Metadata.FromModel(model.Metadata)
}

// WithRooms fills the room numbers from the booking's active bindings.
func (r *BookingResponse) WithRooms(bindings []model.BookingRoom) {
	r.RoomNumbers = []string{}

	for _, binding := range bindings {
		if binding.BookingID == r.ID && binding.ReleasedAt == nil {
			r.RoomNumbers = append(r.RoomNumbers, binding.RoomNumber)
		}
	}
}

func (r *BookingResponse) WithRejections(rejections []model.Rejection) {
	r.RejectionHistory = make([]RejectionResponse, len(rejections))
	for i, rejection := range rejections {
		r.RejectionHistory[i].FromModel(rejection)
	}
}

type GetBookingsResponse struct {
	Bookings  []BookingResponse `json:"bookings"`
	TotalPage int               `json:"total_page"`
	TotalData int               `json:"total_data"`
}

func (r *GetBookingsResponse) FromModels(models []model.Booking, bindings []model.BookingRoom, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Bookings = make([]BookingResponse, len(models))
	for i, mod := range models {
		r.Bookings[i].FromModel(mod)
		r.Bookings[i].WithRooms(bindings)
	}
}

func deref(s *string) string {
	if s == nil {
		return constant.Empty
	}

	return *s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return constant.Empty
	}

	return timezone.Format(*t, constant.DateFormat)
}

type Queue string

const (
	QueueDepartment Queue = "department"
	QueueAdmin      Queue = "admin"
	QueueAllocation Queue = "allocation"
)

// ToFilterGroup selects the bookings waiting on the queue's reviewer. A department
// queue is narrowed to department when it is not empty.
func (q Queue) ToFilterGroup(department string) gDto.FilterGroup {
	filters := []any{
		gDto.Filter{Field: model.FieldIsDeleted, Value: false, Operator: gDto.FilterOperatorEq, Table: model.TableName},
	}

	switch q {
	case QueueDepartment:
		filters = append(filters, gDto.Filter{Field: model.FieldStatus, Value: model.StatusPendingDepartmentApproval, Operator: gDto.FilterOperatorEq, Table: model.TableName})

		if department != constant.Empty {
			filters = append(filters, gDto.Filter{Field: model.FieldDepartment, Value: department, Operator: gDto.FilterOperatorEq, Table: model.TableName})
		}
	case QueueAdmin:
		filters = append(filters, gDto.Filter{
			Field:    model.FieldStatus,
			Value:    []model.Status{model.StatusPendingAdminApproval, model.StatusPendingReconsideration},
			Operator: gDto.FilterOperatorIn,
			Table:    model.TableName,
		})
	case QueueAllocation:
		filters = append(filters, gDto.Filter{Field: model.FieldStatus, Value: model.StatusApproved, Operator: gDto.FilterOperatorEq, Table: model.TableName})
	}

	return gDto.FilterGroup{Operator: gDto.FilterGroupOperatorAnd, Filters: filters}
}

func ByID(id string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldID, Value: id, Operator: gDto.FilterOperatorEq},
		},
	}
}

// Guard matches b only while it is still in the state it was read in. An update
// through it affects zero rows when a concurrent request moved the booking first.
func Guard(b model.Booking) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldID, Value: b.ID, Operator: gDto.FilterOperatorEq},
			gDto.Filter{ArgName: model.ArgExpectedStatus, Field: model.FieldStatus, Value: b.Status, Operator: gDto.FilterOperatorEq},
			gDto.Filter{ArgName: model.ArgExpectedCheckInStatus, Field: model.FieldCheckInStatus, Value: b.CheckInStatus, Operator: gDto.FilterOperatorEq},
			gDto.Filter{ArgName: "expected_is_deleted", Field: model.FieldIsDeleted, Value: false, Operator: gDto.FilterOperatorEq},
		},
	}
}

// ResubmissionsOf selects the bookings resubmitted from bookingID.
func ResubmissionsOf(bookingID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldReconsideredFromID, Value: bookingID, Operator: gDto.FilterOperatorEq},
		},
	}
}

// ActiveBindings selects the unreleased room bindings of the given bookings.
func ActiveBindings(bookingIDs ...string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldBookingRoomBookingID, Value: bookingIDs, Operator: gDto.FilterOperatorIn},
			gDto.Filter{Field: model.FieldReleasedAt, Operator: gDto.FilterIsNull},
		},
	}
}

func RejectionsOf(bookingID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldRejectionBookingID, Value: bookingID, Operator: gDto.FilterOperatorEq},
		},
	}
}
