package dto

import (
	"mime/multipart"
	"strings"

	"vfast/internal/domains/guest/model"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	gModel "vfast/shared/model"
	"vfast/shared/timezone"

	"github.com/google/uuid"
)

type AddGuestRequest struct {
	Name     string                `json:"name"      validate:"required,max=100"`
	Contact  string                `json:"contact"   validate:"omitempty,max=50"`
	IDType   string                `json:"id_type"   validate:"omitempty,max=30"`
	IDNumber string                `json:"id_number" validate:"required_with=IDType,max=50"`
	KYCURL   string                `json:"kyc_url"   validate:"omitempty,url"`
	KYC      *multipart.FileHeader `json:"kyc"       validate:"omitempty,mimetypes=image/png image/jpg image/jpeg application/pdf,maxfilesize=2"`
	KYCFile  multipart.File        `json:"-"`
}

func (a *AddGuestRequest) ToModel(bookingID, user, kycURL string) model.Guest {
	now := timezone.Now()

	guest := model.Guest{
		ID:        uuid.NewString(),
		BookingID: bookingID,
		Name:      strings.TrimSpace(a.Name),
		Contact:   optional(a.Contact),
		IDType:    optional(a.IDType),
		IDNumber:  optional(a.IDNumber),
		KYCURL:    optional(a.KYCURL),
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  user,
			ModifiedBy: user,
		},
	}

	if kycURL != constant.Empty {
		guest.KYCURL = &kycURL
	}

	return guest
}

type GuestResponse struct {
	ID           string `json:"id"`
	BookingID    string `json:"booking_id"`
	Name         string `json:"name"`
	Contact      string `json:"contact,omitempty"`
	IDType       string `json:"id_type,omitempty"`
	IDNumber     string `json:"id_number,omitempty"`
	KYCURL       string `json:"kyc_url,omitempty"`
	CheckedIn    bool   `json:"checked_in"`
	CheckInTime  string `json:"check_in_time,omitempty"`
	CheckOutTime string `json:"check_out_time,omitempty"`
	Verified     bool   `json:"verified"`
	VerifiedBy   string `json:"verified_by,omitempty"`
	gDto.Metadata
}

func (r *GuestResponse) FromModel(m model.Guest) {
	r.ID = m.ID
	r.BookingID = m.BookingID
	r.Name = m.Name
	r.Contact = deref(m.Contact)
	r.IDType = deref(m.IDType)
	r.IDNumber = deref(m.IDNumber)
	r.KYCURL = deref(m.KYCURL)
	r.CheckedIn = m.CheckedIn
	r.Verified = m.Verified
	r.VerifiedBy = deref(m.VerifiedBy)

	if m.CheckInTime != nil {
		r.CheckInTime = timezone.Format(*m.CheckInTime, constant.DateFormat)
	}

	if m.CheckOutTime != nil {
		r.CheckOutTime = timezone.Format(*m.CheckOutTime, constant.DateFormat)
	}

	r.Metadata.FromModel(m.Metadata)
}

type GetGuestsResponse struct {
	Guests     []GuestResponse `json:"guests"`
	CheckedIn  int             `json:"checked_in"`
	TotalGuest int             `json:"total_guest"`
}

func (r *GetGuestsResponse) FromModels(models []model.Guest) {
	r.TotalGuest = len(models)
	r.Guests = make([]GuestResponse, len(models))

	for i, m := range models {
		r.Guests[i].FromModel(m)

		if m.CheckedIn {
			r.CheckedIn++
		}
	}
}

// ByBooking selects the roster of one booking.
func ByBooking(bookingID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldBookingID, Value: bookingID, Operator: gDto.FilterOperatorEq, Table: model.TableName},
		},
	}
}

// Expecting guards a presence update on the guest's current checked_in value.
func Expecting(guestID string, checkedIn bool) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldID, Value: guestID, Operator: gDto.FilterOperatorEq},
			gDto.Filter{ArgName: model.ArgExpectedCheckedIn, Field: model.FieldCheckedIn, Value: checkedIn, Operator: gDto.FilterOperatorEq},
		},
	}
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == constant.Empty {
		return nil
	}

	return &s
}

func deref(s *string) string {
	if s == nil {
		return constant.Empty
	}

	return *s
}
