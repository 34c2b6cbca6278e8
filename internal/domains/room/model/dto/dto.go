package dto

import (
	"mime/multipart"
	"strings"
	"time"

	"vfast/internal/domains/room/model"
	"vfast/shared"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	gModel "vfast/shared/model"
	"vfast/shared/timezone"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

type CreateRoomRequest struct {
	RoomNumber  string                `json:"room_number" validate:"required,max=20"`
	RoomType    string                `json:"room_type"   validate:"required,max=50"`
	Floor       int                   `json:"floor"       validate:"min=0"`
	Capacity    int                   `json:"capacity"    validate:"min=1"`
	Features    []string              `json:"features"    validate:"omitempty,dive,max=50"`
	Tariff      string                `json:"tariff"      validate:"required,decimal"`
	Description string                `json:"description" validate:"omitempty,max=500"`
	Image       *multipart.FileHeader `json:"image"       validate:"omitempty,mimetypes=image/png image/jpg image/jpeg,maxfilesize=1"`
	ImageFile   multipart.File        `json:"-"`
}

func (c *CreateRoomRequest) ToModel(user string, imageURL string) model.Room {
	tariff, _ := decimal.NewFromString(c.Tariff)

	room := model.Room{
		ID:         uuid.NewString(),
		RoomNumber: strings.TrimSpace(c.RoomNumber),
		RoomType:   c.RoomType,
		Floor:      c.Floor,
		Capacity:   c.Capacity,
		Status:     model.StatusAvailable,
		Features:   pq.StringArray(normalizeFeatures(c.Features)),
		Tariff:     tariff,
		Metadata: gModel.Metadata{
			CreatedAt:  timezone.Now(),
			ModifiedAt: timezone.Now(),
			CreatedBy:  user,
			ModifiedBy: user,
		},
	}

	if c.Description != constant.Empty {
		room.Description = &c.Description
	}

	if imageURL != constant.Empty {
		room.Image = &imageURL
	}

	return room
}

// UpdateRoomRequest edits descriptive fields only. Status moves through allocation,
// reservation and maintenance.
type UpdateRoomRequest struct {
	RoomType    string                `db:"room_type"   json:"room_type"   validate:"omitempty,max=50"`
	Floor       *int                  `db:"floor"       json:"floor"       validate:"omitempty,min=0"`
	Capacity    *int                  `db:"capacity"    json:"capacity"    validate:"omitempty,min=1"`
	Features    []string              `json:"features"    validate:"omitempty,dive,max=50"`
	Tariff      string                `json:"tariff"      validate:"omitempty,decimal"`
	Description string                `db:"description" json:"description" validate:"omitempty,max=500"`
	Image       *multipart.FileHeader `json:"image"       validate:"omitempty,mimetypes=image/png image/jpg image/jpeg,maxfilesize=1"`
	ImageFile   multipart.File        `json:"-"`
}

func (u UpdateRoomRequest) IsEmpty() bool {
	return u.RoomType == constant.Empty && u.Floor == nil && u.Capacity == nil && u.Features == nil &&
		u.Tariff == constant.Empty && u.Description == constant.Empty && u.Image == nil
}

// Fields returns the column changes of the request, stamped with user.
func (u UpdateRoomRequest) Fields(user string) map[string]any {
	fields := shared.TransformFields(u, user)

	if u.Features != nil {
		fields[model.FieldFeatures] = pq.StringArray(normalizeFeatures(u.Features))
	}

	if u.Tariff != constant.Empty {
		tariff, _ := decimal.NewFromString(u.Tariff)
		fields[model.FieldTariff] = tariff
	}

	return fields
}

type ReserveRoomRequest struct {
	Notes string `json:"notes" validate:"omitempty,max=500"`
}

type ScheduleMaintenanceRequest struct {
	Reason    string `json:"reason"     validate:"required,max=500"`
	StartDate string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate   string `json:"end_date"   validate:"omitempty,datetime=2006-01-02"`
}

func (s *ScheduleMaintenanceRequest) ToModel(roomID, user string) (model.Maintenance, error) {
	now := timezone.Now()

	maintenance := model.Maintenance{
		ID:        uuid.NewString(),
		RoomID:    roomID,
		Reason:    s.Reason,
		StartDate: now,
		Status:    model.MaintenanceInProgress,
		Metadata: gModel.Metadata{
			CreatedAt:  now,
			ModifiedAt: now,
			CreatedBy:  user,
			ModifiedBy: user,
		},
	}

	if s.StartDate != constant.Empty {
		start, err := time.Parse(constant.DateOnlyFormat, s.StartDate)
		if err != nil {
			return maintenance, err
		}

		maintenance.StartDate = start
	}

	if s.EndDate != constant.Empty {
		end, err := time.Parse(constant.DateOnlyFormat, s.EndDate)
		if err != nil {
			return maintenance, err
		}

		maintenance.EndDate = &end
	}

	return maintenance, nil
}

type RoomResponse struct {
	ID               string   `json:"id"`
	RoomNumber       string   `json:"room_number"`
	RoomType         string   `json:"room_type"`
	Floor            int      `json:"floor"`
	Capacity         int      `json:"capacity"`
	Status           string   `json:"status"`
	Features         []string `json:"features"`
	Tariff           string   `json:"tariff"`
	Description      string   `json:"description,omitempty"`
	Image            string   `json:"image,omitempty"`
	ReservedBy       string   `json:"reserved_by,omitempty"`
	ReservedAt       string   `json:"reserved_at,omitempty"`
	ReservationNotes string   `json:"reservation_notes,omitempty"`
	gDto.Metadata
}

func (r *RoomResponse) FromModel(model model.Room) {
	r.ID = model.ID
	r.RoomNumber = model.RoomNumber
	r.RoomType = model.RoomType
	r.Floor = model.Floor
	r.Capacity = model.Capacity
	r.Status = string(model.Status)
	r.Features = append([]string{}, model.Features...)
	r.Tariff = model.Tariff.StringFixed(2) //nolint:mnd
	r.Description = deref(model.Description)
	r.Image = deref(model.Image)
	r.ReservedBy = deref(model.ReservedBy)
	r.ReservationNotes = deref(model.ReservationNotes)

	if model.ReservedAt != nil {
		r.ReservedAt = timezone.Format(*model.ReservedAt, constant.DateFormat)
	}

	r.Metadata.FromModel(model.Metadata)
}

type GetRoomsResponse struct {
	Rooms     []RoomResponse `json:"rooms"`
	TotalPage int            `json:"total_page"`
	TotalData int            `json:"total_data"`
}

func (r *GetRoomsResponse) FromModels(models []model.Room, totalData, limit int) {
	r.TotalData = totalData
	r.TotalPage = shared.CalculateTotalPage(totalData, limit)

	r.Rooms = make([]RoomResponse, len(models))
	for i, mod := range models {
		r.Rooms[i].FromModel(mod)
	}
}

type MaintenanceResponse struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	Reason    string `json:"reason"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date,omitempty"`
	Status    string `json:"status"`
	gDto.Metadata
}

func (r *MaintenanceResponse) FromModel(model model.Maintenance) {
	r.ID = model.ID
	r.RoomID = model.RoomID
	r.Reason = model.Reason
	r.StartDate = model.StartDate.Format(constant.DateOnlyFormat)
	r.Status = string(model.Status)

	if model.EndDate != nil {
		r.EndDate = model.EndDate.Format(constant.DateOnlyFormat)
	}

	r.Metadata.FromModel(model.Metadata)
}

func normalizeFeatures(features []string) []string {
	res := make([]string, 0, len(features))

	for _, feature := range features {
		if f := strings.TrimSpace(feature); f != constant.Empty {
			res = append(res, f)
		}
	}

	return res
}

func deref(s *string) string {
	if s == nil {
		return constant.Empty
	}

	return *s
}
