package dto

import (
	"errors"
	"strings"
	"time"

	bookingDto "vfast/internal/domains/booking/model/dto"
	"vfast/shared/constant"
)

const (
	FormatCSV = "csv"
	FormatPDF = "pdf"
)

var errRange = errors.New("end_date must be after start_date")

// BookingReportRequest selects bookings whose stay overlaps [StartDate, EndDate).
type BookingReportRequest struct {
	StartDate  string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string `json:"end_date"   validate:"omitempty,datetime=2006-01-02"`
	Status     string `json:"status"     validate:"omitempty,max=40"`
	Department string `json:"department" validate:"omitempty,max=100"`
	Format     string `json:"format"     validate:"omitempty,oneof=csv pdf"`
}

func (r BookingReportRequest) ToListFilter() bookingDto.ListFilter {
	return bookingDto.ListFilter{
		Status:     r.Status,
		Department: strings.TrimSpace(r.Department),
		StartDate:  r.StartDate,
		EndDate:    r.EndDate,
	}
}

type BookingReportRow struct {
	ID           string   `json:"id"`
	Purpose      string   `json:"purpose"`
	BookingType  string   `json:"booking_type"`
	Department   string   `json:"department,omitempty"`
	Status       string   `json:"status"`
	Stage        string   `json:"stage"`
	CheckInDate  string   `json:"check_in_date"`
	CheckOutDate string   `json:"check_out_date"`
	Nights       int      `json:"nights"`
	GuestCount   int      `json:"guest_count"`
	Rooms        []string `json:"rooms"`
	Charge       string   `json:"charge"`
}

type BookingReport struct {
	Rows        []BookingReportRow `json:"rows"`
	TotalCharge string             `json:"total_charge"`
	TotalPage   int                `json:"total_page"`
	TotalData   int                `json:"total_data"`
}

// OccupancyRequest covers the nights from StartDate up to, not including, EndDate.
type OccupancyRequest struct {
	StartDate string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate   string `json:"end_date"   validate:"required,datetime=2006-01-02"`
}

func (o OccupancyRequest) Range() (start, end time.Time, err error) {
	start, err = time.Parse(constant.DateOnlyFormat, o.StartDate)
	if err != nil {
		return start, end, err
	}

	end, err = time.Parse(constant.DateOnlyFormat, o.EndDate)
	if err != nil {
		return start, end, err
	}

	if !end.After(start) {
		return start, end, errRange
	}

	return start, end, nil
}

type RoomOccupancy struct {
	RoomNumber   string `json:"room_number"`
	RoomType     string `json:"room_type"`
	Status       string `json:"status"`
	BookedNights int    `json:"booked_nights"`
	Rate         string `json:"rate"`
	Revenue      string `json:"revenue"`
}

type OccupancyReport struct {
	StartDate       string          `json:"start_date"`
	EndDate         string          `json:"end_date"`
	Nights          int             `json:"nights"`
	TotalRooms      int             `json:"total_rooms"`
	RoomsByStatus   map[string]int  `json:"rooms_by_status"`
	AvailableNights int             `json:"available_nights"`
	BookedNights    int             `json:"booked_nights"`
	Rate            string          `json:"rate"`
	Revenue         string          `json:"revenue"`
	Rooms           []RoomOccupancy `json:"rooms"`
}

// File is a rendered export ready to be streamed to the client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}
