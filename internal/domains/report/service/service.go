// Package service builds read-only reports over bookings and rooms.
package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"vfast/config"
	"vfast/infras/otel"
	bookingModel "vfast/internal/domains/booking/model"
	bookingRepo "vfast/internal/domains/booking/repository"
	"vfast/internal/domains/report/model/dto"
	roomModel "vfast/internal/domains/room/model"
	roomRepo "vfast/internal/domains/room/repository"
	"vfast/shared"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

const (
	defaultMaxRows = 5000
	hoursPerDay    = 24
	percent        = 100
)

type Report interface {
	Bookings(ctx context.Context, params gDto.QueryParams, req dto.BookingReportRequest) (dto.BookingReport, error)
	ExportBookings(ctx context.Context, req dto.BookingReportRequest) (dto.File, error)
	Occupancy(ctx context.Context, req dto.OccupancyRequest) (dto.OccupancyReport, error)
}

type serviceImpl struct {
	bookingRepo     bookingRepo.Booking
	bookingRoomRepo bookingRepo.BookingRoom
	roomRepo        roomRepo.Room
	cfg             *config.Config
	otel            otel.Otel
}

func New(
	bookingRepo bookingRepo.Booking,
	bookingRoomRepo bookingRepo.BookingRoom,
	roomRepo roomRepo.Room,
	cfg *config.Config,
	otel otel.Otel,
) Report {
	return &serviceImpl{
		bookingRepo:     bookingRepo,
		bookingRoomRepo: bookingRoomRepo,
		roomRepo:        roomRepo,
		cfg:             cfg,
		otel:            otel,
	}
}

// Bookings returns one page of the booking report with the estimated charge of every allocated stay.
func (s *serviceImpl) Bookings(ctx context.Context, params gDto.QueryParams, req dto.BookingReportRequest) (res dto.BookingReport, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Bookings")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	filter, err := req.ToListFilter().ToFilterGroup()
	if err != nil {
		return res, failure.BadRequest(err) // nolint:wrapcheck
	}

	params.RestrictSort(bookingModel.SortableFields...)

	if params.SortBy == constant.Empty {
		params.SortBy = bookingModel.FieldCheckInDate
		params.SortDir = gDto.SortDirAsc
	}

	total, err := s.bookingRepo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count report bookings")

		return res, fmt.Errorf("failed to count bookings: %w", err)
	}

	rows, charge, err := s.rows(ctx, params, filter)
	if err != nil {
		return res, err
	}

	res.Rows = rows
	res.TotalCharge = charge.StringFixed(2) //nolint:mnd
	res.TotalData = total
	res.TotalPage = shared.CalculateTotalPage(total, params.Limit)

	return res, nil
}

// ExportBookings renders every matching booking as CSV or PDF. Reports larger than the
// configured row cap are refused rather than truncated.
func (s *serviceImpl) ExportBookings(ctx context.Context, req dto.BookingReportRequest) (res dto.File, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".ExportBookings")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	filter, err := req.ToListFilter().ToFilterGroup()
	if err != nil {
		return res, failure.BadRequest(err) // nolint:wrapcheck
	}

	maxRows := s.cfg.Report.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}

	total, err := s.bookingRepo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count report bookings")

		return res, fmt.Errorf("failed to count bookings: %w", err)
	}

	if total > maxRows {
		return res, failure.BadRequestFromString( // nolint:wrapcheck
			fmt.Sprintf("report has %d bookings, narrow the filter to at most %d", total, maxRows))
	}

	params := gDto.QueryParams{Limit: maxRows, SortBy: bookingModel.FieldCheckInDate, SortDir: gDto.SortDirAsc}

	rows, charge, err := s.rows(ctx, params, filter)
	if err != nil {
		return res, err
	}

	scope.SetAttribute("rows", len(rows))

	switch req.Format {
	case dto.FormatPDF:
		res.Data, err = renderPDF(req, rows, charge)
		res.ContentType = constant.ContentTypePDF
	default:
		res.Data, err = renderCSV(rows)
		res.ContentType = constant.ContentTypeCSV
		req.Format = dto.FormatCSV
	}

	if err != nil {
		log.Error().Err(err).Str("format", req.Format).Msg("failed to render booking report")

		return res, fmt.Errorf("failed to render booking report: %w", err)
	}

	res.Name = fmt.Sprintf("booking-report-%s.%s", time.Now().Format("20060102-150405"), req.Format)

	return res, nil
}

// Occupancy reports booked room nights against the nights every room could have been sold.
func (s *serviceImpl) Occupancy(ctx context.Context, req dto.OccupancyRequest) (res dto.OccupancyReport, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Occupancy")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	start, end, err := req.Range()
	if err != nil {
		return res, failure.BadRequest(err) // nolint:wrapcheck
	}

	rooms, err := s.roomRepo.GetAll(ctx, gDto.QueryParams{SortBy: roomModel.FieldRoomNumber, SortDir: gDto.SortDirAsc}, gDto.FilterGroup{})
	if err != nil {
		log.Error().Err(err).Msg("failed to get rooms for occupancy")

		return res, fmt.Errorf("failed to get rooms: %w", err)
	}

	bindings, err := s.bookingRoomRepo.GetAll(ctx, gDto.QueryParams{}, staysWithin(start, end))
	if err != nil {
		log.Error().Err(err).Msg("failed to get room bindings for occupancy")

		return res, fmt.Errorf("failed to get room bindings: %w", err)
	}

	bindings, err = s.held(ctx, bindings)
	if err != nil {
		return res, err
	}

	booked := map[string]int{}
	for _, binding := range bindings {
		booked[binding.RoomID] += overlap(binding.CheckInDate, binding.CheckOutDate, start, end)
	}

	nights := days(start, end)
	revenue := decimal.Zero

	res.StartDate = start.Format(constant.DateOnlyFormat)
	res.EndDate = end.Format(constant.DateOnlyFormat)
	res.Nights = nights
	res.TotalRooms = len(rooms)
	res.RoomsByStatus = map[string]int{}
	res.Rooms = make([]dto.RoomOccupancy, len(rooms))

	for i, room := range rooms {
		roomRevenue := room.Tariff.Mul(decimal.NewFromInt(int64(booked[room.ID])))
		revenue = revenue.Add(roomRevenue)

		res.RoomsByStatus[string(room.Status)]++
		res.BookedNights += booked[room.ID]
		res.Rooms[i] = dto.RoomOccupancy{
			RoomNumber:   room.RoomNumber,
			RoomType:     room.RoomType,
			Status:       string(room.Status),
			BookedNights: booked[room.ID],
			Rate:         rate(booked[room.ID], nights),
			Revenue:      roomRevenue.StringFixed(2), //nolint:mnd
		}
	}

	res.AvailableNights = nights * len(rooms)
	res.Rate = rate(res.BookedNights, res.AvailableNights)
	res.Revenue = revenue.StringFixed(2) //nolint:mnd

	return res, nil
}

func (s *serviceImpl) rows(ctx context.Context, params gDto.QueryParams, filter gDto.FilterGroup) ([]dto.BookingReportRow, decimal.Decimal, error) {
	total := decimal.Zero

	bookings, err := s.bookingRepo.GetAll(ctx, params, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get report bookings")

		return nil, total, fmt.Errorf("failed to get bookings: %w", err)
	}

	allocated := make([]string, 0, len(bookings))

	for _, booking := range bookings {
		if booking.Status == bookingModel.StatusAllocated {
			allocated = append(allocated, booking.ID)
		}
	}

	bound := map[string][]bookingModel.BookingRoom{}
	tariffs := map[string]decimal.Decimal{}

	if len(allocated) > 0 {
		bindings, err := s.bookingRoomRepo.GetAll(ctx, gDto.QueryParams{}, bindingsOf(allocated...))
		if err != nil {
			log.Error().Err(err).Msg("failed to get report room bindings")

			return nil, total, fmt.Errorf("failed to get room bindings: %w", err)
		}

		for _, binding := range bindings {
			bound[binding.BookingID] = append(bound[binding.BookingID], binding)
		}

		roomIDs := []string{}

		for id, group := range bound {
			bound[id] = current(group)

			for _, binding := range bound[id] {
				roomIDs = append(roomIDs, binding.RoomID)
			}
		}

		if tariffs, err = s.tariffs(ctx, roomIDs); err != nil {
			return nil, total, err
		}
	}

	rows := make([]dto.BookingReportRow, len(bookings))

	for i, booking := range bookings {
		charge := decimal.Zero
		rooms := []string{}

		for _, binding := range bound[booking.ID] {
			rooms = append(rooms, binding.RoomNumber)
			charge = charge.Add(tariffs[binding.RoomID])
		}

		charge = charge.Mul(decimal.NewFromInt(int64(booking.Nights())))
		total = total.Add(charge)

		slices.Sort(rooms)

		rows[i] = dto.BookingReportRow{
			ID:           booking.ID,
			Purpose:      booking.Purpose,
			BookingType:  string(booking.BookingType),
			Department:   booking.DepartmentName(),
			Status:       string(booking.Status),
			Stage:        string(booking.Stage()),
			CheckInDate:  booking.CheckInDate.Format(constant.DateOnlyFormat),
			CheckOutDate: booking.CheckOutDate.Format(constant.DateOnlyFormat),
			Nights:       booking.Nights(),
			GuestCount:   booking.GuestCount,
			Rooms:        rooms,
			Charge:       charge.StringFixed(2), //nolint:mnd
		}
	}

	return rows, total, nil
}

func (s *serviceImpl) tariffs(ctx context.Context, roomIDs []string) (map[string]decimal.Decimal, error) {
	res := map[string]decimal.Decimal{}

	if len(roomIDs) == 0 {
		return res, nil
	}

	slices.Sort(roomIDs)
	roomIDs = slices.Compact(roomIDs)

	filter := gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: roomModel.FieldID, Value: roomIDs, Operator: gDto.FilterOperatorIn, Table: roomModel.TableName},
		},
	}

	rooms, err := s.roomRepo.GetAll(ctx, gDto.QueryParams{}, filter, roomModel.FieldID, roomModel.FieldTariff)
	if err != nil {
		log.Error().Err(err).Msg("failed to get room tariffs")

		return nil, fmt.Errorf("failed to get room tariffs: %w", err)
	}

	for _, room := range rooms {
		res[room.ID] = room.Tariff
	}

	return res, nil
}

// held keeps the bindings that belong to the current allocation of a still allocated booking.
// Bindings released by a cancelled allocation are dropped.
func (s *serviceImpl) held(ctx context.Context, bindings []bookingModel.BookingRoom) ([]bookingModel.BookingRoom, error) {
	if len(bindings) == 0 {
		return bindings, nil
	}

	grouped := map[string][]bookingModel.BookingRoom{}
	ids := []string{}

	for _, binding := range bindings {
		if _, ok := grouped[binding.BookingID]; !ok {
			ids = append(ids, binding.BookingID)
		}

		grouped[binding.BookingID] = append(grouped[binding.BookingID], binding)
	}

	filter := gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: bookingModel.FieldID, Value: ids, Operator: gDto.FilterOperatorIn, Table: bookingModel.TableName},
			gDto.Filter{Field: bookingModel.FieldStatus, Value: bookingModel.StatusAllocated, Operator: gDto.FilterOperatorEq, Table: bookingModel.TableName},
		},
	}

	bookings, err := s.bookingRepo.GetAll(ctx, gDto.QueryParams{}, filter, bookingModel.FieldID)
	if err != nil {
		log.Error().Err(err).Msg("failed to get bookings of room bindings")

		return nil, fmt.Errorf("failed to get bookings: %w", err)
	}

	res := []bookingModel.BookingRoom{}

	if len(bookings) == 0 {
		return res, nil
	}

	allocated := make([]string, len(bookings))
	for i, booking := range bookings {
		allocated[i] = booking.ID
	}

	all, err := s.bookingRoomRepo.GetAll(ctx, gDto.QueryParams{}, bindingsOf(allocated...))
	if err != nil {
		log.Error().Err(err).Msg("failed to get room bindings of allocated bookings")

		return nil, fmt.Errorf("failed to get room bindings: %w", err)
	}

	history := map[string][]bookingModel.BookingRoom{}
	for _, binding := range all {
		history[binding.BookingID] = append(history[binding.BookingID], binding)
	}

	for _, id := range allocated {
		for _, binding := range current(history[id]) {
			if slices.ContainsFunc(grouped[id], func(b bookingModel.BookingRoom) bool { return b.ID == binding.ID }) {
				res = append(res, binding)
			}
		}
	}

	return res, nil
}

// current picks the bindings of a booking's latest allocation: the active ones, or after
// check-out the set released last.
func current(bindings []bookingModel.BookingRoom) []bookingModel.BookingRoom {
	var (
		active []bookingModel.BookingRoom
		latest time.Time
	)

	for _, binding := range bindings {
		switch {
		case binding.ReleasedAt == nil:
			active = append(active, binding)
		case binding.ReleasedAt.After(latest):
			latest = *binding.ReleasedAt
		}
	}

	if len(active) > 0 {
		return active
	}

	res := []bookingModel.BookingRoom{}

	for _, binding := range bindings {
		if binding.ReleasedAt != nil && binding.ReleasedAt.Equal(latest) {
			res = append(res, binding)
		}
	}

	return res
}

func bindingsOf(bookingIDs ...string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: bookingModel.FieldBookingRoomBookingID, Value: bookingIDs, Operator: gDto.FilterOperatorIn, Table: bookingModel.BookingRoomTableName},
		},
	}
}

func staysWithin(start, end time.Time) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{ArgName: "range_end", Field: bookingModel.FieldBookingRoomCheckIn, Value: end, Operator: gDto.FilterOperatorLess},
			gDto.Filter{ArgName: "range_start", Field: bookingModel.FieldBookingRoomCheckOut, Value: start, Operator: gDto.FilterOperatorGreater},
		},
	}
}

func overlap(checkIn, checkOut, start, end time.Time) int {
	from := checkIn
	if start.After(from) {
		from = start
	}

	to := checkOut
	if end.Before(to) {
		to = end
	}

	return max(days(from, to), 0)
}

func days(from, to time.Time) int {
	return int(to.Sub(from).Hours() / hoursPerDay)
}

func rate(booked, available int) string {
	if available == 0 {
		return decimal.Zero.StringFixed(2) //nolint:mnd
	}

	return decimal.NewFromInt(int64(booked)).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(int64(available))).
		StringFixed(2) //nolint:mnd
}
