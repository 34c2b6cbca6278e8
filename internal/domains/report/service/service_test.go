package service_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/http"
	"testing"
	"time"

	"vfast/config"
	"vfast/infras/otel/mocks"
	bookingMocks "vfast/internal/domains/booking/mocks"
	bookingModel "vfast/internal/domains/booking/model"
	"vfast/internal/domains/report/model/dto"
	"vfast/internal/domains/report/service"
	roomMocks "vfast/internal/domains/room/mocks"
	roomModel "vfast/internal/domains/room/model"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	bookings     *bookingMocks.MockBooking
	bookingRooms *bookingMocks.MockBookingRoom
	rooms        *roomMocks.MockRoom
	svc          service.Report
}

func newFixture(t *testing.T, maxRows int) fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	cfg := &config.Config{}
	cfg.Report.MaxRows = maxRows

	f := fixture{
		bookings:     bookingMocks.NewMockBooking(ctrl),
		bookingRooms: bookingMocks.NewMockBookingRoom(ctrl),
		rooms:        roomMocks.NewMockRoom(ctrl),
	}

	f.svc = service.New(f.bookings, f.bookingRooms, f.rooms, cfg, mocks.NewOtel())

	return f
}

func date(s string) time.Time {
	t, _ := time.Parse(constant.DateOnlyFormat, s)

	return t
}

func bookings() []bookingModel.Booking {
	physics := "Physics"

	return []bookingModel.Booking{
		{
			ID:            "booking-1",
			Purpose:       "Seminar, speakers",
			BookingType:   bookingModel.BookingTypeOfficial,
			Department:    &physics,
			GuestCount:    3,
			NumberOfRooms: 2,
			CheckInDate:   date("2026-11-01"),
			CheckOutDate:  date("2026-11-03"),
			Status:        bookingModel.StatusAllocated,
			CheckInStatus: bookingModel.CheckInStatusCheckedIn,
		},
		{
			ID:            "booking-2",
			Purpose:       "Family visit",
			BookingType:   bookingModel.BookingTypePersonal,
			GuestCount:    1,
			NumberOfRooms: 1,
			CheckInDate:   date("2026-11-02"),
			CheckOutDate:  date("2026-11-04"),
			Status:        bookingModel.StatusPendingAdminApproval,
			CheckInStatus: bookingModel.CheckInStatusNotCheckedIn,
		},
	}
}

// expectCharges wires one earlier cancelled binding and two active ones for booking-1.
func expectCharges(t *testing.T, f fixture) {
	t.Helper()

	cancelled := date("2026-10-20")

	f.bookingRooms.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]bookingModel.BookingRoom{
		{ID: "br-0", BookingID: "booking-1", RoomID: "room-z", RoomNumber: "R01", ReleasedAt: &cancelled},
		{ID: "br-1", BookingID: "booking-1", RoomID: "room-b", RoomNumber: "R14"},
		{ID: "br-2", BookingID: "booking-1", RoomID: "room-a", RoomNumber: "R12"},
	}, nil)
	f.rooms.EXPECT().
		GetAll(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ gDto.QueryParams, filter gDto.FilterGroup, _ ...string) ([]roomModel.Room, error) {
			_, args := filter.GetWhereClause()
			assert.Len(t, args, 2)
			assert.Equal(t, "room-a", args["id_0"])

			return []roomModel.Room{
				{ID: "room-a", Tariff: decimal.RequireFromString("100.50")},
				{ID: "room-b", Tariff: decimal.RequireFromString("200")},
			}, nil
		})
}

func TestReport_Bookings(t *testing.T) {
	tests := []struct {
		name      string
		req       dto.BookingReportRequest
		setupMock func(t *testing.T, f fixture)
		wantCode  int
		wantTotal string
	}{
		{
			name: "charges allocated stays",
			req:  dto.BookingReportRequest{StartDate: "2026-11-01", EndDate: "2026-11-30", Department: "Physics"},
			setupMock: func(t *testing.T, f fixture) {
				f.bookings.EXPECT().Count(gomock.Any(), gomock.Any()).Return(2, nil)
				f.bookings.EXPECT().
					GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, params gDto.QueryParams, _ gDto.FilterGroup, _ ...string) ([]bookingModel.Booking, error) {
						assert.Equal(t, bookingModel.FieldCheckInDate, params.SortBy)

						return bookings(), nil
					})
				expectCharges(t, f)
			},
			wantTotal: "601.00",
		},
		{
			name: "nothing allocated",
			req:  dto.BookingReportRequest{Status: "pending_admin_approval"},
			setupMock: func(_ *testing.T, f fixture) {
				f.bookings.EXPECT().Count(gomock.Any(), gomock.Any()).Return(1, nil)
				f.bookings.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return(bookings()[1:], nil)
			},
			wantTotal: "0.00",
		},
		{
			name:      "unknown status",
			req:       dto.BookingReportRequest{Status: "LOST"},
			setupMock: func(_ *testing.T, _ fixture) {},
			wantCode:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 0)
			tt.setupMock(t, f)

			res, err := f.svc.Bookings(context.Background(), gDto.QueryParams{Page: 1, Limit: 10}, tt.req)
			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantTotal, res.TotalCharge)
			assert.Equal(t, 1, res.TotalPage)

			if res.Rows[0].ID == "booking-1" {
				assert.Equal(t, []string{"R12", "R14"}, res.Rows[0].Rooms)
				assert.Equal(t, "601.00", res.Rows[0].Charge)
				assert.Equal(t, 2, res.Rows[0].Nights)
				assert.Equal(t, string(bookingModel.StageCheckedIn), res.Rows[0].Stage)
			}
		})
	}
}

func TestReport_ExportBookings(t *testing.T) {
	t.Run("csv", func(t *testing.T) {
		f := newFixture(t, 100)

		f.bookings.EXPECT().Count(gomock.Any(), gomock.Any()).Return(2, nil)
		f.bookings.EXPECT().
			GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, params gDto.QueryParams, _ gDto.FilterGroup, _ ...string) ([]bookingModel.Booking, error) {
				assert.Equal(t, 100, params.Limit)

				return bookings(), nil
			})
		expectCharges(t, f)

		file, err := f.svc.ExportBookings(context.Background(), dto.BookingReportRequest{Format: dto.FormatCSV})
		require.NoError(t, err)

		assert.Equal(t, constant.ContentTypeCSV, file.ContentType)
		assert.Contains(t, file.Name, ".csv")

		records, err := csv.NewReader(bytes.NewReader(file.Data)).ReadAll()
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, "Purpose", records[0][1])
		assert.Equal(t, "Seminar, speakers", records[1][1])
		assert.Equal(t, "R12 R14", records[1][10])
		assert.Equal(t, "601.00", records[1][11])
		assert.Equal(t, "0.00", records[2][11])
	})

	t.Run("pdf", func(t *testing.T) {
		f := newFixture(t, 100)

		f.bookings.EXPECT().Count(gomock.Any(), gomock.Any()).Return(1, nil)
		f.bookings.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return(bookings()[1:], nil)

		file, err := f.svc.ExportBookings(context.Background(), dto.BookingReportRequest{Format: dto.FormatPDF, Status: "PENDING_ADMIN_APPROVAL"})
		require.NoError(t, err)

		assert.Equal(t, constant.ContentTypePDF, file.ContentType)
		assert.True(t, bytes.HasPrefix(file.Data, []byte("%PDF")))
	})

	t.Run("too many rows", func(t *testing.T) {
		f := newFixture(t, 1)

		f.bookings.EXPECT().Count(gomock.Any(), gomock.Any()).Return(2, nil)

		_, err := f.svc.ExportBookings(context.Background(), dto.BookingReportRequest{})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
	})
}

func TestReport_Occupancy(t *testing.T) {
	t.Run("rates booked nights", func(t *testing.T) {
		f := newFixture(t, 0)

		binding := bookingModel.BookingRoom{
			ID:           "br-1",
			BookingID:    "booking-1",
			RoomID:       "room-a",
			RoomNumber:   "R12",
			CheckInDate:  date("2026-10-30"),
			CheckOutDate: date("2026-11-03"),
		}

		f.rooms.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]roomModel.Room{
			{ID: "room-a", RoomNumber: "R12", Status: roomModel.StatusOccupied, Tariff: decimal.NewFromInt(100)},
			{ID: "room-b", RoomNumber: "R14", Status: roomModel.StatusAvailable, Tariff: decimal.NewFromInt(200)},
		}, nil)
		gomock.InOrder(
			f.bookingRooms.EXPECT().
				GetAll(gomock.Any(), gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, _ gDto.QueryParams, filter gDto.FilterGroup, _ ...string) ([]bookingModel.BookingRoom, error) {
					_, args := filter.GetWhereClause()
					assert.Equal(t, date("2026-11-05"), args["range_end"])
					assert.Equal(t, date("2026-11-01"), args["range_start"])

					return []bookingModel.BookingRoom{binding}, nil
				}),
			f.bookingRooms.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]bookingModel.BookingRoom{binding}, nil),
		)
		f.bookings.EXPECT().
			GetAll(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return([]bookingModel.Booking{{ID: "booking-1"}}, nil)

		res, err := f.svc.Occupancy(context.Background(), dto.OccupancyRequest{StartDate: "2026-11-01", EndDate: "2026-11-05"})
		require.NoError(t, err)

		assert.Equal(t, 4, res.Nights)
		assert.Equal(t, 8, res.AvailableNights)
		assert.Equal(t, 2, res.BookedNights)
		assert.Equal(t, "25.00", res.Rate)
		assert.Equal(t, "200.00", res.Revenue)
		assert.Equal(t, 1, res.RoomsByStatus[string(roomModel.StatusOccupied)])
		assert.Equal(t, "50.00", res.Rooms[0].Rate)
		assert.Equal(t, "0.00", res.Rooms[1].Rate)
	})

	t.Run("cancelled allocation is not counted", func(t *testing.T) {
		f := newFixture(t, 0)

		released := date("2026-10-28")

		f.rooms.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]roomModel.Room{
			{ID: "room-a", RoomNumber: "R12", Status: roomModel.StatusAvailable, Tariff: decimal.NewFromInt(100)},
		}, nil)
		f.bookingRooms.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]bookingModel.BookingRoom{{
			ID:           "br-1",
			BookingID:    "booking-1",
			RoomID:       "room-a",
			CheckInDate:  date("2026-11-01"),
			CheckOutDate: date("2026-11-03"),
			ReleasedAt:   &released,
		}}, nil)
		f.bookings.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, nil)

		res, err := f.svc.Occupancy(context.Background(), dto.OccupancyRequest{StartDate: "2026-11-01", EndDate: "2026-11-05"})
		require.NoError(t, err)

		assert.Equal(t, 0, res.BookedNights)
		assert.Equal(t, "0.00", res.Rate)
	})

	t.Run("inverted range", func(t *testing.T) {
		f := newFixture(t, 0)

		_, err := f.svc.Occupancy(context.Background(), dto.OccupancyRequest{StartDate: "2026-11-05", EndDate: "2026-11-01"})
		require.Error(t, err)
		assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
	})
}
