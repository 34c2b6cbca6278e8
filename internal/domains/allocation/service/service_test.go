package service_test

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"testing"
	"time"

	"vfast/config"
	"vfast/infras/otel/mocks"
	"vfast/internal/domains/allocation/service"
	bookingMocks "vfast/internal/domains/booking/mocks"
	bookingModel "vfast/internal/domains/booking/model"
	bookingDto "vfast/internal/domains/booking/model/dto"
	"vfast/internal/domains/booking/workflow"
	notificationMocks "vfast/internal/domains/notification/mocks"
	notificationModel "vfast/internal/domains/notification/model"
	roomMocks "vfast/internal/domains/room/mocks"
	roomModel "vfast/internal/domains/room/model"
	"vfast/permissions"
	cacheMocks "vfast/shared/cache/mocks"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"
	repoMocks "vfast/shared/repository/mocks"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	bookings     *bookingMocks.MockBooking
	bookingRooms *bookingMocks.MockBookingRoom
	rooms        *roomMocks.MockRoom
	maintenance  *roomMocks.MockMaintenance
	transactor   *repoMocks.MockTransactor
	notification *notificationMocks.MockNotification
	cache        *cacheMocks.MockRedisCache
	svc          service.Allocation

	tx        *sqlx.Tx
	txResults *[]error
	traces    *mocks.Recorder
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	cfg := &config.Config{}
	cfg.Allocation.MaxRetry = 2

	f := fixture{
		bookings:     bookingMocks.NewMockBooking(ctrl),
		bookingRooms: bookingMocks.NewMockBookingRoom(ctrl),
		rooms:        roomMocks.NewMockRoom(ctrl),
		maintenance:  roomMocks.NewMockMaintenance(ctrl),
		transactor:   repoMocks.NewMockTransactor(ctrl),
		notification: notificationMocks.NewMockNotification(ctrl),
		cache:        cacheMocks.NewMockRedisCache(ctrl),
		tx:           &sqlx.Tx{},
		txResults:    &[]error{},
		traces:       mocks.NewRecorder(),
	}

	f.svc = service.New(f.bookings, f.bookingRooms, f.rooms, f.maintenance, f.transactor,
		workflow.New(3), f.notification, cfg, f.cache, f.traces)

	f.cache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	f.transactor.EXPECT().
		WithTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func(tx *sqlx.Tx) error) error {
			err := fn(f.tx)
			*f.txResults = append(*f.txResults, err)

			return err
		}).
		AnyTimes()

	return f
}

func staff() context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, "staff-1")

	return context.WithValue(ctx, constant.ContextKeyUserRole, constant.RoleVFast)
}

func booking(status bookingModel.Status, checkIn bookingModel.CheckInStatus) bookingModel.Booking {
	return bookingModel.Booking{
		ID:            "booking-1",
		UserID:        "user-1",
		BookingType:   bookingModel.BookingTypePersonal,
		GuestCount:    3,
		NumberOfRooms: 2,
		CheckInDate:   time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		CheckOutDate:  time.Date(2026, 11, 3, 0, 0, 0, 0, time.UTC),
		Status:        status,
		CheckInStatus: checkIn,
	}
}

func rooms() []roomModel.Room {
	return []roomModel.Room{
		{ID: "room-a", RoomNumber: "R12", Status: roomModel.StatusAvailable},
		{ID: "room-b", RoomNumber: "R14", Status: roomModel.StatusAvailable},
	}
}

func strRef(s string) *string {
	return &s
}

func pqErr(code string) error {
	return fmt.Errorf("failed to lock data (booking): %w", &pq.Error{Code: pq.ErrorCode(code)})
}

// expectChecks stubs the per-room maintenance and overlap lookups as clear.
func expectChecks(f fixture) {
	f.maintenance.EXPECT().ExistTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()
	f.bookingRooms.EXPECT().ExistTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()
}

func TestAllocation_Allocate(t *testing.T) {
	approved := booking(bookingModel.StatusApproved, bookingModel.CheckInStatusNotCheckedIn)

	tests := []struct {
		name      string
		ctx       context.Context
		roomIDs   []string
		setupMock func(f fixture)
		want      []string
		wantKind  error
		wantCode  int
	}{
		{
			name:    "binds rooms and occupies them",
			ctx:     staff(),
			roomIDs: []string{"room-b", "room-a"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved, nil)
				f.rooms.EXPECT().
					GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, filter gDto.FilterGroup) ([]roomModel.Room, error) {
						_, args := filter.GetWhereClause()
						assert.Equal(t, "room-a", args["id_0"])
						assert.Equal(t, "room-b", args["id_1"])

						return rooms(), nil
					})
				expectChecks(f)
				f.rooms.EXPECT().
					UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, fields map[string]any, _ gDto.FilterGroup) error {
						assert.Equal(t, roomModel.StatusOccupied, fields[roomModel.FieldStatus])

						return nil
					})
				f.bookingRooms.EXPECT().
					InsertBulkTx(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, bindings []bookingModel.BookingRoom) error {
						require.Len(t, bindings, 2)
						assert.Equal(t, "R12", bindings[0].RoomNumber)
						assert.Equal(t, approved.CheckOutDate, bindings[1].CheckOutDate)
						assert.Nil(t, bindings[0].ReleasedAt)

						return nil
					})
				f.bookings.EXPECT().
					UpdateCountTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, changes map[string]any, _ gDto.FilterGroup) (int64, error) {
						assert.Equal(t, bookingModel.StatusAllocated, changes[bookingModel.FieldStatus])
						assert.Equal(t, bookingModel.CheckInStatusNotCheckedIn, changes[bookingModel.FieldCheckInStatus])

						return 1, nil
					})
				f.notification.EXPECT().
					Publish(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, events ...notificationModel.Event) error {
						require.Len(t, events, 2)
						assert.Equal(t, notificationModel.EventBookingStatusChanged, events[0].Type)
						assert.Equal(t, notificationModel.EventRoomAllocated, events[1].Type)
						assert.Equal(t, []string{"R12", "R14"}, events[1].RoomNumbers)

						return nil
					})
			},
			want: []string{"R12", "R14"},
		},
		{
			name:    "booking not approved",
			ctx:     staff(),
			roomIDs: []string{"room-a"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(booking(bookingModel.StatusPendingAdminApproval, bookingModel.CheckInStatusNotCheckedIn), nil)
			},
			wantKind: workflow.ErrBookingNotAllocatable,
		},
		{
			name:    "already allocated",
			ctx:     staff(),
			roomIDs: []string{"room-a"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(booking(bookingModel.StatusAllocated, bookingModel.CheckInStatusNotCheckedIn), nil)
			},
			wantKind: workflow.ErrBookingNotAllocatable,
		},
		{
			name:    "room taken",
			ctx:     staff(),
			roomIDs: []string{"room-a", "room-b"},
			setupMock: func(f fixture) {
				taken := rooms()
				taken[0].Status = roomModel.StatusOccupied

				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved, nil)
				f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(taken, nil)
			},
			wantKind: workflow.ErrRoomUnavailable,
		},
		{
			name:    "room under maintenance",
			ctx:     staff(),
			roomIDs: []string{"room-a"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved, nil)
				f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(rooms()[:1], nil)
				f.maintenance.EXPECT().
					ExistTx(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, tx *sqlx.Tx, _ gDto.FilterGroup) (bool, error) {
						assert.Same(t, f.tx, tx)

						return true, nil
					})
			},
			wantKind: workflow.ErrRoomUnavailable,
		},
		{
			name:    "overlapping stay",
			ctx:     staff(),
			roomIDs: []string{"room-a"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved, nil)
				f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(rooms()[:1], nil)
				f.maintenance.EXPECT().ExistTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)
				f.bookingRooms.EXPECT().
					ExistTx(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, tx *sqlx.Tx, filter gDto.FilterGroup) (bool, error) {
						assert.Same(t, f.tx, tx)

						where, args := filter.GetWhereClause()
						assert.Contains(t, where, "released_at IS NULL")
						assert.Equal(t, approved.CheckOutDate, args["stay_end"])
						assert.Equal(t, approved.CheckInDate, args["stay_start"])

						return true, nil
					})
			},
			wantKind: workflow.ErrRoomUnavailable,
		},
		{
			name:    "unknown room",
			ctx:     staff(),
			roomIDs: []string{"room-a", "room-z"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved, nil)
				f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(rooms()[:1], nil)
			},
			wantKind: workflow.ErrRoomUnavailable,
		},
		{
			name:    "more rooms than requested",
			ctx:     staff(),
			roomIDs: []string{"room-a", "room-b", "room-c"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved, nil)
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "duplicate room ids",
			ctx:       staff(),
			roomIDs:   []string{"room-a", "room-a"},
			setupMock: func(_ fixture) {},
			wantCode:  http.StatusBadRequest,
		},
		{
			name:      "not vfast staff",
			ctx:       context.WithValue(context.Background(), constant.ContextKeyUserRole, constant.RoleAdmin),
			roomIDs:   []string{"room-a"},
			setupMock: func(_ fixture) {},
			wantKind:  permissions.ErrNotAuthorized,
		},
		{
			name:    "booking not found",
			ctx:     staff(),
			roomIDs: []string{"room-a"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(bookingModel.Booking{}, nil)
			},
			wantCode: http.StatusNotFound,
		},
		{
			name:    "concurrent winner hits exclusion constraint",
			ctx:     staff(),
			roomIDs: []string{"room-a"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(approved, nil)
				f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(rooms()[:1], nil)
				expectChecks(f)
				f.rooms.EXPECT().UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
				f.bookingRooms.EXPECT().InsertBulkTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(pqErr(constant.PqErrorCodeExclusionViolation))
			},
			wantKind: workflow.ErrRoomUnavailable,
		},
		{
			name:    "serialization failure is retried",
			ctx:     staff(),
			roomIDs: []string{"room-a"},
			setupMock: func(f fixture) {
				reconsidered := booking(bookingModel.StatusPendingReconsideration, bookingModel.CheckInStatusNotCheckedIn)

				gomock.InOrder(
					f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(bookingModel.Booking{}, pqErr(constant.PqErrorCodeSerializationFailure)),
					f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(reconsidered, nil),
				)
				f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(rooms()[:1], nil)
				expectChecks(f)
				f.rooms.EXPECT().UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
				f.bookingRooms.EXPECT().InsertBulkTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
				f.bookings.EXPECT().UpdateCountTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(1), nil)
				f.notification.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
			},
			want: []string{"R12"},
		},
		{
			name:    "deadlock retries run out",
			ctx:     staff(),
			roomIDs: []string{"room-a"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(bookingModel.Booking{}, pqErr(constant.PqErrorCodeDeadlockDetected)).
					Times(3)
			},
			wantKind: workflow.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			got, err := f.svc.Allocate(tt.ctx, "booking-1", bookingDto.AllocateRequest{RoomIDs: tt.roomIDs})

			time.Sleep(10 * time.Millisecond)

			switch {
			case tt.wantKind != nil:
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantKind)
			case tt.wantCode != 0:
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestAllocation_RoomUnavailableMessage(t *testing.T) {
	f := newFixture(t)

	taken := rooms()[:1]
	taken[0].Status = roomModel.StatusMaintenance

	f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(booking(bookingModel.StatusApproved, bookingModel.CheckInStatusNotCheckedIn), nil)
	f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(taken, nil)

	_, err := f.svc.Allocate(staff(), "booking-1", bookingDto.AllocateRequest{RoomIDs: []string{"room-a"}})

	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, failure.GetCode(err))
	assert.Equal(t, "Room R12 is no longer available", err.Error())
}

func expectRelease(t *testing.T, f fixture) {
	t.Helper()

	f.bookingRooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return([]bookingModel.BookingRoom{
		{BookingID: "booking-1", RoomID: "room-a", RoomNumber: "R12"},
		{BookingID: "booking-1", RoomID: "room-b", RoomNumber: "R14"},
	}, nil)
	f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(rooms(), nil)
	f.bookingRooms.EXPECT().
		UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, fields map[string]any, _ gDto.FilterGroup) error {
			assert.Contains(t, fields, bookingModel.FieldReleasedAt)

			return nil
		})
	f.rooms.EXPECT().
		UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, fields map[string]any, filter gDto.FilterGroup) error {
			assert.Equal(t, roomModel.StatusAvailable, fields[roomModel.FieldStatus])

			_, args := filter.GetWhereClause()
			assert.Equal(t, roomModel.StatusOccupied, args[roomModel.ArgExpectedStatus])

			return nil
		})
}

func TestAllocation_CancelAllocation(t *testing.T) {
	tests := []struct {
		name      string
		booking   bookingModel.Booking
		notes     *string
		setupMock func(t *testing.T, f fixture)
		wantKind  error
	}{
		{
			name:    "frees rooms and asks for reconsideration",
			booking: booking(bookingModel.StatusAllocated, bookingModel.CheckInStatusNotCheckedIn),
			notes:   strRef("guest postponed"),
			setupMock: func(t *testing.T, f fixture) {
				expectRelease(t, f)
				f.bookings.EXPECT().
					UpdateCountTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, changes map[string]any, _ gDto.FilterGroup) (int64, error) {
						assert.Equal(t, bookingModel.StatusPendingReconsideration, changes[bookingModel.FieldStatus])
						assert.Equal(t, "guest postponed", changes[bookingModel.FieldVFastNotes])

						return 1, nil
					})
				f.notification.EXPECT().
					Publish(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, events ...notificationModel.Event) error {
						require.Len(t, events, 1)
						assert.Equal(t, string(bookingModel.StatusPendingReconsideration), events[0].Status)
						assert.Equal(t, "staff-1", events[0].ActorID)

						return nil
					})
			},
		},
		{
			name:    "notes are optional",
			booking: booking(bookingModel.StatusAllocated, bookingModel.CheckInStatusNotCheckedIn),
			setupMock: func(t *testing.T, f fixture) {
				expectRelease(t, f)
				f.bookings.EXPECT().
					UpdateCountTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, changes map[string]any, _ gDto.FilterGroup) (int64, error) {
						assert.Equal(t, bookingModel.StatusPendingReconsideration, changes[bookingModel.FieldStatus])
						assert.NotContains(t, changes, bookingModel.FieldVFastNotes)

						return 1, nil
					})
				f.notification.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)
			},
		},
		{
			name:      "guests already checked in",
			booking:   booking(bookingModel.StatusAllocated, bookingModel.CheckInStatusCheckedIn),
			setupMock: func(_ *testing.T, _ fixture) {},
			wantKind:  workflow.ErrAlreadyCheckedIn,
		},
		{
			name:      "not allocated",
			booking:   booking(bookingModel.StatusApproved, bookingModel.CheckInStatusNotCheckedIn),
			setupMock: func(_ *testing.T, _ fixture) {},
			wantKind:  workflow.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.booking, nil)
			tt.setupMock(t, f)

			err := f.svc.CancelAllocation(staff(), "booking-1", bookingDto.CancelAllocationRequest{Notes: tt.notes})

			time.Sleep(10 * time.Millisecond)

			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestAllocation_CompleteStay(t *testing.T) {
	tests := []struct {
		name      string
		booking   bookingModel.Booking
		setupMock func(t *testing.T, f fixture)
		wantKind  error
	}{
		{
			name:    "checks out and frees rooms",
			booking: booking(bookingModel.StatusAllocated, bookingModel.CheckInStatusCheckedIn),
			setupMock: func(t *testing.T, f fixture) {
				expectRelease(t, f)
				f.bookings.EXPECT().
					UpdateCountTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, changes map[string]any, _ gDto.FilterGroup) (int64, error) {
						assert.Equal(t, bookingModel.CheckInStatusCheckedOut, changes[bookingModel.FieldCheckInStatus])
						assert.NotContains(t, changes, bookingModel.FieldStatus)

						return 1, nil
					})
			},
		},
		{
			name:      "never checked in",
			booking:   booking(bookingModel.StatusAllocated, bookingModel.CheckInStatusNotCheckedIn),
			setupMock: func(_ *testing.T, _ fixture) {},
			wantKind:  workflow.ErrNotCheckedIn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.booking, nil)
			tt.setupMock(t, f)

			err := f.svc.CompleteStay(staff(), "booking-1", bookingDto.CheckOutRequest{})

			time.Sleep(10 * time.Millisecond)

			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)

				return
			}

			assert.NoError(t, err)
		})
	}
}

// ledger keeps booking, room and binding rows in memory so a sequence of calls
// observes the writes of the calls before it.
type ledger struct {
	bookings map[string]bookingModel.Booking
	rooms    map[string]roomModel.Room
	bindings []bookingModel.BookingRoom
}

func listArgs(args map[string]any, name string) []string {
	var out []string

	for i := 0; ; i++ {
		v, ok := args[fmt.Sprintf("%s_%d", name, i)]
		if !ok {
			return out
		}

		out = append(out, v.(string))
	}
}

func (l *ledger) wire(t *testing.T, f fixture) {
	t.Helper()

	f.bookings.EXPECT().
		GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, filter gDto.FilterGroup) (bookingModel.Booking, error) {
			_, args := filter.GetWhereClause()

			return l.bookings[args[bookingModel.FieldID].(string)], nil
		}).
		AnyTimes()
	f.bookings.EXPECT().
		UpdateCountTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, changes map[string]any, filter gDto.FilterGroup) (int64, error) {
			_, args := filter.GetWhereClause()

			b := l.bookings[args[bookingModel.FieldID].(string)]
			if status, ok := changes[bookingModel.FieldStatus]; ok {
				b.Status = status.(bookingModel.Status)
			}

			if checkIn, ok := changes[bookingModel.FieldCheckInStatus]; ok {
				b.CheckInStatus = checkIn.(bookingModel.CheckInStatus)
			}

			l.bookings[b.ID] = b

			return 1, nil
		}).
		AnyTimes()
	f.rooms.EXPECT().
		GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, filter gDto.FilterGroup) ([]roomModel.Room, error) {
			_, args := filter.GetWhereClause()

			var out []roomModel.Room

			for _, id := range listArgs(args, roomModel.FieldID) {
				if room, ok := l.rooms[id]; ok {
					out = append(out, room)
				}
			}

			return out, nil
		}).
		AnyTimes()
	f.rooms.EXPECT().
		UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, fields map[string]any, filter gDto.FilterGroup) error {
			_, args := filter.GetWhereClause()

			for _, id := range listArgs(args, roomModel.FieldID) {
				room := l.rooms[id]
				if expected, ok := args[roomModel.ArgExpectedStatus]; ok && room.Status != expected {
					continue
				}

				room.Status = fields[roomModel.FieldStatus].(roomModel.Status)
				l.rooms[id] = room
			}

			return nil
		}).
		AnyTimes()
	f.maintenance.EXPECT().ExistTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil).AnyTimes()
	f.bookingRooms.EXPECT().
		ExistTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, filter gDto.FilterGroup) (bool, error) {
			_, args := filter.GetWhereClause()

			for _, binding := range l.bindings {
				if binding.RoomID == args[bookingModel.FieldBookingRoomRoomID] && binding.ReleasedAt == nil {
					return true, nil
				}
			}

			return false, nil
		}).
		AnyTimes()
	f.bookingRooms.EXPECT().
		InsertBulkTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, bindings []bookingModel.BookingRoom) error {
			l.bindings = append(l.bindings, bindings...)

			return nil
		}).
		AnyTimes()
	f.bookingRooms.EXPECT().
		GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, filter gDto.FilterGroup) ([]bookingModel.BookingRoom, error) {
			return l.active(filter), nil
		}).
		AnyTimes()
	f.bookingRooms.EXPECT().
		UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ *sqlx.Tx, fields map[string]any, filter gDto.FilterGroup) error {
			releasedAt := fields[bookingModel.FieldReleasedAt].(time.Time)

			for _, binding := range l.active(filter) {
				for i := range l.bindings {
					if l.bindings[i].ID == binding.ID {
						l.bindings[i].ReleasedAt = &releasedAt
					}
				}
			}

			return nil
		}).
		AnyTimes()
	f.notification.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func (l *ledger) active(filter gDto.FilterGroup) []bookingModel.BookingRoom {
	_, args := filter.GetWhereClause()
	bookingIDs := listArgs(args, bookingModel.FieldBookingRoomBookingID)

	var out []bookingModel.BookingRoom

	for _, binding := range l.bindings {
		if binding.ReleasedAt == nil && slices.Contains(bookingIDs, binding.BookingID) {
			out = append(out, binding)
		}
	}

	return out
}

func TestAllocation_ReallocateAfterCancel(t *testing.T) {
	first := booking(bookingModel.StatusApproved, bookingModel.CheckInStatusNotCheckedIn)
	second := booking(bookingModel.StatusApproved, bookingModel.CheckInStatusNotCheckedIn)
	second.ID = "booking-2"
	second.UserID = "user-2"

	l := &ledger{
		bookings: map[string]bookingModel.Booking{first.ID: first, second.ID: second},
		rooms:    map[string]roomModel.Room{"room-a": rooms()[0]},
	}

	f := newFixture(t)
	l.wire(t, f)

	got, err := f.svc.Allocate(staff(), first.ID, bookingDto.AllocateRequest{RoomIDs: []string{"room-a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"R12"}, got)
	assert.Equal(t, roomModel.StatusOccupied, l.rooms["room-a"].Status)
	assert.Equal(t, bookingModel.StatusAllocated, l.bookings[first.ID].Status)
	require.Len(t, l.bindings, 1)
	assert.Equal(t, first.ID, l.bindings[0].BookingID)

	_, err = f.svc.Allocate(staff(), second.ID, bookingDto.AllocateRequest{RoomIDs: []string{"room-a"}})
	require.ErrorIs(t, err, workflow.ErrRoomUnavailable)
	assert.Len(t, l.bindings, 1)

	err = f.svc.CancelAllocation(staff(), first.ID, bookingDto.CancelAllocationRequest{})
	require.NoError(t, err)
	assert.Equal(t, roomModel.StatusAvailable, l.rooms["room-a"].Status)
	assert.Equal(t, bookingModel.StatusPendingReconsideration, l.bookings[first.ID].Status)
	assert.Equal(t, bookingModel.CheckInStatusNotCheckedIn, l.bookings[first.ID].CheckInStatus)
	assert.NotNil(t, l.bindings[0].ReleasedAt)

	got, err = f.svc.Allocate(staff(), second.ID, bookingDto.AllocateRequest{RoomIDs: []string{"room-a"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"R12"}, got)
	assert.Equal(t, roomModel.StatusOccupied, l.rooms["room-a"].Status)
	assert.Equal(t, bookingModel.StatusAllocated, l.bookings[second.ID].Status)
	require.Len(t, l.bindings, 2)
	assert.Equal(t, second.ID, l.bindings[1].BookingID)
	assert.Nil(t, l.bindings[1].ReleasedAt)

	assert.Len(t, f.traces.Errors(constant.OtelServiceScopeName+".Allocate"), 1)
	assert.Empty(t, f.traces.Errors(constant.OtelServiceScopeName+".CancelAllocation"))

	time.Sleep(10 * time.Millisecond)
}

func TestAllocation_SecondRoomFailsRollsBack(t *testing.T) {
	f := newFixture(t)

	f.bookings.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(booking(bookingModel.StatusApproved, bookingModel.CheckInStatusNotCheckedIn), nil)
	f.rooms.EXPECT().GetAllForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(rooms(), nil)
	gomock.InOrder(
		f.maintenance.EXPECT().ExistTx(gomock.Any(), f.tx, gomock.Any()).Return(false, nil),
		f.bookingRooms.EXPECT().ExistTx(gomock.Any(), f.tx, gomock.Any()).Return(false, nil),
		f.maintenance.EXPECT().
			ExistTx(gomock.Any(), f.tx, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *sqlx.Tx, filter gDto.FilterGroup) (bool, error) {
				_, args := filter.GetWhereClause()
				assert.Equal(t, "room-b", args[roomModel.FieldMaintenanceRoomID])

				return true, nil
			}),
	)
	f.rooms.EXPECT().UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	f.bookingRooms.EXPECT().InsertBulkTx(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	f.bookings.EXPECT().UpdateCountTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	f.notification.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	_, err := f.svc.Allocate(staff(), "booking-1", bookingDto.AllocateRequest{RoomIDs: []string{"room-a", "room-b"}})

	require.ErrorIs(t, err, workflow.ErrRoomUnavailable)
	assert.Equal(t, "Room R14 is no longer available", err.Error())
	require.Len(t, *f.txResults, 1)
	assert.ErrorIs(t, (*f.txResults)[0], workflow.ErrRoomUnavailable)

	traced := f.traces.Errors(constant.OtelServiceScopeName + ".Allocate")
	require.Len(t, traced, 1)
	assert.ErrorIs(t, traced[0], workflow.ErrRoomUnavailable)
}
