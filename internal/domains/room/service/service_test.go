package service_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"vfast/config"
	"vfast/infras/otel/mocks"
	s3Mocks "vfast/infras/s3/mocks"
	roomMocks "vfast/internal/domains/room/mocks"
	"vfast/internal/domains/room/model"
	"vfast/internal/domains/room/model/dto"
	"vfast/internal/domains/room/service"
	cacheMocks "vfast/shared/cache/mocks"
	"vfast/shared/constant"
	"vfast/shared/failure"
	repoMocks "vfast/shared/repository/mocks"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	repo        *roomMocks.MockRoom
	maintenance *roomMocks.MockMaintenance
	transactor  *repoMocks.MockTransactor
	cache       *cacheMocks.MockRedisCache
	s3          *s3Mocks.MockS3
	svc         service.Room
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	cfg := &config.Config{}
	cfg.Cache.TTL = 3600

	f := fixture{
		repo:        roomMocks.NewMockRoom(ctrl),
		maintenance: roomMocks.NewMockMaintenance(ctrl),
		transactor:  repoMocks.NewMockTransactor(ctrl),
		cache:       cacheMocks.NewMockRedisCache(ctrl),
		s3:          s3Mocks.NewMockS3(ctrl),
	}

	f.svc = service.New(f.repo, f.maintenance, f.transactor, cfg, f.cache, mocks.NewOtel(), f.s3)

	f.cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.cache.EXPECT().Clear(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.cache.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	f.transactor.EXPECT().
		WithTx(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fn func(tx *sqlx.Tx) error) error {
			return fn(nil)
		}).
		AnyTimes()

	return f
}

func userCtx() context.Context {
	return context.WithValue(context.Background(), constant.ContextKeyUserID, "staff-1")
}

func TestRoomService_Create(t *testing.T) {
	tests := []struct {
		name      string
		req       dto.CreateRoomRequest
		setupMock func(f fixture)
		wantCode  int
	}{
		{
			name: "successful creation",
			req:  dto.CreateRoomRequest{RoomNumber: "R12", RoomType: "DOUBLE", Capacity: 2, Tariff: "1500.00", Features: []string{"AC", " "}},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Exist(gomock.Any(), gomock.Any()).Return(false, nil)
				f.repo.EXPECT().
					Insert(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, room model.Room) error {
						assert.Equal(t, model.StatusAvailable, room.Status)
						assert.Equal(t, []string{"AC"}, []string(room.Features))
						assert.Equal(t, "1500", room.Tariff.String())

						return nil
					})
			},
		},
		{
			name: "duplicate room number",
			req:  dto.CreateRoomRequest{RoomNumber: "R12", RoomType: "DOUBLE", Capacity: 2, Tariff: "1500"},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Exist(gomock.Any(), gomock.Any()).Return(true, nil)
			},
			wantCode: http.StatusConflict,
		},
		{
			name: "repository error",
			req:  dto.CreateRoomRequest{RoomNumber: "R12", RoomType: "DOUBLE", Capacity: 2, Tariff: "1500"},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Exist(gomock.Any(), gomock.Any()).Return(false, nil)
				f.repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("database error"))
			},
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			err := f.svc.Create(userCtx(), tt.req)

			time.Sleep(10 * time.Millisecond)

			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestRoomService_Get(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(f fixture)
		want      dto.RoomResponse
		wantCode  int
	}{
		{
			name: "cache hit",
			setupMock: func(f fixture) {
				f.cache.EXPECT().
					Get(gomock.Any(), "room:get:room-1", gomock.Any()).
					DoAndReturn(func(_ context.Context, _ string, value any) error {
						res, _ := value.(*dto.RoomResponse)
						res.ID = "room-1"
						res.RoomNumber = "R12"

						return nil
					})
			},
			want: dto.RoomResponse{ID: "room-1", RoomNumber: "R12"},
		},
		{
			name: "not found",
			setupMock: func(f fixture) {
				f.cache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cache miss"))
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.Room{}, nil)
			},
			wantCode: http.StatusNotFound,
		},
		{
			name: "from database",
			setupMock: func(f fixture) {
				f.cache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("cache miss"))
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.Room{ID: "room-1", RoomNumber: "R12", Status: model.StatusOccupied}, nil)
			},
			want: dto.RoomResponse{ID: "room-1", RoomNumber: "R12", Status: "OCCUPIED", Features: []string{}, Tariff: "0.00"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.Get(userCtx(), "room-1")

			time.Sleep(10 * time.Millisecond)

			if tt.wantCode != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want.ID, res.ID)
			assert.Equal(t, tt.want.RoomNumber, res.RoomNumber)
			assert.Equal(t, tt.want.Status, res.Status)
		})
	}
}

func TestRoomService_Update(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Update(userCtx(), dto.UpdateRoomRequest{}, "room-1")
	assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))

	floor := 3

	f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.Room{ID: "room-1", RoomNumber: "R12"}, nil)
	f.repo.EXPECT().
		Update(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, fields map[string]any, _ any) error {
			assert.Equal(t, 3, fields[model.FieldFloor])
			assert.NotContains(t, fields, model.FieldStatus)

			return nil
		})

	err = f.svc.Update(userCtx(), dto.UpdateRoomRequest{Floor: &floor}, "room-1")
	assert.NoError(t, err)
}

func TestRoomService_ReserveRelease(t *testing.T) {
	available := model.Room{ID: "room-1", RoomNumber: "R12", Status: model.StatusAvailable}

	tests := []struct {
		name      string
		run       func(svc service.Room) error
		setupMock func(f fixture)
		wantKind  error
		wantCode  int
	}{
		{
			name: "reserve available room",
			run: func(svc service.Room) error {
				return svc.Reserve(userCtx(), dto.ReserveRoomRequest{Notes: "VIP"}, "room-1")
			},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(available, nil)
				f.repo.EXPECT().
					UpdateCount(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ any) (int64, error) {
						assert.Equal(t, model.StatusReserved, fields[model.FieldStatus])
						assert.Equal(t, "staff-1", fields[model.FieldReservedBy])
						assert.Equal(t, "VIP", fields[model.FieldReservationNotes])

						return 1, nil
					})
			},
		},
		{
			name: "reserve taken room",
			run: func(svc service.Room) error {
				return svc.Reserve(userCtx(), dto.ReserveRoomRequest{}, "room-1")
			},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(available, nil)
				f.repo.EXPECT().UpdateCount(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil)
			},
			wantKind: model.ErrUnavailable,
		},
		{
			name: "release reserved room",
			run: func(svc service.Room) error {
				return svc.Release(userCtx(), "room-1")
			},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(available, nil)
				f.repo.EXPECT().
					UpdateCount(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ any) (int64, error) {
						assert.Equal(t, model.StatusAvailable, fields[model.FieldStatus])
						assert.Nil(t, fields[model.FieldReservedBy])

						return 1, nil
					})
			},
		},
		{
			name: "release unreserved room",
			run: func(svc service.Room) error {
				return svc.Release(userCtx(), "room-1")
			},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(available, nil)
				f.repo.EXPECT().UpdateCount(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil)
			},
			wantCode: http.StatusConflict,
		},
		{
			name: "reserve missing room",
			run: func(svc service.Room) error {
				return svc.Reserve(userCtx(), dto.ReserveRoomRequest{}, "room-1")
			},
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.Room{}, nil)
			},
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			err := tt.run(f.svc)

			time.Sleep(10 * time.Millisecond)

			switch {
			case tt.wantKind != nil:
				assert.ErrorIs(t, err, tt.wantKind)
				assert.Equal(t, http.StatusConflict, failure.GetCode(err))
			case tt.wantCode != 0:
				assert.Equal(t, tt.wantCode, failure.GetCode(err))
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestRoomService_ScheduleMaintenance(t *testing.T) {
	tests := []struct {
		name      string
		room      model.Room
		setupMock func(f fixture)
		wantKind  error
		wantCode  int
	}{
		{
			name: "reserved room goes to maintenance",
			room: model.Room{ID: "room-1", RoomNumber: "R12", Status: model.StatusReserved},
			setupMock: func(f fixture) {
				f.maintenance.EXPECT().
					InsertTx(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, m model.Maintenance) error {
						assert.Equal(t, model.MaintenanceInProgress, m.Status)
						assert.Equal(t, "room-1", m.RoomID)

						return nil
					})
				f.repo.EXPECT().
					UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, _ *sqlx.Tx, fields map[string]any, _ any) error {
						assert.Equal(t, model.StatusMaintenance, fields[model.FieldStatus])
						assert.Nil(t, fields[model.FieldReservedBy])

						return nil
					})
			},
		},
		{
			name:      "occupied room refused",
			room:      model.Room{ID: "room-1", RoomNumber: "R12", Status: model.StatusOccupied},
			setupMock: func(_ fixture) {},
			wantKind:  model.ErrUnavailable,
		},
		{
			name:      "already under maintenance",
			room:      model.Room{ID: "room-1", RoomNumber: "R12", Status: model.StatusMaintenance},
			setupMock: func(_ fixture) {},
			wantCode:  http.StatusConflict,
		},
		{
			name:      "missing room",
			room:      model.Room{},
			setupMock: func(_ fixture) {},
			wantCode:  http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(tt.room, nil)
			tt.setupMock(f)

			err := f.svc.ScheduleMaintenance(userCtx(), dto.ScheduleMaintenanceRequest{Reason: "leak", StartDate: "2025-01-10"}, "room-1")

			time.Sleep(10 * time.Millisecond)

			switch {
			case tt.wantKind != nil:
				assert.ErrorIs(t, err, tt.wantKind)
			case tt.wantCode != 0:
				assert.Equal(t, tt.wantCode, failure.GetCode(err))
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestRoomService_ScheduleMaintenance_InvalidDates(t *testing.T) {
	f := newFixture(t)

	err := f.svc.ScheduleMaintenance(userCtx(), dto.ScheduleMaintenanceRequest{Reason: "leak", StartDate: "2025-01-10", EndDate: "2025-01-01"}, "room-1")
	assert.Equal(t, http.StatusBadRequest, failure.GetCode(err))
}

func TestRoomService_CompleteMaintenance(t *testing.T) {
	room := model.Room{ID: "room-1", RoomNumber: "R12", Status: model.StatusMaintenance}

	t.Run("no open order", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(room, nil)
		f.maintenance.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(model.Maintenance{}, nil)

		err := f.svc.CompleteMaintenance(userCtx(), "room-1")
		assert.Equal(t, http.StatusNotFound, failure.GetCode(err))
	})

	t.Run("completes and frees the room", func(t *testing.T) {
		f := newFixture(t)
		f.repo.EXPECT().GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).Return(room, nil)
		f.maintenance.EXPECT().
			GetForUpdateTx(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(model.Maintenance{ID: "m-1", RoomID: "room-1", Status: model.MaintenanceInProgress}, nil)
		f.maintenance.EXPECT().
			UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *sqlx.Tx, fields map[string]any, _ any) error {
				assert.Equal(t, model.MaintenanceCompleted, fields[model.FieldMaintenanceStatus])

				return nil
			})
		f.repo.EXPECT().
			UpdateTx(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ *sqlx.Tx, fields map[string]any, _ any) error {
				assert.Equal(t, model.StatusAvailable, fields[model.FieldStatus])

				return nil
			})

		err := f.svc.CompleteMaintenance(userCtx(), "room-1")

		time.Sleep(10 * time.Millisecond)

		assert.NoError(t, err)
	})
}
