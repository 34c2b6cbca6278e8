package service_test

import (
	"bytes"
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"testing"
	"time"

	"vfast/config"
	"vfast/infras/otel/mocks"
	s3Mocks "vfast/infras/s3/mocks"
	bookingMocks "vfast/internal/domains/booking/mocks"
	bookingModel "vfast/internal/domains/booking/model"
	"vfast/internal/domains/booking/workflow"
	guestMocks "vfast/internal/domains/guest/mocks"
	"vfast/internal/domains/guest/model"
	"vfast/internal/domains/guest/model/dto"
	"vfast/internal/domains/guest/service"
	"vfast/permissions"
	cacheMocks "vfast/shared/cache/mocks"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var errCacheMiss = errors.New("cache miss")

type fixture struct {
	repo     *guestMocks.MockGuest
	bookings *bookingMocks.MockBooking
	cache    *cacheMocks.MockRedisCache
	s3       *s3Mocks.MockS3
	svc      service.Guest
}

func newFixture(t *testing.T) fixture {
	t.Helper()

	ctrl := gomock.NewController(t)

	cfg := &config.Config{}
	cfg.External.S3.BucketName = "vfast"

	f := fixture{
		repo:     guestMocks.NewMockGuest(ctrl),
		bookings: bookingMocks.NewMockBooking(ctrl),
		cache:    cacheMocks.NewMockRedisCache(ctrl),
		s3:       s3Mocks.NewMockS3(ctrl),
	}

	f.svc = service.New(f.repo, f.bookings, cfg, f.cache, mocks.NewOtel(), f.s3)

	f.cache.EXPECT().Delete(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	f.cache.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	return f
}

func ctxAs(userID, role string) context.Context {
	ctx := context.WithValue(context.Background(), constant.ContextKeyUserID, userID)

	return context.WithValue(ctx, constant.ContextKeyUserRole, role)
}

func staff() context.Context {
	return ctxAs("staff-1", constant.RoleVFast)
}

func allocated(checkIn bookingModel.CheckInStatus) bookingModel.Booking {
	return bookingModel.Booking{
		ID:            "booking-1",
		UserID:        "user-1",
		Status:        bookingModel.StatusAllocated,
		CheckInStatus: checkIn,
	}
}

func guest(checkedIn bool) model.Guest {
	idNumber := "A1234567"

	return model.Guest{ID: "guest-1", BookingID: "booking-1", Name: "Asha", IDNumber: &idNumber, CheckedIn: checkedIn}
}

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

func TestGuest_AddGuest(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		req       dto.AddGuestRequest
		setupMock func(f fixture)
		wantKind  error
		wantCode  int
	}{
		{
			name: "adds to allocated booking",
			ctx:  staff(),
			req:  dto.AddGuestRequest{Name: " Asha ", Contact: "0812"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusNotCheckedIn), nil)
				f.repo.EXPECT().
					Insert(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, g model.Guest) error {
						assert.Equal(t, "booking-1", g.BookingID)
						assert.Equal(t, "Asha", g.Name)
						assert.False(t, g.CheckedIn)
						assert.Nil(t, g.CheckInTime)
						assert.Nil(t, g.IDType)

						return nil
					})
			},
		},
		{
			name: "uploads kyc document",
			ctx:  staff(),
			req: dto.AddGuestRequest{
				Name:    "Asha",
				KYC:     &multipart.FileHeader{Filename: "passport.png"},
				KYCFile: memFile{bytes.NewReader([]byte("png"))},
			},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusCheckedIn), nil)
				f.s3.EXPECT().
					UploadFile(gomock.Any(), "vfast", model.KYCDirectory, gomock.Any(), gomock.Any(), gomock.Any()).
					Return("https://cdn/vfast/guest-kyc/x.png", nil)
				f.repo.EXPECT().
					Insert(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, g model.Guest) error {
						require.NotNil(t, g.KYCURL)
						assert.Equal(t, "https://cdn/vfast/guest-kyc/x.png", *g.KYCURL)

						return nil
					})
			},
		},
		{
			name: "insert failure removes uploaded document",
			ctx:  staff(),
			req: dto.AddGuestRequest{
				Name:    "Asha",
				KYC:     &multipart.FileHeader{Filename: "passport.png"},
				KYCFile: memFile{bytes.NewReader([]byte("png"))},
			},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusNotCheckedIn), nil)
				f.s3.EXPECT().UploadFile(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return("url", nil)
				f.repo.EXPECT().Insert(gomock.Any(), gomock.Any()).Return(errors.New("db down"))
				f.s3.EXPECT().DeleteFile(gomock.Any(), "vfast", model.KYCDirectory, gomock.Any()).Return(nil)
			},
			wantCode: http.StatusInternalServerError,
		},
		{
			name: "booking not allocated",
			ctx:  staff(),
			req:  dto.AddGuestRequest{Name: "Asha"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(bookingModel.Booking{
					ID:     "booking-1",
					Status: bookingModel.StatusApproved,
				}, nil)
			},
			wantKind: workflow.ErrInvalidTransition,
		},
		{
			name: "stay completed",
			ctx:  staff(),
			req:  dto.AddGuestRequest{Name: "Asha"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusCheckedOut), nil)
			},
			wantKind: workflow.ErrInvalidTransition,
		},
		{
			name: "booking not found",
			ctx:  staff(),
			req:  dto.AddGuestRequest{Name: "Asha"},
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(bookingModel.Booking{}, nil)
			},
			wantCode: http.StatusNotFound,
		},
		{
			name:      "requestor cannot add guests",
			ctx:       ctxAs("user-1", constant.RoleRequestor),
			req:       dto.AddGuestRequest{Name: "Asha"},
			setupMock: func(_ fixture) {},
			wantKind:  permissions.ErrNotAuthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.AddGuest(tt.ctx, "booking-1", tt.req)

			time.Sleep(10 * time.Millisecond)

			switch {
			case tt.wantKind != nil:
				assert.ErrorIs(t, err, tt.wantKind)
			case tt.wantCode != 0:
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))
			default:
				require.NoError(t, err)
				assert.NotEmpty(t, res.ID)
				assert.False(t, res.CheckedIn)
			}
		})
	}
}

func TestGuest_CheckIn(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(f fixture)
		wantKind  error
		wantCode  int
	}{
		{
			name: "checks guest in",
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(guest(false), nil)
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusNotCheckedIn), nil)
				f.repo.EXPECT().
					UpdateCount(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, filter gDto.FilterGroup) (int64, error) {
						assert.Equal(t, true, fields[model.FieldCheckedIn])
						assert.Contains(t, fields, model.FieldCheckInTime)
						assert.NotContains(t, fields, model.FieldCheckOutTime)

						_, args := filter.GetWhereClause()
						assert.Equal(t, false, args[model.ArgExpectedCheckedIn])

						return 1, nil
					})
			},
		},
		{
			name: "already checked in",
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(guest(true), nil)
			},
			wantKind: workflow.ErrAlreadyCheckedIn,
		},
		{
			name: "lost race to another check in",
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(guest(false), nil)
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusCheckedIn), nil)
				f.repo.EXPECT().UpdateCount(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil)
			},
			wantKind: workflow.ErrAlreadyCheckedIn,
		},
		{
			name: "allocation cancelled",
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(guest(false), nil)
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(bookingModel.Booking{
					ID:     "booking-1",
					Status: bookingModel.StatusPendingReconsideration,
				}, nil)
			},
			wantKind: workflow.ErrInvalidTransition,
		},
		{
			name: "guest not found",
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(model.Guest{}, nil)
			},
			wantCode: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			err := f.svc.CheckIn(staff(), "guest-1")

			time.Sleep(10 * time.Millisecond)

			switch {
			case tt.wantKind != nil:
				assert.ErrorIs(t, err, tt.wantKind)
			case tt.wantCode != 0:
				require.Error(t, err)
				assert.Equal(t, tt.wantCode, failure.GetCode(err))
			default:
				assert.NoError(t, err)
			}
		})
	}
}

func TestGuest_CheckOut(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(f fixture)
		wantKind  error
	}{
		{
			name: "checks guest out",
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(guest(true), nil)
				f.repo.EXPECT().
					UpdateCount(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, filter gDto.FilterGroup) (int64, error) {
						assert.Equal(t, false, fields[model.FieldCheckedIn])
						assert.Contains(t, fields, model.FieldCheckOutTime)
						assert.NotContains(t, fields, model.FieldCheckInTime)

						_, args := filter.GetWhereClause()
						assert.Equal(t, true, args[model.ArgExpectedCheckedIn])

						return 1, nil
					})
			},
		},
		{
			name: "not checked in",
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(guest(false), nil)
			},
			wantKind: workflow.ErrNotCheckedIn,
		},
		{
			name: "checked out concurrently",
			setupMock: func(f fixture) {
				f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(guest(true), nil)
				f.repo.EXPECT().UpdateCount(gomock.Any(), gomock.Any(), gomock.Any()).Return(int64(0), nil)
			},
			wantKind: workflow.ErrNotCheckedIn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			err := f.svc.CheckOut(staff(), "guest-1")

			time.Sleep(10 * time.Millisecond)

			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)

				return
			}

			assert.NoError(t, err)
		})
	}
}

func TestGuest_Verify(t *testing.T) {
	tests := []struct {
		name      string
		guest     func() model.Guest
		setupMock func(f fixture)
		wantCode  int
	}{
		{
			name:  "marks verified",
			guest: func() model.Guest { return guest(false) },
			setupMock: func(f fixture) {
				f.repo.EXPECT().
					Update(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, fields map[string]any, _ gDto.FilterGroup) error {
						assert.Equal(t, true, fields[model.FieldVerified])
						assert.Equal(t, "staff-1", fields[model.FieldVerifiedBy])

						return nil
					})
			},
		},
		{
			name: "already verified",
			guest: func() model.Guest {
				g := guest(false)
				g.Verified = true

				return g
			},
			setupMock: func(_ fixture) {},
			wantCode:  http.StatusConflict,
		},
		{
			name: "nothing to verify",
			guest: func() model.Guest {
				g := guest(false)
				g.IDNumber = nil

				return g
			},
			setupMock: func(_ fixture) {},
			wantCode:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(tt.guest(), nil)
			tt.setupMock(f)

			err := f.svc.Verify(staff(), "guest-1")

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

func TestGuest_List(t *testing.T) {
	tests := []struct {
		name      string
		ctx       context.Context
		setupMock func(f fixture)
		want      int
		wantKind  error
	}{
		{
			name: "staff read from database",
			ctx:  staff(),
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusCheckedIn), nil)
				f.cache.EXPECT().Get(gomock.Any(), "guest:list:booking-1", gomock.Any()).Return(errCacheMiss)
				f.repo.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]model.Guest{guest(true), guest(false)}, nil)
			},
			want: 2,
		},
		{
			name: "owner may read",
			ctx:  ctxAs("user-1", constant.RoleRequestor),
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusNotCheckedIn), nil)
				f.cache.EXPECT().Get(gomock.Any(), gomock.Any(), gomock.Any()).Return(errCacheMiss)
				f.repo.EXPECT().GetAll(gomock.Any(), gomock.Any(), gomock.Any()).Return([]model.Guest{guest(false)}, nil)
			},
			want: 1,
		},
		{
			name: "other requestor forbidden",
			ctx:  ctxAs("user-2", constant.RoleRequestor),
			setupMock: func(f fixture) {
				f.bookings.EXPECT().Get(gomock.Any(), gomock.Any()).Return(allocated(bookingModel.CheckInStatusNotCheckedIn), nil)
			},
			wantKind: permissions.ErrNotAuthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			tt.setupMock(f)

			res, err := f.svc.List(tt.ctx, "booking-1")

			time.Sleep(10 * time.Millisecond)

			if tt.wantKind != nil {
				assert.ErrorIs(t, err, tt.wantKind)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, res.TotalGuest)
			assert.Len(t, res.Guests, tt.want)
		})
	}
}

func TestGuest_UploadKYC(t *testing.T) {
	f := newFixture(t)

	old := "https://cdn/vfast/guest-kyc/old.png"
	current := guest(false)
	current.KYCURL = &old

	f.repo.EXPECT().Get(gomock.Any(), gomock.Any()).Return(current, nil)
	f.s3.EXPECT().UploadFile(gomock.Any(), "vfast", model.KYCDirectory, gomock.Any(), gomock.Any(), gomock.Any()).Return("https://cdn/vfast/guest-kyc/new.png", nil)
	f.repo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	f.s3.EXPECT().GetObjectNameFromURL("vfast", old).Return("guest-kyc/old.png")
	f.s3.EXPECT().DeleteFile(gomock.Any(), "vfast", model.KYCDirectory, "old.png").Return(nil)

	url, err := f.svc.UploadKYC(staff(), "guest-1", &multipart.FileHeader{Filename: "new.png"}, memFile{bytes.NewReader([]byte("png"))})

	time.Sleep(10 * time.Millisecond)

	require.NoError(t, err)
	assert.Equal(t, "https://cdn/vfast/guest-kyc/new.png", url)
}
