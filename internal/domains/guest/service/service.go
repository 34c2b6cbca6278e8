package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"path"

	"vfast/config"
	"vfast/infras/otel"
	"vfast/infras/s3"
	bookingModel "vfast/internal/domains/booking/model"
	bookingDto "vfast/internal/domains/booking/model/dto"
	bookingRepo "vfast/internal/domains/booking/repository"
	"vfast/internal/domains/booking/workflow"
	"vfast/internal/domains/guest/model"
	"vfast/internal/domains/guest/model/dto"
	"vfast/internal/domains/guest/repository"
	"vfast/permissions"
	"vfast/shared"
	"vfast/shared/cache"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"
	"vfast/shared/timezone"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const cacheListGuest = "guest:list"

type Guest interface {
	AddGuest(ctx context.Context, bookingID string, req dto.AddGuestRequest) (dto.GuestResponse, error)
	List(ctx context.Context, bookingID string) (dto.GetGuestsResponse, error)
	CheckIn(ctx context.Context, guestID string) error
	CheckOut(ctx context.Context, guestID string) error
	Verify(ctx context.Context, guestID string) error
	UploadKYC(ctx context.Context, guestID string, header *multipart.FileHeader, file multipart.File) (string, error)
}

type serviceImpl struct {
	repo        repository.Guest
	bookingRepo bookingRepo.Booking
	cfg         *config.Config
	cache       cache.RedisCache
	otel        otel.Otel
	s3          s3.S3
}

func New(
	repo repository.Guest,
	bookingRepo bookingRepo.Booking,
	cfg *config.Config,
	cache cache.RedisCache,
	otel otel.Otel,
	s3 s3.S3,
) Guest {
	return &serviceImpl{
		repo:        repo,
		bookingRepo: bookingRepo,
		cfg:         cfg,
		cache:       cache,
		otel:        otel,
		s3:          s3,
	}
}

// AddGuest registers a guest on an allocated booking whose stay has not been completed.
func (s *serviceImpl) AddGuest(ctx context.Context, bookingID string, req dto.AddGuestRequest) (res dto.GuestResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".AddGuest")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, role, _ := shared.ActorFromContext(ctx)

	if err = permissions.Require(role, constant.RoleVFast); err != nil {
		return res, err //nolint:wrapcheck
	}

	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return res, err
	}

	if err = hosting(booking); err != nil {
		return res, err
	}

	kycURL, objectName, err := s.uploadKYC(ctx, req.KYC, req.KYCFile)
	if err != nil {
		return res, err
	}

	guest := req.ToModel(booking.ID, user, kycURL)

	if err = s.repo.Insert(ctx, guest); err != nil {
		log.Error().Err(err).Msg("failed to add guest")

		if objectName != constant.Empty {
			_ = s.s3.DeleteFile(ctx, s.cfg.External.S3.BucketName, model.KYCDirectory, objectName)
		}

		return res, fmt.Errorf("failed to add guest: %w", err)
	}

	s.invalidate(ctx, booking.ID)

	res.FromModel(guest)

	return res, nil
}

// List returns the roster of a booking. Requestors only see the guests of their own bookings.
func (s *serviceImpl) List(ctx context.Context, bookingID string) (res dto.GetGuestsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".List")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	booking, err := s.getBooking(ctx, bookingID)
	if err != nil {
		return res, err
	}

	user, role, _ := shared.ActorFromContext(ctx)

	if !permissions.HasRole(role, constant.RoleVFast, constant.RoleAdmin, constant.RoleSuperAdmin) && booking.UserID != user {
		return res, failure.ForbiddenOf(permissions.ErrNotAuthorized, "you may only view guests of your own bookings") // nolint:wrapcheck
	}

	cacheKey := shared.BuildCacheKey(cacheListGuest, booking.ID)

	if err = s.cache.Get(ctx, cacheKey, &res); err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for guests")

		return res, nil
	}

	params := gDto.QueryParams{SortBy: model.FieldCreatedAt, SortDir: gDto.SortDirAsc}

	models, err := s.repo.GetAll(ctx, params, dto.ByBooking(booking.ID))
	if err != nil {
		log.Error().Err(err).Msg("failed to get guests")

		return res, fmt.Errorf("failed to get guests: %w", err)
	}

	res.FromModels(models)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save guests to cache")
		}
	}()

	return res, nil
}

// CheckIn marks a guest present. Only a guest who is not checked in may check in, and only
// while the booking holds its rooms.
func (s *serviceImpl) CheckIn(ctx context.Context, guestID string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".CheckIn")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, role, _ := shared.ActorFromContext(ctx)

	if err = permissions.Require(role, constant.RoleVFast); err != nil {
		return err //nolint:wrapcheck
	}

	guest, err := s.getGuest(ctx, guestID)
	if err != nil {
		return err
	}

	if guest.CheckedIn {
		return alreadyCheckedIn(guest)
	}

	booking, err := s.getBooking(ctx, guest.BookingID)
	if err != nil {
		return err
	}

	if err = hosting(booking); err != nil {
		return err
	}

	now := timezone.Now()
	fields := map[string]any{
		model.FieldCheckedIn:     true,
		model.FieldCheckInTime:   now,
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: user,
	}

	affected, err := s.repo.UpdateCount(ctx, fields, dto.Expecting(guest.ID, false))
	if err != nil {
		log.Error().Err(err).Msg("failed to check guest in")

		return fmt.Errorf("failed to check guest in: %w", err)
	}

	if affected == 0 {
		return alreadyCheckedIn(guest)
	}

	s.invalidate(ctx, guest.BookingID)

	return nil
}

func (s *serviceImpl) CheckOut(ctx context.Context, guestID string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".CheckOut")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, role, _ := shared.ActorFromContext(ctx)

	if err = permissions.Require(role, constant.RoleVFast); err != nil {
		return err //nolint:wrapcheck
	}

	guest, err := s.getGuest(ctx, guestID)
	if err != nil {
		return err
	}

	if !guest.CheckedIn {
		return notCheckedIn(guest)
	}

	now := timezone.Now()
	fields := map[string]any{
		model.FieldCheckedIn:     false,
		model.FieldCheckOutTime:  now,
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: user,
	}

	affected, err := s.repo.UpdateCount(ctx, fields, dto.Expecting(guest.ID, true))
	if err != nil {
		log.Error().Err(err).Msg("failed to check guest out")

		return fmt.Errorf("failed to check guest out: %w", err)
	}

	if affected == 0 {
		return notCheckedIn(guest)
	}

	s.invalidate(ctx, guest.BookingID)

	return nil
}

// Verify records that staff have checked the guest's identity documents.
func (s *serviceImpl) Verify(ctx context.Context, guestID string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Verify")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, role, _ := shared.ActorFromContext(ctx)

	if err = permissions.Require(role, constant.RoleVFast); err != nil {
		return err //nolint:wrapcheck
	}

	guest, err := s.getGuest(ctx, guestID)
	if err != nil {
		return err
	}

	if guest.Verified {
		return failure.Conflict(fmt.Sprintf("guest %s is already verified", guest.Name)) // nolint:wrapcheck
	}

	if guest.IDNumber == nil && guest.KYCURL == nil {
		return failure.BadRequestFromString("guest has no identity details to verify") // nolint:wrapcheck
	}

	now := timezone.Now()
	fields := map[string]any{
		model.FieldVerified:      true,
		model.FieldVerifiedBy:    user,
		model.FieldVerifiedAt:    now,
		constant.FieldModifiedAt: now,
		constant.FieldModifiedBy: user,
	}

	if err = s.repo.Update(ctx, fields, shared.FilterByID(guest.ID, model.FieldID, model.TableName)); err != nil {
		log.Error().Err(err).Msg("failed to verify guest")

		return fmt.Errorf("failed to verify guest: %w", err)
	}

	s.invalidate(ctx, guest.BookingID)

	return nil
}

// UploadKYC stores an identity document for the guest and replaces the previous one.
func (s *serviceImpl) UploadKYC(ctx context.Context, guestID string, header *multipart.FileHeader, file multipart.File) (url string, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".UploadKYC")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, role, _ := shared.ActorFromContext(ctx)

	if err = permissions.Require(role, constant.RoleVFast); err != nil {
		return constant.Empty, err //nolint:wrapcheck
	}

	if header == nil {
		return constant.Empty, failure.BadRequestFromString("kyc document is required") // nolint:wrapcheck
	}

	guest, err := s.getGuest(ctx, guestID)
	if err != nil {
		return constant.Empty, err
	}

	url, objectName, err := s.uploadKYC(ctx, header, file)
	if err != nil {
		return constant.Empty, err
	}

	fields := map[string]any{
		model.FieldKYCURL:        url,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: user,
	}

	bucketName := s.cfg.External.S3.BucketName

	if err = s.repo.Update(ctx, fields, shared.FilterByID(guest.ID, model.FieldID, model.TableName)); err != nil {
		log.Error().Err(err).Msg("failed to save kyc document")

		_ = s.s3.DeleteFile(ctx, bucketName, model.KYCDirectory, objectName)

		return constant.Empty, fmt.Errorf("failed to save kyc document: %w", err)
	}

	if guest.KYCURL != nil {
		if old := s.s3.GetObjectNameFromURL(bucketName, *guest.KYCURL); old != constant.Empty {
			_ = s.s3.DeleteFile(ctx, bucketName, model.KYCDirectory, path.Base(old))
		}
	}

	s.invalidate(ctx, guest.BookingID)

	return url, nil
}

func (s *serviceImpl) getGuest(ctx context.Context, id string) (model.Guest, error) {
	guest, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get guest")

		return guest, fmt.Errorf("failed to get guest: %w", err)
	}

	if guest.ID == constant.Empty {
		return guest, failure.NotFound("guest not found") // nolint:wrapcheck
	}

	return guest, nil
}

func (s *serviceImpl) getBooking(ctx context.Context, id string) (bookingModel.Booking, error) {
	booking, err := s.bookingRepo.Get(ctx, bookingDto.ByID(id))
	if err != nil {
		log.Error().Err(err).Msg("failed to get booking")

		return booking, fmt.Errorf("failed to get booking: %w", err)
	}

	if booking.ID == constant.Empty || booking.IsDeleted {
		return booking, failure.NotFound("booking not found") // nolint:wrapcheck
	}

	return booking, nil
}

func (s *serviceImpl) uploadKYC(ctx context.Context, header *multipart.FileHeader, file multipart.File) (url, objectName string, err error) {
	if header == nil {
		return constant.Empty, constant.Empty, nil
	}

	objectName = uuid.NewString() + path.Ext(header.Filename)

	url, err = s.s3.UploadFile(ctx, s.cfg.External.S3.BucketName, model.KYCDirectory, file, header, objectName)
	if err != nil {
		log.Error().Err(err).Msg("failed to upload kyc document to S3")

		return constant.Empty, constant.Empty, fmt.Errorf("failed to upload kyc document: %w", err)
	}

	return url, objectName, nil
}

func (s *serviceImpl) invalidate(ctx context.Context, bookingID string) {
	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Delete(c, shared.BuildCacheKey(cacheListGuest, bookingID)); err != nil {
			log.Error().Err(err).Msg("failed to delete guests cache")
		}
	}()
}

// hosting reports whether the booking currently holds rooms for guests.
func hosting(booking bookingModel.Booking) error {
	if booking.Status != bookingModel.StatusAllocated {
		return failure.ConflictOf(workflow.ErrInvalidTransition, //nolint:wrapcheck
			fmt.Sprintf("guests are managed only on allocated bookings, this one is %s", booking.Status))
	}

	if booking.CheckInStatus == bookingModel.CheckInStatusCheckedOut {
		return failure.ConflictOf(workflow.ErrInvalidTransition, "the stay of this booking is already completed") //nolint:wrapcheck
	}

	return nil
}

func alreadyCheckedIn(guest model.Guest) error {
	return failure.ConflictOf(workflow.ErrAlreadyCheckedIn, fmt.Sprintf("guest %s has already checked in", guest.Name)) // nolint:wrapcheck
}

func notCheckedIn(guest model.Guest) error {
	return failure.ConflictOf(workflow.ErrNotCheckedIn, fmt.Sprintf("guest %s is not checked in", guest.Name)) // nolint:wrapcheck
}
