package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"vfast/config"
	"vfast/infras/otel"
	"vfast/infras/s3"
	"vfast/internal/domains/booking/model"
	"vfast/internal/domains/booking/model/dto"
	"vfast/internal/domains/booking/repository"
	"vfast/internal/domains/booking/workflow"
	notificationModel "vfast/internal/domains/notification/model"
	"vfast/internal/domains/notification/service"
	"vfast/permissions"
	"vfast/shared"
	"vfast/shared/cache"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"
	gRepo "vfast/shared/repository"
	"vfast/shared/timezone"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const (
	cacheGetBooking    = "booking:get"
	cacheGetAllBooking = "booking:gets"
	cacheCountBooking  = "booking:count"

	megabyte = 1 << 20
)

var errConcurrentUpdate = failure.ConflictOf(workflow.ErrInvalidTransition, "booking was changed by another request, reload and try again")

type Booking interface {
	Create(ctx context.Context, req dto.CreateBookingRequest) (dto.BookingResponse, error)
	Get(ctx context.Context, id string) (dto.BookingResponse, error)
	GetAll(ctx context.Context, req gDto.QueryParams, filter dto.ListFilter) (dto.GetBookingsResponse, error)
	Mine(ctx context.Context, req gDto.QueryParams, filter dto.ListFilter) (dto.GetBookingsResponse, error)
	Queue(ctx context.Context, req gDto.QueryParams, queue dto.Queue) (dto.GetBookingsResponse, error)
	DepartmentApprove(ctx context.Context, id string, req dto.DecisionRequest) error
	DepartmentReject(ctx context.Context, id string, req dto.RejectRequest) error
	AdminApprove(ctx context.Context, id string, req dto.DecisionRequest) error
	AdminReject(ctx context.Context, id string, req dto.RejectRequest) error
	CheckIn(ctx context.Context, id string, req dto.CheckInRequest) error
	Resubmit(ctx context.Context, id string, req dto.CreateBookingRequest) (dto.BookingResponse, error)
	Delete(ctx context.Context, id string) error
	UploadDocument(ctx context.Context, id string, req dto.UploadDocumentRequest) (string, error)
}

type serviceImpl struct {
	repo            repository.Booking
	rejectionRepo   repository.Rejection
	bookingRoomRepo repository.BookingRoom
	transactor      gRepo.Transactor
	machine         *workflow.Machine
	notification    service.Notification
	cfg             *config.Config
	cache           cache.RedisCache
	otel            otel.Otel
	s3              s3.S3
}

func New(
	repo repository.Booking,
	rejectionRepo repository.Rejection,
	bookingRoomRepo repository.BookingRoom,
	transactor gRepo.Transactor,
	machine *workflow.Machine,
	notification service.Notification,
	cfg *config.Config,
	cache cache.RedisCache,
	otel otel.Otel,
	s3 s3.S3,
) Booking {
	return &serviceImpl{
		repo:            repo,
		rejectionRepo:   rejectionRepo,
		bookingRoomRepo: bookingRoomRepo,
		transactor:      transactor,
		machine:         machine,
		notification:    notification,
		cfg:             cfg,
		cache:           cache,
		otel:            otel,
		s3:              s3,
	}
}

func (s *serviceImpl) Create(ctx context.Context, req dto.CreateBookingRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Create")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor := workflow.ActorFromContext(ctx)

	booking, err := s.draft(req, actor)
	if err != nil {
		return res, err
	}

	booking, err = s.machine.Open(booking, actor)
	if err != nil {
		return res, err //nolint:wrapcheck
	}

	if err = s.repo.Insert(ctx, booking); err != nil {
		log.Error().Err(err).Msg("failed to create booking")

		return res, fmt.Errorf("failed to create booking: %w", err)
	}

	log.Info().Str("booking_id", booking.ID).Str("status", string(booking.Status)).Msg("booking created")

	s.invalidate(ctx)
	s.notify(ctx, notificationModel.NewEvent(notificationModel.EventBookingCreated, booking, actor.ID))

	res.FromModel(booking)

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Get")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	cacheKey := shared.BuildCacheKey(cacheGetBooking, id)

	if err = s.cache.Get(ctx, cacheKey, &res); err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for booking")

		if err = canView(workflow.ActorFromContext(ctx), res); err != nil {
			return dto.BookingResponse{}, err
		}

		return res, nil
	}

	booking, err := s.getBooking(ctx, id)
	if err != nil {
		return res, err
	}

	if booking.IsDeleted {
		return res, failure.NotFound("booking not found") // nolint:wrapcheck
	}

	res.FromModel(booking)

	if err = canView(workflow.ActorFromContext(ctx), res); err != nil {
		return dto.BookingResponse{}, err
	}

	rejections, err := s.rejectionRepo.GetAll(ctx, gDto.QueryParams{SortBy: model.FieldRejectedAt, SortDir: gDto.SortDirAsc}, dto.RejectionsOf(id))
	if err != nil {
		log.Error().Err(err).Msg("failed to get rejection history")

		return res, fmt.Errorf("failed to get rejection history: %w", err)
	}

	bindings, err := s.bookingRoomRepo.GetAll(ctx, gDto.QueryParams{}, dto.ActiveBindings(id))
	if err != nil {
		log.Error().Err(err).Msg("failed to get booking rooms")

		return res, fmt.Errorf("failed to get booking rooms: %w", err)
	}

	res.WithRejections(rejections)
	res.WithRooms(bindings)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save booking to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) GetAll(ctx context.Context, req gDto.QueryParams, filter dto.ListFilter) (res dto.GetBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetAll")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor := workflow.ActorFromContext(ctx)
	if actor.Role == constant.RoleDepartment {
		filter.Department = actor.Department
	}

	group, err := filter.ToFilterGroup()
	if err != nil {
		return res, failure.BadRequest(err) // nolint:wrapcheck
	}

	return s.list(ctx, req, group)
}

func (s *serviceImpl) Mine(ctx context.Context, req gDto.QueryParams, filter dto.ListFilter) (res dto.GetBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Mine")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	filter.UserID = workflow.ActorFromContext(ctx).ID

	group, err := filter.ToFilterGroup()
	if err != nil {
		return res, failure.BadRequest(err) // nolint:wrapcheck
	}

	return s.list(ctx, req, group)
}

func (s *serviceImpl) Queue(ctx context.Context, req gDto.QueryParams, queue dto.Queue) (res dto.GetBookingsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Queue")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor := workflow.ActorFromContext(ctx)

	department := constant.Empty
	if actor.Role == constant.RoleDepartment {
		department = actor.Department
	}

	if req.SortBy == constant.Empty {
		req.SortBy, req.SortDir = model.FieldCreatedAt, gDto.SortDirAsc
	}

	return s.list(ctx, req, queue.ToFilterGroup(department))
}

func (s *serviceImpl) DepartmentApprove(ctx context.Context, id string, req dto.DecisionRequest) error {
	return s.transition(ctx, id, workflow.Command{Action: workflow.ActionDepartmentApprove, Notes: req.Notes})
}

func (s *serviceImpl) DepartmentReject(ctx context.Context, id string, req dto.RejectRequest) error {
	return s.transition(ctx, id, workflow.Command{Action: workflow.ActionDepartmentReject, Notes: req.Notes, Reason: req.Reason})
}

func (s *serviceImpl) AdminApprove(ctx context.Context, id string, req dto.DecisionRequest) error {
	return s.transition(ctx, id, workflow.Command{Action: workflow.ActionAdminApprove, Notes: req.Notes})
}

func (s *serviceImpl) AdminReject(ctx context.Context, id string, req dto.RejectRequest) error {
	return s.transition(ctx, id, workflow.Command{Action: workflow.ActionAdminReject, Notes: req.Notes, Reason: req.Reason})
}

// CheckIn marks the whole booking as checked in. Individual guests are tracked by the guest roster.
func (s *serviceImpl) CheckIn(ctx context.Context, id string, req dto.CheckInRequest) error {
	return s.transition(ctx, id, workflow.Command{Action: workflow.ActionCheckIn, Notes: req.Notes, KeyHandedOver: req.KeyHandedOver})
}

func (s *serviceImpl) Resubmit(ctx context.Context, id string, req dto.CreateBookingRequest) (res dto.BookingResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Resubmit")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor := workflow.ActorFromContext(ctx)

	prev, err := s.getBooking(ctx, id)
	if err != nil {
		return res, err
	}

	booking, err := s.draft(req, actor)
	if err != nil {
		return res, err
	}

	booking, err = s.machine.Resubmit(prev, booking, actor)
	if err != nil {
		return res, err //nolint:wrapcheck
	}

	resubmitted, err := s.repo.Exist(ctx, dto.ResubmissionsOf(prev.ID))
	if err != nil {
		return res, fmt.Errorf("failed to check resubmissions: %w", err)
	}

	if resubmitted {
		return res, failure.ConflictOf(workflow.ErrInvalidTransition, "booking has already been resubmitted") // nolint:wrapcheck
	}

	if err = s.repo.Insert(ctx, booking); err != nil {
		if gRepo.PqCode(err) == constant.PqErrorCodeUniqueViolation {
			return res, failure.ConflictOf(workflow.ErrInvalidTransition, "booking has already been resubmitted") // nolint:wrapcheck
		}

		log.Error().Err(err).Msg("failed to resubmit booking")

		return res, fmt.Errorf("failed to resubmit booking: %w", err)
	}

	log.Info().Str("booking_id", booking.ID).Str("reconsidered_from_id", prev.ID).Msg("booking resubmitted")

	s.invalidate(ctx)
	s.notify(ctx, notificationModel.Resubmitted(booking, actor.ID))

	res.FromModel(booking)

	return res, nil
}

// Delete soft deletes a booking. Only its requestor may do so, and only while it is under review.
func (s *serviceImpl) Delete(ctx context.Context, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Delete")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor := workflow.ActorFromContext(ctx)

	booking, err := s.getBooking(ctx, id)
	if err != nil {
		return err
	}

	if booking.UserID != actor.ID {
		return failure.ForbiddenOf(permissions.ErrNotAuthorized, "only the requestor may delete this booking") // nolint:wrapcheck
	}

	if booking.Status != model.StatusPendingDepartmentApproval && booking.Status != model.StatusPendingAdminApproval {
		return failure.ConflictOf(workflow.ErrInvalidTransition, fmt.Sprintf("cannot delete a booking in status %s", booking.Status)) // nolint:wrapcheck
	}

	fields := map[string]any{
		model.FieldIsDeleted:     true,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: actor.ID,
	}

	affected, err := s.repo.UpdateCount(ctx, fields, dto.Guard(booking))
	if err != nil {
		log.Error().Err(err).Msg("failed to delete booking")

		return fmt.Errorf("failed to delete booking: %w", err)
	}

	if affected == 0 {
		return errConcurrentUpdate
	}

	s.invalidate(ctx, id)

	return nil
}

// UploadDocument stores a supporting ZIP archive for the booking and returns its URL.
func (s *serviceImpl) UploadDocument(ctx context.Context, id string, req dto.UploadDocumentRequest) (url string, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".UploadDocument")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	actor := workflow.ActorFromContext(ctx)

	booking, err := s.getBooking(ctx, id)
	if err != nil {
		return url, err
	}

	if booking.UserID != actor.ID {
		return url, failure.ForbiddenOf(permissions.ErrNotAuthorized, "only the requestor may attach documents") // nolint:wrapcheck
	}

	if booking.IsDeleted {
		return url, failure.ConflictOf(workflow.ErrInvalidTransition, "cannot attach documents to a deleted booking") // nolint:wrapcheck
	}

	data, err := s.readArchive(req)
	if err != nil {
		return url, err
	}

	fileName := fmt.Sprintf("%s-%s.zip", booking.ID, uuid.NewString())

	url, err = s.s3.UploadFileBytes(ctx, s.cfg.External.S3.BucketName, model.DocumentDirectory, fileName, constant.ContentTypeZip, data)
	if err != nil {
		log.Error().Err(err).Msg("failed to upload booking document")

		return url, fmt.Errorf("failed to upload booking document: %w", err)
	}

	fields := map[string]any{
		model.FieldDocumentPath:  url,
		constant.FieldModifiedAt: timezone.Now(),
		constant.FieldModifiedBy: actor.ID,
	}

	if _, err = s.repo.UpdateCount(ctx, fields, dto.ByID(id)); err != nil {
		log.Error().Err(err).Msg("failed to save document path")

		_ = s.s3.DeleteFile(ctx, s.cfg.External.S3.BucketName, model.DocumentDirectory, fileName)

		return constant.Empty, fmt.Errorf("failed to save document path: %w", err)
	}

	if booking.DocumentPath != nil {
		if err := s.s3.DeleteFile(ctx, s.cfg.External.S3.BucketName, model.DocumentDirectory, path.Base(*booking.DocumentPath)); err != nil {
			log.Warn().Err(err).Msg("failed to delete previous booking document")
		}
	}

	s.invalidate(ctx, id)

	return url, nil
}

// transition runs a single-row workflow command. The booking update is guarded on the
// state it was read in, and a rejection is recorded in the same transaction.
func (s *serviceImpl) transition(ctx context.Context, id string, cmd workflow.Command) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Transition")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	scope.SetAttribute("action", string(cmd.Action))

	cmd.Actor = workflow.ActorFromContext(ctx)
	cmd.At = timezone.Now()

	booking, err := s.getBooking(ctx, id)
	if err != nil {
		return err
	}

	t, err := s.machine.Apply(booking, cmd)
	if err != nil {
		log.Warn().Err(err).Str("booking_id", id).Str("action", string(cmd.Action)).Msg("transition refused")

		return err //nolint:wrapcheck
	}

	err = s.transactor.WithTx(ctx, func(tx *sqlx.Tx) error {
		affected, err := s.repo.UpdateCountTx(ctx, tx, t.Changes, dto.Guard(booking))
		if err != nil {
			return fmt.Errorf("failed to update booking: %w", err)
		}

		if affected == 0 {
			return errConcurrentUpdate
		}

		if t.Rejection != nil {
			if err := s.rejectionRepo.InsertTx(ctx, tx, *t.Rejection); err != nil {
				return fmt.Errorf("failed to record rejection: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("booking_id", id).Str("action", string(cmd.Action)).Msg("failed to apply transition")

		return err
	}

	log.Info().
		Str("booking_id", id).
		Str("action", string(cmd.Action)).
		Str("from", string(t.From)).
		Str("to", string(t.To)).
		Msg("booking transition applied")

	s.invalidate(ctx, id)

	if t.StatusChanged() {
		s.notify(ctx, notificationModel.StatusChanged(t.From, t.Booking, cmd.Actor.ID, t.Rejection)...)
	}

	return nil
}

func (s *serviceImpl) list(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetBookingsResponse, err error) {
	req.RestrictSort(model.SortableFields...)

	cacheKey := shared.BuildCacheKeyWithQuery(cacheGetAllBooking, req, filter)

	if err = s.cache.Get(ctx, cacheKey, &res); err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for bookings")

		return res, nil
	}

	total, err := s.count(ctx, req, filter)
	if err != nil {
		return res, err
	}

	models, err := s.repo.GetAll(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get bookings")

		return res, fmt.Errorf("failed to get bookings: %w", err)
	}

	var bindings []model.BookingRoom

	if ids := allocatedIDs(models); len(ids) > 0 {
		bindings, err = s.bookingRoomRepo.GetAll(ctx, gDto.QueryParams{}, dto.ActiveBindings(ids...))
		if err != nil {
			log.Error().Err(err).Msg("failed to get booking rooms")

			return res, fmt.Errorf("failed to get booking rooms: %w", err)
		}
	}

	res.FromModels(models, bindings, total, req.Limit)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save bookings to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res int, err error) {
	cacheKey := shared.BuildCacheKeyWithQuery(cacheCountBooking, gDto.QueryParams{}, filter)

	if err = s.cache.Get(ctx, cacheKey, &res); err == nil {
		return res, nil
	}

	res, err = s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count bookings")

		return res, fmt.Errorf("failed to count bookings: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save booking count to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) getBooking(ctx context.Context, id string) (model.Booking, error) {
	booking, err := s.repo.Get(ctx, dto.ByID(id))
	if err != nil {
		log.Error().Err(err).Msg("failed to get booking")

		return booking, fmt.Errorf("failed to get booking: %w", err)
	}

	if booking.ID == constant.Empty {
		return booking, failure.NotFound("booking not found") // nolint:wrapcheck
	}

	return booking, nil
}

func (s *serviceImpl) draft(req dto.CreateBookingRequest, actor workflow.Actor) (model.Booking, error) {
	booking, err := req.ToModel(actor.ID)
	if err != nil {
		return booking, failure.BadRequestFromString(fmt.Sprintf("invalid date format: %v", err)) // nolint:wrapcheck
	}

	if maxRooms := s.cfg.Booking.MaxRooms; maxRooms > 0 && booking.NumberOfRooms > maxRooms {
		return booking, failure.BadRequestFromString(fmt.Sprintf("number_of_rooms must not exceed %d", maxRooms)) // nolint:wrapcheck
	}

	return booking, nil
}

func (s *serviceImpl) readArchive(req dto.UploadDocumentRequest) ([]byte, error) {
	if req.Document == nil || req.DocumentFile == nil {
		return nil, failure.BadRequestFromString("document is required") // nolint:wrapcheck
	}

	limit := int64(s.cfg.Booking.MaxDocumentSizeMB) * megabyte
	if limit <= 0 {
		limit = constant.RequestMaxMemory
	}

	if req.Document.Size > limit {
		return nil, failure.BadRequestFromString(fmt.Sprintf("document must not exceed %d MB", limit/megabyte)) // nolint:wrapcheck
	}

	if !strings.EqualFold(path.Ext(req.Document.Filename), ".zip") {
		return nil, failure.BadRequestFromString("document must be a .zip archive") // nolint:wrapcheck
	}

	data, err := io.ReadAll(io.LimitReader(req.DocumentFile, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	if int64(len(data)) > limit {
		return nil, failure.BadRequestFromString(fmt.Sprintf("document must not exceed %d MB", limit/megabyte)) // nolint:wrapcheck
	}

	if _, err = zip.NewReader(bytes.NewReader(data), int64(len(data))); err != nil {
		if errors.Is(err, zip.ErrFormat) {
			return nil, failure.BadRequestFromString("document is not a valid zip archive") // nolint:wrapcheck
		}

		return nil, fmt.Errorf("failed to open document archive: %w", err)
	}

	return data, nil
}

func (s *serviceImpl) invalidate(ctx context.Context, ids ...string) {
	go func() {
		c := context.WithoutCancel(ctx)

		for _, id := range ids {
			if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetBooking, id)); err != nil {
				log.Error().Err(err).Msg("failed to delete booking from cache")
			}
		}

		shared.InvalidateCaches(c, s.cache, cacheGetAllBooking)
		shared.InvalidateCaches(c, s.cache, cacheCountBooking)
	}()
}

func (s *serviceImpl) notify(ctx context.Context, events ...notificationModel.Event) {
	if err := s.notification.Publish(ctx, events...); err != nil {
		log.Warn().Err(err).Msg("booking notification not delivered")
	}
}

// canView lets reviewers and staff see any booking, a department approver its own
// department's bookings, and a requestor only their own.
func canView(actor workflow.Actor, res dto.BookingResponse) error {
	switch {
	case permissions.HasRole(actor.Role, constant.RoleAdmin, constant.RoleVFast, constant.RoleSuperAdmin):
		return nil
	case actor.Role == constant.RoleDepartment && strings.EqualFold(res.Department, actor.Department):
		return nil
	case res.UserID == actor.ID:
		return nil
	}

	return failure.ForbiddenOf(permissions.ErrNotAuthorized, "you may not view this booking") // nolint:wrapcheck
}

func allocatedIDs(bookings []model.Booking) []string {
	ids := []string{}

	for _, b := range bookings {
		if b.Status == model.StatusAllocated {
			ids = append(ids, b.ID)
		}
	}

	return ids
}
