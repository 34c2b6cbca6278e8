package service

import (
	"context"
	"fmt"
	"mime/multipart"
	"strings"

	"vfast/config"
	"vfast/infras/otel"
	"vfast/infras/s3"
	"vfast/internal/domains/room/model"
	"vfast/internal/domains/room/model/dto"
	"vfast/internal/domains/room/repository"
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
	cacheGetRoom    = "room:get"
	cacheGetAllRoom = "room:gets"
	cacheCountRoom  = "room:count"

	cacheByNumber = "number"
)

type Room interface {
	Create(ctx context.Context, req dto.CreateRoomRequest) error
	GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (dto.GetRoomsResponse, error)
	Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (int, error)
	Get(ctx context.Context, id string) (dto.RoomResponse, error)
	GetByNumber(ctx context.Context, number string) (dto.RoomResponse, error)
	Update(ctx context.Context, req dto.UpdateRoomRequest, id string) error
	Reserve(ctx context.Context, req dto.ReserveRoomRequest, id string) error
	Release(ctx context.Context, id string) error
	ScheduleMaintenance(ctx context.Context, req dto.ScheduleMaintenanceRequest, id string) error
	CompleteMaintenance(ctx context.Context, id string) error
	GetMaintenances(ctx context.Context, id string) ([]dto.MaintenanceResponse, error)
}

type serviceImpl struct {
	repo            repository.Room
	maintenanceRepo repository.Maintenance
	transactor      gRepo.Transactor
	cfg             *config.Config
	cache           cache.RedisCache
	otel            otel.Otel
	s3              s3.S3
}

func New(
	repo repository.Room,
	maintenanceRepo repository.Maintenance,
	transactor gRepo.Transactor,
	cfg *config.Config,
	cache cache.RedisCache,
	otel otel.Otel,
	s3 s3.S3,
) Room {
	return &serviceImpl{
		repo:            repo,
		maintenanceRepo: maintenanceRepo,
		transactor:      transactor,
		cfg:             cfg,
		cache:           cache,
		otel:            otel,
		s3:              s3,
	}
}

func (s *serviceImpl) Create(ctx context.Context, req dto.CreateRoomRequest) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Create")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	exist, err := s.repo.Exist(ctx, byNumber(req.RoomNumber))
	if err != nil {
		log.Error().Err(err).Msg("failed to check room number")

		return fmt.Errorf("failed to check room number: %w", err)
	}

	if exist {
		return failure.Conflict(fmt.Sprintf("room %s already exists", req.RoomNumber)) // nolint:wrapcheck
	}

	imageURL, objectName, err := s.uploadImage(ctx, req.Image, req.ImageFile)
	if err != nil {
		return err
	}

	if err = s.repo.Insert(ctx, req.ToModel(user, imageURL)); err != nil {
		log.Error().Err(err).Msg("failed to create room")

		if objectName != constant.Empty {
			_ = s.s3.DeleteFile(ctx, s.cfg.External.S3.BucketName, model.EntityName, objectName)
		}

		if gRepo.PqCode(err) == constant.PqErrorCodeUniqueViolation {
			return failure.Conflict(fmt.Sprintf("room %s already exists", req.RoomNumber)) // nolint:wrapcheck
		}

		return fmt.Errorf("failed to create room: %w", err)
	}

	s.invalidate(ctx)

	return nil
}

func (s *serviceImpl) GetAll(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res dto.GetRoomsResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetAll")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	req.RestrictSort(model.SortableFields...)
	cacheKey := shared.BuildCacheKeyWithQuery(cacheGetAllRoom, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for rooms")

		return res, nil
	}

	total, err := s.Count(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count rooms")

		return res, fmt.Errorf("failed to count rooms: %w", err)
	}

	models, err := s.repo.GetAll(ctx, req, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get rooms")

		return res, fmt.Errorf("failed to get rooms: %w", err)
	}

	res.FromModels(models, total, req.Limit)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save rooms to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Count(ctx context.Context, req gDto.QueryParams, filter gDto.FilterGroup) (res int, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Count")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	cacheKey := shared.BuildCacheKeyWithQuery(cacheCountRoom, req, filter)

	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for room count")

		return res, nil
	}

	res, err = s.repo.Count(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to count rooms")

		return res, fmt.Errorf("failed to count rooms: %w", err)
	}

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save room count to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Get(ctx context.Context, id string) (res dto.RoomResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Get")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	return s.getCached(ctx, shared.BuildCacheKey(cacheGetRoom, id), shared.FilterByID(id, model.FieldID, model.TableName))
}

// GetByNumber looks a room up by its human facing number, e.g. "R12".
func (s *serviceImpl) GetByNumber(ctx context.Context, number string) (res dto.RoomResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetByNumber")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	return s.getCached(ctx, shared.BuildCacheKey(cacheGetRoom, cacheByNumber, number), byNumber(number))
}

func (s *serviceImpl) getCached(ctx context.Context, cacheKey string, filter gDto.FilterGroup) (res dto.RoomResponse, err error) {
	err = s.cache.Get(ctx, cacheKey, &res)
	if err == nil {
		log.Info().Str("cacheKey", cacheKey).Msg("cache hit for room")

		return res, nil
	}

	room, err := s.repo.Get(ctx, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get room")

		return res, fmt.Errorf("failed to get room: %w", err)
	}

	if room.ID == constant.Empty {
		return res, failure.NotFound("room not found") // nolint:wrapcheck
	}

	res.FromModel(room)

	go func() {
		c := context.WithoutCancel(ctx)

		if err := s.cache.Save(c, cacheKey, res, s.cfg.Cache.TTL); err != nil {
			log.Error().Err(err).Msg("failed to save room to cache")
		}
	}()

	return res, nil
}

func (s *serviceImpl) Update(ctx context.Context, req dto.UpdateRoomRequest, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Update")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if req.IsEmpty() {
		return failure.BadRequestFromString("update request cannot be empty") // nolint:wrapcheck
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	filter := shared.FilterByID(id, model.FieldID, model.TableName)

	current, err := s.getRoom(ctx, id)
	if err != nil {
		return err
	}

	imageURL, objectName, err := s.uploadImage(ctx, req.Image, req.ImageFile)
	if err != nil {
		return err
	}

	fields := req.Fields(user)
	if imageURL != constant.Empty {
		fields[model.FieldImage] = imageURL
	}

	bucketName := s.cfg.External.S3.BucketName

	if err = s.repo.Update(ctx, fields, filter); err != nil {
		log.Error().Err(err).Msg("failed to update room")

		if objectName != constant.Empty {
			_ = s.s3.DeleteFile(ctx, bucketName, model.EntityName, objectName)
		}

		return fmt.Errorf("failed to update room: %w", err)
	}

	if imageURL != constant.Empty && current.Image != nil {
		if old := s.s3.GetObjectNameFromURL(bucketName, *current.Image); old != constant.Empty {
			_ = s.s3.DeleteFile(ctx, bucketName, model.EntityName, old)
		}
	}

	s.invalidate(ctx, current)

	return nil
}

// Reserve holds an AVAILABLE room for the acting staff member.
func (s *serviceImpl) Reserve(ctx context.Context, req dto.ReserveRoomRequest, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Reserve")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	room, err := s.getRoom(ctx, id)
	if err != nil {
		return err
	}

	now := timezone.Now()
	fields := map[string]any{
		model.FieldStatus:           model.StatusReserved,
		model.FieldReservedBy:       user,
		model.FieldReservedAt:       now,
		model.FieldReservationNotes: nullable(req.Notes),
		constant.FieldModifiedAt:    now,
		constant.FieldModifiedBy:    user,
	}

	affected, err := s.repo.UpdateCount(ctx, fields, byIDAndStatus(id, model.StatusAvailable))
	if err != nil {
		log.Error().Err(err).Msg("failed to reserve room")

		return fmt.Errorf("failed to reserve room: %w", err)
	}

	if affected == 0 {
		return failure.ConflictOf(model.ErrUnavailable, fmt.Sprintf("Room %s is not available", room.RoomNumber)) // nolint:wrapcheck
	}

	s.invalidate(ctx, room)

	return nil
}

func (s *serviceImpl) Release(ctx context.Context, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".Release")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	room, err := s.getRoom(ctx, id)
	if err != nil {
		return err
	}

	fields := clearReservation(model.StatusAvailable, user)

	affected, err := s.repo.UpdateCount(ctx, fields, byIDAndStatus(id, model.StatusReserved))
	if err != nil {
		log.Error().Err(err).Msg("failed to release room")

		return fmt.Errorf("failed to release room: %w", err)
	}

	if affected == 0 {
		return failure.Conflict(fmt.Sprintf("Room %s is not reserved", room.RoomNumber)) // nolint:wrapcheck
	}

	s.invalidate(ctx, room)

	return nil
}

// ScheduleMaintenance opens a work order and takes the room out of service.
// Occupied rooms must be vacated first.
func (s *serviceImpl) ScheduleMaintenance(ctx context.Context, req dto.ScheduleMaintenanceRequest, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".ScheduleMaintenance")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	maintenance, err := req.ToModel(id, user)
	if err != nil {
		return failure.BadRequest(err) // nolint:wrapcheck
	}

	if maintenance.EndDate != nil && maintenance.EndDate.Before(maintenance.StartDate) {
		return failure.BadRequestFromString("end_date must not be before start_date") // nolint:wrapcheck
	}

	var room model.Room

	err = s.transactor.WithTx(ctx, func(tx *sqlx.Tx) error {
		room, err = s.repo.GetForUpdateTx(ctx, tx, shared.FilterByID(id, model.FieldID, model.TableName))
		if err != nil {
			return fmt.Errorf("failed to lock room: %w", err)
		}

		switch {
		case room.ID == constant.Empty:
			return failure.NotFound("room not found") // nolint:wrapcheck
		case room.Status == model.StatusOccupied:
			return failure.ConflictOf(model.ErrUnavailable, fmt.Sprintf("Room %s is occupied", room.RoomNumber)) // nolint:wrapcheck
		case room.Status == model.StatusMaintenance:
			return failure.Conflict(fmt.Sprintf("Room %s is already under maintenance", room.RoomNumber)) // nolint:wrapcheck
		}

		if err := s.maintenanceRepo.InsertTx(ctx, tx, maintenance); err != nil {
			if gRepo.PqCode(err) == constant.PqErrorCodeUniqueViolation {
				return failure.Conflict(fmt.Sprintf("Room %s is already under maintenance", room.RoomNumber)) // nolint:wrapcheck
			}

			return fmt.Errorf("failed to insert maintenance: %w", err)
		}

		return s.repo.UpdateTx(ctx, tx, clearReservation(model.StatusMaintenance, user), shared.FilterByID(id, model.FieldID, model.TableName))
	})
	if err != nil {
		log.Error().Err(err).Str("room", id).Msg("failed to schedule maintenance")

		return err
	}

	s.invalidate(ctx, room)

	return nil
}

func (s *serviceImpl) CompleteMaintenance(ctx context.Context, id string) (err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".CompleteMaintenance")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)

	var room model.Room

	err = s.transactor.WithTx(ctx, func(tx *sqlx.Tx) error {
		room, err = s.repo.GetForUpdateTx(ctx, tx, shared.FilterByID(id, model.FieldID, model.TableName))
		if err != nil {
			return fmt.Errorf("failed to lock room: %w", err)
		}

		if room.ID == constant.Empty {
			return failure.NotFound("room not found") // nolint:wrapcheck
		}

		open, err := s.maintenanceRepo.GetForUpdateTx(ctx, tx, inProgress(id))
		if err != nil {
			return fmt.Errorf("failed to lock maintenance: %w", err)
		}

		if open.ID == constant.Empty {
			return failure.NotFound("no maintenance in progress for this room") // nolint:wrapcheck
		}

		now := timezone.Now()
		end := now

		if open.EndDate != nil {
			end = *open.EndDate
		}

		closing := map[string]any{
			model.FieldMaintenanceStatus: model.MaintenanceCompleted,
			model.FieldMaintenanceEnd:    end,
			constant.FieldModifiedAt:     now,
			constant.FieldModifiedBy:     user,
		}

		if err := s.maintenanceRepo.UpdateTx(ctx, tx, closing, shared.FilterByID(open.ID, model.FieldID, model.MaintenanceTableName)); err != nil {
			return fmt.Errorf("failed to complete maintenance: %w", err)
		}

		return s.repo.UpdateTx(ctx, tx, clearReservation(model.StatusAvailable, user), shared.FilterByID(id, model.FieldID, model.TableName))
	})
	if err != nil {
		log.Error().Err(err).Str("room", id).Msg("failed to complete maintenance")

		return err
	}

	s.invalidate(ctx, room)

	return nil
}

func (s *serviceImpl) GetMaintenances(ctx context.Context, id string) (res []dto.MaintenanceResponse, err error) {
	ctx, scope := s.otel.NewScope(ctx, constant.OtelServiceScopeName, constant.OtelServiceScopeName+".GetMaintenances")
	defer scope.End()
	defer func() { scope.TraceIfError(err) }()

	if _, err = s.getRoom(ctx, id); err != nil {
		return nil, err
	}

	params := gDto.QueryParams{SortBy: model.FieldMaintenanceStart, SortDir: gDto.SortDirDesc}
	filter := gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldMaintenanceRoomID, Value: id, Operator: gDto.FilterOperatorEq, Table: model.MaintenanceTableName},
		},
	}

	models, err := s.maintenanceRepo.GetAll(ctx, params, filter)
	if err != nil {
		log.Error().Err(err).Msg("failed to get maintenances")

		return nil, fmt.Errorf("failed to get maintenances: %w", err)
	}

	res = make([]dto.MaintenanceResponse, len(models))
	for i, mod := range models {
		res[i].FromModel(mod)
	}

	return res, nil
}

func (s *serviceImpl) getRoom(ctx context.Context, id string) (model.Room, error) {
	room, err := s.repo.Get(ctx, shared.FilterByID(id, model.FieldID, model.TableName))
	if err != nil {
		log.Error().Err(err).Msg("failed to get room")

		return room, fmt.Errorf("failed to get room: %w", err)
	}

	if room.ID == constant.Empty {
		return room, failure.NotFound("room not found") // nolint:wrapcheck
	}

	return room, nil
}

func (s *serviceImpl) uploadImage(ctx context.Context, header *multipart.FileHeader, file multipart.File) (url, objectName string, err error) {
	if header == nil {
		return constant.Empty, constant.Empty, nil
	}

	objectName = uuid.NewString()
	if parts := strings.Split(header.Filename, "."); len(parts) > 1 {
		objectName = fmt.Sprintf("%s.%s", objectName, parts[len(parts)-1])
	}

	url, err = s.s3.UploadFile(ctx, s.cfg.External.S3.BucketName, model.EntityName, file, header, objectName)
	if err != nil {
		log.Error().Err(err).Msg("failed to upload image to S3")

		return constant.Empty, constant.Empty, fmt.Errorf("failed to upload image: %w", err)
	}

	return url, objectName, nil
}

func (s *serviceImpl) invalidate(ctx context.Context, rooms ...model.Room) {
	go func() {
		c := context.WithoutCancel(ctx)

		for _, room := range rooms {
			if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetRoom, room.ID)); err != nil {
				log.Error().Err(err).Msg("failed to delete room cache")
			}

			if err := s.cache.Delete(c, shared.BuildCacheKey(cacheGetRoom, cacheByNumber, room.RoomNumber)); err != nil {
				log.Error().Err(err).Msg("failed to delete room cache")
			}
		}

		shared.InvalidateCaches(c, s.cache, cacheGetAllRoom)
		shared.InvalidateCaches(c, s.cache, cacheCountRoom)
	}()
}

func byNumber(number string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Filters: []any{
			gDto.Filter{Field: model.FieldRoomNumber, Value: strings.TrimSpace(number), Operator: gDto.FilterOperatorEq, Table: model.TableName},
		},
	}
}

func byIDAndStatus(id string, status model.Status) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldID, Value: id, Operator: gDto.FilterOperatorEq},
			gDto.Filter{ArgName: model.ArgExpectedStatus, Field: model.FieldStatus, Value: status, Operator: gDto.FilterOperatorEq},
		},
	}
}

func inProgress(roomID string) gDto.FilterGroup {
	return gDto.FilterGroup{
		Operator: gDto.FilterGroupOperatorAnd,
		Filters: []any{
			gDto.Filter{Field: model.FieldMaintenanceRoomID, Value: roomID, Operator: gDto.FilterOperatorEq},
			gDto.Filter{Field: model.FieldMaintenanceStatus, Value: model.MaintenanceInProgress, Operator: gDto.FilterOperatorEq},
		},
	}
}

func clearReservation(status model.Status, user string) map[string]any {
	return map[string]any{
		model.FieldStatus:           status,
		model.FieldReservedBy:       nil,
		model.FieldReservedAt:       nil,
		model.FieldReservationNotes: nil,
		constant.FieldModifiedAt:    timezone.Now(),
		constant.FieldModifiedBy:    user,
	}
}

func nullable(s string) any {
	if strings.TrimSpace(s) == constant.Empty {
		return nil
	}

	return s
}
