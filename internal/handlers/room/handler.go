package room

import (
	"net/http"
	"strings"

	"vfast/infras/otel"
	"vfast/internal/domains/room/model"
	"vfast/internal/domains/room/model/dto"
	"vfast/internal/domains/room/service"
	"vfast/shared"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"
	"vfast/shared/validator"
	"vfast/transport/http/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const (
	formRoomNumber  = "room_number"
	formRoomType    = "room_type"
	formFloor       = "floor"
	formCapacity    = "capacity"
	formFeatures    = "features"
	formTariff      = "tariff"
	formDescription = "description"
	formImage       = "image"
)

type Handler struct {
	service service.Room
	otel    otel.Otel
}

func New(service service.Room, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/rooms", func(routerGroup chi.Router) {
		routerGroup.Post("/", handler.CreateRoom)
		routerGroup.Get("/", handler.GetRooms)
		routerGroup.Get("/number/{number}", handler.GetRoomByNumber)
		routerGroup.Get("/{id}", handler.GetRoomByID)
		routerGroup.Patch("/{id}", handler.UpdateRoom)
		routerGroup.Post("/{id}/reserve", handler.ReserveRoom)
		routerGroup.Post("/{id}/release", handler.ReleaseRoom)
		routerGroup.Get("/{id}/maintenance", handler.GetMaintenances)
		routerGroup.Post("/{id}/maintenance", handler.ScheduleMaintenance)
		routerGroup.Post("/{id}/maintenance/complete", handler.CompleteMaintenance)
	})
}

// CreateRoom registers a new room. New rooms start AVAILABLE.
// @Summary Create a new room
// @Tags Room
// @Accept multipart/form-data
// @Produce json
// @Param room_number formData string true "Room number"
// @Param room_type formData string true "Room type"
// @Param floor formData integer false "Floor"
// @Param capacity formData integer false "Capacity"
// @Param features formData []string false "Features" collectionFormat(multi)
// @Param tariff formData string true "Nightly tariff"
// @Param description formData string false "Description"
// @Param image formData file false "Room image"
// @Success 201 {object} response.Message "Room created successfully"
// @Failure 400 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms [post]
// @Security BearerAuth
func (handler *Handler) CreateRoom(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CreateRoom")
	defer scope.End()

	if err := request.ParseMultipartForm(constant.RequestMaxMemory); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to parse multipart form")
		response.WithError(writer, failure.BadRequest(err))

		return
	}

	req := dto.CreateRoomRequest{
		RoomNumber:  request.FormValue(formRoomNumber),
		RoomType:    request.FormValue(formRoomType),
		Features:    features(request),
		Tariff:      strings.TrimSpace(request.FormValue(formTariff)),
		Description: request.FormValue(formDescription),
		Capacity:    1,
	}

	if floor, err := shared.ConvertStringToInt(request.FormValue(formFloor)); err == nil {
		req.Floor = floor
	}

	if capacity, err := shared.ConvertStringToInt(request.FormValue(formCapacity)); err == nil {
		req.Capacity = capacity
	}

	file, fileHeader, err := request.FormFile(formImage)
	if err == nil {
		req.Image = fileHeader
		req.ImageFile = file

		defer file.Close()
	}

	if err := validator.ValidateStruct(&req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request")

		response.WithError(writer, err)

		return
	}

	if err := handler.service.Create(ctx, req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to create room")

		response.WithError(writer, err)

		return
	}

	user, _ := ctx.Value(constant.ContextKeyUserID).(string)
	scope.AddEvent("Room created successfully by user " + user)

	response.WithMessage(writer, http.StatusCreated, "Room created successfully")
}

// GetRooms lists rooms.
// @Summary Get all rooms
// @Tags Room
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Param status query string false "AVAILABLE, OCCUPIED, RESERVED or MAINTENANCE"
// @Param room_type query string false "Filter by room type"
// @Param floor query integer false "Filter by floor"
// @Success 200 {object} response.Data[dto.GetRoomsResponse] "List of rooms"
// @Failure 400 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms [get]
// @Security BearerAuth
func (handler *Handler) GetRooms(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetRooms")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)
	queryParams.RestrictSort(model.SortableFields...)

	query := r.URL.Query()
	filterGroup := gDto.FilterGroup{Operator: gDto.FilterGroupOperatorAnd}

	if raw := query.Get(model.FieldStatus); raw != constant.Empty {
		status, err := model.ParseStatus(strings.ToUpper(raw))
		if err != nil {
			scope.TraceError(err)
			response.WithError(w, failure.BadRequest(err))

			return
		}

		filterGroup.Filters = append(filterGroup.Filters, gDto.Filter{
			Field:    model.FieldStatus,
			Operator: gDto.FilterOperatorEq,
			Value:    status,
			Table:    model.TableName,
		})
	}

	if roomType := query.Get(model.FieldRoomType); roomType != constant.Empty {
		filterGroup.Filters = append(filterGroup.Filters, gDto.Filter{
			Field:    model.FieldRoomType,
			Operator: gDto.FilterOperatorEq,
			Value:    roomType,
			Table:    model.TableName,
		})
	}

	if raw := query.Get(model.FieldFloor); raw != constant.Empty {
		floor, err := shared.ConvertStringToInt(raw)
		if err != nil {
			scope.TraceError(err)
			response.WithError(w, failure.BadRequest(err))

			return
		}

		filterGroup.Filters = append(filterGroup.Filters, gDto.Filter{
			Field:    model.FieldFloor,
			Operator: gDto.FilterOperatorEq,
			Value:    floor,
			Table:    model.TableName,
		})
	}

	rooms, err := handler.service.GetAll(ctx, queryParams, filterGroup)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get rooms")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Rooms retrieved successfully")

	response.WithJSON(w, http.StatusOK, rooms)
}

// GetRoomByID retrieves a room by its ID.
// @Summary Get a room by ID
// @Tags Room
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Data[dto.RoomResponse] "Room details"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms/{id} [get]
// @Security BearerAuth
func (handler *Handler) GetRoomByID(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetRoomByID")
	defer scope.End()

	room, err := handler.service.Get(ctx, chi.URLParam(r, constant.RequestParamID))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get room by ID")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, room)
}

// GetRoomByNumber retrieves a room by its room number, e.g. R12.
// @Summary Get a room by number
// @Tags Room
// @Produce json
// @Param number path string true "Room number"
// @Success 200 {object} response.Data[dto.RoomResponse] "Room details"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms/number/{number} [get]
// @Security BearerAuth
func (handler *Handler) GetRoomByNumber(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetRoomByNumber")
	defer scope.End()

	room, err := handler.service.GetByNumber(ctx, chi.URLParam(r, constant.RequestParamRoomNum))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get room by number")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, room)
}

// UpdateRoom edits the descriptive fields of a room.
// @Summary Update a room by ID
// @Tags Room
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Room ID"
// @Param room_type formData string false "Room type"
// @Param floor formData integer false "Floor"
// @Param capacity formData integer false "Capacity"
// @Param features formData []string false "Features" collectionFormat(multi)
// @Param tariff formData string false "Nightly tariff"
// @Param description formData string false "Description"
// @Param image formData file false "Room image"
// @Success 200 {object} response.Message "Room updated successfully"
// @Failure 400 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms/{id} [patch]
// @Security BearerAuth
func (handler *Handler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".UpdateRoom")
	defer scope.End()

	if err := r.ParseMultipartForm(constant.RequestMaxMemory); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to parse multipart form")
		response.WithError(w, failure.BadRequest(err))

		return
	}

	req := dto.UpdateRoomRequest{
		RoomType:    r.FormValue(formRoomType),
		Tariff:      strings.TrimSpace(r.FormValue(formTariff)),
		Description: r.FormValue(formDescription),
	}

	if _, ok := r.MultipartForm.Value[formFeatures]; ok {
		req.Features = features(r)
	}

	if floor, err := shared.ConvertStringToInt(r.FormValue(formFloor)); err == nil {
		req.Floor = &floor
	}

	if capacity, err := shared.ConvertStringToInt(r.FormValue(formCapacity)); err == nil {
		req.Capacity = &capacity
	}

	file, fileHeader, err := r.FormFile(formImage)
	if err == nil {
		req.Image = fileHeader
		req.ImageFile = file

		defer file.Close()
	}

	if err := validator.ValidateStruct(&req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request")

		response.WithError(w, err)

		return
	}

	if err := handler.service.Update(ctx, req, chi.URLParam(r, constant.RequestParamID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to update room")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Room updated successfully")

	response.WithMessage(w, http.StatusOK, "Room updated successfully")
}

// ReserveRoom puts an AVAILABLE room on hold.
// @Summary Reserve a room
// @Tags Room
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param request body dto.ReserveRoomRequest false "Reservation notes"
// @Success 200 {object} response.Message "Room reserved successfully"
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms/{id}/reserve [post]
// @Security BearerAuth
func (handler *Handler) ReserveRoom(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ReserveRoom")
	defer scope.End()

	req := dto.ReserveRoomRequest{}
	if r.ContentLength != 0 {
		if err := validator.Validate(r.Body, &req); err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Msg("failed to validate request body")

			response.WithError(w, err)

			return
		}
	}

	if err := handler.service.Reserve(ctx, req, chi.URLParam(r, constant.RequestParamID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to reserve room")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Room reserved successfully")
}

// ReleaseRoom returns a RESERVED room to AVAILABLE.
// @Summary Release a reserved room
// @Tags Room
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Message "Room released successfully"
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms/{id}/release [post]
// @Security BearerAuth
func (handler *Handler) ReleaseRoom(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ReleaseRoom")
	defer scope.End()

	if err := handler.service.Release(ctx, chi.URLParam(r, constant.RequestParamID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to release room")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Room released successfully")
}

// GetMaintenances lists the maintenance history of a room, newest first.
// @Summary Get room maintenance history
// @Tags Room
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Data[[]dto.MaintenanceResponse] "Maintenance records"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms/{id}/maintenance [get]
// @Security BearerAuth
func (handler *Handler) GetMaintenances(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetMaintenances")
	defer scope.End()

	records, err := handler.service.GetMaintenances(ctx, chi.URLParam(r, constant.RequestParamID))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get room maintenance")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, records)
}

// ScheduleMaintenance takes a room out of service.
// @Summary Schedule room maintenance
// @Tags Room
// @Accept json
// @Produce json
// @Param id path string true "Room ID"
// @Param request body dto.ScheduleMaintenanceRequest true "Maintenance details"
// @Success 201 {object} response.Message "Maintenance scheduled successfully"
// @Failure 400 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms/{id}/maintenance [post]
// @Security BearerAuth
func (handler *Handler) ScheduleMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ScheduleMaintenance")
	defer scope.End()

	req := dto.ScheduleMaintenanceRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	if err := handler.service.ScheduleMaintenance(ctx, req, chi.URLParam(r, constant.RequestParamID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to schedule maintenance")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusCreated, "Maintenance scheduled successfully")
}

// CompleteMaintenance closes the in-progress maintenance and frees the room.
// @Summary Complete room maintenance
// @Tags Room
// @Produce json
// @Param id path string true "Room ID"
// @Success 200 {object} response.Message "Maintenance completed successfully"
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/rooms/{id}/maintenance/complete [post]
// @Security BearerAuth
func (handler *Handler) CompleteMaintenance(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CompleteMaintenance")
	defer scope.End()

	if err := handler.service.CompleteMaintenance(ctx, chi.URLParam(r, constant.RequestParamID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to complete maintenance")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Maintenance completed successfully")
}

// features accepts both repeated fields and a comma separated list.
func features(r *http.Request) []string {
	res := []string{}

	for _, value := range r.Form[formFeatures] {
		res = append(res, strings.Split(value, ",")...)
	}

	return res
}
