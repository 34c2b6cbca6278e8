package booking

import (
	"context"
	"net/http"
	"strings"

	"vfast/infras/otel"
	allocationService "vfast/internal/domains/allocation/service"
	"vfast/internal/domains/booking/model"
	"vfast/internal/domains/booking/model/dto"
	"vfast/internal/domains/booking/service"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/failure"
	"vfast/shared/validator"
	"vfast/transport/http/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const formDocument = "file"

type Handler struct {
	service    service.Booking
	allocation allocationService.Allocation
	otel       otel.Otel
}

func New(service service.Booking, allocation allocationService.Allocation, otel otel.Otel) Handler {
	return Handler{
		service:    service,
		allocation: allocation,
		otel:       otel,
	}
}

// Router mounts the booking routes. nested registers sub-resources such as the
// guest roster under the same /bookings group.
func (handler *Handler) Router(router chi.Router, nested ...func(chi.Router)) {
	router.Route("/bookings", func(routerGroup chi.Router) {
		routerGroup.Post("/", handler.CreateBooking)
		routerGroup.Get("/", handler.GetBookings)
		routerGroup.Get("/mine", handler.GetMyBookings)
		routerGroup.Get("/queue/department", handler.queue(dto.QueueDepartment))
		routerGroup.Get("/queue/admin", handler.queue(dto.QueueAdmin))
		routerGroup.Get("/queue/allocation", handler.queue(dto.QueueAllocation))
		routerGroup.Get("/{id}", handler.GetBookingByID)
		routerGroup.Delete("/{id}", handler.DeleteBooking)
		routerGroup.Post("/{id}/resubmit", handler.ResubmitBooking)
		routerGroup.Post("/{id}/document", handler.UploadDocument)
		routerGroup.Post("/{id}/department/approve", handler.DepartmentApprove)
		routerGroup.Post("/{id}/department/reject", handler.DepartmentReject)
		routerGroup.Post("/{id}/admin/approve", handler.AdminApprove)
		routerGroup.Post("/{id}/admin/reject", handler.AdminReject)
		routerGroup.Post("/{id}/allocate", handler.Allocate)
		routerGroup.Post("/{id}/cancel-allocation", handler.CancelAllocation)
		routerGroup.Post("/{id}/check-in", handler.CheckIn)
		routerGroup.Post("/{id}/check-out", handler.CheckOut)

		for _, mount := range nested {
			mount(routerGroup)
		}
	})
}

// CreateBooking submits a booking request on behalf of the caller.
// @Summary Create a new booking
// @Tags Booking
// @Accept json
// @Produce json
// @Param request body dto.CreateBookingRequest true "Booking details"
// @Success 201 {object} response.Data[dto.BookingResponse] "Booking created"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings [post]
// @Security BearerAuth
func (handler *Handler) CreateBooking(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CreateBooking")
	defer scope.End()

	req := dto.CreateBookingRequest{}
	if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(writer, err)

		return
	}

	booking, err := handler.service.Create(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to create booking")

		response.WithError(writer, err)

		return
	}

	scope.AddEvent("Booking " + booking.ID + " created with status " + booking.Status)

	response.WithJSON(writer, http.StatusCreated, booking)
}

// GetBookings lists every booking. Restricted to reviewers.
// @Summary Get all bookings
// @Tags Booking
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Param status query string false "Filter by status"
// @Param stage query string false "Filter by workflow stage"
// @Param booking_type query string false "OFFICIAL or PERSONAL"
// @Param department query string false "Filter by department"
// @Param user_id query string false "Filter by requestor"
// @Param start_date query string false "Stay overlaps from (YYYY-MM-DD)"
// @Param end_date query string false "Stay overlaps until (YYYY-MM-DD)"
// @Success 200 {object} response.Data[dto.GetBookingsResponse] "List of bookings"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings [get]
// @Security BearerAuth
func (handler *Handler) GetBookings(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetBookings")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)
	queryParams.RestrictSort(model.SortableFields...)

	filter := listFilter(r)
	filter.UserID = strings.TrimSpace(r.URL.Query().Get(model.FieldUserID))

	bookings, err := handler.service.GetAll(ctx, queryParams, filter)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get bookings")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, bookings)
}

// GetMyBookings lists the caller's own bookings.
// @Summary Get my bookings
// @Tags Booking
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Param status query string false "Filter by status"
// @Param stage query string false "Filter by workflow stage"
// @Success 200 {object} response.Data[dto.GetBookingsResponse] "List of bookings"
// @Failure 400 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/mine [get]
// @Security BearerAuth
func (handler *Handler) GetMyBookings(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetMyBookings")
	defer scope.End()

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)
	queryParams.RestrictSort(model.SortableFields...)

	bookings, err := handler.service.Mine(ctx, queryParams, listFilter(r))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get my bookings")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, bookings)
}

// queue serves the review queues. Department reviewers only see their own department.
// @Summary Get a review queue
// @Tags Booking
// @Produce json
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Success 200 {object} response.Data[dto.GetBookingsResponse] "Bookings waiting on the reviewer"
// @Failure 403 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/queue/department [get]
// @Router /v1/bookings/queue/admin [get]
// @Router /v1/bookings/queue/allocation [get]
// @Security BearerAuth
func (handler *Handler) queue(queue dto.Queue) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Queue")
		defer scope.End()

		queryParams := gDto.QueryParams{}
		queryParams.FromRequest(r, true)
		queryParams.RestrictSort(model.SortableFields...)

		bookings, err := handler.service.Queue(ctx, queryParams, queue)
		if err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Str("queue", string(queue)).Msg("failed to get booking queue")

			response.WithError(w, err)

			return
		}

		response.WithJSON(w, http.StatusOK, bookings)
	}
}

// GetBookingByID retrieves a booking with its rooms and rejection history.
// @Summary Get a booking by ID
// @Tags Booking
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Data[dto.BookingResponse] "Booking details"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id} [get]
// @Security BearerAuth
func (handler *Handler) GetBookingByID(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetBookingByID")
	defer scope.End()

	booking, err := handler.service.Get(ctx, chi.URLParam(r, constant.RequestParamID))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get booking by ID")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, booking)
}

// DeleteBooking soft deletes a booking that holds no rooms.
// @Summary Delete a booking
// @Tags Booking
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Message "Booking deleted successfully"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id} [delete]
// @Security BearerAuth
func (handler *Handler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".DeleteBooking")
	defer scope.End()

	if err := handler.service.Delete(ctx, chi.URLParam(r, constant.RequestParamID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to delete booking")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Booking deleted successfully")

	response.WithMessage(w, http.StatusOK, "Booking deleted successfully")
}

// ResubmitBooking files a rejected booking again as a new request.
// @Summary Resubmit a rejected booking
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Rejected booking ID"
// @Param request body dto.CreateBookingRequest true "Revised booking details"
// @Success 201 {object} response.Data[dto.BookingResponse] "Booking resubmitted"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/resubmit [post]
// @Security BearerAuth
func (handler *Handler) ResubmitBooking(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".ResubmitBooking")
	defer scope.End()

	req := dto.CreateBookingRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	booking, err := handler.service.Resubmit(ctx, chi.URLParam(r, constant.RequestParamID), req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to resubmit booking")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Booking resubmitted as " + booking.ID)

	response.WithJSON(w, http.StatusCreated, booking)
}

// UploadDocument attaches the supporting document bundle, a zip archive.
// @Summary Upload a booking document
// @Tags Booking
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Booking ID"
// @Param file formData file true "Zip archive"
// @Success 200 {object} response.Data[string] "Document location"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/document [post]
// @Security BearerAuth
func (handler *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".UploadDocument")
	defer scope.End()

	if err := r.ParseMultipartForm(constant.RequestMaxMemory); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to parse multipart form")
		response.WithError(w, failure.BadRequest(err))

		return
	}

	req := dto.UploadDocumentRequest{}

	file, fileHeader, err := r.FormFile(formDocument)
	if err == nil {
		req.Document = fileHeader
		req.DocumentFile = file

		defer file.Close()
	}

	if err := validator.ValidateStruct(&req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request")

		response.WithError(w, err)

		return
	}

	location, err := handler.service.UploadDocument(ctx, chi.URLParam(r, constant.RequestParamID), req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to upload booking document")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, location)
}

// DepartmentApprove forwards a booking to the admin stage.
// @Summary Department approval
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.DecisionRequest false "Approval notes"
// @Success 200 {object} response.Message "Booking approved"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/department/approve [post]
// @Security BearerAuth
func (handler *Handler) DepartmentApprove(w http.ResponseWriter, r *http.Request) {
	handler.decide(w, r, "DepartmentApprove", handler.service.DepartmentApprove)
}

// DepartmentReject closes a booking at the department stage.
// @Summary Department rejection
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Message "Booking rejected"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/department/reject [post]
// @Security BearerAuth
func (handler *Handler) DepartmentReject(w http.ResponseWriter, r *http.Request) {
	handler.reject(w, r, "DepartmentReject", handler.service.DepartmentReject)
}

// AdminApprove hands a booking over to VFast for allocation.
// @Summary Admin approval
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.DecisionRequest false "Approval notes"
// @Success 200 {object} response.Message "Booking approved"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/admin/approve [post]
// @Security BearerAuth
func (handler *Handler) AdminApprove(w http.ResponseWriter, r *http.Request) {
	handler.decide(w, r, "AdminApprove", handler.service.AdminApprove)
}

// AdminReject closes a booking at the admin stage.
// @Summary Admin rejection
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.RejectRequest true "Rejection reason"
// @Success 200 {object} response.Message "Booking rejected"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/admin/reject [post]
// @Security BearerAuth
func (handler *Handler) AdminReject(w http.ResponseWriter, r *http.Request) {
	handler.reject(w, r, "AdminReject", handler.service.AdminReject)
}

// Allocate binds rooms to an approved booking in one transaction.
// @Summary Allocate rooms
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.AllocateRequest true "Rooms to allocate"
// @Success 200 {object} response.Data[[]string] "Allocated room numbers"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/allocate [post]
// @Security BearerAuth
func (handler *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Allocate")
	defer scope.End()

	req := dto.AllocateRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	id := chi.URLParam(r, constant.RequestParamID)

	rooms, err := handler.allocation.Allocate(ctx, id, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("booking", id).Msg("failed to allocate rooms")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Rooms " + strings.Join(rooms, ",") + " allocated to booking " + id)

	response.WithJSON(w, http.StatusOK, rooms)
}

// CancelAllocation releases the rooms of an allocated booking.
// @Summary Cancel an allocation
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.CancelAllocationRequest true "Cancellation notes"
// @Success 200 {object} response.Message "Allocation cancelled"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/cancel-allocation [post]
// @Security BearerAuth
func (handler *Handler) CancelAllocation(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CancelAllocation")
	defer scope.End()

	req := dto.CancelAllocationRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	if err := handler.allocation.CancelAllocation(ctx, chi.URLParam(r, constant.RequestParamID), req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to cancel allocation")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Allocation cancelled")
}

// CheckIn records the arrival of an allocated booking.
// @Summary Check in a booking
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.CheckInRequest false "Check-in details"
// @Success 200 {object} response.Message "Booking checked in"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/check-in [post]
// @Security BearerAuth
func (handler *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CheckIn")
	defer scope.End()

	req := dto.CheckInRequest{}
	if r.ContentLength != 0 {
		if err := validator.Validate(r.Body, &req); err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Msg("failed to validate request body")

			response.WithError(w, err)

			return
		}
	}

	if err := handler.service.CheckIn(ctx, chi.URLParam(r, constant.RequestParamID), req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to check in booking")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Booking checked in")
}

// CheckOut completes the stay and releases the booking's rooms.
// @Summary Check out a booking
// @Tags Booking
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.CheckOutRequest false "Check-out notes"
// @Success 200 {object} response.Message "Booking checked out"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/check-out [post]
// @Security BearerAuth
func (handler *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CheckOut")
	defer scope.End()

	req := dto.CheckOutRequest{}
	if r.ContentLength != 0 {
		if err := validator.Validate(r.Body, &req); err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Msg("failed to validate request body")

			response.WithError(w, err)

			return
		}
	}

	if err := handler.allocation.CompleteStay(ctx, chi.URLParam(r, constant.RequestParamID), req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to check out booking")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Booking checked out")
}

func (handler *Handler) decide(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	decide func(ctx context.Context, id string, req dto.DecisionRequest) error,
) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+"."+name)
	defer scope.End()

	req := dto.DecisionRequest{}
	if r.ContentLength != 0 {
		if err := validator.Validate(r.Body, &req); err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Msg("failed to validate request body")

			response.WithError(w, err)

			return
		}
	}

	id := chi.URLParam(r, constant.RequestParamID)

	if err := decide(ctx, id, req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("booking", id).Msg("failed to approve booking")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Booking " + id + " approved")

	response.WithMessage(w, http.StatusOK, "Booking approved")
}

func (handler *Handler) reject(
	w http.ResponseWriter,
	r *http.Request,
	name string,
	reject func(ctx context.Context, id string, req dto.RejectRequest) error,
) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+"."+name)
	defer scope.End()

	req := dto.RejectRequest{}
	if err := validator.Validate(r.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(w, err)

		return
	}

	id := chi.URLParam(r, constant.RequestParamID)

	if err := reject(ctx, id, req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Str("booking", id).Msg("failed to reject booking")

		response.WithError(w, err)

		return
	}

	scope.AddEvent("Booking " + id + " rejected")

	response.WithMessage(w, http.StatusOK, "Booking rejected")
}

func listFilter(r *http.Request) dto.ListFilter {
	query := r.URL.Query()

	return dto.ListFilter{
		Status:      strings.TrimSpace(query.Get(model.FieldStatus)),
		Stage:       strings.TrimSpace(query.Get("stage")),
		BookingType: strings.ToUpper(strings.TrimSpace(query.Get(model.FieldBookingType))),
		Department:  strings.TrimSpace(query.Get(model.FieldDepartment)),
		StartDate:   strings.TrimSpace(query.Get(constant.RequestParamStartDate)),
		EndDate:     strings.TrimSpace(query.Get(constant.RequestParamEndDate)),
	}
}
