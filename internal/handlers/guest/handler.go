package guest

import (
	"net/http"
	"strings"

	"vfast/infras/otel"
	"vfast/internal/domains/guest/model/dto"
	"vfast/internal/domains/guest/service"
	"vfast/shared/constant"
	"vfast/shared/failure"
	"vfast/shared/validator"
	"vfast/transport/http/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const (
	formName     = "name"
	formContact  = "contact"
	formIDType   = "id_type"
	formIDNumber = "id_number"
	formKYCURL   = "kyc_url"
	formKYC      = "kyc"
)

type Handler struct {
	service service.Guest
	otel    otel.Otel
}

func New(service service.Guest, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/guests", func(routerGroup chi.Router) {
		routerGroup.Post("/{guestId}/check-in", handler.CheckIn)
		routerGroup.Post("/{guestId}/check-out", handler.CheckOut)
		routerGroup.Post("/{guestId}/verify", handler.Verify)
		routerGroup.Post("/{guestId}/kyc", handler.UploadKYC)
	})
}

// BookingRouter registers the roster routes inside the /bookings group.
func (handler *Handler) BookingRouter(router chi.Router) {
	router.Get("/{id}/guests", handler.GetGuests)
	router.Post("/{id}/guests", handler.AddGuest)
}

// AddGuest adds a guest to an allocated booking. Accepts JSON or a multipart form
// carrying the KYC document.
// @Summary Add a guest to a booking
// @Tags Guest
// @Accept json,mpfd
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body dto.AddGuestRequest true "Guest details"
// @Success 201 {object} response.Data[dto.GuestResponse] "Guest added"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/guests [post]
// @Security BearerAuth
func (handler *Handler) AddGuest(writer http.ResponseWriter, request *http.Request) {
	ctx, scope := handler.otel.NewScope(request.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".AddGuest")
	defer scope.End()

	req := dto.AddGuestRequest{}

	if strings.HasPrefix(request.Header.Get(constant.RequestHeaderContentType), "multipart/") {
		if err := request.ParseMultipartForm(constant.RequestMaxMemory); err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Msg("failed to parse multipart form")
			response.WithError(writer, failure.BadRequest(err))

			return
		}

		req.Name = request.FormValue(formName)
		req.Contact = request.FormValue(formContact)
		req.IDType = request.FormValue(formIDType)
		req.IDNumber = request.FormValue(formIDNumber)
		req.KYCURL = request.FormValue(formKYCURL)

		file, fileHeader, err := request.FormFile(formKYC)
		if err == nil {
			req.KYC = fileHeader
			req.KYCFile = file

			defer file.Close()
		}

		if err := validator.ValidateStruct(&req); err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Msg("failed to validate request")

			response.WithError(writer, err)

			return
		}
	} else if err := validator.Validate(request.Body, &req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request body")

		response.WithError(writer, err)

		return
	}

	guest, err := handler.service.AddGuest(ctx, chi.URLParam(request, constant.RequestParamID), req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to add guest")

		response.WithError(writer, err)

		return
	}

	scope.AddEvent("Guest " + guest.ID + " added to booking " + guest.BookingID)

	response.WithJSON(writer, http.StatusCreated, guest)
}

// GetGuests lists the roster of a booking.
// @Summary Get booking guests
// @Tags Guest
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} response.Data[dto.GetGuestsResponse] "Guest roster"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/bookings/{id}/guests [get]
// @Security BearerAuth
func (handler *Handler) GetGuests(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetGuests")
	defer scope.End()

	guests, err := handler.service.List(ctx, chi.URLParam(r, constant.RequestParamID))
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get guests")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, guests)
}

// CheckIn marks a guest as present.
// @Summary Check in a guest
// @Tags Guest
// @Produce json
// @Param guestId path string true "Guest ID"
// @Success 200 {object} response.Message "Guest checked in"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/guests/{guestId}/check-in [post]
// @Security BearerAuth
func (handler *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CheckIn")
	defer scope.End()

	if err := handler.service.CheckIn(ctx, chi.URLParam(r, constant.RequestParamGuestID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to check in guest")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Guest checked in")
}

// CheckOut marks a present guest as departed.
// @Summary Check out a guest
// @Tags Guest
// @Produce json
// @Param guestId path string true "Guest ID"
// @Success 200 {object} response.Message "Guest checked out"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 409 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/guests/{guestId}/check-out [post]
// @Security BearerAuth
func (handler *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".CheckOut")
	defer scope.End()

	if err := handler.service.CheckOut(ctx, chi.URLParam(r, constant.RequestParamGuestID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to check out guest")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Guest checked out")
}

// Verify records that the guest's identity has been checked.
// @Summary Verify a guest
// @Tags Guest
// @Produce json
// @Param guestId path string true "Guest ID"
// @Success 200 {object} response.Message "Guest verified"
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/guests/{guestId}/verify [post]
// @Security BearerAuth
func (handler *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".Verify")
	defer scope.End()

	if err := handler.service.Verify(ctx, chi.URLParam(r, constant.RequestParamGuestID)); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to verify guest")

		response.WithError(w, err)

		return
	}

	response.WithMessage(w, http.StatusOK, "Guest verified")
}

// UploadKYC replaces the guest's identity document.
// @Summary Upload a guest KYC document
// @Tags Guest
// @Accept multipart/form-data
// @Produce json
// @Param guestId path string true "Guest ID"
// @Param kyc formData file true "Identity document (png, jpeg or pdf)"
// @Success 200 {object} response.Data[string] "Document location"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 404 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/guests/{guestId}/kyc [post]
// @Security BearerAuth
func (handler *Handler) UploadKYC(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".UploadKYC")
	defer scope.End()

	if err := r.ParseMultipartForm(constant.RequestMaxMemory); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to parse multipart form")
		response.WithError(w, failure.BadRequest(err))

		return
	}

	file, fileHeader, err := r.FormFile(formKYC)
	if err != nil {
		scope.TraceError(err)
		response.WithError(w, failure.BadRequestFromString("kyc file is required"))

		return
	}

	defer file.Close()

	if err := validator.ValidateVar(fileHeader, "mimetypes=image/png image/jpg image/jpeg application/pdf,maxfilesize=2"); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate kyc file")

		response.WithError(w, err)

		return
	}

	location, err := handler.service.UploadKYC(ctx, chi.URLParam(r, constant.RequestParamGuestID), fileHeader, file)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to upload kyc document")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, location)
}
