package report

import (
	"net/http"
	"strings"

	"vfast/infras/otel"
	"vfast/internal/domains/report/model/dto"
	"vfast/internal/domains/report/service"
	"vfast/shared/constant"
	gDto "vfast/shared/dto"
	"vfast/shared/validator"
	"vfast/transport/http/response"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	service service.Report
	otel    otel.Otel
}

func New(service service.Report, otel otel.Otel) Handler {
	return Handler{
		service: service,
		otel:    otel,
	}
}

func (handler *Handler) Router(router chi.Router) {
	router.Route("/reports", func(routerGroup chi.Router) {
		routerGroup.Get("/bookings", handler.GetBookingReport)
		routerGroup.Get("/occupancy", handler.GetOccupancyReport)
	})
}

// GetBookingReport returns the booking report as JSON, or as a file download
// when format is csv or pdf.
// @Summary Booking report
// @Tags Report
// @Produce json,text/csv,application/pdf
// @Param pagination query gDto.QueryParams false "Pagination parameters"
// @Param start_date query string false "Stay overlaps from (YYYY-MM-DD)"
// @Param end_date query string false "Stay overlaps until (YYYY-MM-DD)"
// @Param status query string false "Filter by status"
// @Param department query string false "Filter by department"
// @Param format query string false "csv or pdf"
// @Success 200 {object} response.Data[dto.BookingReport] "Booking report"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/reports/bookings [get]
// @Security BearerAuth
func (handler *Handler) GetBookingReport(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetBookingReport")
	defer scope.End()

	query := r.URL.Query()

	req := dto.BookingReportRequest{
		StartDate:  strings.TrimSpace(query.Get(constant.RequestParamStartDate)),
		EndDate:    strings.TrimSpace(query.Get(constant.RequestParamEndDate)),
		Status:     strings.TrimSpace(query.Get("status")),
		Department: strings.TrimSpace(query.Get("department")),
		Format:     strings.ToLower(strings.TrimSpace(query.Get(constant.RequestParamFormat))),
	}

	if err := validator.ValidateStruct(&req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request")

		response.WithError(w, err)

		return
	}

	if req.Format != constant.Empty {
		file, err := handler.service.ExportBookings(ctx, req)
		if err != nil {
			scope.TraceError(err)
			log.Error().Err(err).Str("format", req.Format).Msg("failed to export booking report")

			response.WithError(w, err)

			return
		}

		scope.AddEvent("Booking report exported as " + file.Name)

		response.WithFile(w, file.Name, file.ContentType, file.Data)

		return
	}

	queryParams := gDto.QueryParams{}
	queryParams.FromRequest(r, true)

	report, err := handler.service.Bookings(ctx, queryParams, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get booking report")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, report)
}

// GetOccupancyReport summarises room usage over a date range.
// @Summary Occupancy report
// @Tags Report
// @Produce json
// @Param start_date query string true "First night (YYYY-MM-DD)"
// @Param end_date query string true "Day after the last night (YYYY-MM-DD)"
// @Success 200 {object} response.Data[dto.OccupancyReport] "Occupancy report"
// @Failure 400 {object} response.Error
// @Failure 403 {object} response.Error
// @Failure 500 {object} response.Error
// @Router /v1/reports/occupancy [get]
// @Security BearerAuth
func (handler *Handler) GetOccupancyReport(w http.ResponseWriter, r *http.Request) {
	ctx, scope := handler.otel.NewScope(r.Context(), constant.OtelHandlerScopeName, constant.OtelHandlerScopeName+".GetOccupancyReport")
	defer scope.End()

	query := r.URL.Query()

	req := dto.OccupancyRequest{
		StartDate: strings.TrimSpace(query.Get(constant.RequestParamStartDate)),
		EndDate:   strings.TrimSpace(query.Get(constant.RequestParamEndDate)),
	}

	if err := validator.ValidateStruct(&req); err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to validate request")

		response.WithError(w, err)

		return
	}

	report, err := handler.service.Occupancy(ctx, req)
	if err != nil {
		scope.TraceError(err)
		log.Error().Err(err).Msg("failed to get occupancy report")

		response.WithError(w, err)

		return
	}

	response.WithJSON(w, http.StatusOK, report)
}
