package service

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"vfast/internal/domains/report/model/dto"
	"vfast/shared/constant"

	"github.com/phpdave11/gofpdf"
	"github.com/shopspring/decimal"
)

var reportHeader = []string{
	"ID", "Purpose", "Type", "Department", "Status", "Stage",
	"Check In", "Check Out", "Nights", "Guests", "Rooms", "Charge",
}

// pdfWidths are the landscape A4 column widths in mm, one per reportHeader entry.
var pdfWidths = []float64{24, 46, 18, 28, 30, 26, 20, 20, 12, 12, 22, 19}

func record(row dto.BookingReportRow) []string {
	return []string{
		row.ID,
		row.Purpose,
		row.BookingType,
		row.Department,
		row.Status,
		row.Stage,
		row.CheckInDate,
		row.CheckOutDate,
		strconv.Itoa(row.Nights),
		strconv.Itoa(row.GuestCount),
		strings.Join(row.Rooms, " "),
		row.Charge,
	}
}

func renderCSV(rows []dto.BookingReportRow) ([]byte, error) {
	var buf bytes.Buffer

	w := csv.NewWriter(&buf)

	if err := w.Write(reportHeader); err != nil {
		return nil, fmt.Errorf("failed to write csv header: %w", err)
	}

	for _, row := range rows {
		if err := w.Write(record(row)); err != nil {
			return nil, fmt.Errorf("failed to write csv row %s: %w", row.ID, err)
		}
	}

	w.Flush()

	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}

	return buf.Bytes(), nil
}

func renderPDF(req dto.BookingReportRequest, rows []dto.BookingReportRow, total decimal.Decimal) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetTitle("VFast booking report", false)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, "VFast Booking Report")
	pdf.Ln(10)

	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, "Generated "+time.Now().Format(constant.DateFormat))
	pdf.Ln(6)
	pdf.Cell(0, 6, describe(req))
	pdf.Ln(10)

	pdf.SetFont("Arial", "B", 8)
	pdf.SetFillColor(230, 230, 230)

	for i, title := range reportHeader {
		pdf.CellFormat(pdfWidths[i], 7, title, "1", 0, "C", true, 0, "")
	}

	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 7)

	for _, row := range rows {
		for i, value := range record(row) {
			if i == 0 && len(value) > 8 {
				value = value[:8]
			}

			pdf.CellFormat(pdfWidths[i], 6, truncate(pdf, value, pdfWidths[i]), "1", 0, "L", false, 0, "")
		}

		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Bookings: %d    Estimated charge: %s", len(rows), total.StringFixed(2))) //nolint:mnd

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to write pdf: %w", err)
	}

	return buf.Bytes(), nil
}

func describe(req dto.BookingReportRequest) string {
	parts := []string{}

	if req.StartDate != constant.Empty || req.EndDate != constant.Empty {
		parts = append(parts, fmt.Sprintf("Stay %s to %s", orAny(req.StartDate), orAny(req.EndDate)))
	}

	if req.Status != constant.Empty {
		parts = append(parts, "Status "+strings.ToUpper(req.Status))
	}

	if req.Department != constant.Empty {
		parts = append(parts, "Department "+req.Department)
	}

	if len(parts) == 0 {
		return "All bookings"
	}

	return strings.Join(parts, ", ")
}

func orAny(s string) string {
	if s == constant.Empty {
		return "any"
	}

	return s
}

// truncate shortens value with an ellipsis until it fits a cell of width mm.
func truncate(pdf *gofpdf.Fpdf, value string, width float64) string {
	const padding = 2

	if pdf.GetStringWidth(value) <= width-padding {
		return value
	}

	runes := []rune(value)
	for len(runes) > 0 && pdf.GetStringWidth(string(runes)+"...") > width-padding {
		runes = runes[:len(runes)-1]
	}

	return string(runes) + "..."
}
