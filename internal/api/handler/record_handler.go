package handler

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/service"
)

type RecordHandler struct {
	bookings *service.BookingService
}

func NewRecordHandler(bs *service.BookingService) *RecordHandler {
	return &RecordHandler{bookings: bs}
}

// GET /bookings
func (h *RecordHandler) FindBookings(c *gin.Context) {
	var filter domain.BookingRecordFilterDTO
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter", "details": err.Error()})
		return
	}
	records, err := h.bookings.FindBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Could not list bookings")
		return
	}
	c.JSON(http.StatusOK, records)
}

// GET /bookings/:id
func (h *RecordHandler) GetBooking(c *gin.Context) {
	record, err := h.bookings.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Booking not found")
		return
	}
	c.JSON(http.StatusOK, record)
}

var exportHeader = []string{
	"id", "location", "spot", "slot", "duration_minutes", "price", "currency",
	"valet", "promo_code", "start_time", "end_time", "payment_status", "paid_at",
}

// GET /bookings/export
func (h *RecordHandler) ExportBookings(c *gin.Context) {
	var filter domain.BookingRecordFilterDTO
	if err := c.ShouldBindQuery(&filter); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid filter", "details": err.Error()})
		return
	}
	records, err := h.bookings.FindBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, "Could not export bookings")
		return
	}

	filename := fmt.Sprintf("bookings-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)

	w := csv.NewWriter(c.Writer)
	_ = w.Write(exportHeader)
	for _, r := range records {
		paidAt := ""
		if r.PaidAt.Valid {
			paidAt = r.PaidAt.Time.Format(time.RFC3339)
		}
		_ = w.Write([]string{
			r.ID,
			string(r.Location),
			r.SpotName,
			r.SlotLabel,
			strconv.Itoa(r.DurationMinutes),
			strconv.Itoa(r.Price),
			r.Currency,
			strconv.FormatBool(r.HasValet),
			r.PromoCode.String,
			r.StartTime.Format(time.RFC3339),
			r.EndTime.Format(time.RFC3339),
			string(r.PaymentStatus),
			paidAt,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = c.Error(err)
	}
}
