package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/service"
)

type BookingHandler struct {
	bookings    *service.BookingService
	transcriber service.Transcriber
}

func NewBookingHandler(bs *service.BookingService, transcriber service.Transcriber) *BookingHandler {
	return &BookingHandler{bookings: bs, transcriber: transcriber}
}

// GET /booking-options
func (h *BookingHandler) GetOptions(c *gin.Context) {
	locations := []gin.H{}
	for _, loc := range []domain.Location{domain.LocationCity, domain.LocationMall, domain.LocationAirport} {
		locations = append(locations, gin.H{"id": loc, "name": loc.Name(), "recommended_slot": loc.RecommendedSlot()})
	}
	c.JSON(http.StatusOK, gin.H{
		"durations":           domain.DurationPresets,
		"spots":               domain.SpotOptions,
		"locations":           locations,
		"base_price_per_hour": service.BasePricePerHour,
		"valet_surcharge":     service.ValetSurcharge,
		"hint":                service.CommandHint,
	})
}

// POST /booking-sessions
func (h *BookingHandler) StartSession(c *gin.Context) {
	var dto domain.StartSessionDTO
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&dto); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
			return
		}
	}

	session, err := h.bookings.StartSession(c.Request.Context(), dto)
	if err != nil {
		respondError(c, err, "Could not start booking session")
		return
	}
	c.JSON(http.StatusCreated, h.bookings.View(session))
}

// GET /booking-sessions/:id
func (h *BookingHandler) GetSession(c *gin.Context) {
	session, err := h.bookings.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Booking session not found")
		return
	}
	c.JSON(http.StatusOK, h.bookings.View(session))
}

// DELETE /booking-sessions/:id
func (h *BookingHandler) DiscardSession(c *gin.Context) {
	if err := h.bookings.DiscardSession(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err, "Could not discard booking session")
		return
	}
	c.Status(http.StatusNoContent)
}

// POST /booking-sessions/:id/commands
func (h *BookingHandler) ApplyCommand(c *gin.Context) {
	var dto domain.CommandDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	h.applyUtterance(c, service.TextUtterance(dto.Utterance))
}

// POST /booking-sessions/:id/voice (multipart field "audio", PCM WAV)
func (h *BookingHandler) ApplyVoice(c *gin.Context) {
	if h.transcriber == nil {
		respondError(c, service.ErrSpeechDisabled, "Voice input is unavailable")
		return
	}
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Audio file is required", "details": err.Error()})
		return
	}
	if fileHeader.Size > service.MaxAudioBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Audio file is too large"})
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, err, "Could not read audio file")
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, service.MaxAudioBytes+1))
	if err != nil {
		respondError(c, err, "Could not read audio file")
		return
	}
	transcript, err := h.transcriber.Transcribe(c.Request.Context(), audio)
	if err != nil {
		respondError(c, err, "Speech recognition failed")
		return
	}
	h.applyUtterance(c, service.TextUtterance(transcript))
}

func (h *BookingHandler) applyUtterance(c *gin.Context, u service.Utterance) {
	result, session, err := h.bookings.ApplyCommand(c.Request.Context(), c.Param("id"), u)
	if err != nil {
		respondError(c, err, "Could not apply command")
		return
	}
	view := h.bookings.View(session)
	c.JSON(http.StatusOK, domain.CommandResponseDTO{Result: result, Session: session, Quote: view.Quote})
}

// PATCH /booking-sessions/:id/selection
func (h *BookingHandler) UpdateSelection(c *gin.Context) {
	var dto domain.SelectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	session, err := h.bookings.UpdateSelection(c.Request.Context(), c.Param("id"), dto)
	if err != nil {
		respondError(c, err, "Could not update selection")
		return
	}
	c.JSON(http.StatusOK, h.bookings.View(session))
}

// POST /booking-sessions/:id/promo
func (h *BookingHandler) ApplyPromo(c *gin.Context) {
	var dto domain.PromoDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	result, session, err := h.bookings.ApplyPromo(c.Request.Context(), c.Param("id"), dto.Code)
	if err != nil {
		if errors.Is(err, service.ErrPromoRejected) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": result.Message, "promo": result, "session": h.bookings.View(session)})
			return
		}
		respondError(c, err, "Could not apply promo code")
		return
	}
	c.JSON(http.StatusOK, gin.H{"promo": result, "session": h.bookings.View(session)})
}

// GET /booking-sessions/:id/quote
func (h *BookingHandler) GetQuote(c *gin.Context) {
	quote, err := h.bookings.Quote(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err, "Could not compute quote")
		return
	}
	c.JSON(http.StatusOK, quote)
}

// POST /booking-sessions/:id/checkout
func (h *BookingHandler) Checkout(c *gin.Context) {
	resp, err := h.bookings.Checkout(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrPreferenceRequired) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Please select your parking preference"})
			return
		}
		respondError(c, err, "Could not complete checkout")
		return
	}
	c.JSON(http.StatusCreated, resp)
}
