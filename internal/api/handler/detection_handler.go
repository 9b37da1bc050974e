package handler

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"smart_parkai/internal/domain"
	"smart_parkai/internal/service"
)

type DetectionHandler struct {
	detection *service.DetectionService
}

func NewDetectionHandler(ds *service.DetectionService) *DetectionHandler {
	return &DetectionHandler{detection: ds}
}

// GET /parking-lot/main
func (h *DetectionHandler) GetMainLot(c *gin.Context) {
	c.JSON(http.StatusOK, h.detection.Layout())
}

// POST /detect-spots
func (h *DetectionHandler) DetectSpots(c *gin.Context) {
	var req domain.DetectionRequestDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	// Browsers send data URLs ("data:image/jpeg;base64,...").
	encoded := req.ImageBase64
	if i := strings.Index(encoded, ","); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+1:]
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid image data", "details": err.Error()})
		return
	}
	if len(image) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Image data is empty"})
		return
	}

	result, err := h.detection.AnalyzeLot(c.Request.Context(), image)
	if err != nil {
		respondError(c, err, "Spot detection failed")
		return
	}
	c.JSON(http.StatusOK, result)
}
