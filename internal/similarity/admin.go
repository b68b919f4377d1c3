package similarity

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lotuscatalog/curator/pkg/logging"
)

// AdminHandler exposes backfill jobs over HTTP for operators.
type AdminHandler struct {
	backfiller *Backfiller
	logger     logging.Logger
}

func NewAdminHandler(backfiller *Backfiller, logger logging.Logger) *AdminHandler {
	return &AdminHandler{backfiller: backfiller, logger: logger}
}

// RegisterRoutes mounts the backfill endpoints on an (already guarded)
// router group.
func (h *AdminHandler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/embeddings/backfill", h.backfillText)
	group.POST("/image-embeddings/backfill", h.backfillImages)
}

type backfillRequest struct {
	BatchSize int `json:"batch_size"`
}

func (h *AdminHandler) backfillText(c *gin.Context) {
	var req backfillRequest
	_ = c.ShouldBindJSON(&req)

	report, err := h.backfiller.BackfillTextEmbeddings(c.Request.Context(), req.BatchSize)
	if err != nil {
		h.logger.WithError(err).Error("Text embedding backfill failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *AdminHandler) backfillImages(c *gin.Context) {
	var req backfillRequest
	_ = c.ShouldBindJSON(&req)

	report, err := h.backfiller.BackfillImageEmbeddings(c.Request.Context(), req.BatchSize)
	if err != nil {
		h.logger.WithError(err).Error("Image embedding backfill failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "report": report})
		return
	}
	c.JSON(http.StatusOK, report)
}
