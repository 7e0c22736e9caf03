package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/oceanlens/internal/client"
	"github.com/your-org/oceanlens/internal/session"
	"github.com/your-org/oceanlens/internal/storage"
)

// ReportArchive stores copies of downloaded reports.
type ReportArchive interface {
	Get(ctx context.Context, detectionID int64, variant storage.ReportVariant) ([]byte, string, error)
	Put(ctx context.Context, detectionID int64, variant storage.ReportVariant, data []byte, contentType string) error
	DeleteReports(ctx context.Context, detectionID int64) error
}

type ReportHandler struct {
	sess    *session.Context
	archive ReportArchive
}

func NewReportHandler(sess *session.Context, archive ReportArchive) *ReportHandler {
	return &ReportHandler{sess: sess, archive: archive}
}

// Download serves the PDF report of a detection; ?preview=true returns the
// inline preview variant. A failure never touches session state.
func (h *ReportHandler) Download(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	variant := storage.ReportFull
	if c.Query("preview") == "true" {
		variant = storage.ReportPreview
	}
	ctx := c.Request.Context()

	if h.archive != nil {
		data, contentType, err := h.archive.Get(ctx, id, variant)
		if err == nil {
			h.write(c, id, variant, data, contentType)
			return
		}
		if !errors.Is(err, storage.ErrNotArchived) {
			slog.Warn("read archived report", "detection_id", id, "error", err)
		}
	}

	fetch := h.sess.Backend.Report
	if variant == storage.ReportPreview {
		fetch = h.sess.Backend.ReportPreview
	}
	data, contentType, err := fetch(ctx, id)
	if err != nil {
		slog.Warn("report download failed", "detection_id", id, "error", err)
		if errors.Is(err, client.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Report not found"})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to download report"})
		return
	}
	if contentType == "" {
		contentType = "application/pdf"
	}

	if h.archive != nil {
		if err := h.archive.Put(ctx, id, variant, data, contentType); err != nil {
			slog.Warn("archive report", "detection_id", id, "error", err)
		}
	}
	h.write(c, id, variant, data, contentType)
}

func (h *ReportHandler) write(c *gin.Context, id int64, variant storage.ReportVariant, data []byte, contentType string) {
	disposition := "attachment"
	if variant == storage.ReportPreview {
		disposition = "inline"
	}
	c.Header("Content-Disposition", fmt.Sprintf(`%s; filename="personality_report_%d.pdf"`, disposition, id))
	c.Data(http.StatusOK, contentType, data)
}
