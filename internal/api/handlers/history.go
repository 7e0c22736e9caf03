package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/oceanlens/internal/cache"
	"github.com/your-org/oceanlens/internal/session"
)

type HistoryHandler struct {
	sess    *session.Context
	archive ReportArchive
}

func NewHistoryHandler(sess *session.Context, archive ReportArchive) *HistoryHandler {
	return &HistoryHandler{sess: sess, archive: archive}
}

func (h *HistoryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()
	recs, err := h.sess.History(ctx)
	if err != nil {
		writeError(c, err)
		return
	}

	var fetchedAt time.Time
	if e, err := h.sess.Cache.Peek(ctx, cache.NewKey(cache.KindHistory)); err == nil && e != nil {
		fetchedAt = e.FetchedAt
	}
	c.JSON(http.StatusOK, historyView(recs, fetchedAt))
}

func (h *HistoryHandler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := h.sess.Detection(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DetectionView(*rec))
}

func (h *HistoryHandler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.sess.DeleteDetection(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	if h.archive != nil {
		if err := h.archive.DeleteReports(c.Request.Context(), id); err != nil {
			slog.Warn("delete archived reports", "detection_id", id, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Detection deleted"})
}

// Insights opens the detail view for a detection. The bundle loads in the
// background unless ?wait=true is given.
func (h *HistoryHandler) Insights(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	res := h.sess.Insights.Show(c.Request.Context(), id)
	if c.Query("wait") == "true" && !res.Settled() {
		ctx, cancel := context.WithTimeout(c.Request.Context(), waitTimeout(c))
		defer cancel()
		settled, err := h.sess.Insights.Wait(ctx, id)
		if err == nil {
			res = settled
		}
	}

	status := http.StatusOK
	if !res.Settled() {
		status = http.StatusAccepted
	}
	c.JSON(status, InsightsView(res))
}

// HideInsights closes the detail view; a late fetch no longer reaches it.
func (h *HistoryHandler) HideInsights(c *gin.Context) {
	h.sess.Insights.Hide()
	c.Status(http.StatusNoContent)
}

func waitTimeout(c *gin.Context) time.Duration {
	if s, err := strconv.Atoi(c.Query("timeout")); err == nil && s > 0 && s <= 120 {
		return time.Duration(s) * time.Second
	}
	return 30 * time.Second
}
