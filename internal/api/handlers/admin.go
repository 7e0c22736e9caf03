package handlers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/your-org/oceanlens/internal/models"
	"github.com/your-org/oceanlens/internal/session"
	"github.com/your-org/oceanlens/pkg/dto"
)

const defaultTimelineDays = 30

type AdminHandler struct {
	sess    *session.Context
	archive ReportArchive
}

// NewAdminHandler wires the admin views. archive may be nil.
func NewAdminHandler(sess *session.Context, archive ReportArchive) *AdminHandler {
	return &AdminHandler{sess: sess, archive: archive}
}

func (h *AdminHandler) Statistics(c *gin.Context) {
	stats, err := h.sess.AdminStatistics(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *AdminHandler) Timeline(c *gin.Context) {
	days := defaultTimelineDays
	if raw := c.Query("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 365 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
			return
		}
		days = n
	}

	tl, err := h.sess.AdminTimeline(c.Request.Context(), days)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, tl)
}

func (h *AdminHandler) Detections(c *gin.Context) {
	var q models.DetectionQuery
	q.Page, q.PerPage = pageParams(c)
	if raw := c.Query("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
			return
		}
		q.UserID = id
	}
	q.Search = c.Query("search")

	page, err := h.sess.AdminDetections(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]dto.DetectionView, 0, len(page.Detections))
	for _, rec := range page.Detections {
		items = append(items, DetectionView(rec))
	}
	c.JSON(http.StatusOK, gin.H{"detections": items, "pagination": page.Pagination})
}

// Me reports the signed-in principal as last fetched from the backend.
func (h *AdminHandler) Me(c *gin.Context) {
	u, err := h.sess.RefreshUser(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u, "is_admin": u.Privileged()})
}

// Detection shows any user's detection with its owner and insights.
func (h *AdminHandler) Detection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	d, err := h.sess.AdminDetection(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"detection": DetectionView(d.DetectionRecord),
		"owner":     d.Owner,
		"insights":  d.Insights,
	})
}

func (h *AdminHandler) DeleteDetection(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.sess.AdminDeleteDetection(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	if h.archive != nil {
		if err := h.archive.DeleteReports(c.Request.Context(), id); err != nil {
			slog.Warn("delete archived reports", "detection_id", id, "error", err)
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Detection deleted successfully"})
}

func (h *AdminHandler) Users(c *gin.Context) {
	var q models.UserQuery
	q.Page, q.PerPage = pageParams(c)
	q.Search = c.Query("search")

	page, err := h.sess.AdminUsers(c.Request.Context(), q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *AdminHandler) User(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	u, err := h.sess.AdminUser(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	items := make([]dto.DetectionView, 0, len(u.Detections))
	for _, rec := range u.Detections {
		items = append(items, DetectionView(rec))
	}
	c.JSON(http.StatusOK, gin.H{
		"user":            u.AdminUser,
		"detections":      items,
		"detection_count": u.DetectionCount,
		"average_scores":  u.AverageScores,
	})
}

func (h *AdminHandler) UpdateRole(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req dto.RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}

	u, err := h.sess.UpdateUserRole(c.Request.Context(), id, req.Role)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User role updated to " + string(u.Role), "user": u})
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if err := h.sess.DeleteUser(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}

func pageParams(c *gin.Context) (page, perPage int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ = strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
