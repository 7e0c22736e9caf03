package handlers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/oceanlens/internal/client"
	"github.com/your-org/oceanlens/internal/detection"
	"github.com/your-org/oceanlens/internal/insights"
	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/models"
	"github.com/your-org/oceanlens/internal/session"
	"github.com/your-org/oceanlens/pkg/dto"
)

const timeLayout = "2006-01-02T15:04:05Z"

func SessionView(s detection.State) *dto.SessionResponse {
	resp := &dto.SessionResponse{
		ID:       s.ID,
		Version:  s.Version,
		Phase:    string(s.Phase),
		InFlight: s.Phase == detection.PhaseSubmitting,
		Asset:    AssetView(s.Asset),
		Metadata: s.Metadata,
		Error:    s.Error,
	}
	if len(s.MetadataErrors) > 0 {
		resp.MetadataErrors = s.MetadataErrors
	}
	if s.Result != nil {
		v := DetectionView(*s.Result)
		resp.Result = &v
	}
	return resp
}

func AssetView(a *media.Asset) *dto.AssetResponse {
	if a == nil {
		return nil
	}
	return &dto.AssetResponse{
		Name:       a.File.Name,
		MediaType:  a.File.MediaType,
		Size:       a.File.Size,
		PreviewURL: a.Preview.URI,
		Valid:      a.Validity == media.Valid,
		Reason:     a.Reason,
	}
}

func DetectionView(rec models.DetectionRecord) dto.DetectionView {
	levels := make(map[models.Trait]string, len(models.Traits))
	for _, t := range models.Traits {
		levels[t] = string(models.LevelFor(rec.Scores.Get(t)))
	}
	v := dto.DetectionView{
		ID:      rec.ID,
		Subject: rec.Subject,
		Results: rec.Scores,
		Levels:  levels,
		OwnerID: rec.OwnerID,
	}
	if !rec.CreatedAt.IsZero() {
		v.CreatedAt = rec.CreatedAt.UTC().Format(timeLayout)
	}
	return v
}

func PlaybackView(s media.PlaybackState) *dto.PlaybackResponse {
	return &dto.PlaybackResponse{Attached: s.Attached, Playing: s.Playing, Muted: s.Muted}
}

func InsightsView(r insights.Result) *dto.InsightsView {
	v := &dto.InsightsView{
		DetectionID: r.DetectionID,
		Status:      string(r.Status),
		Insights:    r.Bundle,
	}
	if r.Err != nil {
		v.Error = client.Message(r.Err)
	}
	return v
}

func historyView(recs []models.DetectionRecord, fetchedAt time.Time) dto.HistoryResponse {
	resp := dto.HistoryResponse{Detections: make([]dto.DetectionView, 0, len(recs)), Total: len(recs)}
	for _, r := range recs {
		resp.Detections = append(resp.Detections, DetectionView(r))
	}
	if !fetchedAt.IsZero() {
		resp.FetchedAt = fetchedAt.UTC().Format(timeLayout)
	}
	return resp
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// writeError maps core errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var (
		verr   *models.ValidationError
		apiErr *client.APIError
		netErr net.Error
	)
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "validation failed", "fields": verr.Fields})
	case errors.Is(err, detection.ErrSubmissionInFlight):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrSelf):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, client.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": client.Message(err)})
	case errors.As(err, &apiErr):
		status := http.StatusBadGateway
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			status = apiErr.Status
		}
		c.JSON(status, gin.H{"error": apiErr.Message})
	case errors.Is(err, context.DeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": client.Message(err)})
	case errors.Is(err, client.ErrInvalidResponse), errors.As(err, &netErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": client.Message(err)})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
