package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/oceanlens/internal/api/handlers"
	"github.com/your-org/oceanlens/internal/api/ws"
	"github.com/your-org/oceanlens/internal/auth"
	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/session"
)

type RouterConfig struct {
	APIKey   string
	Session  *session.Context
	Previews *media.LocalPreviews
	Hub      *ws.Hub
	// Archive is optional; without it reports are always fetched from the backend.
	Archive handlers.ReportArchive
	Checks  map[string]handlers.Pinger
	// MaxUploadBytes bounds multipart bodies kept in memory.
	MaxUploadBytes int64
	// MediaDir confines selection by path; empty disables it.
	MediaDir string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())
	if cfg.MaxUploadBytes > 0 {
		r.MaxMultipartMemory = cfg.MaxUploadBytes
	}

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Preview tokens are unguessable and revoked on release.
	previewH := handlers.NewPreviewHandler(cfg.Previews)
	r.GET("/preview/:token", previewH.Serve)

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	v1.GET("/ws", cfg.Hub.HandleWS)

	// Session
	sessionH := handlers.NewSessionHandler(cfg.Session, cfg.MediaDir)
	v1.GET("/session", sessionH.Get)
	v1.POST("/session/video", sessionH.SelectVideo)
	v1.POST("/session/submit", sessionH.Submit)
	v1.DELETE("/session", sessionH.Reset)

	// Playback
	playbackH := handlers.NewPlaybackHandler(cfg.Session.Playback)
	v1.GET("/playback", playbackH.Get)
	v1.POST("/playback/play", playbackH.TogglePlay)
	v1.POST("/playback/mute", playbackH.ToggleMute)
	v1.POST("/playback/ended", playbackH.Ended)

	// History & insights
	historyH := handlers.NewHistoryHandler(cfg.Session, cfg.Archive)
	v1.GET("/history", historyH.List)
	v1.GET("/history/:id", historyH.Get)
	v1.DELETE("/history/:id", historyH.Delete)
	v1.GET("/history/:id/insights", historyH.Insights)
	v1.DELETE("/insights/view", historyH.HideInsights)

	reportH := handlers.NewReportHandler(cfg.Session, cfg.Archive)
	v1.GET("/history/:id/report", reportH.Download)

	// Admin
	adminH := handlers.NewAdminHandler(cfg.Session, cfg.Archive)
	v1.GET("/me", adminH.Me)
	v1.GET("/admin/statistics", adminH.Statistics)
	v1.GET("/admin/statistics/timeline", adminH.Timeline)
	v1.GET("/admin/detections", adminH.Detections)
	v1.GET("/admin/detections/:id", adminH.Detection)
	v1.DELETE("/admin/detections/:id", adminH.DeleteDetection)
	v1.GET("/admin/users", adminH.Users)
	v1.GET("/admin/users/:id", adminH.User)
	v1.PUT("/admin/users/:id/role", adminH.UpdateRole)
	v1.DELETE("/admin/users/:id", adminH.DeleteUser)

	return r
}
