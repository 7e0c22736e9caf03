package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/your-org/oceanlens/internal/media"
)

type PreviewHandler struct {
	previews *media.LocalPreviews
}

func NewPreviewHandler(p *media.LocalPreviews) *PreviewHandler {
	return &PreviewHandler{previews: p}
}

// Serve streams a live preview. Revoked tokens are gone.
func (h *PreviewHandler) Serve(c *gin.Context) {
	f, ok := h.previews.Lookup(c.Param("token"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "preview not found"})
		return
	}

	rc, err := f.Open()
	if err != nil {
		c.JSON(http.StatusGone, gin.H{"error": "preview unavailable"})
		return
	}
	defer rc.Close()

	c.Header("Content-Type", f.MediaType)
	c.Header("Cache-Control", "no-store")
	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(c.Writer, c.Request, f.Name, time.Time{}, rs)
		return
	}
	c.DataFromReader(http.StatusOK, f.Size, f.MediaType, rc, nil)
}
