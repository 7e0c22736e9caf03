package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/oceanlens/internal/media"
)

type PlaybackHandler struct {
	playback *media.Playback
}

func NewPlaybackHandler(p *media.Playback) *PlaybackHandler {
	return &PlaybackHandler{playback: p}
}

func (h *PlaybackHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, PlaybackView(h.playback.State()))
}

func (h *PlaybackHandler) TogglePlay(c *gin.Context) {
	state, err := h.playback.TogglePlay()
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "playback": PlaybackView(state)})
		return
	}
	c.JSON(http.StatusOK, PlaybackView(state))
}

func (h *PlaybackHandler) ToggleMute(c *gin.Context) {
	c.JSON(http.StatusOK, PlaybackView(h.playback.ToggleMute()))
}

// Ended reconciles after the media element stopped at end-of-stream.
func (h *PlaybackHandler) Ended(c *gin.Context) {
	c.JSON(http.StatusOK, PlaybackView(h.playback.Ended()))
}
