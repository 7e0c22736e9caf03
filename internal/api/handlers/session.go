package handlers

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/models"
	"github.com/your-org/oceanlens/internal/session"
	"github.com/your-org/oceanlens/pkg/dto"
)

var (
	errPathDisabled = errors.New("selecting videos by path is disabled")
	errPathOutside  = errors.New("path is outside the media directory")
)

type SessionHandler struct {
	sess     *session.Context
	mediaDir string
}

// NewSessionHandler serves the session. Selection by path is limited to
// files under mediaDir; an empty mediaDir turns it off.
func NewSessionHandler(sess *session.Context, mediaDir string) *SessionHandler {
	return &SessionHandler{sess: sess, mediaDir: mediaDir}
}

func (h *SessionHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, SessionView(h.sess.Coordinator.State()))
}

// Reset abandons the session and releases the selected video.
func (h *SessionHandler) Reset(c *gin.Context) {
	h.sess.Coordinator.Reset()
	c.JSON(http.StatusOK, SessionView(h.sess.Coordinator.State()))
}

// SelectVideo accepts either a multipart "video" upload or a "path" form
// field naming a file in the media directory.
func (h *SessionHandler) SelectVideo(c *gin.Context) {
	var (
		file media.File
		err  error
	)
	if path := c.PostForm("path"); path != "" {
		full, err := confine(h.mediaDir, path)
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
			return
		}
		file, err = media.FileFromPath(full)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		file, err = h.readUpload(c)
		if err != nil {
			writeError(c, err)
			return
		}
	}

	if _, err := h.sess.Coordinator.SelectFile(file); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, SessionView(h.sess.Coordinator.State()))
}

// confine resolves path against dir and rejects anything that escapes it,
// including through symlinks.
func confine(dir, path string) (string, error) {
	if dir == "" {
		return "", errPathDisabled
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", errPathOutside
	}
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}
	full = filepath.Clean(full)
	if r, err := filepath.EvalSymlinks(full); err == nil {
		full = r
	}

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errPathOutside
	}
	return full, nil
}

func (h *SessionHandler) readUpload(c *gin.Context) (media.File, error) {
	fh, err := c.FormFile(media.FieldVideo)
	if err != nil {
		return media.File{}, models.NewValidationError(media.FieldVideo, "Please select a video file")
	}

	// Reject by declared type and size before buffering anything.
	declared := media.NewFile(fh.Filename, fh.Header.Get("Content-Type"), fh.Size, nil)
	if declared.MediaType != "" && declared.MediaType != "application/octet-stream" {
		if err := h.sess.Assets.Check(declared); err != nil {
			return media.File{}, err
		}
	}

	src, err := fh.Open()
	if err != nil {
		return media.File{}, err
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		return media.File{}, err
	}
	mediaType := declared.MediaType
	if mediaType == "application/octet-stream" {
		mediaType = ""
	}
	return media.FileFromBytes(fh.Filename, mediaType, data), nil
}

// Submit validates the form and sends the selected video for analysis.
// With ?wait=true it answers once the backend has; otherwise 202.
func (h *SessionHandler) Submit(c *gin.Context) {
	var req dto.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	md := models.SubjectMetadata{Name: req.Name, Age: req.Age, Gender: models.Gender(req.Gender)}
	asset := h.sess.Coordinator.State().Asset

	if c.Query("wait") != "true" {
		if _, err := h.sess.Coordinator.Start(c.Request.Context(), md, asset); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, SessionView(h.sess.Coordinator.State()))
		return
	}

	rec, err := h.sess.Coordinator.Submit(c.Request.Context(), md, asset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DetectionView(*rec))
}
