package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/your-org/oceanlens/internal/models"
)

// DefaultMaxBytes is the upload ceiling used when none is configured.
const DefaultMaxBytes int64 = 100 * 1024 * 1024

// FieldVideo is the form field validation errors for the file are reported under.
const FieldVideo = "video"

type Validity string

const (
	Valid   Validity = "valid"
	Invalid Validity = "invalid"
)

// Asset is the selected file plus its preview reference.
type Asset struct {
	File     File
	Preview  Preview
	Validity Validity
	Reason   string
}

// Manager owns the single live asset of a session and guarantees its
// preview reference is released exactly once.
type Manager struct {
	previews PreviewRegistry
	maxBytes int64
	log      *slog.Logger

	mu       sync.Mutex
	current  *Asset
	onChange func(*Asset)
}

func NewManager(previews PreviewRegistry, maxBytes int64) *Manager {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Manager{
		previews: previews,
		maxBytes: maxBytes,
		log:      slog.Default().With("component", "media"),
	}
}

// OnChange registers a callback invoked with the new asset (nil after release).
// The callback runs while the manager is locked and must not call back into it.
func (m *Manager) OnChange(fn func(*Asset)) {
	m.mu.Lock()
	m.onChange = fn
	m.mu.Unlock()
}

// Check validates a file against the type and size rules without side effects.
func (m *Manager) Check(f File) error {
	if !f.IsVideo() {
		return models.NewValidationError(FieldVideo, "Please select a valid video file")
	}
	if f.Size > m.maxBytes {
		return models.NewValidationError(FieldVideo,
			fmt.Sprintf("File size must be less than %dMB", m.maxBytes/(1024*1024)))
	}
	return nil
}

// Select replaces the held asset with f. A rejected file leaves the current
// asset untouched and creates no preview.
func (m *Manager) Select(f File) (*Asset, error) {
	if err := m.Check(f); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.releaseLocked()

	preview, err := m.previews.Create(f)
	if err != nil {
		m.notifyLocked()
		return nil, fmt.Errorf("create preview: %w", err)
	}

	m.current = &Asset{File: f, Preview: preview, Validity: Valid}
	m.log.Debug("asset selected", "name", f.Name, "size", f.Size, "media_type", f.MediaType)
	m.notifyLocked()

	return m.snapshotLocked(), nil
}

// Release drops the held asset. Calling it with nothing held is a no-op.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.releaseLocked()
	m.notifyLocked()
}

// MarkInvalid flags the held asset as unusable, e.g. when the media handle
// fails to decode it. Submission is then blocked until a new file is selected.
func (m *Manager) MarkInvalid(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		return
	}
	m.current.Validity = Invalid
	m.current.Reason = reason
	m.notifyLocked()
}

// Current returns a copy of the held asset, or nil.
func (m *Manager) Current() *Asset {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) releaseLocked() {
	if m.current == nil {
		return
	}
	prev := m.current
	m.current = nil

	if err := m.previews.Revoke(prev.Preview); err != nil {
		level := slog.LevelWarn
		if errors.Is(err, ErrPreviewReleased) {
			level = slog.LevelError
		}
		m.log.Log(context.Background(), level, "release preview", "token", prev.Preview.Token, "error", err)
	}
}

func (m *Manager) snapshotLocked() *Asset {
	if m.current == nil {
		return nil
	}
	a := *m.current
	return &a
}

func (m *Manager) notifyLocked() {
	if m.onChange != nil {
		m.onChange(m.snapshotLocked())
	}
}
