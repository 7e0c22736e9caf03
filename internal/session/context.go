package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/your-org/oceanlens/internal/cache"
	"github.com/your-org/oceanlens/internal/detection"
	"github.com/your-org/oceanlens/internal/insights"
	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/models"
)

var (
	// ErrForbidden is returned for admin calls by a non-privileged principal.
	ErrForbidden = errors.New("admin privileges required")
	ErrSelf      = errors.New("cannot modify your own account")
)

// Backend is the subset of the analysis API a session uses.
type Backend interface {
	detection.Submitter
	insights.Fetcher
	History(ctx context.Context) ([]models.DetectionRecord, error)
	Detection(ctx context.Context, id int64) (*models.DetectionRecord, error)
	DeleteDetection(ctx context.Context, id int64) error
	Report(ctx context.Context, id int64) ([]byte, string, error)
	ReportPreview(ctx context.Context, id int64) ([]byte, string, error)
	CurrentUser(ctx context.Context) (*models.User, error)
	AdminStatistics(ctx context.Context) (*models.Statistics, error)
	AdminTimeline(ctx context.Context, days int) (*models.Timeline, error)
	AdminDetections(ctx context.Context, q models.DetectionQuery) (*models.DetectionPage, error)
	AdminDetection(ctx context.Context, id int64) (*models.AdminDetection, error)
	AdminDeleteDetection(ctx context.Context, id int64) error
	AdminUsers(ctx context.Context, q models.UserQuery) (*models.UserPage, error)
	AdminUser(ctx context.Context, id int64) (*models.UserDetail, error)
	UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error)
	DeleteUser(ctx context.Context, id int64) error
}

type Options struct {
	Backend  Backend
	Previews media.PreviewRegistry
	Cache    *cache.Cache
	MaxBytes int64
	// Handle renders the preview; nil leaves playback detached.
	Handle   media.Handle
	Notifier cache.Notifier
	User     *models.User
}

// Context is one user's detection session and everything it owns. It is
// created explicitly and must be closed to release the held preview.
type Context struct {
	Backend     Backend
	Assets      *media.Manager
	Playback    *media.Playback
	Coordinator *detection.Coordinator
	Cache       *cache.Cache
	Sync        *cache.Synchronizer
	Insights    *insights.Loader

	user      atomic.Pointer[models.User]
	log       *slog.Logger
	closeOnce sync.Once
}

func New(opts Options) *Context {
	s := &Context{
		Backend: opts.Backend,
		Cache:   opts.Cache,
		log:     slog.Default().With("component", "session"),
	}
	s.user.Store(opts.User)

	s.Assets = media.NewManager(opts.Previews, opts.MaxBytes)
	s.Playback = media.NewPlayback()
	s.Sync = cache.NewSynchronizer(opts.Cache, s.User)
	if opts.Notifier != nil {
		s.Sync.SetNotifier(opts.Notifier)
	}
	s.Insights = insights.NewLoader(opts.Cache, opts.Backend)
	s.Coordinator = detection.NewCoordinator(s.Assets, opts.Backend, s.Sync)

	s.Sync.OnInvalidate(func(inv cache.Invalidation) {
		if inv.Reason == cache.ReasonDeleted && inv.DetectionID != 0 {
			s.Insights.Evict(inv.DetectionID)
		}
	})

	var attached string
	s.Assets.OnChange(func(a *media.Asset) {
		switch {
		case a == nil:
			attached = ""
			s.Playback.Detach()
		case a.Preview.Token != attached:
			attached = a.Preview.Token
			s.Playback.Attach(opts.Handle)
		}
	})

	return s
}

// User returns the session principal; nil until known.
func (s *Context) User() *models.User {
	return s.user.Load()
}

// RefreshUser loads the principal from the backend.
func (s *Context) RefreshUser(ctx context.Context) (*models.User, error) {
	u, err := s.Backend.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh user: %w", err)
	}
	s.user.Store(u)
	return u, nil
}

func (s *Context) History(ctx context.Context) ([]models.DetectionRecord, error) {
	return cache.Read(ctx, s.Cache, cache.NewKey(cache.KindHistory), s.Backend.History)
}

func (s *Context) Detection(ctx context.Context, id int64) (*models.DetectionRecord, error) {
	key := cache.NewKey(cache.KindDetection, strconv.FormatInt(id, 10))
	return cache.Read(ctx, s.Cache, key, func(ctx context.Context) (*models.DetectionRecord, error) {
		return s.Backend.Detection(ctx, id)
	})
}

// DeleteDetection removes the detection remotely and invalidates every view
// derived from it.
func (s *Context) DeleteDetection(ctx context.Context, id int64) error {
	if err := s.Backend.DeleteDetection(ctx, id); err != nil {
		return err
	}
	s.Sync.OnDetectionDeleted(ctx, id)
	return nil
}

func (s *Context) AdminStatistics(ctx context.Context) (*models.Statistics, error) {
	if !s.User().Privileged() {
		return nil, ErrForbidden
	}
	return cache.Read(ctx, s.Cache, cache.NewKey(cache.KindAdminStatistics), s.Backend.AdminStatistics)
}

func (s *Context) AdminTimeline(ctx context.Context, days int) (*models.Timeline, error) {
	if !s.User().Privileged() {
		return nil, ErrForbidden
	}
	key := cache.NewKey(cache.KindAdminTimeline, strconv.Itoa(days))
	return cache.Read(ctx, s.Cache, key, func(ctx context.Context) (*models.Timeline, error) {
		return s.Backend.AdminTimeline(ctx, days)
	})
}

func (s *Context) AdminDetections(ctx context.Context, q models.DetectionQuery) (*models.DetectionPage, error) {
	if !s.User().Privileged() {
		return nil, ErrForbidden
	}
	key := cache.NewKey(cache.KindAdminDetections,
		strconv.Itoa(q.Page), strconv.Itoa(q.PerPage), strconv.FormatInt(q.UserID, 10), q.Search)
	return cache.Read(ctx, s.Cache, key, func(ctx context.Context) (*models.DetectionPage, error) {
		return s.Backend.AdminDetections(ctx, q)
	})
}

func (s *Context) AdminDetection(ctx context.Context, id int64) (*models.AdminDetection, error) {
	if !s.User().Privileged() {
		return nil, ErrForbidden
	}
	return cache.Read(ctx, s.Cache, cache.AdminDetectionKey(id), func(ctx context.Context) (*models.AdminDetection, error) {
		return s.Backend.AdminDetection(ctx, id)
	})
}

// AdminDeleteDetection removes any user's detection.
func (s *Context) AdminDeleteDetection(ctx context.Context, id int64) error {
	if !s.User().Privileged() {
		return ErrForbidden
	}
	if err := s.Backend.AdminDeleteDetection(ctx, id); err != nil {
		return err
	}
	s.Sync.OnAdminDetectionDeleted(ctx, id)
	return nil
}

func (s *Context) AdminUsers(ctx context.Context, q models.UserQuery) (*models.UserPage, error) {
	if !s.User().Privileged() {
		return nil, ErrForbidden
	}
	key := cache.NewKey(cache.KindAdminUsers, strconv.Itoa(q.Page), strconv.Itoa(q.PerPage), q.Search)
	return cache.Read(ctx, s.Cache, key, func(ctx context.Context) (*models.UserPage, error) {
		return s.Backend.AdminUsers(ctx, q)
	})
}

func (s *Context) AdminUser(ctx context.Context, id int64) (*models.UserDetail, error) {
	if !s.User().Privileged() {
		return nil, ErrForbidden
	}
	return cache.Read(ctx, s.Cache, cache.AdminUserKey(id), func(ctx context.Context) (*models.UserDetail, error) {
		return s.Backend.AdminUser(ctx, id)
	})
}

// UpdateUserRole changes another user's role. The principal's own role is
// never changed from here.
func (s *Context) UpdateUserRole(ctx context.Context, id int64, role models.Role) (*models.User, error) {
	if err := s.checkAdminTarget(id); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, models.NewValidationError("role", "Invalid role. Must be 'admin' or 'user'")
	}
	u, err := s.Backend.UpdateUserRole(ctx, id, role)
	if err != nil {
		return nil, err
	}
	s.Sync.OnUserRoleChanged(ctx, id)
	return u, nil
}

// DeleteUser removes another user together with their detections.
func (s *Context) DeleteUser(ctx context.Context, id int64) error {
	if err := s.checkAdminTarget(id); err != nil {
		return err
	}
	if err := s.Backend.DeleteUser(ctx, id); err != nil {
		return err
	}
	s.Sync.OnUserDeleted(ctx, id)
	return nil
}

func (s *Context) checkAdminTarget(id int64) error {
	u := s.User()
	if !u.Privileged() {
		return ErrForbidden
	}
	if u.ID != 0 && u.ID == id {
		return ErrSelf
	}
	return nil
}

// Close releases everything the session holds. An outstanding submission
// keeps running but its result is no longer applied.
func (s *Context) Close() {
	s.closeOnce.Do(func() {
		s.Insights.Hide()
		s.Coordinator.Reset()
		s.Playback.Detach()
		s.log.Debug("session closed")
	})
}
