package cache

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/your-org/oceanlens/internal/models"
)

const (
	ReasonCreated     = "created"
	ReasonDeleted     = "deleted"
	ReasonRoleChanged = "role_changed"
	ReasonUserDeleted = "user_deleted"

	OriginLocal  = "local"
	OriginRemote = "remote"

	announceTimeout = 5 * time.Second
)

// Invalidation describes a server-side change to the detection collection
// or the user directory.
type Invalidation struct {
	Kinds       []Kind `json:"kinds"`
	Reason      string `json:"reason"`
	DetectionID int64  `json:"detection_id,omitempty"`
	OwnerID     int64  `json:"owner_id,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
}

// Notifier announces invalidations to other client processes.
type Notifier interface {
	Notify(ctx context.Context, inv Invalidation) error
}

// Synchronizer turns detection mutations into cache invalidations for the
// session's principal.
type Synchronizer struct {
	cache     *Cache
	principal func() *models.User
	notifier  Notifier
	listeners []func(Invalidation)
	log       *slog.Logger
	pending   sync.WaitGroup
}

func NewSynchronizer(c *Cache, principal func() *models.User) *Synchronizer {
	return &Synchronizer{
		cache:     c,
		principal: principal,
		log:       slog.Default().With("component", "cache_sync"),
	}
}

// SetNotifier enables fan-out. Call before the session starts serving.
func (s *Synchronizer) SetNotifier(n Notifier) {
	s.notifier = n
}

// OnInvalidate registers fn for every invalidation applied locally.
func (s *Synchronizer) OnInvalidate(fn func(Invalidation)) {
	s.listeners = append(s.listeners, fn)
}

// OnSubmissionSucceeded invalidates the views derived from the user's
// detections. Insights are left alone; they load when a detail view opens.
func (s *Synchronizer) OnSubmissionSucceeded(ctx context.Context, rec *models.DetectionRecord) {
	s.publish(ctx, Invalidation{
		Kinds:       append([]Kind{KindHistory}, AdminKinds...),
		Reason:      ReasonCreated,
		DetectionID: rec.ID,
		OwnerID:     rec.OwnerID,
	})
}

// OnDetectionDeleted also drops the per-detection entries of id.
func (s *Synchronizer) OnDetectionDeleted(ctx context.Context, id int64) {
	var owner int64
	if u := s.principal(); u != nil {
		owner = u.ID
	}
	s.publish(ctx, Invalidation{
		Kinds:       append([]Kind{KindHistory}, AdminKinds...),
		Reason:      ReasonDeleted,
		DetectionID: id,
		OwnerID:     owner,
	})
}

// OnAdminDetectionDeleted is OnDetectionDeleted for a detection of any
// owner. The owner is unknown, so every session's history goes stale.
func (s *Synchronizer) OnAdminDetectionDeleted(ctx context.Context, id int64) {
	s.publish(ctx, Invalidation{
		Kinds:       append([]Kind{KindHistory}, AdminKinds...),
		Reason:      ReasonDeleted,
		DetectionID: id,
	})
}

// OnUserRoleChanged invalidates the user directory and the statistics that
// count admins.
func (s *Synchronizer) OnUserRoleChanged(ctx context.Context, userID int64) {
	s.publish(ctx, Invalidation{
		Kinds:  []Kind{KindAdminUsers, KindAdminStatistics},
		Reason: ReasonRoleChanged,
		UserID: userID,
	})
}

// OnUserDeleted covers the user's detections too; the backend removes them
// with the account.
func (s *Synchronizer) OnUserDeleted(ctx context.Context, userID int64) {
	s.publish(ctx, Invalidation{
		Kinds:   append([]Kind{KindHistory}, AdminKinds...),
		Reason:  ReasonUserDeleted,
		OwnerID: userID,
		UserID:  userID,
	})
}

// Apply handles an invalidation announced by another process.
func (s *Synchronizer) Apply(ctx context.Context, inv Invalidation) {
	s.apply(ctx, inv, OriginRemote)
}

// Wait blocks until pending announcements have been sent or timed out.
func (s *Synchronizer) Wait() {
	s.pending.Wait()
}

func (s *Synchronizer) publish(ctx context.Context, inv Invalidation) {
	s.apply(ctx, inv, OriginLocal)
	s.announce(ctx, inv)
}

func (s *Synchronizer) apply(ctx context.Context, inv Invalidation, origin string) {
	kinds := s.relevant(inv)

	for _, key := range s.removed(inv) {
		if err := s.cache.Discard(ctx, key); err != nil {
			s.log.Warn("discard entry failed", "key", key.String(), "error", err)
		}
	}

	if len(kinds) == 0 {
		return
	}
	s.cache.Invalidate(ctx, origin, kinds...)
	s.log.Debug("cache invalidated", "kinds", kinds, "reason", inv.Reason, "origin", origin, "detection_id", inv.DetectionID)

	applied := inv
	applied.Kinds = kinds
	for _, fn := range s.listeners {
		fn(applied)
	}
}

// removed lists the entries that no longer exist after inv.
func (s *Synchronizer) removed(inv Invalidation) []Key {
	var keys []Key
	if inv.Reason == ReasonDeleted && inv.DetectionID != 0 {
		id := strconv.FormatInt(inv.DetectionID, 10)
		keys = append(keys, NewKey(KindInsights, id), NewKey(KindDetection, id), AdminDetectionKey(inv.DetectionID))
	}
	if inv.Reason == ReasonUserDeleted && inv.UserID != 0 {
		keys = append(keys, AdminUserKey(inv.UserID))
	}
	return keys
}

// relevant filters inv down to the kinds this session can observe: its own
// history, and the admin views only for a privileged principal.
func (s *Synchronizer) relevant(inv Invalidation) []Kind {
	u := s.principal()
	var kinds []Kind
	for _, k := range inv.Kinds {
		switch k {
		case KindAdminStatistics, KindAdminDetections, KindAdminTimeline, KindAdminUsers:
			if !u.Privileged() {
				continue
			}
		case KindHistory, KindDetection:
			if inv.OwnerID != 0 && u != nil && u.ID != 0 && inv.OwnerID != u.ID {
				continue
			}
		case KindInsights:
			continue
		}
		kinds = append(kinds, k)
	}
	return kinds
}

// announce sends inv in the background. Callers may hold locks that a slow
// broker must not extend.
func (s *Synchronizer) announce(ctx context.Context, inv Invalidation) {
	if s.notifier == nil {
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), announceTimeout)
		defer cancel()
		if err := s.notifier.Notify(ctx, inv); err != nil {
			s.log.Warn("announce invalidation failed", "reason", inv.Reason, "error", err)
		}
	}()
}
