package api

import (
	"log/slog"

	"github.com/your-org/oceanlens/internal/api/handlers"
	"github.com/your-org/oceanlens/internal/api/ws"
	"github.com/your-org/oceanlens/internal/cache"
	"github.com/your-org/oceanlens/internal/detection"
	"github.com/your-org/oceanlens/internal/insights"
	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/session"
	"github.com/your-org/oceanlens/pkg/dto"
)

// WireEvents pushes session changes to connected views and routes media
// element events back into the session.
func WireEvents(sess *session.Context, hub *ws.Hub) {
	sess.Coordinator.Subscribe(func(s detection.State) {
		hub.Broadcast(&dto.WSEvent{Type: dto.EventSession, Session: handlers.SessionView(s)})
	})

	sess.Playback.OnChange(func(s media.PlaybackState) {
		hub.Broadcast(&dto.WSEvent{Type: dto.EventPlayback, Playback: handlers.PlaybackView(s)})
	})

	sess.Sync.OnInvalidate(func(inv cache.Invalidation) {
		kinds := make([]string, 0, len(inv.Kinds))
		for _, k := range inv.Kinds {
			kinds = append(kinds, string(k))
		}
		hub.Broadcast(&dto.WSEvent{Type: dto.EventCacheInvalidated, Kinds: kinds})
	})

	sess.Insights.OnSettled(func(r insights.Result) {
		hub.Broadcast(&dto.WSEvent{Type: dto.EventInsights, Insights: handlers.InsightsView(r)})
	})

	hub.OnInbound(func(in dto.WSInbound) {
		if in.Type != "media" {
			return
		}
		switch in.Event {
		case "ended":
			sess.Playback.Ended()
		case "state":
			sess.Playback.Reconcile(media.PlaybackState{Attached: true, Playing: in.Playing, Muted: in.Muted})
		case "error":
			sess.Coordinator.AssetFailed(in.Reason)
		default:
			slog.Debug("unknown media event", "event", in.Event)
		}
	})
}
