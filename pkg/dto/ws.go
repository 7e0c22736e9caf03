package dto

const (
	EventSession          = "session"
	EventPlayback         = "playback"
	EventPlaybackCommand  = "playback_command"
	EventCacheInvalidated = "cache_invalidated"
	EventInsights         = "insights"
)

// WSEvent is a WebSocket message pushed to the rendering layer.
type WSEvent struct {
	Type     string            `json:"type"`
	Session  *SessionResponse  `json:"session,omitempty"`
	Playback *PlaybackResponse `json:"playback,omitempty"`
	Command  string            `json:"command,omitempty"` // play, pause, mute, unmute
	Kinds    []string          `json:"kinds,omitempty"`
	Insights *InsightsView     `json:"insights,omitempty"`
}

// WSInbound is a media element event reported by the rendering layer.
// Type is "media"; Event is one of ended, state, error.
type WSInbound struct {
	Type    string `json:"type"`
	Event   string `json:"event"`
	Playing bool   `json:"playing"`
	Muted   bool   `json:"muted"`
	Reason  string `json:"reason,omitempty"`
}
