package ws

import (
	"errors"

	"github.com/your-org/oceanlens/pkg/dto"
)

// ErrNoViewer means no view is connected to render the preview.
var ErrNoViewer = errors.New("no connected view")

// PlaybackHandle drives the media element of the connected views.
type PlaybackHandle struct {
	hub *Hub
}

func NewPlaybackHandle(h *Hub) *PlaybackHandle {
	return &PlaybackHandle{hub: h}
}

func (p *PlaybackHandle) Play() error {
	if p.hub.ClientCount() == 0 {
		return ErrNoViewer
	}
	p.command("play")
	return nil
}

func (p *PlaybackHandle) Pause() {
	p.command("pause")
}

func (p *PlaybackHandle) SetMuted(muted bool) {
	if muted {
		p.command("mute")
		return
	}
	p.command("unmute")
}

func (p *PlaybackHandle) command(cmd string) {
	p.hub.Broadcast(&dto.WSEvent{Type: dto.EventPlaybackCommand, Command: cmd})
}
