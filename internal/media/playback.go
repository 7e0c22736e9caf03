package media

import (
	"fmt"
	"sync"
)

// Handle is the live media element rendering the preview.
// Implementations must not call back into Playback synchronously.
type Handle interface {
	Play() error
	Pause()
	SetMuted(muted bool)
}

type PlaybackState struct {
	Attached bool
	Playing  bool
	Muted    bool
}

// Playback mirrors the user's play/mute intent onto the attached handle and
// follows state changes the handle makes on its own, such as end-of-stream.
type Playback struct {
	mu       sync.Mutex
	handle   Handle
	playing  bool
	muted    bool
	onChange func(PlaybackState)
}

func NewPlayback() *Playback {
	return &Playback{}
}

// OnChange registers a callback invoked after every state change.
func (p *Playback) OnChange(fn func(PlaybackState)) {
	p.mu.Lock()
	p.onChange = fn
	p.mu.Unlock()
}

// Attach binds a new handle. Intent starts paused and unmuted.
func (p *Playback) Attach(h Handle) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.handle = h
	p.playing = false
	p.muted = false
	if h != nil {
		h.Pause()
		h.SetMuted(false)
	}
	p.notifyLocked()
}

func (p *Playback) Detach() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil && !p.playing && !p.muted {
		return
	}
	p.handle = nil
	p.playing = false
	p.muted = false
	p.notifyLocked()
}

// TogglePlay flips the play intent. Without a handle it does nothing.
func (p *Playback) TogglePlay() (PlaybackState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return p.stateLocked(), nil
	}

	if p.playing {
		p.handle.Pause()
		p.playing = false
	} else {
		if err := p.handle.Play(); err != nil {
			return p.stateLocked(), fmt.Errorf("start playback: %w", err)
		}
		p.playing = true
	}
	p.notifyLocked()
	return p.stateLocked(), nil
}

// ToggleMute flips the mute intent. Without a handle it does nothing.
func (p *Playback) ToggleMute() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return p.stateLocked()
	}

	p.muted = !p.muted
	p.handle.SetMuted(p.muted)
	p.notifyLocked()
	return p.stateLocked()
}

// Ended records that the handle paused itself at end-of-stream.
func (p *Playback) Ended() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.playing {
		p.playing = false
		p.notifyLocked()
	}
	return p.stateLocked()
}

// Reconcile adopts the state the handle reports. The handle is authoritative.
func (p *Playback) Reconcile(observed PlaybackState) PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.handle == nil {
		return p.stateLocked()
	}
	if p.playing != observed.Playing || p.muted != observed.Muted {
		p.playing = observed.Playing
		p.muted = observed.Muted
		p.notifyLocked()
	}
	return p.stateLocked()
}

func (p *Playback) State() PlaybackState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Playback) stateLocked() PlaybackState {
	return PlaybackState{Attached: p.handle != nil, Playing: p.playing, Muted: p.muted}
}

func (p *Playback) notifyLocked() {
	if p.onChange != nil {
		p.onChange(p.stateLocked())
	}
}
