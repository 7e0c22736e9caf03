package media

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	playing bool
	muted   bool
	playErr error
	calls   []string
}

func (h *fakeHandle) Play() error {
	h.calls = append(h.calls, "play")
	if h.playErr != nil {
		return h.playErr
	}
	h.playing = true
	return nil
}

func (h *fakeHandle) Pause() {
	h.calls = append(h.calls, "pause")
	h.playing = false
}

func (h *fakeHandle) SetMuted(m bool) {
	h.calls = append(h.calls, "mute")
	h.muted = m
}

func TestTogglesWithoutHandleAreNoops(t *testing.T) {
	p := NewPlayback()

	st, err := p.TogglePlay()
	require.NoError(t, err)
	assert.Equal(t, PlaybackState{}, st)
	assert.Equal(t, PlaybackState{}, p.ToggleMute())
}

func TestTogglePlayMirrorsHandle(t *testing.T) {
	h := &fakeHandle{}
	p := NewPlayback()
	p.Attach(h)

	st, err := p.TogglePlay()
	require.NoError(t, err)
	assert.True(t, st.Playing)
	assert.True(t, h.playing)

	st, err = p.TogglePlay()
	require.NoError(t, err)
	assert.False(t, st.Playing)
	assert.False(t, h.playing)

	st = p.ToggleMute()
	assert.True(t, st.Muted)
	assert.True(t, h.muted)
}

func TestPlayFailureKeepsIntentPaused(t *testing.T) {
	h := &fakeHandle{playErr: errors.New("autoplay blocked")}
	p := NewPlayback()
	p.Attach(h)

	st, err := p.TogglePlay()
	require.Error(t, err)
	assert.False(t, st.Playing)
}

func TestEndedReconcilesIntent(t *testing.T) {
	h := &fakeHandle{}
	p := NewPlayback()
	p.Attach(h)

	_, err := p.TogglePlay()
	require.NoError(t, err)

	// the element paused itself at end-of-stream
	h.playing = false
	st := p.Ended()
	assert.False(t, st.Playing)

	// next toggle starts playback again instead of issuing a pause
	st, err = p.TogglePlay()
	require.NoError(t, err)
	assert.True(t, st.Playing)
	assert.Equal(t, "play", h.calls[len(h.calls)-1])
}

func TestReconcileAdoptsObservedState(t *testing.T) {
	h := &fakeHandle{}
	p := NewPlayback()
	p.Attach(h)

	var changes int
	p.OnChange(func(PlaybackState) { changes++ })

	st := p.Reconcile(PlaybackState{Playing: true, Muted: true})
	assert.True(t, st.Playing)
	assert.True(t, st.Muted)
	assert.Equal(t, 1, changes)

	p.Reconcile(PlaybackState{Playing: true, Muted: true})
	assert.Equal(t, 1, changes, "unchanged state does not notify")
}

func TestAttachResetsIntent(t *testing.T) {
	p := NewPlayback()
	first := &fakeHandle{}
	p.Attach(first)
	_, _ = p.TogglePlay()
	p.ToggleMute()

	second := &fakeHandle{}
	p.Attach(second)
	assert.Equal(t, PlaybackState{Attached: true}, p.State())

	p.Detach()
	assert.Equal(t, PlaybackState{}, p.State())
}
