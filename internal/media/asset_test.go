package media

import (
	"errors"
	"io"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/oceanlens/internal/models"
)

// recordingPreviews fails the test on any double or unknown release.
type recordingPreviews struct {
	t *testing.T

	mu       sync.Mutex
	inner    *LocalPreviews
	failures []error
}

func newRecordingPreviews(t *testing.T) *recordingPreviews {
	return &recordingPreviews{t: t, inner: NewLocalPreviews("http://local")}
}

func (r *recordingPreviews) Create(f File) (Preview, error) { return r.inner.Create(f) }

func (r *recordingPreviews) Revoke(p Preview) error {
	err := r.inner.Revoke(p)
	if err != nil {
		r.mu.Lock()
		r.failures = append(r.failures, err)
		r.mu.Unlock()
		r.t.Errorf("revoke %s: %v", p.Token, err)
	}
	return err
}

func videoFile(name string, size int) File {
	data := make([]byte, size)
	return FileFromBytes(name, "video/mp4", data)
}

func TestSelectRejectsNonVideo(t *testing.T) {
	previews := newRecordingPreviews(t)
	m := NewManager(previews, 0)

	asset, err := m.Select(FileFromBytes("notes.txt", "text/plain", []byte("hello world")))
	require.Error(t, err)
	assert.Nil(t, asset)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, FieldVideo)
	assert.Equal(t, 0, previews.inner.Stats().Created)
	assert.Nil(t, m.Current())
}

func TestSelectRejectsOversizedVideo(t *testing.T) {
	previews := newRecordingPreviews(t)
	m := NewManager(previews, DefaultMaxBytes)

	big := NewFile("big.mp4", "video/mp4", 150*1024*1024, nil)
	_, err := m.Select(big)
	require.Error(t, err)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields[FieldVideo], "100MB")
	assert.Equal(t, 0, previews.inner.Stats().Created)
}

func TestSelectReplacesAndReleasesPrevious(t *testing.T) {
	previews := newRecordingPreviews(t)
	m := NewManager(previews, 0)

	first, err := m.Select(videoFile("a.mp4", 16))
	require.NoError(t, err)
	second, err := m.Select(videoFile("b.mp4", 16))
	require.NoError(t, err)

	assert.NotEqual(t, first.Preview.Token, second.Preview.Token)
	_, live := previews.inner.Lookup(first.Preview.Token)
	assert.False(t, live, "replaced preview must be released")
	_, live = previews.inner.Lookup(second.Preview.Token)
	assert.True(t, live)

	stats := previews.inner.Stats()
	assert.Equal(t, 2, stats.Created)
	assert.Equal(t, 1, stats.Released)
	assert.Equal(t, "b.mp4", m.Current().File.Name)
}

func TestRejectedSelectKeepsCurrentAsset(t *testing.T) {
	previews := newRecordingPreviews(t)
	m := NewManager(previews, 0)

	held, err := m.Select(videoFile("keep.mp4", 8))
	require.NoError(t, err)

	_, err = m.Select(FileFromBytes("x.txt", "text/plain", []byte("x")))
	require.Error(t, err)

	cur := m.Current()
	require.NotNil(t, cur)
	assert.Equal(t, held.Preview.Token, cur.Preview.Token)
	assert.Equal(t, 0, previews.inner.Stats().Released)
}

func TestReleaseIsIdempotent(t *testing.T) {
	previews := newRecordingPreviews(t)
	m := NewManager(previews, 0)

	m.Release()
	_, err := m.Select(videoFile("a.mp4", 4))
	require.NoError(t, err)

	m.Release()
	m.Release()

	stats := previews.inner.Stats()
	assert.Equal(t, 1, stats.Created)
	assert.Equal(t, 1, stats.Released)
	assert.Equal(t, 0, stats.Live)
	assert.Nil(t, m.Current())
}

func TestPreviewAccountingOverRandomSequences(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for run := 0; run < 50; run++ {
		previews := newRecordingPreviews(t)
		m := NewManager(previews, 1024)

		for step := 0; step < 40; step++ {
			switch rng.Intn(4) {
			case 0:
				_, _ = m.Select(videoFile("ok.mp4", 64))
			case 1:
				_, _ = m.Select(videoFile("huge.mp4", 2048))
			case 2:
				_, _ = m.Select(FileFromBytes("t.txt", "text/plain", []byte("t")))
			case 3:
				m.Release()
			}

			stats := previews.inner.Stats()
			require.LessOrEqual(t, stats.Released, stats.Created)
			require.LessOrEqual(t, stats.Created-stats.Released, 1)
			held := 0
			if m.Current() != nil {
				held = 1
			}
			require.Equal(t, held, stats.Live)
		}

		m.Release()
		stats := previews.inner.Stats()
		assert.Equal(t, stats.Created, stats.Released)
		assert.Empty(t, previews.failures)
	}
}

func TestMarkInvalidAndOnChange(t *testing.T) {
	m := NewManager(NewLocalPreviews("http://local"), 0)

	var seen []*Asset
	m.OnChange(func(a *Asset) { seen = append(seen, a) })

	_, err := m.Select(videoFile("a.mp4", 4))
	require.NoError(t, err)
	m.MarkInvalid("decode failed")

	cur := m.Current()
	require.NotNil(t, cur)
	assert.Equal(t, Invalid, cur.Validity)
	assert.Equal(t, "decode failed", cur.Reason)

	m.Release()
	require.Len(t, seen, 3)
	assert.Nil(t, seen[2])
}

func TestDoubleRevokeIsReported(t *testing.T) {
	previews := NewLocalPreviews("http://local")
	p, err := previews.Create(videoFile("a.mp4", 1))
	require.NoError(t, err)

	require.NoError(t, previews.Revoke(p))
	assert.ErrorIs(t, previews.Revoke(p), ErrPreviewReleased)
	assert.ErrorIs(t, previews.Revoke(Preview{Token: "nope"}), ErrUnknownPreview)
}

func TestFileMediaTypes(t *testing.T) {
	f := NewFile("clip.mp4", "Video/MP4; codecs=avc1", 3, nil)
	assert.Equal(t, "video/mp4", f.MediaType)
	assert.True(t, f.IsVideo())

	sniffed := FileFromBytes("notes", "", []byte("plain words here"))
	assert.Equal(t, "text/plain", sniffed.MediaType)
	assert.False(t, sniffed.IsVideo())

	rc, err := sniffed.Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "plain"))

	_, err = f.Open()
	assert.Error(t, err)
}
