package media

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/your-org/oceanlens/internal/observability"
)

var (
	// ErrPreviewReleased signals a double release. It is a programming defect.
	ErrPreviewReleased = errors.New("preview reference already released")
	ErrUnknownPreview  = errors.New("unknown preview reference")
)

// Preview is a locally-scoped, revocable reference used to render a file
// without uploading it.
type Preview struct {
	Token string
	URI   string
}

// PreviewRegistry issues and revokes preview references.
type PreviewRegistry interface {
	Create(f File) (Preview, error)
	Revoke(p Preview) error
}

type PreviewStats struct {
	Created  int
	Released int
	Live     int
}

// LocalPreviews serves previews from this process under <baseURL>/preview/<token>.
type LocalPreviews struct {
	baseURL string

	mu       sync.Mutex
	live     map[string]File
	revoked  map[string]struct{}
	created  int
	released int
}

func NewLocalPreviews(baseURL string) *LocalPreviews {
	return &LocalPreviews{
		baseURL: baseURL,
		live:    make(map[string]File),
		revoked: make(map[string]struct{}),
	}
}

func (p *LocalPreviews) Create(f File) (Preview, error) {
	token := uuid.NewString()

	p.mu.Lock()
	p.live[token] = f
	p.created++
	p.mu.Unlock()

	observability.LivePreviews.Inc()
	return Preview{Token: token, URI: p.baseURL + "/preview/" + token}, nil
}

func (p *LocalPreviews) Revoke(pr Preview) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.revoked[pr.Token]; ok {
		return ErrPreviewReleased
	}
	if _, ok := p.live[pr.Token]; !ok {
		return ErrUnknownPreview
	}

	delete(p.live, pr.Token)
	p.revoked[pr.Token] = struct{}{}
	p.released++

	observability.LivePreviews.Dec()
	observability.PreviewsReleased.Inc()
	return nil
}

// Lookup resolves a live preview token to its file.
func (p *LocalPreviews) Lookup(token string) (File, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.live[token]
	return f, ok
}

func (p *LocalPreviews) Stats() PreviewStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PreviewStats{Created: p.created, Released: p.released, Live: len(p.live)}
}
