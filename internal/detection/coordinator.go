package detection

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/oceanlens/internal/client"
	"github.com/your-org/oceanlens/internal/media"
	"github.com/your-org/oceanlens/internal/models"
	"github.com/your-org/oceanlens/internal/observability"
)

// Submitter issues the remote create-detection call.
type Submitter interface {
	Predict(ctx context.Context, file media.File, subject models.SubjectMetadata) (*models.DetectionRecord, error)
}

// Invalidator is told about every detection the backend created.
// It must only schedule work and return promptly.
type Invalidator interface {
	OnSubmissionSucceeded(ctx context.Context, rec *models.DetectionRecord)
}

const validationBanner = "Please correct the highlighted fields"

// Coordinator drives one detection session: file selection, local
// validation and the single outstanding remote submission.
type Coordinator struct {
	assets      *media.Manager
	submitter   Submitter
	invalidator Invalidator
	log         *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	inflight   *Pending

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

func NewCoordinator(assets *media.Manager, submitter Submitter, invalidator Invalidator) *Coordinator {
	return &Coordinator{
		assets:      assets,
		submitter:   submitter,
		invalidator: invalidator,
		log:         slog.Default().With("component", "detection"),
		state:       State{Phase: PhaseIdle},
		subs:        make(map[int]func(State)),
	}
}

// Pending is a submission whose remote call has been issued.
type Pending struct {
	done chan struct{}
	rec  *models.DetectionRecord
	err  error
}

func (p *Pending) Done() <-chan struct{} { return p.done }

// Wait blocks until the remote call settles or ctx is done. Abandoning the
// wait does not cancel the submission.
func (p *Pending) Wait(ctx context.Context) (*models.DetectionRecord, error) {
	select {
	case <-p.done:
		return p.rec, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Pending) settle(rec *models.DetectionRecord, err error) {
	p.rec, p.err = rec, err
	close(p.done)
}

// State returns the current session snapshot.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every new state. Snapshots may arrive out of
// order under concurrent use; Version orders them.
func (c *Coordinator) Subscribe(fn func(State)) (cancel func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// SelectFile makes f the session's asset. A rejected file leaves the
// session untouched.
func (c *Coordinator) SelectFile(f media.File) (*media.Asset, error) {
	c.mu.Lock()

	switch c.state.Phase {
	case PhaseSubmitting, PhaseValidating:
		c.mu.Unlock()
		return nil, ErrSubmissionInFlight
	}

	asset, err := c.assets.Select(f)
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}

	id := c.state.ID
	if id == "" {
		id = uuid.NewString()
	}
	s, err := c.applyLocked(Event{Kind: AssetSelected, SessionID: id, Asset: asset})
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	c.publish(s)
	return asset, nil
}

// AssetFailed records that the media handle could not render the asset.
func (c *Coordinator) AssetFailed(reason string) {
	c.mu.Lock()
	c.assets.MarkInvalid(reason)
	s, err := c.applyLocked(Event{Kind: AssetUpdated, Asset: c.assets.Current()})
	c.mu.Unlock()
	if err == nil {
		c.publish(s)
	}
}

// Start validates md and asset and, when both pass, issues the remote call in
// the background. It returns ErrSubmissionInFlight without any transition
// while a previous call is outstanding, and *models.ValidationError when
// local validation fails.
func (c *Coordinator) Start(ctx context.Context, md models.SubjectMetadata, asset *media.Asset) (*Pending, error) {
	c.mu.Lock()

	if c.inflight != nil {
		c.mu.Unlock()
		observability.Submissions.WithLabelValues("rejected").Inc()
		return nil, ErrSubmissionInFlight
	}

	validating, err := c.applyLocked(Event{Kind: SubmitRequested, Metadata: md})
	if err != nil {
		c.mu.Unlock()
		observability.Submissions.WithLabelValues("rejected").Inc()
		return nil, err
	}

	fields := md.Validate()
	current := c.assets.Current()
	if msg := assetProblem(asset, current); msg != "" {
		if fields == nil {
			fields = models.FieldErrors{}
		}
		fields[media.FieldVideo] = msg
	}

	if len(fields) > 0 {
		failed, _ := c.applyLocked(Event{Kind: ValidationFailed, Errors: fields, Message: validationBanner})
		c.mu.Unlock()

		observability.Submissions.WithLabelValues("invalid").Inc()
		c.publish(validating, failed)
		return nil, &models.ValidationError{Fields: fields}
	}

	submitting, _ := c.applyLocked(Event{Kind: ValidationPassed})
	p := &Pending{done: make(chan struct{})}
	c.inflight = p
	gen := c.generation
	c.mu.Unlock()

	c.publish(validating, submitting)

	go c.run(context.WithoutCancel(ctx), gen, p, current.File, md)
	return p, nil
}

// Submit is Start followed by Wait.
func (c *Coordinator) Submit(ctx context.Context, md models.SubjectMetadata, asset *media.Asset) (*models.DetectionRecord, error) {
	p, err := c.Start(ctx, md, asset)
	if err != nil {
		return nil, err
	}
	return p.Wait(ctx)
}

// Reset returns the session to Idle and releases any held asset. An
// outstanding remote call keeps running; its result is not applied.
func (c *Coordinator) Reset() {
	c.mu.Lock()
	c.generation++
	c.assets.Release()
	s, _ := c.applyLocked(Event{Kind: ResetRequested})
	c.mu.Unlock()

	c.publish(s)
}

func (c *Coordinator) run(ctx context.Context, gen uint64, p *Pending, file media.File, md models.SubjectMetadata) {
	start := time.Now()
	rec, err := c.submitter.Predict(ctx, file, md)
	observability.SubmissionDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		if verr := rec.Scores.Validate(); verr != nil {
			err = fmt.Errorf("%w: %v", client.ErrInvalidResponse, verr)
		}
	}
	if err != nil {
		c.fail(gen, p, err)
		return
	}
	c.succeed(ctx, gen, p, rec)
}

func (c *Coordinator) succeed(ctx context.Context, gen uint64, p *Pending, rec *models.DetectionRecord) {
	c.mu.Lock()
	c.inflight = nil

	if c.generation != gen {
		c.mu.Unlock()
		// The backend created the record even though nobody waits for it.
		c.invalidate(ctx, rec)
		observability.Submissions.WithLabelValues("superseded").Inc()
		c.log.Info("submission superseded by reset", "detection_id", rec.ID)
		p.settle(rec, nil)
		return
	}

	succeeded, _ := c.applyLocked(Event{Kind: RemoteSucceeded, Record: rec})
	c.invalidate(ctx, rec)
	c.assets.Release()
	released, _ := c.applyLocked(Event{Kind: AssetUpdated})
	c.mu.Unlock()

	observability.Submissions.WithLabelValues("succeeded").Inc()
	c.log.Info("detection created", "detection_id", rec.ID, "session_id", succeeded.ID)

	c.publish(succeeded, released)
	p.settle(rec, nil)
}

func (c *Coordinator) fail(gen uint64, p *Pending, err error) {
	c.mu.Lock()
	c.inflight = nil

	var states []State
	if c.generation == gen {
		s, _ := c.applyLocked(Event{Kind: RemoteFailed, Message: client.Message(err)})
		states = append(states, s)
	}
	c.mu.Unlock()

	observability.Submissions.WithLabelValues("failed").Inc()
	c.log.Warn("submission failed", "error", err, "retryable", client.Retryable(err))

	c.publish(states...)
	p.settle(nil, err)
}

func (c *Coordinator) invalidate(ctx context.Context, rec *models.DetectionRecord) {
	if c.invalidator != nil {
		c.invalidator.OnSubmissionSucceeded(ctx, rec)
	}
}

func (c *Coordinator) applyLocked(e Event) (State, error) {
	next, err := Next(c.state, e)
	if err != nil {
		return c.state, err
	}
	c.state = next
	return next, nil
}

func (c *Coordinator) publish(states ...State) {
	if len(states) == 0 {
		return
	}
	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, s := range states {
		for _, fn := range fns {
			fn(s)
		}
	}
}

// assetProblem checks that the submitted asset is the one currently held and
// still usable.
func assetProblem(submitted, current *media.Asset) string {
	if submitted == nil || current == nil || submitted.Preview.Token != current.Preview.Token {
		return "Please select a video file"
	}
	if current.Validity != media.Valid {
		if current.Reason != "" {
			return current.Reason
		}
		return "The selected video cannot be played"
	}
	return ""
}
