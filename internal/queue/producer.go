package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/oceanlens/internal/cache"
)

const InvalidationsStreamName = "OCEANLENS_INVALIDATIONS"

// envelope is the wire form of an invalidation. Origin identifies the
// announcing process so it can ignore its own messages.
type envelope struct {
	Origin       string             `json:"origin"`
	SentAt       time.Time          `json:"sent_at"`
	Invalidation cache.Invalidation `json:"invalidation"`
}

func connect(natsURL string) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return nc, js, nil
}

// Producer announces local cache invalidations to other client processes.
type Producer struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
	origin  string
}

func NewProducer(natsURL, subject string) (*Producer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Producer{nc: nc, js: js, subject: subject, origin: uuid.NewString()}, nil
}

// Origin is the id stamped on every message of this process.
func (p *Producer) Origin() string {
	return p.origin
}

// EnsureStream creates the invalidation stream if it doesn't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStream(ctx context.Context) error {
	cfg := jetstream.StreamConfig{
		Name:        InvalidationsStreamName,
		Subjects:    []string{p.subject},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      10 * time.Minute,
		MaxMsgs:     100000,
		Storage:     jetstream.MemoryStorage,
		Discard:     jetstream.DiscardOld,
		Description: "Cache invalidations between detection clients",
	}

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
		cancel()
		if err == nil {
			slog.Info("ensured NATS stream", "name", cfg.Name)
			return nil
		}
		if attempt == maxAttempts {
			return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
		}
		slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// Notify publishes inv. It implements cache.Notifier.
func (p *Producer) Notify(ctx context.Context, inv cache.Invalidation) error {
	payload, err := encodeEnvelope(p.origin, inv)
	if err != nil {
		return err
	}
	if _, err := p.js.Publish(ctx, p.subject, payload); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}

func encodeEnvelope(origin string, inv cache.Invalidation) ([]byte, error) {
	payload, err := json.Marshal(envelope{Origin: origin, SentAt: time.Now().UTC(), Invalidation: inv})
	if err != nil {
		return nil, fmt.Errorf("marshal invalidation: %w", err)
	}
	return payload, nil
}
