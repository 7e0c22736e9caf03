package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/oceanlens/internal/cache"
)

// ApplyFunc applies an invalidation announced by another process.
type ApplyFunc func(ctx context.Context, inv cache.Invalidation)

type Consumer struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	origin string
}

// NewConsumer skips messages stamped with origin, normally the Producer's.
func NewConsumer(natsURL, origin string) (*Consumer, error) {
	nc, js, err := connect(natsURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{nc: nc, js: js, origin: origin}, nil
}

// ConsumeInvalidations delivers every new invalidation to apply until ctx is
// done. Each process reads the whole stream through its own ordered consumer.
func (c *Consumer) ConsumeInvalidations(ctx context.Context, apply ApplyFunc) error {
	stream, err := c.js.Stream(ctx, InvalidationsStreamName)
	if err != nil {
		return fmt.Errorf("get stream %s: %w", InvalidationsStreamName, err)
	}

	cons, err := stream.OrderedConsumer(ctx, jetstream.OrderedConsumerConfig{
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		return fmt.Errorf("create ordered consumer: %w", err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			batch, err := cons.Fetch(10, jetstream.FetchMaxWait(5*time.Second))
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Warn("fetch invalidations error", "error", err)
				time.Sleep(time.Second)
				continue
			}

			for msg := range batch.Messages() {
				if err := c.handle(ctx, msg.Data(), apply); err != nil {
					slog.Error("process invalidation error", "error", err, "subject", msg.Subject())
				}
			}
		}
	}()

	slog.Info("invalidation consumer started", "stream", InvalidationsStreamName)
	return nil
}

func (c *Consumer) handle(ctx context.Context, data []byte, apply ApplyFunc) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("unmarshal invalidation: %w", err)
	}
	if env.Origin == c.origin {
		return nil
	}
	apply(ctx, env.Invalidation)
	return nil
}

func (c *Consumer) Close() {
	c.nc.Close()
}
