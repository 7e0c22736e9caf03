package queue

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/oceanlens/internal/cache"
)

func TestConsumerSkipsOwnOrigin(t *testing.T) {
	inv := cache.Invalidation{
		Kinds:       []cache.Kind{cache.KindHistory, cache.KindAdminStatistics},
		Reason:      cache.ReasonCreated,
		DetectionID: 101,
		OwnerID:     7,
	}

	var got []cache.Invalidation
	apply := func(_ context.Context, inv cache.Invalidation) { got = append(got, inv) }

	own, err := encodeEnvelope("self", inv)
	require.NoError(t, err)
	other, err := encodeEnvelope("peer", inv)
	require.NoError(t, err)

	c := &Consumer{origin: "self"}
	require.NoError(t, c.handle(context.Background(), own, apply))
	require.NoError(t, c.handle(context.Background(), other, apply))

	require.Len(t, got, 1)
	assert.Equal(t, inv, got[0])
}

func TestConsumerRejectsGarbage(t *testing.T) {
	c := &Consumer{origin: "self"}
	err := c.handle(context.Background(), []byte("{"), func(context.Context, cache.Invalidation) {
		t.Fatal("apply must not run")
	})
	assert.Error(t, err)
}
