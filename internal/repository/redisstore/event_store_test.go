package redisstore

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketfight/appeal-service/internal/domain"
)

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestEventStore_FirstWriterWins(t *testing.T) {
	mr, client := setup(t)
	store := NewEventStore(client)
	ctx := context.Background()
	ev := &domain.PaymentEvent{EventID: "evt_1", IntakeID: "in_1", ReceivedAt: time.Now()}

	ok, err := store.InsertIfAbsent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(30 * 24 * time.Hour)
	ok, err = store.InsertIfAbsent(ctx, ev)
	require.NoError(t, err)
	assert.False(t, ok, "keys do not expire")
	assert.Equal(t, time.Duration(0), mr.TTL("appeal:event:evt_1"))
}

func TestEventStore_Concurrent(t *testing.T) {
	_, client := setup(t)
	store := NewEventStore(client)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.InsertIfAbsent(context.Background(), &domain.PaymentEvent{EventID: "evt_race"})
			if err == nil && ok {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestEventStore_Unavailable(t *testing.T) {
	mr, client := setup(t)
	mr.Close()

	_, err := NewEventStore(client).InsertIfAbsent(context.Background(), &domain.PaymentEvent{EventID: "evt_1"})
	assert.Error(t, err)
}

func TestEventStore_ForgetReadmits(t *testing.T) {
	mr, client := setup(t)
	store := NewEventStore(client)
	ctx := context.Background()
	ev := &domain.PaymentEvent{EventID: "evt_1"}

	ok, err := store.InsertIfAbsent(ctx, ev)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, store.Forget(ctx, "evt_1"))
	assert.False(t, mr.Exists("appeal:event:evt_1"))

	ok, err = store.InsertIfAbsent(ctx, ev)
	require.NoError(t, err)
	assert.True(t, ok)
}
