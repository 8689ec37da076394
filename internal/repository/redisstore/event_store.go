// Package redisstore holds Redis-backed stores.
package redisstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ticketfight/appeal-service/internal/domain"
)

const eventKeyPrefix = "appeal:event:"

// EventStore implements dedupe.Store with SETNX. Keys never expire: a
// payment processor may redeliver an event days later.
type EventStore struct {
	client *redis.Client
}

// NewEventStore creates a Redis-backed idempotency store.
func NewEventStore(client *redis.Client) *EventStore {
	return &EventStore{client: client}
}

type eventRecord struct {
	Type       string    `json:"type"`
	IntakeID   string    `json:"intake_id"`
	ReceivedAt time.Time `json:"received_at"`
}

func (s *EventStore) InsertIfAbsent(ctx context.Context, ev *domain.PaymentEvent) (bool, error) {
	val, err := json.Marshal(eventRecord{Type: ev.Type, IntakeID: ev.IntakeID, ReceivedAt: ev.ReceivedAt})
	if err != nil {
		return false, fmt.Errorf("encode event: %w", err)
	}
	ok, err := s.client.SetNX(ctx, eventKeyPrefix+ev.EventID, val, 0).Result()
	if err != nil {
		return false, fmt.Errorf("setnx event %s: %w", ev.EventID, err)
	}
	return ok, nil
}

// Forget removes an admission so a redelivery of the event is accepted.
func (s *EventStore) Forget(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, eventKeyPrefix+eventID).Err(); err != nil {
		return fmt.Errorf("forget event %s: %w", eventID, err)
	}
	return nil
}
