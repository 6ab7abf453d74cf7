package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/saludtb/tb-assistant/pkg/logging"
)

const keyPrefix = "conversation:"

// Store persists conversations in Redis with a sliding TTL. Reading a
// conversation refreshes its expiry so active patients are not cut off
// mid-dialogue.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	logger *logging.Logger
}

func NewStore(client *redis.Client, ttl time.Duration, logger *logging.Logger) *Store {
	if client == nil {
		panic("conversation: redis client is required")
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Store{
		client: client,
		ttl:    ttl,
		tracer: otel.Tracer("conversation.store"),
		logger: logger.Named("store"),
	}
}

func conversationKey(userID string) string {
	return keyPrefix + userID
}

// Get loads the conversation for userID and refreshes its TTL. A nil
// conversation with nil error means no session exists (or it expired).
func (s *Store) Get(ctx context.Context, userID string) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "store.get",
		trace.WithAttributes(attribute.String("conversation.user_id", userID)))
	defer span.End()

	raw, err := s.client.Get(ctx, conversationKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("conversation: get %s: %w", userID, err)
	}

	var conv Conversation
	if err := json.Unmarshal([]byte(raw), &conv); err != nil {
		// Corrupt session data is unrecoverable, start fresh.
		s.logger.Warn("dropping corrupt conversation", "user_id", userID, "error", err)
		_ = s.client.Del(ctx, conversationKey(userID)).Err()
		return nil, nil
	}

	if err := s.client.Expire(ctx, conversationKey(userID), s.ttl).Err(); err != nil {
		s.logger.Warn("ttl refresh failed", "user_id", userID, "error", err)
	}
	return &conv, nil
}

// Save writes the conversation and resets its TTL.
func (s *Store) Save(ctx context.Context, conv *Conversation) error {
	if conv == nil {
		return errors.New("conversation: nil conversation")
	}
	ctx, span := s.tracer.Start(ctx, "store.save",
		trace.WithAttributes(attribute.String("conversation.user_id", conv.UserID)))
	defer span.End()

	payload, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("conversation: marshal %s: %w", conv.UserID, err)
	}
	if err := s.client.Set(ctx, conversationKey(conv.UserID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("conversation: save %s: %w", conv.UserID, err)
	}
	return nil
}

// Delete removes the session. It reports whether a session existed.
func (s *Store) Delete(ctx context.Context, userID string) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "store.delete",
		trace.WithAttributes(attribute.String("conversation.user_id", userID)))
	defer span.End()

	n, err := s.client.Del(ctx, conversationKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("conversation: delete %s: %w", userID, err)
	}
	return n > 0, nil
}

// ExtendTTL pushes the session expiry out without touching its contents.
func (s *Store) ExtendTTL(ctx context.Context, userID string) error {
	ok, err := s.client.Expire(ctx, conversationKey(userID), s.ttl).Result()
	if err != nil {
		return fmt.Errorf("conversation: extend ttl %s: %w", userID, err)
	}
	if !ok {
		return fmt.Errorf("conversation: extend ttl %s: session not found", userID)
	}
	return nil
}

// ListActiveIDs scans for user IDs with live sessions.
func (s *Store) ListActiveIDs(ctx context.Context) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "store.list_active")
	defer span.End()

	var ids []string
	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, iter.Val()[len(keyPrefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("conversation: scan sessions: %w", err)
	}
	return ids, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
