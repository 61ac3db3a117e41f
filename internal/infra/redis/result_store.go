package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizlive-service/internal/domain"
)

// ResultStore archives finished-session results as a Redis list per quiz:
// RPUSH quiz:{quizID}:results {json}. Entries expire with the configured TTL
// (0 keeps them forever).
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{client: client, ttl: ttl}
}

func (s *ResultStore) ArchiveResult(ctx context.Context, result domain.SessionResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	key := s.resultsKey(result.QuizID)
	if err := s.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("push result: %w", err)
	}
	if s.ttl > 0 {
		_ = s.client.Expire(ctx, key, s.ttl).Err()
	}
	return nil
}

func (s *ResultStore) resultsKey(quizID string) string {
	return "quiz:" + quizID + ":results"
}
