package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizlive-service/internal/domain"
)

// ResultStore persists one row per player when a session finishes.
type ResultStore struct {
	pool *pgxpool.Pool
}

func NewResultStore(pool *pgxpool.Pool) *ResultStore {
	return &ResultStore{pool: pool}
}

func (s *ResultStore) ArchiveResult(ctx context.Context, result domain.SessionResult) error {
	for _, p := range result.Players {
		answers, err := json.Marshal(p.Answers)
		if err != nil {
			return fmt.Errorf("marshal answers: %w", err)
		}
		_, err = s.pool.Exec(ctx,
			`INSERT INTO session_results (quiz_id, session_pin, username, final_score, rank, answers, finished_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			result.QuizID, result.SessionPin, p.Username, p.FinalScore, p.Rank, answers, result.FinishedAt)
		if err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return nil
}
