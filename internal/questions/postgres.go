package questions

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"streamquiz/internal/domain"
)

// PostgresLoader loads a question set stored as JSONB.
type PostgresLoader struct {
	pool  *pgxpool.Pool
	setID string
}

func NewPostgresLoader(pool *pgxpool.Pool, setID string) *PostgresLoader {
	return &PostgresLoader{pool: pool, setID: setID}
}

func (l *PostgresLoader) Load(ctx context.Context) ([]domain.Question, error) {
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM question_sets WHERE id=$1`, l.setID).Scan(&raw)
	if err != nil {
		return nil, fmt.Errorf("load question set: %w", err)
	}
	var items []domain.Question
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unmarshal question set: %w", err)
	}
	return validateSet(items)
}
