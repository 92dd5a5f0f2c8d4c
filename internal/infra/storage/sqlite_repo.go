package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
)

// SQLiteHighscoreRepository implements HighscoreRepository for SQLite.
// Balances are stored as decimal strings so no precision is lost.
type SQLiteHighscoreRepository struct {
	db *sql.DB
}

func NewSQLiteHighscoreRepository(db *sql.DB) *SQLiteHighscoreRepository {
	return &SQLiteHighscoreRepository{db: db}
}

func (r *SQLiteHighscoreRepository) Append(ctx context.Context, score Highscore) error {
	query := `
		INSERT INTO highscores (id, name, recorded_at, days_alive, current_balance, highest_balance, is_dead)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		score.ID, score.Name, score.RecordedAt, score.DaysAlive,
		score.CurrentBalance.String(), score.HighestBalance.String(), score.IsDead,
	)
	if err != nil {
		return fmt.Errorf("failed to append highscore: %w", err)
	}
	return nil
}

func (r *SQLiteHighscoreRepository) TopWinning(ctx context.Context, n int) ([]Highscore, error) {
	return r.top(ctx, false, n)
}

func (r *SQLiteHighscoreRepository) TopLosing(ctx context.Context, n int) ([]Highscore, error) {
	return r.top(ctx, true, n)
}

func (r *SQLiteHighscoreRepository) top(ctx context.Context, dead bool, n int) ([]Highscore, error) {
	query := `
		SELECT id, name, recorded_at, days_alive, current_balance, highest_balance, is_dead
		FROM highscores WHERE is_dead = ? ORDER BY days_alive DESC LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, dead, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []Highscore
	for rows.Next() {
		var s Highscore
		var current, highest string
		if err := rows.Scan(&s.ID, &s.Name, &s.RecordedAt, &s.DaysAlive, &current, &highest, &s.IsDead); err != nil {
			return nil, err
		}
		if s.CurrentBalance, err = decimal.NewFromString(current); err != nil {
			return nil, fmt.Errorf("corrupt current balance for %s: %w", s.ID, err)
		}
		if s.HighestBalance, err = decimal.NewFromString(highest); err != nil {
			return nil, fmt.Errorf("corrupt highest balance for %s: %w", s.ID, err)
		}
		// Boards show two decimal places.
		s.CurrentBalance = s.CurrentBalance.Round(2)
		s.HighestBalance = s.HighestBalance.Round(2)
		scores = append(scores, s)
	}
	return scores, rows.Err()
}
