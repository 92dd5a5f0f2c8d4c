// Package storage provides the persistence layer for the game server.
// Only finished-run highscores are durable; in-flight sessions are
// not.
package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Highscore is one finished run submitted under a display name.
type Highscore struct {
	ID             string          `json:"id" db:"id"`
	Name           string          `json:"name" db:"name"`
	RecordedAt     time.Time       `json:"recorded_at" db:"recorded_at"`
	DaysAlive      int             `json:"days_alive" db:"days_alive"`
	CurrentBalance decimal.Decimal `json:"current_balance" db:"current_balance"`
	HighestBalance decimal.Decimal `json:"highest_balance" db:"highest_balance"`
	IsDead         bool            `json:"is_dead" db:"is_dead"`
}

// HighscoreRepository defines the interface for highscore persistence.
// The engine uses this interface; the implementation is in infra.
type HighscoreRepository interface {
	// Append adds a finished run to the board.
	Append(ctx context.Context, score Highscore) error

	// TopWinning returns the n longest surviving runs that won,
	// ordered by days alive descending.
	TopWinning(ctx context.Context, n int) ([]Highscore, error)

	// TopLosing returns the n longest surviving runs that died,
	// ordered by days alive descending.
	TopLosing(ctx context.Context, n int) ([]Highscore, error)
}
