// Package repository is the Postgres persistence layer. It records
// games, moves and standings as they happen and stores user accounts;
// live game state is never read back mid-game — the game manager is
// authoritative for that.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/gridplay/tictac-server-go/internal/config"
)

// DB wraps the pgx connection pool.
type DB struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewDB opens a connection pool and verifies connectivity.
func NewDB(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{pool: pool, logger: logger}, nil
}

// Close shuts down the pool.
func (db *DB) Close() {
	db.pool.Close()
}

// Stats exposes pool statistics for startup logging.
func (db *DB) Stats() *pgxpool.Stat {
	return db.pool.Stat()
}

// Migrate creates the schema if it does not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(20) UNIQUE NOT NULL,
			password_hash VARCHAR(255) NOT NULL,
			email VARCHAR(100),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			last_login TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS games (
			id UUID PRIMARY KEY,
			player1_id BIGINT NOT NULL REFERENCES users(id),
			player2_id BIGINT REFERENCES users(id),
			bot_difficulty VARCHAR(20),
			status VARCHAR(20) NOT NULL,
			board VARCHAR(9) NOT NULL,
			winner_id BIGINT REFERENCES users(id),
			bot_won BOOLEAN NOT NULL DEFAULT FALSE,
			reason VARCHAR(20),
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS moves (
			id BIGSERIAL PRIMARY KEY,
			game_id UUID NOT NULL REFERENCES games(id) ON DELETE CASCADE,
			player_id BIGINT REFERENCES users(id),
			position SMALLINT NOT NULL,
			mark CHAR(1) NOT NULL,
			board_after VARCHAR(9) NOT NULL,
			move_number SMALLINT NOT NULL,
			played_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS standings (
			user_id BIGINT PRIMARY KEY REFERENCES users(id),
			total_games INT NOT NULL DEFAULT 0,
			wins INT NOT NULL DEFAULT 0,
			losses INT NOT NULL DEFAULT 0,
			draws INT NOT NULL DEFAULT 0,
			abandoned INT NOT NULL DEFAULT 0,
			win_streak INT NOT NULL DEFAULT 0,
			best_win_streak INT NOT NULL DEFAULT 0,
			ranking_points INT NOT NULL DEFAULT 1000
		)`,
		`CREATE INDEX IF NOT EXISTS idx_games_status ON games(status)`,
		`CREATE INDEX IF NOT EXISTS idx_moves_game ON moves(game_id)`,
		`CREATE INDEX IF NOT EXISTS idx_standings_points ON standings(ranking_points DESC)`,
	}

	for _, stmt := range statements {
		if _, err := db.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	db.logger.Info("database schema ready")
	return nil
}
