package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQLドライバー
	"github.com/sirupsen/logrus"
)

// uniqueViolation is the PostgreSQL error code for unique constraint violations.
const uniqueViolation = "23505"

var (
	ErrDuplicateScore = errors.New("score already recorded for this game")
	ErrUserExists     = errors.New("username already exists")
	ErrUserNotFound   = errors.New("user not found")
)

// schema creates the tables used by the game server. Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id            UUID PRIMARY KEY,
		username      TEXT NOT NULL UNIQUE,
		email         TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS scores (
		id         BIGSERIAL PRIMARY KEY,
		game_id    TEXT NOT NULL UNIQUE,
		user_id    UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		mode       TEXT NOT NULL,
		score      INTEGER NOT NULL,
		level      INTEGER NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS scores_score_idx ON scores (score DESC, created_at ASC)`,
	`CREATE INDEX IF NOT EXISTS scores_user_idx ON scores (user_id, score DESC)`,
}

// DatabaseService provides methods for interacting with the database.
type DatabaseService struct {
	DB     *sql.DB
	logger logrus.FieldLogger
}

// NewDatabaseService creates a new instance of DatabaseService and establishes a database connection.
func NewDatabaseService(ctx context.Context, databaseURL string, logger logrus.FieldLogger) (*DatabaseService, error) {
	logger = logger.WithField("component", "DatabaseService")
	logger.WithField("url_prefix", databaseURL[:min(len(databaseURL), 20)]).Info("connecting to database")

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("データベースへの接続オブジェクト作成に失敗しました: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &DatabaseService{DB: db, logger: logger}
	if err := s.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("connected to database")
	return s, nil
}

// Ping verifies the connection is alive.
func (s *DatabaseService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("データベースのPingに失敗しました。接続情報やネットワークを確認してください: %w", err)
	}
	return nil
}

// Version returns the server version string. Used by the check-db command.
func (s *DatabaseService) Version(ctx context.Context) (string, error) {
	var version string
	if err := s.DB.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return "", fmt.Errorf("SELECT version() クエリの実行に失敗しました: %w", err)
	}
	return version, nil
}

// Migrate creates the tables if they do not exist yet.
func (s *DatabaseService) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("スキーマの作成に失敗しました: %w", err)
		}
	}
	s.logger.Info("database schema is up to date")
	return nil
}

// Close closes the underlying connection pool.
func (s *DatabaseService) Close() error {
	return s.DB.Close()
}

// isUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
