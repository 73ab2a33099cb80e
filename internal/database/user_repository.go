package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/models"
)

// UserRepository はユーザー関連のデータベース操作を定義するインターフェースです。
type UserRepository interface {
	// CreateUser は新しいユーザーを作成します。ユーザー名が既に存在すれば ErrUserExists を返します
	CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error)

	// GetUserByUsername はユーザー名でユーザーを取得します。見つからなければ ErrUserNotFound を返します
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
}

type userRepositoryImpl struct {
	db *sql.DB
}

// NewUserRepository はUserRepositoryの新しいインスタンスを作成します。
func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepositoryImpl{db: db}
}

func (r *userRepositoryImpl) CreateUser(ctx context.Context, username, email, passwordHash string) (*models.User, error) {
	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
	}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, username, email, password_hash) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		user.ID, user.Username, user.Email, user.PasswordHash,
	).Scan(&user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrUserExists, username)
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return user, nil
}

func (r *userRepositoryImpl) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.db.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, created_at FROM users WHERE username = $1`,
		username,
	).Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	return &user, nil
}
