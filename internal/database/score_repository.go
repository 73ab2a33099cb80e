package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/models"
)

// ScoreRepository はスコア関連のデータベース操作を定義するインターフェースです。
type ScoreRepository interface {
	// CreateScore は1ゲーム分のスコアを保存します。同じ GameID が既にあれば ErrDuplicateScore を返します
	CreateScore(ctx context.Context, score *models.Score) error

	// GetTopScores は上位N件のスコアをユーザー名付きで取得します（ランキング用）
	GetTopScores(ctx context.Context, limit int) ([]models.ScoreResponse, error)

	// GetUserScores は指定したユーザーのスコアを高い順にN件取得します
	GetUserScores(ctx context.Context, userID string, limit int) ([]models.ScoreResponse, error)

	// GetUserRanking は指定したユーザーの最高スコアと現在のランキング順位を取得します
	GetUserRanking(ctx context.Context, userID string) (*models.ScoreResponse, error)
}

// scoreRepositoryImpl はScoreRepositoryインターフェースの実装です。
type scoreRepositoryImpl struct {
	db *sql.DB
}

// NewScoreRepository はScoreRepositoryの新しいインスタンスを作成します。
func NewScoreRepository(db *sql.DB) ScoreRepository {
	return &scoreRepositoryImpl{db: db}
}

// CreateScore は新しいスコアレコードを作成します。
func (r *scoreRepositoryImpl) CreateScore(ctx context.Context, score *models.Score) error {
	row := r.db.QueryRowContext(ctx,
		`INSERT INTO scores (game_id, user_id, mode, score, level) VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		score.GameID, score.UserID, score.Mode, score.Score, score.Level,
	)
	if err := row.Scan(&score.ID, &score.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateScore, score.GameID)
		}
		return fmt.Errorf("スコアレコードの作成に失敗しました: %w", err)
	}
	return nil
}

// GetTopScores は上位N件のスコアを取得します（ランキング用）。
func (r *scoreRepositoryImpl) GetTopScores(ctx context.Context, limit int) ([]models.ScoreResponse, error) {
	query := `
		SELECT
			s.id, s.game_id, s.user_id, u.username, s.mode, s.score, s.level, s.created_at,
			ROW_NUMBER() OVER (ORDER BY s.score DESC, s.created_at ASC) AS rank
		FROM scores s
		JOIN users u ON u.id = s.user_id
		ORDER BY s.score DESC, s.created_at ASC
		LIMIT $1
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ランキング取得に失敗しました: %w", err)
	}
	defer rows.Close()

	results := []models.ScoreResponse{}
	for rows.Next() {
		var s models.ScoreResponse
		if err := rows.Scan(&s.ID, &s.GameID, &s.UserID, &s.Username, &s.Mode, &s.Score, &s.Level, &s.CreatedAt, &s.Rank); err != nil {
			return nil, fmt.Errorf("スコアデータのスキャンに失敗しました: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ランキング取得中にエラーが発生しました: %w", err)
	}
	return results, nil
}

// GetUserScores は指定したユーザーのスコアを高い順に取得します。
func (r *scoreRepositoryImpl) GetUserScores(ctx context.Context, userID string, limit int) ([]models.ScoreResponse, error) {
	query := `
		SELECT
			id, game_id, user_id, mode, score, level, created_at,
			ROW_NUMBER() OVER (ORDER BY score DESC, created_at ASC) AS rank
		FROM scores
		WHERE user_id = $1
		ORDER BY score DESC, created_at ASC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ユーザーのスコア取得に失敗しました: %w", err)
	}
	defer rows.Close()

	results := []models.ScoreResponse{}
	for rows.Next() {
		var s models.ScoreResponse
		if err := rows.Scan(&s.ID, &s.GameID, &s.UserID, &s.Mode, &s.Score, &s.Level, &s.CreatedAt, &s.Rank); err != nil {
			return nil, fmt.Errorf("スコアデータのスキャンに失敗しました: %w", err)
		}
		results = append(results, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザーのスコア取得中にエラーが発生しました: %w", err)
	}
	return results, nil
}

// GetUserRanking は指定したユーザーの最高スコアでの順位を計算します。スコアがなければ nil を返します。
func (r *scoreRepositoryImpl) GetUserRanking(ctx context.Context, userID string) (*models.ScoreResponse, error) {
	best, err := r.GetUserScores(ctx, userID, 1)
	if err != nil {
		return nil, err
	}
	if len(best) == 0 {
		return nil, nil // ユーザーのスコアが存在しない
	}
	result := best[0]

	query := `
		SELECT COUNT(*) + 1 AS rank
		FROM scores
		WHERE score > $1 OR (score = $1 AND created_at < $2)
	`
	if err := r.db.QueryRowContext(ctx, query, result.Score, result.CreatedAt).Scan(&result.Rank); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			result.Rank = 1
			return &result, nil
		}
		return nil, fmt.Errorf("ユーザーランキング順位の計算に失敗しました: %w", err)
	}
	return &result, nil
}
