package tetris

import (
	"context"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/models"
)

// ScoreStore はスコアを永続化するストレージです。database.ScoreRepository が実装します。
type ScoreStore interface {
	CreateScore(ctx context.Context, score *models.Score) error
}

// repositoryRecorder は ScoreRecord をデータベースのレコードに変換して保存します。
type repositoryRecorder struct {
	store ScoreStore
}

// NewScoreRecorder はストレージを ScoreRecorder として使えるようにします。
func NewScoreRecorder(store ScoreStore) ScoreRecorder {
	return &repositoryRecorder{store: store}
}

func (r *repositoryRecorder) SaveScore(ctx context.Context, rec ScoreRecord) error {
	return r.store.CreateScore(ctx, &models.Score{
		GameID: rec.SessionID,
		UserID: rec.UserID,
		Mode:   string(rec.Mode),
		Score:  rec.Score,
		Level:  rec.Level,
	})
}
