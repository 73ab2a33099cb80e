package handlers

import (
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/database"
)

const (
	defaultScoreLimit = 10
	maxScoreLimit     = 100
)

// ScoreHandler はランキングとスコア履歴のハンドラーを管理する構造体です。
type ScoreHandler struct {
	scores database.ScoreRepository
	logger logrus.FieldLogger
}

// NewScoreHandler は新しいScoreHandlerインスタンスを作成します。
func NewScoreHandler(scores database.ScoreRepository, logger logrus.FieldLogger) *ScoreHandler {
	return &ScoreHandler{
		scores: scores,
		logger: logger.WithField("component", "ScoreHandler"),
	}
}

// parseLimit は limit クエリを読み取ります。範囲外や不正な値はデフォルトになります。
func parseLimit(r *http.Request) int {
	limit := defaultScoreLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= maxScoreLimit {
			limit = n
		}
	}
	return limit
}

// GetTopScores は上位ランキングを取得するハンドラーです。
// GET /api/scores/top?limit=10
func (h *ScoreHandler) GetTopScores(w http.ResponseWriter, r *http.Request) {
	results, err := h.scores.GetTopScores(r.Context(), parseLimit(r))
	if err != nil {
		h.logger.WithError(err).Error("failed to load top scores")
		WriteErrorResponse(w, http.StatusInternalServerError, "ランキング取得に失敗しました")
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"scores":  results,
	})
}

// GetPersonalScores は認証済みユーザーのスコア履歴を返します。
// GET /api/scores/personal?limit=10
func (h *ScoreHandler) GetPersonalScores(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		WriteErrorResponse(w, http.StatusUnauthorized, "認証が必要です")
		return
	}

	results, err := h.scores.GetUserScores(r.Context(), userID, parseLimit(r))
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("failed to load user scores")
		WriteErrorResponse(w, http.StatusInternalServerError, "スコア取得に失敗しました")
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"scores":  results,
	})
}

// GetMyRanking は認証済みユーザーの最高スコアと順位を返します。
// GET /api/scores/rank
func (h *ScoreHandler) GetMyRanking(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		WriteErrorResponse(w, http.StatusUnauthorized, "認証が必要です")
		return
	}

	ranking, err := h.scores.GetUserRanking(r.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("failed to load user ranking")
		WriteErrorResponse(w, http.StatusInternalServerError, "ランキング取得に失敗しました")
		return
	}
	if ranking == nil {
		WriteErrorResponse(w, http.StatusNotFound, "スコアがまだありません")
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"ranking": ranking,
	})
}
