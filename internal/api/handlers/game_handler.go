package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/services/tetris"
)

// closeWait はポリシー違反で切断する際の Close フレーム書き込み期限です。
const closeWait = time.Second

// upgrader はHTTP接続をWebSocketプロトコルにアップグレードするための設定です。
// Origin の制限は CORS ミドルウェアと同じ許可リストで行います。
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = struct{}{}
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true // ブラウザ以外のクライアント
			}
			if _, ok := allowed["*"]; ok {
				return true
			}
			_, ok := allowed[origin]
			return ok
		},
	}
}

// GameHandler はゲームのWebSocket接続とセッションの参照を処理します。
type GameHandler struct {
	sessionManager *tetris.SessionManager
	tokens         middleware.TokenValidator
	upgrader       websocket.Upgrader
	logger         logrus.FieldLogger
}

// NewGameHandler は新しい GameHandler インスタンスを作成します。
//
// Parameters:
//   sm             : セッションマネージャー
//   tokens         : 接続時のトークン検証に使うバリデーター
//   allowedOrigins : WebSocket 接続を許可する Origin
func NewGameHandler(sm *tetris.SessionManager, tokens middleware.TokenValidator, allowedOrigins []string, logger logrus.FieldLogger) *GameHandler {
	return &GameHandler{
		sessionManager: sm,
		tokens:         tokens,
		upgrader:       newUpgrader(allowedOrigins),
		logger:         logger.WithField("component", "GameHandler"),
	}
}

// WriteErrorResponse はエラーレスポンスをJSON形式で書き込みます。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	WriteJSONResponse(w, statusCode, map[string]string{"error": message})
}

// WriteJSONResponse はJSONレスポンスを書き込みます。
func WriteJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// HandleWebSocket はHTTP接続をWebSocketにアップグレードし、認証とモード選択を確認してから
// セッションマネージャーに接続を引き渡します。
// GET /ws?mode=endless|time_attack&token=<JWT>
func (h *GameHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r)
	}
	modeParam := r.URL.Query().Get("mode")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("failed to upgrade to websocket")
		return // Upgrade がHTTPエラーを返している
	}

	if token == "" {
		h.rejectConnection(conn, "Authentication token required")
		return
	}
	claims, err := h.tokens.Validate(r.Context(), token)
	if err != nil {
		h.logger.WithError(err).Info("websocket authentication failed")
		h.rejectConnection(conn, "Invalid token")
		return
	}
	mode, err := tetris.ParseGameMode(modeParam)
	if err != nil {
		h.rejectConnection(conn, "Invalid game mode")
		return
	}

	if _, err := h.sessionManager.RegisterClient(conn, claims.UserID(), mode); err != nil {
		h.logger.WithError(err).WithField("user_id", claims.UserID()).Error("failed to register client")
		h.rejectConnection(conn, "Failed to start game")
		return
	}
	// 以降は readPump / writePump が接続を管理する
}

// rejectConnection はポリシー違反 (1008) の Close フレームを送って接続を閉じます。
func (h *GameHandler) rejectConnection(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWait)); err != nil {
		h.logger.WithError(err).Debug("failed to write close frame")
	}
	conn.Close()
}

// GetSession は呼び出したユーザー自身の稼働中セッションの状態を返します（デバッグ用）。
// AuthMiddleware の内側で使います。
// GET /api/sessions/{sessionID}
func (h *GameHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		WriteErrorResponse(w, http.StatusUnauthorized, "認証が必要です")
		return
	}
	sessionID := mux.Vars(r)["sessionID"]
	if sessionID == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "セッションIDが必要です")
		return
	}

	snapshot, err := h.sessionManager.GetSnapshotForUser(sessionID, userID)
	if err != nil {
		if errors.Is(err, tetris.ErrSessionNotFound) {
			WriteErrorResponse(w, http.StatusNotFound, "指定されたセッションは見つかりませんでした")
			return
		}
		h.logger.WithError(err).WithField("session_id", sessionID).Error("failed to read session")
		WriteErrorResponse(w, http.StatusInternalServerError, "セッションの取得に失敗しました")
		return
	}

	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"gameState": snapshot,
		"sessions":  h.sessionManager.SessionCount(),
	})
}
