package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/auth"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/database"
)

const minPasswordLength = 6

// AuthHandler はユーザー登録・ログイン・ログアウトを処理します。
type AuthHandler struct {
	users  database.UserRepository
	tokens *auth.TokenService
	logger logrus.FieldLogger
}

// NewAuthHandler は新しいAuthHandlerインスタンスを作成します。
func NewAuthHandler(users database.UserRepository, tokens *auth.TokenService, logger logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		users:  users,
		tokens: tokens,
		logger: logger.WithField("component", "AuthHandler"),
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register は新しいユーザーを作成し、トークンを発行します。
// POST /api/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "無効なリクエストボディです")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)

	// バリデーション
	if req.Username == "" || req.Email == "" {
		WriteErrorResponse(w, http.StatusBadRequest, "usernameとemailは必須です")
		return
	}
	if len(req.Password) < minPasswordLength {
		WriteErrorResponse(w, http.StatusBadRequest, "パスワードは6文字以上である必要があります")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.logger.WithError(err).Error("failed to hash password")
		WriteErrorResponse(w, http.StatusInternalServerError, "ユーザー登録に失敗しました")
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Email, hash)
	if err != nil {
		if errors.Is(err, database.ErrUserExists) {
			WriteErrorResponse(w, http.StatusBadRequest, "このユーザー名は既に使われています")
			return
		}
		h.logger.WithError(err).Error("failed to create user")
		WriteErrorResponse(w, http.StatusInternalServerError, "ユーザー登録に失敗しました")
		return
	}

	token, _, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue token")
		WriteErrorResponse(w, http.StatusInternalServerError, "トークンの発行に失敗しました")
		return
	}

	h.logger.WithField("user_id", user.ID).Info("user registered")
	WriteJSONResponse(w, http.StatusCreated, map[string]string{
		"message": "ユーザー登録が完了しました",
		"token":   token,
	})
}

// Login はユーザー名とパスワードを検証し、トークンを発行します。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteErrorResponse(w, http.StatusBadRequest, "無効なリクエストボディです")
		return
	}

	user, err := h.users.GetUserByUsername(r.Context(), strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, database.ErrUserNotFound) {
			WriteErrorResponse(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
			return
		}
		h.logger.WithError(err).Error("failed to load user")
		WriteErrorResponse(w, http.StatusInternalServerError, "ログインに失敗しました")
		return
	}
	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		WriteErrorResponse(w, http.StatusUnauthorized, auth.ErrInvalidCredentials.Error())
		return
	}

	token, expiresAt, err := h.tokens.Issue(user.ID, user.Username)
	if err != nil {
		h.logger.WithError(err).Error("failed to issue token")
		WriteErrorResponse(w, http.StatusInternalServerError, "トークンの発行に失敗しました")
		return
	}

	WriteJSONResponse(w, http.StatusOK, map[string]interface{}{
		"token":     token,
		"expiresAt": expiresAt,
		"user":      user,
	})
}

// Logout は現在のトークンを失効させます。AuthMiddleware の内側で使います。
// POST /api/auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.GetTokenFromContext(r.Context())
	if !ok {
		WriteErrorResponse(w, http.StatusUnauthorized, "認証が必要です")
		return
	}
	if err := h.tokens.Revoke(r.Context(), token); err != nil {
		h.logger.WithError(err).Error("failed to revoke token")
		WriteErrorResponse(w, http.StatusInternalServerError, "ログアウトに失敗しました")
		return
	}
	WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "ログアウトしました"})
}
