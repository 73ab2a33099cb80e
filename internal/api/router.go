// Package api wires the HTTP routes of the game server.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/api/handlers"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/auth"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/services/tetris"
)

// Dependencies are the services the router hands to the handlers.
type Dependencies struct {
	SessionManager *tetris.SessionManager
	Tokens         *auth.TokenService
	Users          database.UserRepository
	Scores         database.ScoreRepository
	Health         handlers.Pinger
	AllowedOrigins []string
	Logger         logrus.FieldLogger
}

// NewRouter builds the router with CORS and request logging applied to every route.
func NewRouter(deps Dependencies) http.Handler {
	gameHandler := handlers.NewGameHandler(deps.SessionManager, deps.Tokens, deps.AllowedOrigins, deps.Logger)
	authHandler := handlers.NewAuthHandler(deps.Users, deps.Tokens, deps.Logger)
	scoreHandler := handlers.NewScoreHandler(deps.Scores, deps.Logger)
	requireAuth := middleware.AuthMiddleware(deps.Tokens, deps.Logger)

	r := mux.NewRouter()
	r.Use(middleware.LogMiddleware(deps.Logger))

	// 認証不要な公開エンドポイント
	r.HandleFunc("/healthz", handlers.HealthHandler(deps.Health)).Methods(http.MethodGet)
	r.HandleFunc("/ws", gameHandler.HandleWebSocket).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/register", authHandler.Register).Methods(http.MethodPost)
	r.HandleFunc("/api/auth/login", authHandler.Login).Methods(http.MethodPost)
	r.HandleFunc("/api/scores/top", scoreHandler.GetTopScores).Methods(http.MethodGet)

	// 認証が必要なルート
	protected := r.PathPrefix("/api").Subrouter()
	protected.Use(requireAuth)
	protected.HandleFunc("/auth/logout", authHandler.Logout).Methods(http.MethodPost)
	protected.HandleFunc("/scores/personal", scoreHandler.GetPersonalScores).Methods(http.MethodGet)
	protected.HandleFunc("/scores/rank", scoreHandler.GetMyRanking).Methods(http.MethodGet)
	protected.HandleFunc("/sessions/{sessionID}", gameHandler.GetSession).Methods(http.MethodGet)

	return middleware.CORSHandler(deps.AllowedOrigins)(r)
}
