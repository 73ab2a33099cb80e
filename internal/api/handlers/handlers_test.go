package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/api/middleware"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/auth"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/database"
	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/models"
)

// fakeUserRepository はメモリ上の UserRepository です。
type fakeUserRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[string]*models.User)}
}

func (f *fakeUserRepository) CreateUser(_ context.Context, username, email, passwordHash string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[username]; ok {
		return nil, database.ErrUserExists
	}
	u := &models.User{ID: "id-" + username, Username: username, Email: email, PasswordHash: passwordHash, CreatedAt: time.Now()}
	f.users[username] = u
	return u, nil
}

func (f *fakeUserRepository) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[username]
	if !ok {
		return nil, database.ErrUserNotFound
	}
	return u, nil
}

// fakeScoreRepository は固定の結果を返す ScoreRepository です。
type fakeScoreRepository struct {
	top       []models.ScoreResponse
	byUser    map[string][]models.ScoreResponse
	err       error
	lastLimit int
}

func (f *fakeScoreRepository) CreateScore(context.Context, *models.Score) error { return f.err }

func (f *fakeScoreRepository) GetTopScores(_ context.Context, limit int) ([]models.ScoreResponse, error) {
	f.lastLimit = limit
	return f.top, f.err
}

func (f *fakeScoreRepository) GetUserScores(_ context.Context, userID string, limit int) ([]models.ScoreResponse, error) {
	f.lastLimit = limit
	return f.byUser[userID], f.err
}

func (f *fakeScoreRepository) GetUserRanking(_ context.Context, userID string) (*models.ScoreResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	scores := f.byUser[userID]
	if len(scores) == 0 {
		return nil, nil
	}
	best := scores[0]
	best.Rank = 3
	return &best, nil
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	tokens, err := auth.NewTokenService("handler-secret", time.Hour, nil)
	require.NoError(t, err)
	return tokens
}

func withUser(r *http.Request, userID string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), middleware.UserIDKey{}, userID))
}

func TestRegisterAndLogin(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tokens := newTestTokens(t)
	h := NewAuthHandler(newFakeUserRepository(), tokens, logger)

	body := `{"username":"alice","email":"alice@example.com","password":"hunter22"}`
	rr := httptest.NewRecorder()
	h.Register(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"token"`)
	assert.Contains(t, rr.Body.String(), `"message"`)

	// 同じユーザー名は 400
	rr = httptest.NewRecorder()
	h.Register(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = httptest.NewRecorder()
	h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"alice","password":"hunter22"}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"token"`)
	assert.NotContains(t, rr.Body.String(), "hunter22")
	assert.NotContains(t, rr.Body.String(), "password")

	for _, login := range []string{
		`{"username":"alice","password":"wrong-pass"}`,
		`{"username":"bob","password":"hunter22"}`,
	} {
		rr = httptest.NewRecorder()
		h.Login(rr, httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(login)))
		assert.Equal(t, http.StatusUnauthorized, rr.Code, login)
	}
}

func TestRegisterValidation(t *testing.T) {
	logger, _ := test.NewNullLogger()
	h := NewAuthHandler(newFakeUserRepository(), newTestTokens(t), logger)

	for _, body := range []string{
		`not json`,
		`{"username":"","email":"a@example.com","password":"hunter22"}`,
		`{"username":"alice","email":"","password":"hunter22"}`,
		`{"username":"alice","email":"a@example.com","password":"123"}`,
	} {
		rr := httptest.NewRecorder()
		h.Register(rr, httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rr.Code, body)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	logger, _ := test.NewNullLogger()
	tokens := newTestTokens(t)
	h := NewAuthHandler(newFakeUserRepository(), tokens, logger)
	protected := middleware.AuthMiddleware(tokens, logger)(http.HandlerFunc(h.Logout))

	token, _, err := tokens.Issue("user-1", "alice")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	_, err = tokens.Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrTokenRevoked)

	// 失効済みトークンでの再ログアウトはミドルウェアで拒否される
	rr = httptest.NewRecorder()
	protected.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestScoreHandlers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	repo := &fakeScoreRepository{
		top: []models.ScoreResponse{{Score: 900, Username: "alice", Rank: 1}},
		byUser: map[string][]models.ScoreResponse{
			"user-1": {{Score: 400, UserID: "user-1", Rank: 1}},
		},
	}
	h := NewScoreHandler(repo, logger)

	rr := httptest.NewRecorder()
	h.GetTopScores(rr, httptest.NewRequest(http.MethodGet, "/api/scores/top", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"alice"`)
	assert.Equal(t, defaultScoreLimit, repo.lastLimit)

	rr = httptest.NewRecorder()
	h.GetTopScores(rr, httptest.NewRequest(http.MethodGet, "/api/scores/top?limit=500", nil))
	assert.Equal(t, defaultScoreLimit, repo.lastLimit)

	rr = httptest.NewRecorder()
	h.GetPersonalScores(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/scores/personal?limit=5", nil), "user-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `400`)
	assert.Equal(t, 5, repo.lastLimit)

	rr = httptest.NewRecorder()
	h.GetPersonalScores(rr, httptest.NewRequest(http.MethodGet, "/api/scores/personal", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	h.GetMyRanking(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/scores/rank", nil), "user-1"))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"rank":3`)

	rr = httptest.NewRecorder()
	h.GetMyRanking(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/scores/rank", nil), "nobody"))
	assert.Equal(t, http.StatusNotFound, rr.Code)

	repo.err = errors.New("db down")
	rr = httptest.NewRecorder()
	h.GetTopScores(rr, httptest.NewRequest(http.MethodGet, "/api/scores/top", nil))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	HealthHandler(fakePinger{})(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())

	rr = httptest.NewRecorder()
	HealthHandler(fakePinger{err: errors.New("down")})(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
