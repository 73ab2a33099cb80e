package tetris

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ScoreRecord はゲーム終了時に永続化層へ一度だけ引き渡されるスコアです。
type ScoreRecord struct {
	SessionID string
	UserID    string
	Mode      GameMode
	Score     int
	Level     int
}

// ScoreRecorder はスコアを保存する外部の永続化層です。
// 同じ SessionID の二重登録は拒否しなければなりません。
type ScoreRecorder interface {
	SaveScore(ctx context.Context, rec ScoreRecord) error
}

// SessionManager は稼働中のセッションをセッションIDで管理します。
// main で1つだけ作成され、セッションの登録・削除は CreateSession / CloseSession を通してのみ行われます。
type SessionManager struct {
	sessions map[string]*Session // sessionID -> Session
	clients  map[*Client]struct{}
	mu       sync.RWMutex

	recorder    ScoreRecorder
	cfg         SessionConfig
	logger      logrus.FieldLogger
	closing     bool           // Shutdown 開始後は新しいセッションを作らない
	running     sync.WaitGroup // セッションのゴルーチン
	submissions sync.WaitGroup
}

// NewSessionManager は新しい SessionManager を作成します。
//
// Parameters:
//   recorder : ゲーム終了時のスコア保存先 (nil の場合は保存しない)
//   cfg      : タイマー周期とルールの設定
//   logger   : ロガー
func NewSessionManager(recorder ScoreRecorder, cfg SessionConfig, logger logrus.FieldLogger) *SessionManager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SessionManager{
		sessions: make(map[string]*Session),
		clients:  make(map[*Client]struct{}),
		recorder: recorder,
		cfg:      cfg.withDefaults(),
		logger:   logger.WithField("component", "SessionManager"),
	}
}

func (sm *SessionManager) newRand() *rand.Rand {
	if sm.cfg.NewRand != nil {
		return sm.cfg.NewRand()
	}
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// newGame はモードに応じたエンジンを作成します。
func (sm *SessionManager) newGame(mode GameMode) (Game, *TimeAttackGame, error) {
	switch mode {
	case ModeEndless:
		return NewPlayerGameState(WithRand(sm.newRand())), nil, nil
	case ModeTimeAttack:
		g := NewTimeAttackGame(sm.cfg.TimeAttackLimit, sm.cfg.TimeAttackTarget, WithRand(sm.newRand()))
		return g, g, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// CreateSession は新しいセッションを作成して登録し、タイマーを持つセッションのゴルーチンを開始します。
// 最初のフレームとして GAME_INITIALIZED が sink に送られます。
//
// Returns:
//   *Session: 作成されたセッション
//   error: 未知のモードの場合は ErrUnknownMode
func (sm *SessionManager) CreateSession(userID string, mode GameMode, sink FrameSink) (*Session, error) {
	game, timed, err := sm.newGame(mode)
	if err != nil {
		return nil, err
	}
	game.Start()

	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	session := &Session{
		ID:       id,
		UserID:   userID,
		Mode:     mode,
		game:     game,
		timed:    timed,
		sink:     sink,
		cfg:      sm.cfg,
		requests: make(chan sessionRequest),
		cancel:   cancel,
		done:     make(chan struct{}),
		initial:  game.Snapshot(),
		logger: sm.logger.WithFields(logrus.Fields{
			"session_id": id,
			"user_id":    userID,
			"mode":       mode,
		}),
	}
	session.onGameOver = sm.submitScore

	sm.mu.Lock()
	if sm.closing {
		sm.mu.Unlock()
		cancel()
		return nil, ErrShuttingDown
	}
	sm.sessions[id] = session
	sm.running.Add(1)
	sm.mu.Unlock()

	go func() {
		defer sm.running.Done()
		session.run(ctx)
	}()

	session.logger.Info("session created")
	return session, nil
}

// Dispatch はコマンドをセッションに適用します。
// NEW_GAME の場合は既存のセッションを閉じて同じ接続先に新しいセッションを作ります。
//
// Returns:
//   string: コマンド適用後のセッションID（NEW_GAME 以外は引数と同じ）
//   error: ErrSessionNotFound / ErrUnknownCommand / ErrGameOver
func (sm *SessionManager) Dispatch(sessionID string, cmd CommandType) (string, error) {
	session, ok := sm.getSession(sessionID)
	if !ok {
		return sessionID, ErrSessionNotFound
	}
	if !cmd.Valid() {
		return sessionID, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	if cmd == CmdNewGame {
		sm.CloseSession(session.ID)
		next, err := sm.CreateSession(session.UserID, session.Mode, session.sink)
		if err != nil {
			return sessionID, err
		}
		return next.ID, nil
	}

	if _, err := session.do(cmd); err != nil {
		return sessionID, err
	}
	return sessionID, nil
}

// CloseSession はセッションのゴルーチンを止め（すべてのタイマーが停止します）、登録を解除します。
// 戻った後、このセッションからフレームが送られることはありません。存在しないIDに対しては何もしません。
func (sm *SessionManager) CloseSession(sessionID string) {
	sm.mu.Lock()
	session, ok := sm.sessions[sessionID]
	if ok {
		delete(sm.sessions, sessionID)
	}
	sm.mu.Unlock()

	if !ok {
		return
	}

	session.cancel()
	<-session.done
	session.logger.Info("session closed")
}

// GetSnapshot はセッションの現在の状態を返します。
func (sm *SessionManager) GetSnapshot(sessionID string) (GameStateSnapshot, error) {
	session, ok := sm.getSession(sessionID)
	if !ok {
		return GameStateSnapshot{}, ErrSessionNotFound
	}
	return session.do("")
}

// GetSnapshotForUser は userID が所有するセッションの状態だけを返します。
// 他のユーザーのセッションは存在しないものとして ErrSessionNotFound を返します。
func (sm *SessionManager) GetSnapshotForUser(sessionID, userID string) (GameStateSnapshot, error) {
	session, ok := sm.getSession(sessionID)
	if !ok || session.UserID != userID {
		return GameStateSnapshot{}, ErrSessionNotFound
	}
	return session.do("")
}

// SessionCount は稼働中のセッション数を返します。
func (sm *SessionManager) SessionCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

func (sm *SessionManager) getSession(sessionID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	session, ok := sm.sessions[sessionID]
	return session, ok
}

// submitScore はスコアを非同期で永続化層に渡します。失敗してもログに残すだけで再試行はしません。
func (sm *SessionManager) submitScore(rec ScoreRecord) {
	logger := sm.logger.WithFields(logrus.Fields{
		"session_id": rec.SessionID,
		"user_id":    rec.UserID,
		"score":      rec.Score,
		"level":      rec.Level,
	})
	if sm.recorder == nil {
		logger.Debug("no score recorder configured, skipping submission")
		return
	}

	sm.submissions.Add(1)
	go func() {
		defer sm.submissions.Done()
		ctx, cancel := context.WithTimeout(context.Background(), sm.cfg.ScoreSubmitTimeout)
		defer cancel()

		if err := sm.recorder.SaveScore(ctx, rec); err != nil {
			logger.WithError(err).Error("failed to save score")
			return
		}
		logger.Info("score saved")
	}()
}

// Shutdown はすべての接続とセッションを閉じ、送信中のスコア保存の完了を待ちます。
// 登録解除済みでまだ終了処理中のセッションも含め、すべてのセッションのゴルーチンが
// 終わってから保存の完了を待つので、最後のスコアが取りこぼされることはありません。
func (sm *SessionManager) Shutdown() {
	sm.logger.Info("shutting down")

	sm.mu.Lock()
	sm.closing = true
	clients := make([]*Client, 0, len(sm.clients))
	for c := range sm.clients {
		clients = append(clients, c)
	}
	ids := make([]string, 0, len(sm.sessions))
	for id := range sm.sessions {
		ids = append(ids, id)
	}
	sm.mu.Unlock()

	for _, c := range clients {
		c.closeConn()
	}
	for _, id := range ids {
		sm.CloseSession(id)
	}

	// スコアの引き渡し (submissions.Add) はセッションのゴルーチン内で行われる
	sm.running.Wait()
	sm.submissions.Wait()
	sm.logger.Info("shutdown complete")
}
