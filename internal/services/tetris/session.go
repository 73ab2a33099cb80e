package tetris

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// SessionConfig はセッションのタイマー周期とルールの設定です。テストでは短い周期を指定します。
type SessionConfig struct {
	BaseFallInterval   time.Duration // レベル1での自動落下間隔
	LevelUpInterval    time.Duration // エンドレスモードのレベルアップ間隔
	CountdownInterval  time.Duration // タイムアタックのカウントダウン周期（1回で1秒減る）
	TimeAttackLimit    time.Duration
	TimeAttackTarget   int
	ScoreSubmitTimeout time.Duration

	// NewRand はセッションごとの乱数ジェネレータを作ります。nil の場合は現在時刻で初期化します。
	NewRand func() *rand.Rand
}

// DefaultSessionConfig は本番用のデフォルト設定を返します。
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		BaseFallInterval:   DefaultBaseFallInterval,
		LevelUpInterval:    DefaultLevelUpInterval,
		CountdownInterval:  CountdownInterval,
		TimeAttackLimit:    DefaultTimeAttackLimit,
		TimeAttackTarget:   DefaultTimeAttackTarget,
		ScoreSubmitTimeout: 5 * time.Second,
	}
}

func (c SessionConfig) withDefaults() SessionConfig {
	d := DefaultSessionConfig()
	if c.BaseFallInterval <= 0 {
		c.BaseFallInterval = d.BaseFallInterval
	}
	if c.LevelUpInterval <= 0 {
		c.LevelUpInterval = d.LevelUpInterval
	}
	if c.CountdownInterval <= 0 {
		c.CountdownInterval = d.CountdownInterval
	}
	if c.TimeAttackLimit <= 0 {
		c.TimeAttackLimit = d.TimeAttackLimit
	}
	if c.TimeAttackTarget <= 0 {
		c.TimeAttackTarget = d.TimeAttackTarget
	}
	if c.ScoreSubmitTimeout <= 0 {
		c.ScoreSubmitTimeout = d.ScoreSubmitTimeout
	}
	return c
}

// Session は1つの接続に結びついた1人用のゲームです。
// エンジンとタイマーはセッションのゴルーチン (run) だけが触り、
// 外部からの操作はすべて requests チャネル経由で直列化されます。
type Session struct {
	ID     string
	UserID string
	Mode   GameMode

	game  Game
	timed *TimeAttackGame // タイムアタックモードのみ
	sink  FrameSink
	cfg   SessionConfig

	logger     logrus.FieldLogger
	onGameOver func(ScoreRecord)

	requests chan sessionRequest
	cancel   context.CancelFunc
	done     chan struct{}

	initial         GameStateSnapshot
	gameOverHandled bool
}

type sessionRequest struct {
	cmd   CommandType // 空の場合はスナップショットの取得のみ
	reply chan sessionReply
}

type sessionReply struct {
	snapshot GameStateSnapshot
	err      error
}

// Done はセッションのゴルーチンが終了すると閉じられるチャネルを返します。
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// do はコマンドをセッションのゴルーチンに送り、適用が完了するまで待ちます。
func (s *Session) do(cmd CommandType) (GameStateSnapshot, error) {
	req := sessionRequest{cmd: cmd, reply: make(chan sessionReply, 1)}

	select {
	case s.requests <- req:
	case <-s.done:
		return GameStateSnapshot{}, ErrSessionNotFound
	}

	select {
	case r := <-req.reply:
		return r.snapshot, r.err
	case <-s.done:
		// 終了直前に返信済みの場合はそれを優先する
		select {
		case r := <-req.reply:
			return r.snapshot, r.err
		default:
			return GameStateSnapshot{}, ErrSessionNotFound
		}
	}
}

// sessionTimers はセッションが所有するタイマー一式です。
// 停止後は各チャネルが nil を返すため、select で二度と発火しません。
type sessionTimers struct {
	base      time.Duration
	descend   *time.Ticker
	levelUp   *time.Ticker
	countdown *time.Ticker
	stopped   bool
}

func newSessionTimers(cfg SessionConfig, mode GameMode, level int) *sessionTimers {
	t := &sessionTimers{
		base:    cfg.BaseFallInterval,
		descend: time.NewTicker(FallInterval(cfg.BaseFallInterval, level)),
	}
	switch mode {
	case ModeEndless:
		t.levelUp = time.NewTicker(cfg.LevelUpInterval)
	case ModeTimeAttack:
		t.countdown = time.NewTicker(cfg.CountdownInterval)
	}
	return t
}

func (t *sessionTimers) descendC() <-chan time.Time {
	if t.stopped {
		return nil
	}
	return t.descend.C
}

func (t *sessionTimers) levelUpC() <-chan time.Time {
	if t.stopped || t.levelUp == nil {
		return nil
	}
	return t.levelUp.C
}

func (t *sessionTimers) countdownC() <-chan time.Time {
	if t.stopped || t.countdown == nil {
		return nil
	}
	return t.countdown.C
}

// resetDescend は自動落下タイマーを新しいレベルの周期で張り直します。
// 同じ Ticker を Reset するので、落下タイマーが二重に存在することはありません。
func (t *sessionTimers) resetDescend(level int) {
	if t.stopped {
		return
	}
	t.descend.Reset(FallInterval(t.base, level))
}

func (t *sessionTimers) stop() {
	if t.stopped {
		return
	}
	t.stopped = true
	t.descend.Stop()
	if t.levelUp != nil {
		t.levelUp.Stop()
	}
	if t.countdown != nil {
		t.countdown.Stop()
	}
}

// run はセッションのメインループです。コマンドと各タイマーの発火を1つずつ順番に処理します。
// どの経路で終了してもタイマーは defer で停止されます。
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("session loop panicked")
		}
	}()

	_, level := s.game.Result()
	timers := newSessionTimers(s.cfg, s.Mode, level)
	defer timers.stop()

	initial := s.initial
	s.emit(OutboundFrame{Type: FrameGameInitialized, SessionID: s.ID, GameState: &initial})
	if s.game.Over() {
		s.handleGameOver(timers)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case req := <-s.requests:
			if ctx.Err() != nil {
				req.reply <- sessionReply{err: ErrSessionNotFound}
				return
			}
			req.reply <- s.handleRequest(req, timers)

		case <-timers.descendC():
			if ctx.Err() != nil {
				return
			}
			s.game.Tick()
			s.afterChange(timers)

		case <-timers.levelUpC():
			if ctx.Err() != nil {
				return
			}
			level := s.game.LevelUp()
			timers.resetDescend(level)
			snap := s.game.Snapshot()
			s.emit(OutboundFrame{Type: FrameLevelUp, Level: level, GameState: &snap})
			s.logger.WithField("level", level).Debug("level up")

		case <-timers.countdownC():
			if ctx.Err() != nil {
				return
			}
			if _, ended := s.timed.CountdownTick(); ended {
				s.handleGameOver(timers)
				continue
			}
			snap := s.timed.Snapshot()
			s.emit(OutboundFrame{
				Type:          FrameTimeAttackUpdate,
				RemainingTime: snap.RemainingTime,
				TargetScore:   snap.TargetScore,
				GameState:     &snap,
			})
		}
	}
}

func (s *Session) handleRequest(req sessionRequest, timers *sessionTimers) sessionReply {
	if req.cmd == "" {
		return sessionReply{snapshot: s.game.Snapshot()}
	}
	if s.game.Over() {
		return sessionReply{snapshot: s.game.Snapshot(), err: ErrGameOver}
	}

	switch req.cmd {
	case CmdMoveLeft:
		s.game.Move(DirLeft)
	case CmdMoveRight:
		s.game.Move(DirRight)
	case CmdMoveDown:
		s.game.Move(DirDown)
	case CmdRotate:
		s.game.Rotate()
	default:
		return sessionReply{snapshot: s.game.Snapshot(), err: ErrUnknownCommand}
	}

	s.afterChange(timers)
	return sessionReply{snapshot: s.game.Snapshot()}
}

// afterChange は状態変化の後に呼ばれ、ゲームオーバーなら終了処理を、そうでなければ GAME_UPDATE を送ります。
func (s *Session) afterChange(timers *sessionTimers) {
	if s.game.Over() {
		s.handleGameOver(timers)
		return
	}
	snap := s.game.Snapshot()
	s.emit(OutboundFrame{Type: FrameGameUpdate, GameState: &snap})
}

// handleGameOver はゲームオーバーへの遷移を一度だけ処理します。
// タイマーを止め、タイムアタックなら TIME_ATTACK_END、続けて GAME_OVER を送り、スコアを引き渡します。
func (s *Session) handleGameOver(timers *sessionTimers) {
	if s.gameOverHandled {
		return
	}
	s.gameOverHandled = true
	timers.stop()

	score, level := s.game.Result()
	if s.timed != nil {
		result, _ := s.timed.Finish()
		snap := s.timed.Snapshot()
		target := s.timed.TargetScore
		s.emit(OutboundFrame{
			Type:        FrameTimeAttackEnd,
			Result:      result,
			Score:       &score,
			TargetScore: &target,
			GameState:   &snap,
		})
		s.logger.WithFields(logrus.Fields{"result": result, "score": score}).Info("time attack finished")
	}

	snap := s.game.Snapshot()
	s.emit(OutboundFrame{Type: FrameGameOver, GameState: &snap})
	s.logger.WithFields(logrus.Fields{"score": score, "level": level}).Info("game over")

	if s.onGameOver != nil {
		s.onGameOver(ScoreRecord{
			SessionID: s.ID,
			UserID:    s.UserID,
			Mode:      s.Mode,
			Score:     score,
			Level:     level,
		})
	}
}

func (s *Session) emit(frame OutboundFrame) {
	if s.sink == nil {
		return
	}
	if !s.sink.SendFrame(frame) {
		s.logger.WithField("frame", frame.Type).Warn("failed to deliver frame")
	}
}
