package tetris

import "time"

const (
	DefaultTimeAttackLimit  = 3 * time.Minute // タイムアタックの制限時間
	DefaultTimeAttackTarget = 5000            // タイムアタックの目標スコア
	CountdownInterval       = time.Second     // カウントダウン1回あたりに減る時間
)

// timeAttackBonus は一度に消したライン数ごとのタイムアタック専用ボーナスです。基本スコアに加算されます。
var timeAttackBonus = [...]int{0, 50, 150, 300, 500}

// TimeAttackResult はタイムアタックの勝敗です。
type TimeAttackResult string

const (
	ResultWin  TimeAttackResult = "WIN"
	ResultLose TimeAttackResult = "LOSE"
)

// TimeAttackGame は制限時間と目標スコアを持つルールバリアントです。
// 盤面操作はすべて内部の PlayerGameState に明示的に委譲し、
// 加点表・スナップショット・終了判定だけを上書きします。
type TimeAttackGame struct {
	base *PlayerGameState

	TimeLimit     time.Duration
	RemainingTime time.Duration
	TargetScore   int

	result   TimeAttackResult
	finished bool
}

// NewTimeAttackGame は開始前のタイムアタックゲームを作成します。
// limit や target が0以下の場合はデフォルト値を使います。
func NewTimeAttackGame(limit time.Duration, target int, opts ...Option) *TimeAttackGame {
	if limit <= 0 {
		limit = DefaultTimeAttackLimit
	}
	if target <= 0 {
		target = DefaultTimeAttackTarget
	}
	g := &TimeAttackGame{
		base:          NewPlayerGameState(opts...),
		TimeLimit:     limit,
		RemainingTime: limit,
		TargetScore:   target,
	}
	// 着地時の加点をボーナス込みの表に差し替える
	g.base.scoreFn = g.ScoreFor
	return g
}

// Base は委譲先のエンジンを返します。
func (g *TimeAttackGame) Base() *PlayerGameState {
	return g.base
}

// Start は基本エンジンを初期化し、残り時間を制限時間に戻します。
func (g *TimeAttackGame) Start() {
	g.base.Start()
	g.RemainingTime = g.TimeLimit
	g.result = ""
	g.finished = false
}

func (g *TimeAttackGame) Move(dir Direction) bool { return g.base.Move(dir) }
func (g *TimeAttackGame) Rotate() bool            { return g.base.Rotate() }
func (g *TimeAttackGame) Tick() bool              { return g.base.Tick() }
func (g *TimeAttackGame) LevelUp() int            { return g.base.LevelUp() }
func (g *TimeAttackGame) Over() bool              { return g.base.Over() }
func (g *TimeAttackGame) Result() (int, int)      { return g.base.Result() }

// ScoreFor は基本スコアにタイムアタックのボーナスを加えた値を返します。
func (g *TimeAttackGame) ScoreFor(linesCleared int) int {
	bonus := 0
	if linesCleared >= 0 && linesCleared < len(timeAttackBonus) {
		bonus = timeAttackBonus[linesCleared]
	}
	return g.base.ScoreFor(linesCleared) + bonus
}

// Snapshot は基本のスナップショットに残り時間（ミリ秒）と目標スコアを加えます。
func (g *TimeAttackGame) Snapshot() GameStateSnapshot {
	snap := g.base.Snapshot()
	remaining := g.RemainingTime.Milliseconds()
	target := g.TargetScore
	snap.RemainingTime = &remaining
	snap.TargetScore = &target
	return snap
}

// CountdownTick は残り時間を1秒減らし、終了条件（時間切れ、または基本ゲームのゲームオーバー）を判定します。
//
// Returns:
//   TimeAttackResult: 勝敗（終了した場合のみ意味を持つ）
//   bool: この呼び出しでゲームが終了した場合はtrue。終了済みの場合は常にfalse
func (g *TimeAttackGame) CountdownTick() (TimeAttackResult, bool) {
	if g.finished {
		return g.result, false
	}
	g.RemainingTime -= CountdownInterval
	if g.RemainingTime < 0 {
		g.RemainingTime = 0
	}
	if g.RemainingTime <= 0 || g.base.IsGameOver {
		return g.Finish()
	}
	return "", false
}

// Finish は勝敗を確定させ、ゲームオーバーを強制します。
// 勝敗が確定するのは最初の呼び出しの一度だけで、2回目以降は false を返します。
func (g *TimeAttackGame) Finish() (TimeAttackResult, bool) {
	if g.finished {
		return g.result, false
	}
	g.finished = true
	if g.base.Score >= g.TargetScore {
		g.result = ResultWin
	} else {
		g.result = ResultLose
	}
	g.base.IsGameOver = true
	return g.result, true
}

// Finished は勝敗が確定済みかどうかを返します。
func (g *TimeAttackGame) Finished() bool {
	return g.finished
}
