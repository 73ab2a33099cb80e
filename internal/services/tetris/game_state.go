package tetris

import (
	"math/rand"
	"time"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/models/tetris"
)

// Game はセッションが駆動するゲームエンジンの共通インターフェースです。
// エンドレスモード (PlayerGameState) とタイムアタックモード (TimeAttackGame) が実装します。
// すべてのメソッドは単一のゴルーチン（セッションループ）からのみ呼び出されることを前提とします。
type Game interface {
	Start()
	Move(dir Direction) bool
	Rotate() bool
	Tick() bool
	LevelUp() int
	ScoreFor(linesCleared int) int
	Snapshot() GameStateSnapshot
	Over() bool
	Result() (score, level int)
}

// Direction はピースの移動方向です。
type Direction string

const (
	DirLeft  Direction = "left"
	DirRight Direction = "right"
	DirDown  Direction = "down"
)

// PlayerGameState は単一プレイヤーのテトリスゲーム状態（エンドレスモードのエンジン）です。
// セッションごとに1つだけ存在し、他のセッションと共有されることはありません。
type PlayerGameState struct {
	Board        tetris.Board  // 固定済みブロックのみのボード（操作中のピースは含まない）
	CurrentPiece *tetris.Piece // 現在操作中のテトリミノ
	NextPiece    *tetris.Piece // 次に出現するテトリミノ
	Score        int           // 現在のスコア
	LinesCleared int           // クリアしたライン数の合計
	Level        int           // 現在のレベル (1から始まり減少しない)
	IsGameOver   bool          // ゲームオーバー状態かどうか

	started       bool
	randGenerator *rand.Rand
	scoreFn       func(linesCleared int) int // ライン消去時の加点。タイムアタックが差し替える
}

// Option は PlayerGameState の生成オプションです。
type Option func(*PlayerGameState)

// WithRand はピース抽選に使う乱数ジェネレータを指定します。テストで決定的な抽選を行うために使います。
func WithRand(r *rand.Rand) Option {
	return func(s *PlayerGameState) {
		s.randGenerator = r
	}
}

// NewPlayerGameState は開始前（NotStarted）のゲーム状態を作成します。
// 実際にプレイ可能になるのは Start を呼んだ後です。
func NewPlayerGameState(opts ...Option) *PlayerGameState {
	state := &PlayerGameState{
		Board: tetris.NewBoard(),
		Level: 1,
	}
	for _, opt := range opts {
		opt(state)
	}
	if state.randGenerator == nil {
		// 乱数生成器のシードを現在時刻で初期化
		state.randGenerator = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	state.scoreFn = state.ScoreFor
	return state
}

// Start はゲームを初期状態に戻し、最初のピースと次のピースを出現させます。
// どの状態から呼んでも Active（またはスポーン位置が埋まっていれば GameOver）に遷移します。
func (s *PlayerGameState) Start() {
	s.Board = tetris.NewBoard()
	s.Score = 0
	s.LinesCleared = 0
	s.Level = 1
	s.IsGameOver = false
	s.CurrentPiece = nil
	s.NextPiece = nil
	s.started = true
	s.SpawnNewPiece()
}

// Started は Start が一度でも呼ばれたかどうかを返します。
func (s *PlayerGameState) Started() bool {
	return s.started
}

// randomPiece は7種類から一様ランダムに新しいピースを抽選します。
func (s *PlayerGameState) randomPiece() *tetris.Piece {
	return tetris.NewPiece(tetris.PieceType(s.randGenerator.Intn(tetris.PieceTypeCount)))
}

// SpawnNewPiece は次のピースを操作中のピースに昇格させ、新しい次のピースを抽選します。
// ピースはボードの水平中央・最上段 (y=0) に配置され、その位置で衝突した場合はゲームオーバーになります。
func (s *PlayerGameState) SpawnNewPiece() {
	if s.NextPiece != nil {
		s.CurrentPiece = s.NextPiece
	} else {
		s.CurrentPiece = s.randomPiece()
	}
	s.NextPiece = s.randomPiece()

	s.CurrentPiece.X = tetris.BoardWidth/2 - s.CurrentPiece.Shape.Width()/2
	s.CurrentPiece.Y = 0

	// ボードの最上部まで積み上がっている
	if s.Board.HasCollision(s.CurrentPiece, 0, 0) {
		s.IsGameOver = true
	}
}

// Over はゲームオーバーかどうかを返します。
func (s *PlayerGameState) Over() bool {
	return s.IsGameOver
}

// Result は最終スコアとレベルを返します。
func (s *PlayerGameState) Result() (score, level int) {
	return s.Score, s.Level
}

// PiecePreview はクライアントに送信するピースの情報です。
type PiecePreview struct {
	Name  string       `json:"name"`
	Shape tetris.Shape `json:"shape"`
	Color string       `json:"color"`
}

// GameStateSnapshot はクライアントが観測できる唯一のゲーム状態です。
// 内部の可変な参照は一切含まず、送信後にエンジンが変化しても影響を受けません。
type GameStateSnapshot struct {
	Board        tetris.Board  `json:"board"`
	Score        int           `json:"score"`
	Level        int           `json:"level"`
	LinesCleared int           `json:"linesCleared"`
	GameOver     bool          `json:"gameOver"`
	NextPiece    *PiecePreview `json:"nextPiece"`

	// タイムアタックモードのみ
	RemainingTime *int64 `json:"remainingTime,omitempty"` // ミリ秒
	TargetScore   *int   `json:"targetScore,omitempty"`
}

// Snapshot は現在の状態の読み取り専用コピーを返します。
// ゲームオーバーでない間は、操作中のピースを重ねたボードを返します。
func (s *PlayerGameState) Snapshot() GameStateSnapshot {
	board := s.Board
	if !s.IsGameOver {
		board = s.Board.Overlay(s.CurrentPiece)
	}

	snap := GameStateSnapshot{
		Board:        board,
		Score:        s.Score,
		Level:        s.Level,
		LinesCleared: s.LinesCleared,
		GameOver:     s.IsGameOver,
	}
	if s.NextPiece != nil {
		snap.NextPiece = &PiecePreview{
			Name:  s.NextPiece.Type.String(),
			Shape: s.NextPiece.Shape.Clone(),
			Color: s.NextPiece.Color(),
		}
	}
	return snap
}
