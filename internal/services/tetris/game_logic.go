package tetris

import (
	"math"
	"time"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/models/tetris"
)

// ゲーム全体の速度設定です。
const (
	DefaultBaseFallInterval = 1000 * time.Millisecond // レベル1での自動落下間隔
	FallIntervalDecay       = 0.9                     // レベルが1上がるごとに落下間隔に掛かる係数
	MinFallInterval         = time.Millisecond        // time.Ticker に渡せる下限
	DefaultLevelUpInterval  = 5 * time.Minute         // エンドレスモードでレベルが上がる間隔
)

// lineClearScores は一度に消したライン数ごとの基本スコアです。
var lineClearScores = [...]int{0, 40, 100, 300, 1200}

// FallInterval は現在のレベルに基づいた自動落下間隔 base × 0.9^(level−1) を返します。
// レベルが上がるほど短くなり、MinFallInterval を下回ることはありません。
func FallInterval(base time.Duration, level int) time.Duration {
	if level < 1 {
		level = 1
	}
	interval := time.Duration(float64(base) * math.Pow(FallIntervalDecay, float64(level-1)))
	if interval < MinFallInterval {
		interval = MinFallInterval
	}
	return interval
}

// ScoreFor は一度に消したライン数に対する基本スコアを返します。表の範囲外は0です。
func (s *PlayerGameState) ScoreFor(linesCleared int) int {
	if linesCleared < 0 || linesCleared >= len(lineClearScores) {
		return 0
	}
	return lineClearScores[linesCleared]
}

// Move は操作中のピースを指定方向に1マス動かします。
// 移動先が衝突する場合は移動を取り消します。下方向で衝突した場合は着地とみなし、
// ピースを固定してライン消去・加点を行い、次のピースを出現させます。
//
// Returns:
//   bool: ゲーム状態が変化した場合はtrue
func (s *PlayerGameState) Move(dir Direction) bool {
	if s.IsGameOver || s.CurrentPiece == nil {
		return false // ゲームオーバーまたはピースがない場合は操作を受け付けない
	}

	dx, dy := 0, 0
	switch dir {
	case DirLeft:
		dx = -1
	case DirRight:
		dx = 1
	case DirDown:
		dy = 1
	default:
		return false
	}

	if !s.Board.HasCollision(s.CurrentPiece, dx, dy) {
		s.CurrentPiece.X += dx
		s.CurrentPiece.Y += dy
		return true
	}

	if dir == DirDown {
		s.lockPiece()
		return true
	}
	return false
}

// Rotate は操作中のピースを時計回りに回転させます。
// 回転後の配置が衝突する場合は回転を破棄します（壁蹴りは行いません）。
func (s *PlayerGameState) Rotate() bool {
	if s.IsGameOver || s.CurrentPiece == nil {
		return false
	}

	// まずクローンに対して回転し、衝突しない場合にのみ実際のピースに適用します。
	tempPiece := s.CurrentPiece.Clone()
	tempPiece.Shape = tetris.RotateClockwise(tempPiece.Shape)
	if s.Board.HasCollision(tempPiece, 0, 0) {
		return false
	}
	s.CurrentPiece.Shape = tempPiece.Shape
	return true
}

// Tick は自動落下タイマーから呼ばれる1段分の落下です。Move(DirDown) と同じ意味を持ちます。
func (s *PlayerGameState) Tick() bool {
	return s.Move(DirDown)
}

// LevelUp はレベルを1上げて新しいレベルを返します。落下間隔の再計算はセッション側が行います。
func (s *PlayerGameState) LevelUp() int {
	if s.IsGameOver {
		return s.Level
	}
	s.Level++
	return s.Level
}

// lockPiece は着地したピースをボードに固定した後の処理をすべて行います。
// ラインクリア判定、スコア加算、次のピース生成（とそれに伴うゲームオーバー判定）が含まれます。
//
// Returns:
//   int: クリアされたライン数
func (s *PlayerGameState) lockPiece() int {
	s.Board.MergePiece(s.CurrentPiece)

	clearedLines := s.Board.ClearLines()
	s.LinesCleared += clearedLines
	s.Score += s.scoreFn(clearedLines)

	s.SpawnNewPiece()
	return clearedLines
}
