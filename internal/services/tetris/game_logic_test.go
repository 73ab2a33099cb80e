package tetris

import (
	"testing"
	"time"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/models/tetris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fillRow は except に含まれない列をすべて埋めます。
func fillRow(board *tetris.Board, y int, except ...int) {
	skip := make(map[int]bool, len(except))
	for _, x := range except {
		skip[x] = true
	}
	for x := 0; x < tetris.BoardWidth; x++ {
		if !skip[x] {
			board[y][x] = tetris.BlockL
		}
	}
}

func TestMoveLeftStabilisesAtWall(t *testing.T) {
	for pt := tetris.PieceType(0); pt < tetris.PieceTypeCount; pt++ {
		state := newTestState(t)
		state.CurrentPiece = tetris.NewPiece(pt)
		state.CurrentPiece.X = tetris.BoardWidth/2 - state.CurrentPiece.Shape.Width()/2

		for i := 0; i < tetris.BoardWidth*2; i++ {
			state.Move(DirLeft)
			require.GreaterOrEqual(t, state.CurrentPiece.X, 0)
		}
		assert.Equal(t, 0, state.CurrentPiece.X, "piece %s", pt)
		assert.False(t, state.Move(DirLeft))
	}
}

func TestMoveRightStabilisesAtWall(t *testing.T) {
	state := newTestState(t)
	state.CurrentPiece = tetris.NewPiece(tetris.TypeI)

	for i := 0; i < tetris.BoardWidth*2; i++ {
		state.Move(DirRight)
	}
	assert.Equal(t, tetris.BoardWidth-4, state.CurrentPiece.X)
}

func TestMoveDownLandsAndSpawns(t *testing.T) {
	state := newTestState(t)
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeO, Shape: tetris.TemplateShape(tetris.TypeO), X: 0, Y: 0}
	next := state.NextPiece

	for i := 0; i < tetris.BoardHeight-2; i++ {
		require.True(t, state.Move(DirDown))
	}
	assert.Equal(t, tetris.BoardHeight-2, state.CurrentPiece.Y)

	// 床に接しているので次の落下で固定される
	assert.True(t, state.Tick())
	assert.Equal(t, tetris.BlockO, state.Board[tetris.BoardHeight-1][0])
	assert.Equal(t, tetris.BlockO, state.Board[tetris.BoardHeight-2][1])
	assert.Same(t, next, state.CurrentPiece)
	assert.Equal(t, 0, state.Score)
}

func TestSingleLineClearScores40(t *testing.T) {
	state := newTestState(t)
	fillRow(&state.Board, tetris.BoardHeight-1, 6, 7, 8, 9)
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeI, Shape: tetris.TemplateShape(tetris.TypeI), X: 6, Y: tetris.BoardHeight - 1}

	assert.True(t, state.Move(DirDown))

	assert.Equal(t, 1, state.LinesCleared)
	assert.Equal(t, 40, state.Score)
	for x := 0; x < tetris.BoardWidth; x++ {
		assert.Equal(t, tetris.BlockEmpty, state.Board[tetris.BoardHeight-1][x])
	}
}

func TestDoubleLineClearScores100(t *testing.T) {
	state := newTestState(t)
	fillRow(&state.Board, tetris.BoardHeight-1, 8, 9)
	fillRow(&state.Board, tetris.BoardHeight-2, 8, 9)
	state.Board[tetris.BoardHeight-3][0] = tetris.BlockS
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeO, Shape: tetris.TemplateShape(tetris.TypeO), X: 8, Y: tetris.BoardHeight - 2}

	state.Move(DirDown)

	assert.Equal(t, 2, state.LinesCleared)
	assert.Equal(t, 100, state.Score)
	// 消えなかった行は2段下に詰められる
	assert.Equal(t, tetris.BlockS, state.Board[tetris.BoardHeight-1][0])
}

func TestScoreForTable(t *testing.T) {
	state := NewPlayerGameState()
	expected := map[int]int{-1: 0, 0: 0, 1: 40, 2: 100, 3: 300, 4: 1200, 5: 0}
	for lines, score := range expected {
		assert.Equal(t, score, state.ScoreFor(lines), "lines=%d", lines)
	}
}

func TestRotate(t *testing.T) {
	state := newTestState(t)
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeT, Shape: tetris.TemplateShape(tetris.TypeT), X: 4, Y: 5}

	assert.True(t, state.Rotate())
	assert.Equal(t, tetris.RotateClockwise(tetris.TemplateShape(tetris.TypeT)), state.CurrentPiece.Shape)
	assert.Equal(t, 4, state.CurrentPiece.X)
	assert.Equal(t, 5, state.CurrentPiece.Y)
}

func TestRotateRejectedAtWall(t *testing.T) {
	state := newTestState(t)
	vertical := tetris.RotateClockwise(tetris.TemplateShape(tetris.TypeI))
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeI, Shape: vertical, X: tetris.BoardWidth - 1, Y: 5}

	assert.False(t, state.Rotate())
	assert.Equal(t, vertical, state.CurrentPiece.Shape)
	assert.Equal(t, tetris.BoardWidth-1, state.CurrentPiece.X)
}

func TestLevelUp(t *testing.T) {
	state := newTestState(t)
	assert.Equal(t, 2, state.LevelUp())
	assert.Equal(t, 3, state.LevelUp())
	assert.Equal(t, 3, state.Snapshot().Level)
}

func TestFallInterval(t *testing.T) {
	base := DefaultBaseFallInterval
	assert.Equal(t, time.Second, FallInterval(base, 1))
	assert.InDelta(t, 900, FallInterval(base, 2).Milliseconds(), 1)
	assert.InDelta(t, 810, FallInterval(base, 3).Milliseconds(), 1)
	assert.Equal(t, time.Second, FallInterval(base, 0))

	prev := FallInterval(base, 1)
	for level := 2; level <= 50; level++ {
		cur := FallInterval(base, level)
		assert.Less(t, cur, prev, "level=%d", level)
		assert.Greater(t, cur, time.Duration(0))
		prev = cur
	}
	assert.Equal(t, MinFallInterval, FallInterval(base, 10000))
}
