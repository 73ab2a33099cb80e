package tetris

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/progate-hackathon-strawberry-flavor/tetris-backend/internal/models/tetris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T) *PlayerGameState {
	t.Helper()
	state := NewPlayerGameState(WithRand(rand.New(rand.NewSource(1))))
	state.Start()
	return state
}

func TestNewPlayerGameStateNotStarted(t *testing.T) {
	state := NewPlayerGameState()

	assert.False(t, state.Started())
	assert.Nil(t, state.CurrentPiece)
	assert.Equal(t, 1, state.Level)
	assert.False(t, state.Move(DirLeft))
	assert.False(t, state.Tick())
}

func TestStart(t *testing.T) {
	state := newTestState(t)

	assert.True(t, state.Started())
	assert.Equal(t, 0, state.Score)
	assert.Equal(t, 1, state.Level)
	assert.Equal(t, 0, state.LinesCleared)
	assert.False(t, state.IsGameOver)
	assert.Equal(t, tetris.NewBoard(), state.Board)

	require.NotNil(t, state.CurrentPiece)
	require.NotNil(t, state.NextPiece)
	assert.Equal(t, 0, state.CurrentPiece.Y)
	assert.Equal(t, tetris.BoardWidth/2-state.CurrentPiece.Shape.Width()/2, state.CurrentPiece.X)
}

func TestStartResetsFinishedGame(t *testing.T) {
	state := newTestState(t)
	state.Score = 900
	state.Level = 4
	state.IsGameOver = true
	state.Board[tetris.BoardHeight-1][0] = tetris.BlockZ

	state.Start()

	assert.Equal(t, 0, state.Score)
	assert.Equal(t, 1, state.Level)
	assert.False(t, state.IsGameOver)
	assert.Equal(t, tetris.BlockEmpty, state.Board[tetris.BoardHeight-1][0])
}

func TestSpawnPromotesNextPiece(t *testing.T) {
	state := newTestState(t)
	next := state.NextPiece

	state.SpawnNewPiece()

	assert.Same(t, next, state.CurrentPiece)
	assert.NotSame(t, next, state.NextPiece)
	assert.Equal(t, 0, state.CurrentPiece.Y)
}

func TestSpawnCollisionIsGameOver(t *testing.T) {
	state := newTestState(t)
	for x := 0; x < tetris.BoardWidth; x++ {
		state.Board[0][x] = tetris.BlockJ
		state.Board[1][x] = tetris.BlockJ
	}

	state.SpawnNewPiece()

	assert.True(t, state.IsGameOver)
	assert.True(t, state.Over())

	// ゲームオーバー後の操作は何もしない
	before := state.Snapshot()
	assert.False(t, state.Move(DirLeft))
	assert.False(t, state.Move(DirDown))
	assert.False(t, state.Rotate())
	assert.False(t, state.Tick())
	assert.Equal(t, 1, state.LevelUp())
	assert.Equal(t, before, state.Snapshot())
}

func TestSnapshotOverlaysActivePiece(t *testing.T) {
	state := newTestState(t)
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeO, Shape: tetris.TemplateShape(tetris.TypeO), X: 4, Y: 0}

	snap := state.Snapshot()

	assert.Equal(t, tetris.BlockO, snap.Board[0][4])
	assert.Equal(t, tetris.BlockO, snap.Board[1][5])
	// 内部のボードには書き込まれていない
	assert.Equal(t, tetris.BlockEmpty, state.Board[0][4])
	require.NotNil(t, snap.NextPiece)
	assert.Equal(t, state.NextPiece.Color(), snap.NextPiece.Color)
}

func TestSnapshotIsIndependentCopy(t *testing.T) {
	state := newTestState(t)
	snap := state.Snapshot()

	snap.Board[5][5] = tetris.BlockT
	snap.NextPiece.Shape[0][0] = !snap.NextPiece.Shape[0][0]

	assert.Equal(t, tetris.BlockEmpty, state.Board[5][5])
	assert.True(t, tetris.TemplateShape(state.NextPiece.Type).Equal(state.NextPiece.Shape))
}

func TestSnapshotWithoutActivePieceWhenOver(t *testing.T) {
	state := newTestState(t)
	state.CurrentPiece = &tetris.Piece{Type: tetris.TypeO, Shape: tetris.TemplateShape(tetris.TypeO), X: 4, Y: 5}
	state.IsGameOver = true

	snap := state.Snapshot()

	assert.True(t, snap.GameOver)
	assert.Equal(t, tetris.BlockEmpty, snap.Board[5][4])
}

func TestSnapshotJSON(t *testing.T) {
	state := newTestState(t)
	data, err := json.Marshal(state.Snapshot())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	for _, key := range []string{"board", "score", "level", "gameOver", "nextPiece", "linesCleared"} {
		assert.Contains(t, decoded, key)
	}
	assert.NotContains(t, decoded, "remainingTime")
	assert.NotContains(t, decoded, "targetScore")

	next, ok := decoded["nextPiece"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, state.NextPiece.Type.String(), next["name"])
	assert.Equal(t, state.NextPiece.Color(), next["color"])
	assert.NotContains(t, next, "type")
}
