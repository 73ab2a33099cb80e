package tetris

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collidesByDefinition は HasCollision の定義をそのままループで書いた参照実装です。
func collidesByDefinition(b *Board, p *Piece, dx, dy int) bool {
	for y, row := range p.Shape {
		for x, filled := range row {
			if !filled {
				continue
			}
			bx, by := p.X+x+dx, p.Y+y+dy
			if bx < 0 || bx >= BoardWidth || by >= BoardHeight {
				return true
			}
			if by >= 0 && b[by][bx] != BlockEmpty {
				return true
			}
		}
	}
	return false
}

func TestNewBoard(t *testing.T) {
	board := NewBoard()
	assert.Equal(t, BoardHeight, len(board))
	for y := 0; y < BoardHeight; y++ {
		assert.Equal(t, BoardWidth, len(board[y]))
		for x := 0; x < BoardWidth; x++ {
			assert.Equal(t, BlockEmpty, board[y][x])
		}
	}
}

func TestHasCollision(t *testing.T) {
	board := NewBoard()
	board[BoardHeight-1][4] = BlockO

	tests := []struct {
		name     string
		piece    *Piece
		dx, dy   int
		expected bool
	}{
		{"空きスペース", &Piece{Type: TypeO, Shape: TemplateShape(TypeO), X: 0, Y: 0}, 0, 0, false},
		{"左の壁", &Piece{Type: TypeO, Shape: TemplateShape(TypeO), X: 0, Y: 0}, -1, 0, true},
		{"右の壁", &Piece{Type: TypeI, Shape: TemplateShape(TypeI), X: 6, Y: 0}, 1, 0, true},
		{"床", &Piece{Type: TypeO, Shape: TemplateShape(TypeO), X: 0, Y: BoardHeight - 2}, 0, 1, true},
		{"既存ブロック", &Piece{Type: TypeO, Shape: TemplateShape(TypeO), X: 3, Y: BoardHeight - 3}, 0, 1, true},
		{"ボードの上にはみ出す", &Piece{Type: TypeO, Shape: TemplateShape(TypeO), X: 3, Y: -1}, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, board.HasCollision(tt.piece, tt.dx, tt.dy))
		})
	}
}

func TestHasCollisionMatchesDefinition(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		board := NewBoard()
		for y := 0; y < BoardHeight; y++ {
			for x := 0; x < BoardWidth; x++ {
				if r.Intn(5) == 0 {
					board[y][x] = BlockType(r.Intn(PieceTypeCount) + 1)
				}
			}
		}
		p := NewPiece(PieceType(r.Intn(PieceTypeCount)))
		for k := r.Intn(4); k > 0; k-- {
			p.Shape = RotateClockwise(p.Shape)
		}
		p.X = r.Intn(BoardWidth+4) - 2
		p.Y = r.Intn(BoardHeight+6) - 4

		require.Equal(t, collidesByDefinition(&board, p, 0, 0), board.HasCollision(p, 0, 0),
			"piece=%v at (%d,%d)", p.Type, p.X, p.Y)
	}
}

func TestMergePieceSkipsRowsAboveBoard(t *testing.T) {
	board := NewBoard()
	p := &Piece{Type: TypeT, Shape: TemplateShape(TypeT), X: 2, Y: -1}
	board.MergePiece(p)

	// T の2行目 (y=0) だけが書き込まれる
	assert.Equal(t, BlockT, board[0][3])
	assert.Equal(t, BlockEmpty, board[0][2])
	assert.Equal(t, BlockEmpty, board[0][4])
}

func TestClearLines(t *testing.T) {
	board := NewBoard()
	for x := 0; x < BoardWidth; x++ {
		board[BoardHeight-1][x] = BlockI
		board[BoardHeight-3][x] = BlockJ
	}
	board[BoardHeight-2][0] = BlockS
	board[BoardHeight-4][9] = BlockZ

	cleared := board.ClearLines()

	assert.Equal(t, 2, cleared)
	assert.Equal(t, BoardHeight, len(board))
	// 残った行は相対的な順序を保ったまま下に詰められる
	assert.Equal(t, BlockS, board[BoardHeight-1][0])
	assert.Equal(t, BlockZ, board[BoardHeight-2][9])
	for y := 0; y < BoardHeight-2; y++ {
		for x := 0; x < BoardWidth; x++ {
			assert.Equal(t, BlockEmpty, board[y][x])
		}
	}
}

func TestClearLinesNothingToClear(t *testing.T) {
	board := NewBoard()
	board[BoardHeight-1][0] = BlockL
	before := board

	assert.Equal(t, 0, board.ClearLines())
	assert.Equal(t, before, board)
}

func TestBlockTypeJSON(t *testing.T) {
	row := []BlockType{BlockEmpty, BlockI, BlockZ}
	data, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `[null,"cyan","red"]`, string(data))

	var decoded []BlockType
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, row, decoded)
}
