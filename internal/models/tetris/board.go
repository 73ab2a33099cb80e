package tetris

import "encoding/json"

const (
	BoardWidth  = 10 // テトリスボードの幅
	BoardHeight = 20 // テトリスボードの高さ
)

// BlockType はボード上のブロックの種類を表します。
// 空でないマスは、そのマスを占有しているテトリミノ（＝色）を識別します。
type BlockType int

const (
	BlockEmpty BlockType = iota // 0: 空のマス
	BlockI                      // 1: I-テトリミノ由来のブロック (PieceType 0 + 1)
	BlockO                      // 2: O-テトリミノ由来のブロック
	BlockT                      // 3: T-テトリミノ由来のブロック
	BlockL                      // 4: L-テトリミノ由来のブロック
	BlockS                      // 5: S-テトリミノ由来のブロック
	BlockZ                      // 6: Z-テトリミノ由来のブロック
	BlockJ                      // 7: J-テトリミノ由来のブロック
)

var blockColors = map[BlockType]string{
	BlockI: "cyan",
	BlockO: "yellow",
	BlockT: "purple",
	BlockL: "orange",
	BlockS: "green",
	BlockZ: "red",
	BlockJ: "blue",
}

// Color はブロックの表示色を返します。空のマスは空文字列です。
func (b BlockType) Color() string {
	return blockColors[b]
}

// MarshalJSON は空のマスを null、それ以外を色の文字列としてエンコードします。
func (b BlockType) MarshalJSON() ([]byte, error) {
	if b == BlockEmpty {
		return []byte("null"), nil
	}
	return json.Marshal(b.Color())
}

// UnmarshalJSON は MarshalJSON の逆変換です。
func (b *BlockType) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*b = BlockEmpty
		return nil
	}
	var color string
	if err := json.Unmarshal(data, &color); err != nil {
		return err
	}
	for block, c := range blockColors {
		if c == color {
			*b = block
			return nil
		}
	}
	*b = BlockEmpty
	return nil
}

// Board はテトリスのゲームボードを表す2次元配列です。
// Board[y][x] でアクセスします。yは行（0が最上段）、xは列です。
type Board [BoardHeight][BoardWidth]BlockType

// NewBoard は新しい空のボードを返します。
// Goの配列はゼロ値（BlockEmpty）で初期化されるため、特別な初期化は不要です。
func NewBoard() Board {
	var board Board
	return board
}

// HasCollision は指定されたピースをオフセット (dx, dy) だけずらした配置が
// 壁・床・既存のブロックと衝突するかどうかを判定します。
//
// Parameters:
//   p  : 衝突判定を行うテトリミノのポインタ
//   dx : X軸方向の移動量（-1:左, 1:右, 0:移動なし）
//   dy : Y軸方向の移動量（1:下, 0:移動なし）
// Returns:
//   bool: 衝突する場合はtrue、しない場合はfalse
func (b *Board) HasCollision(p *Piece, dx, dy int) bool {
	for _, cell := range p.Cells(dx, dy) {
		x, y := cell[0], cell[1]

		// 左右の壁、または床との衝突
		if x < 0 || x >= BoardWidth || y >= BoardHeight {
			return true
		}
		// y < 0 は出現直後のピースが見えない領域にはみ出している状態なので、ボードとは照合しない
		if y >= 0 && b[y][x] != BlockEmpty {
			return true
		}
	}
	return false
}

// MergePiece は着地したピースをボードに固定します。y >= 0 のマスだけが書き込まれます。
func (b *Board) MergePiece(p *Piece) {
	block := p.Block()
	for _, cell := range p.Cells(0, 0) {
		x, y := cell[0], cell[1]
		if x >= 0 && x < BoardWidth && y >= 0 && y < BoardHeight {
			b[y][x] = block
		}
	}
}

// IsRowFull は指定した行がすべて埋まっているかどうかを返します。
func (b *Board) IsRowFull(y int) bool {
	for x := 0; x < BoardWidth; x++ {
		if b[y][x] == BlockEmpty {
			return false
		}
	}
	return true
}

// ClearLines は揃ったラインをすべて消去し、残りの行を下に詰めて、
// 上部に空の行を補充します。行の相対的な順序は保たれます。
//
// Returns:
//   int: クリアされたライン数
func (b *Board) ClearLines() int {
	clearedLines := 0
	newBoard := NewBoard()

	destY := BoardHeight - 1 // 新しいボードにコピーする際の最も下の行

	for y := BoardHeight - 1; y >= 0; y-- {
		if b.IsRowFull(y) {
			clearedLines++
			continue
		}
		newBoard[destY] = b[y]
		destY--
	}
	*b = newBoard
	return clearedLines
}

// Overlay はピースの各マスを重ねたボードのコピーを返します。ボードの外にはみ出たマスは無視されます。
func (b Board) Overlay(p *Piece) Board {
	if p == nil {
		return b
	}
	out := b
	out.MergePiece(p)
	return out
}
