package tetris

// PieceType はテトリミノの種類を表します。
type PieceType int

const (
	TypeI PieceType = iota // 0: I-ミノ (シアン)
	TypeO                  // 1: O-ミノ (黄色)
	TypeT                  // 2: T-ミノ (紫)
	TypeL                  // 3: L-ミノ (オレンジ)
	TypeS                  // 4: S-ミノ (緑)
	TypeZ                  // 5: Z-ミノ (赤)
	TypeJ                  // 6: J-ミノ (青)
)

// PieceTypeCount はテトリミノの種類数です。
const PieceTypeCount = 7

// Shape はテトリミノの形状を表すブール行列です。Shape[row][col] でアクセスします。
type Shape [][]bool

// pieceShapes は各PieceTypeの初期形状（テンプレート）です。
// テンプレートは不変として扱い、ピースのインスタンスには必ずコピーを渡します。
var pieceShapes = [PieceTypeCount]Shape{
	TypeI: {
		{true, true, true, true},
	},
	TypeO: {
		{true, true},
		{true, true},
	},
	TypeT: {
		{true, true, true},
		{false, true, false},
	},
	TypeL: {
		{true, true, true},
		{true, false, false},
	},
	TypeS: {
		{true, true, false},
		{false, true, true},
	},
	TypeZ: {
		{false, true, true},
		{true, true, false},
	},
	TypeJ: {
		{true, true, true},
		{false, false, true},
	},
}

// Piece はボード上で操作中のテトリミノのインスタンスです。
// Shape は現在の向き（回転済みの行列）で、テンプレートとは独立しています。
// X, Y はバウンディングボックス左上のボード座標です。
type Piece struct {
	Type  PieceType `json:"type"`
	Shape Shape     `json:"shape"`
	X     int       `json:"x"`
	Y     int       `json:"y"`
}

// TemplateShape は指定された種類のテンプレート形状のコピーを返します。
func TemplateShape(t PieceType) Shape {
	return pieceShapes[t].Clone()
}

// NewPiece は指定された種類の新しいピースを、回転していない状態で作成します。
func NewPiece(t PieceType) *Piece {
	return &Piece{
		Type:  t,
		Shape: TemplateShape(t),
	}
}

// Clone は行列を含めたディープコピーを返します。
func (s Shape) Clone() Shape {
	out := make(Shape, len(s))
	for i, row := range s {
		out[i] = append([]bool(nil), row...)
	}
	return out
}

// Width は形状の列数を返します。
func (s Shape) Width() int {
	if len(s) == 0 {
		return 0
	}
	return len(s[0])
}

// Height は形状の行数を返します。
func (s Shape) Height() int {
	return len(s)
}

// Equal は2つの形状が同じかどうかを判定します。
func (s Shape) Equal(other Shape) bool {
	if len(s) != len(other) {
		return false
	}
	for y := range s {
		if len(s[y]) != len(other[y]) {
			return false
		}
		for x := range s[y] {
			if s[y][x] != other[y][x] {
				return false
			}
		}
	}
	return true
}

// RotateClockwise は形状を時計回りに90度回転させた新しい行列を返します。
// 転置してから各行を反転させる（＝元の行を下から読む）純粋関数で、ボードのことは知りません。
func RotateClockwise(s Shape) Shape {
	h, w := s.Height(), s.Width()
	rotated := make(Shape, w)
	for x := 0; x < w; x++ {
		rotated[x] = make([]bool, h)
		for y := 0; y < h; y++ {
			rotated[x][y] = s[h-1-y][x]
		}
	}
	return rotated
}

// Cells はピースが占有しているマスのボード上の絶対座標 {x, y} を返します。
//
// Parameters:
//   dx, dy : 現在位置からのオフセット
func (p *Piece) Cells(dx, dy int) [][2]int {
	cells := make([][2]int, 0, 4)
	for y, row := range p.Shape {
		for x, filled := range row {
			if filled {
				cells = append(cells, [2]int{p.X + x + dx, p.Y + y + dy})
			}
		}
	}
	return cells
}

// Clone は現在のPieceオブジェクトのディープコピーを返します。
// 操作前のピースの状態を保持しつつ、操作後の状態を仮に試すために使います。
func (p *Piece) Clone() *Piece {
	newP := *p
	newP.Shape = p.Shape.Clone()
	return &newP
}

// Block はこのピースがボードに固定されたときのブロックタイプを返します。
func (p *Piece) Block() BlockType {
	return BlockType(p.Type + 1) // PieceType (0-6) を BlockType (1-7) に変換
}

// Color はピースの表示色を返します。
func (p *Piece) Color() string {
	return p.Block().Color()
}

// PieceTypeToString はPieceTypeを文字列表現に変換します。
func PieceTypeToString(t PieceType) string {
	switch t {
	case TypeI:
		return "I"
	case TypeO:
		return "O"
	case TypeT:
		return "T"
	case TypeL:
		return "L"
	case TypeS:
		return "S"
	case TypeZ:
		return "Z"
	case TypeJ:
		return "J"
	default:
		return "I"
	}
}

func (t PieceType) String() string {
	return PieceTypeToString(t)
}
