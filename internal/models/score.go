package models

import (
	"time"
)

// Score はscoresテーブルのレコードに対応する構造体です。
// GameID はセッションIDで、1ゲームにつき1件だけ保存されます。
type Score struct {
	ID        int64     `json:"id"`
	GameID    string    `json:"game_id"`
	UserID    string    `json:"user_id"` // UUID
	Mode      string    `json:"mode"`
	Score     int       `json:"score"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoreResponse はランキングAPIのレスポンス用の構造体です。
type ScoreResponse struct {
	ID        int64     `json:"id"`
	GameID    string    `json:"game_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Mode      string    `json:"mode"`
	Score     int       `json:"score"`
	Level     int       `json:"level"`
	CreatedAt time.Time `json:"created_at"`
	Rank      int       `json:"rank"` // ランキング順位
}
