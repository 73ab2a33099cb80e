package tetris

import (
	"encoding/json"
	"errors"
	"fmt"
)

// GameMode はセッションのルールバリアントです。
type GameMode string

const (
	ModeEndless    GameMode = "endless"
	ModeTimeAttack GameMode = "time_attack"
)

// ParseGameMode は接続時のモード指定を解釈します。空文字はエンドレスモードです。
func ParseGameMode(s string) (GameMode, error) {
	switch GameMode(s) {
	case "", ModeEndless:
		return ModeEndless, nil
	case ModeTimeAttack:
		return ModeTimeAttack, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// CommandType はクライアントから送られる操作の種類です。
type CommandType string

const (
	CmdMoveLeft  CommandType = "MOVE_LEFT"
	CmdMoveRight CommandType = "MOVE_RIGHT"
	CmdMoveDown  CommandType = "MOVE_DOWN"
	CmdRotate    CommandType = "ROTATE"
	CmdNewGame   CommandType = "NEW_GAME"
)

// Valid は既知のコマンドかどうかを返します。
func (c CommandType) Valid() bool {
	switch c {
	case CmdMoveLeft, CmdMoveRight, CmdMoveDown, CmdRotate, CmdNewGame:
		return true
	}
	return false
}

// FrameType はサーバーから送信するメッセージの種類です。
type FrameType string

const (
	FrameGameInitialized  FrameType = "GAME_INITIALIZED"
	FrameGameUpdate       FrameType = "GAME_UPDATE"
	FrameGameOver         FrameType = "GAME_OVER"
	FrameLevelUp          FrameType = "LEVEL_UP"
	FrameTimeAttackUpdate FrameType = "TIME_ATTACK_UPDATE"
	FrameTimeAttackEnd    FrameType = "TIME_ATTACK_END"
	FrameError            FrameType = "ERROR"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrUnknownMode     = errors.New("unknown game mode")
	ErrGameOver        = errors.New("game is over")
	ErrInvalidMessage  = errors.New("invalid message format")
	ErrShuttingDown    = errors.New("server is shutting down")
)

// InboundMessage はクライアントから受信するコマンドフレームです。
type InboundMessage struct {
	Type      CommandType `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
}

// DecodeInbound は受信したフレームをパースします。JSONとして解釈できない場合は ErrInvalidMessage を返します。
func DecodeInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return msg, nil
}

// OutboundFrame はクライアントへ送信するメッセージです。種類ごとに使うフィールドだけが埋まります。
type OutboundFrame struct {
	Type          FrameType          `json:"type"`
	SessionID     string             `json:"sessionId,omitempty"`
	GameState     *GameStateSnapshot `json:"gameState,omitempty"`
	Level         int                `json:"level,omitempty"`
	RemainingTime *int64             `json:"remainingTime,omitempty"`
	TargetScore   *int               `json:"targetScore,omitempty"`
	Result        TimeAttackResult   `json:"result,omitempty"`
	Score         *int               `json:"score,omitempty"`
	Message       string             `json:"message,omitempty"`
}

// ErrorFrame は回復可能なプロトコルエラーを通知するフレームを作ります。
func ErrorFrame(message string) OutboundFrame {
	return OutboundFrame{Type: FrameError, Message: message}
}

// ErrorMessage はエラーをクライアント向けのメッセージに変換します。
func ErrorMessage(err error) string {
	switch {
	case errors.Is(err, ErrInvalidMessage):
		return "Invalid message format"
	case errors.Is(err, ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, ErrUnknownCommand):
		return "Unknown command"
	case errors.Is(err, ErrGameOver):
		return "Game is over"
	case errors.Is(err, ErrShuttingDown):
		return "Server is shutting down"
	default:
		return "Internal server error"
	}
}

// FrameSink はセッションが生成したフレームの送信先です。WebSocketクライアントやテスト用のフェイクが実装します。
type FrameSink interface {
	SendFrame(frame OutboundFrame) bool
}
