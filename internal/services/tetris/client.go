package tetris

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// WebSocket 接続のタイムアウト設定です。
const (
	writeWait      = 10 * time.Second    // 1フレームの書き込みに許す時間
	pongWait       = 60 * time.Second    // Pong を待つ時間
	pingPeriod     = (pongWait * 9) / 10 // Ping の送信間隔 (pongWait より短くする)
	maxMessageSize = 1024                // 受信フレームの最大サイズ
	sendBufferSize = 256
)

// Client はWebSocket接続を持つ単一のクライアントを表します。
// 1つの接続は常に1つの「現在のセッション」を持ち、NEW_GAME で差し替えられます。
type Client struct {
	UserID string          // このクライアントに紐づくユーザーのID
	Mode   GameMode        // 接続時に選択したモード。NEW_GAME でも引き継がれる
	Conn   *websocket.Conn // クライアントとの実際のWebSocketコネクション
	Send   chan []byte     // クライアントへメッセージを送信するためのバッファ付きチャネル

	sessionID string
	closed    bool       // チャネルが閉じられたかどうかのフラグ
	mu        sync.Mutex // closed と sessionID の保護用

	logger logrus.FieldLogger
}

// SessionID はこの接続の現在のセッションIDを返します。
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = id
}

// SafeSend は安全にチャネルにメッセージを送信します（closedチェック付き）。
// バッファが一杯のクライアントは読み取りが追いついていないとみなし、フレームを黙って捨てずに
// チャネルを閉じて切断します。writePump はバッファ済みのフレームを送り切ってから Close を送ります。
func (c *Client) SafeSend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false // 既に閉じられている
	}

	select {
	case c.Send <- message:
		return true
	default:
		close(c.Send)
		c.closed = true
		c.logger.Warn("send buffer full, disconnecting client")
		return false
	}
}

// SafeClose は安全にチャネルを閉じます
func (c *Client) SafeClose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.Send)
		c.closed = true
	}
}

// SendFrame はフレームをJSONにエンコードして送信キューに積みます。FrameSink の実装です。
func (c *Client) SendFrame(frame OutboundFrame) bool {
	data, err := json.Marshal(frame)
	if err != nil {
		c.logger.WithError(err).WithField("frame", frame.Type).Error("failed to marshal frame")
		return false
	}
	return c.SafeSend(data)
}

func (c *Client) sendError(err error) {
	c.SendFrame(ErrorFrame(ErrorMessage(err)))
}

func (c *Client) closeConn() {
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// RegisterClient は認証済みのWebSocket接続を登録し、最初のセッションを作成して
// readPump / writePump を開始します。接続が切れると現在のセッションは必ず閉じられます。
//
// Parameters:
//   conn   : アップグレード済みのWebSocketコネクション
//   userID : 認証済みのユーザーID
//   mode   : 選択されたゲームモード
func (sm *SessionManager) RegisterClient(conn *websocket.Conn, userID string, mode GameMode) (*Client, error) {
	client := &Client{
		UserID: userID,
		Mode:   mode,
		Conn:   conn,
		Send:   make(chan []byte, sendBufferSize),
		logger: sm.logger.WithFields(logrus.Fields{"user_id": userID, "mode": mode}),
	}

	session, err := sm.CreateSession(userID, mode, client)
	if err != nil {
		return nil, err
	}
	client.setSessionID(session.ID)

	sm.mu.Lock()
	sm.clients[client] = struct{}{}
	sm.mu.Unlock()

	go client.writePump()
	go sm.readPump(client)

	client.logger.WithField("session_id", session.ID).Info("client registered")
	return client, nil
}

// unregisterClient は切断されたクライアントの現在のセッションを閉じ、送信チャネルを閉じます。
func (sm *SessionManager) unregisterClient(c *Client) {
	sm.CloseSession(c.SessionID())

	sm.mu.Lock()
	delete(sm.clients, c)
	sm.mu.Unlock()

	c.SafeClose()
	c.logger.Info("client unregistered")
}

// handleInbound は1つの受信フレームを処理します。エラーはすべて ERROR フレームとして返し、接続は維持します。
func (sm *SessionManager) handleInbound(c *Client, msg InboundMessage) {
	current := c.SessionID()
	target := msg.SessionID
	if target == "" {
		target = current
	}
	// 他の接続のセッションは操作できない
	if target != current {
		c.sendError(ErrSessionNotFound)
		return
	}

	next, err := sm.Dispatch(target, msg.Type)
	if errors.Is(err, ErrSessionNotFound) && msg.Type == CmdNewGame {
		// 現在のセッションが既に無い場合でも NEW_GAME で新しく始められる
		var session *Session
		session, err = sm.CreateSession(c.UserID, c.Mode, c)
		if err == nil {
			next = session.ID
		}
	}
	if err != nil {
		c.logger.WithError(err).WithField("command", msg.Type).Debug("command rejected")
		c.sendError(err)
		return
	}
	c.setSessionID(next)
}

// readPump はクライアントからのWebSocketメッセージを読み込み、セッションに振り分けます。
// クライアントごとにこのゴルーチンが動作し、終了時に必ずセッションを閉じます。
func (sm *SessionManager) readPump(c *Client) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.WithField("panic", r).Error("panic in readPump")
		}
		sm.unregisterClient(c)
		c.closeConn()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.WithError(err).Warn("websocket unexpected close")
			} else {
				c.logger.WithError(err).Debug("websocket closed")
			}
			return
		}

		msg, err := DecodeInbound(message)
		if err != nil {
			c.sendError(err)
			continue
		}
		sm.handleInbound(c, msg)
	}
}

// writePump は Send チャネルからのメッセージをWebSocketコネクションに書き込みます。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// チャネルが閉じられた (クライアントの登録解除時)
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.WithError(err).Warn("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
