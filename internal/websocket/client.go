package websocket

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Client is one connected dashboard.
type Client struct {
	ID   string
	Conn *websocket.Conn
	send chan []byte
}

// エラーメッセージを送信キューに積む。書き込みはwritePumpだけが行う
func (h *Hub) sendErrorMessage(client *Client, errorMessage string) {
	errorResponse := map[string]string{"type": "error", "error": errorMessage}
	errorJSON, _ := json.Marshal(errorResponse)

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[client] {
		return
	}
	select {
	case client.send <- errorJSON:
	default:
	}
}

// クライアントごとにコマンドを読み取るゴルーチン
func (h *Hub) handleClient(client *Client) {
	defer func() {
		h.remove(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadDeadline(time.Now().Add(readDeadline))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Error("WebSocket error", zap.Error(err))
			}
			break
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil || cmd.Type == "" {
			h.logger.Info("Received malformed command", zap.ByteString("message", message))
			continue
		}

		h.mu.Lock()
		fn := h.onCommand
		h.mu.Unlock()
		if fn == nil {
			continue
		}
		if err := fn(cmd); err != nil {
			h.logger.Info("Dashboard command failed", zap.String("type", cmd.Type), zap.Error(err))
			h.sendErrorMessage(client, err.Error())
		}
	}
}

// イベントの送信とPingを担当するゴルーチン
func (h *Hub) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				client.Conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Error("Failed to send event", zap.String("client", client.ID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Error("Error sending ping", zap.Error(err))
				return
			}
		}
	}
}
