package handlers

import (
	"github.com/gorilla/websocket"
)

type WSClient struct {
	ActivityID int64
	Conn       *websocket.Conn
	SendCh     chan []byte
}

func NewWSClient(activityID int64, conn *websocket.Conn) *WSClient {
	return &WSClient{
		ActivityID: activityID,
		Conn:       conn,
		SendCh:     make(chan []byte, 32),
	}
}

func (c *WSClient) Send(payload []byte) {
	select {
	case c.SendCh <- payload:
	default:
		// Drop when the buffer is full rather than block a draw.
	}
}

func (c *WSClient) WritePump() {
	for msg := range c.SendCh {
		if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}
