package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"choujiang/internal/auth"
	"choujiang/internal/lottery"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// HandleWS attaches an admin dashboard to the live redemption feed of one
// activity.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = getBearerToken(r)
	}
	claims, err := auth.ParseToken(s.JWTSecret, token)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if err := s.validateSession(claims.UserID, claims.SessionID); err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	activityID, err := strconv.ParseInt(r.URL.Query().Get("activity_id"), 10, 64)
	if err != nil || activityID <= 0 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	client := NewWSClient(activityID, conn)
	s.Hub.Register(client)
	defer func() {
		s.Hub.Unregister(client)
		_ = conn.Close()
		close(client.SendCh)
	}()

	go client.WritePump()

	hello, _ := json.Marshal(WSMessage{Type: "hello", Data: map[string]any{"activity_id": activityID}})
	client.Send(hello)

	// Reads only keep the connection alive; clients don't talk back.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

type drawEvent struct {
	ActivityID int64     `json:"activity_id"`
	Code       string    `json:"code"`
	IsWinner   bool      `json:"is_winner"`
	PrizeName  string    `json:"prize_name,omitempty"`
	Offline    bool      `json:"offline"`
	At         time.Time `json:"at"`
}

func (s *Server) broadcastDraw(activityID int64, res *lottery.DrawResult) {
	ev := drawEvent{
		ActivityID: activityID,
		Code:       res.Code.Code,
		IsWinner:   res.IsWinner,
		Offline:    res.Record.OperatorID != nil,
		At:         res.Record.CreatedAt,
	}
	if res.Prize != nil {
		ev.PrizeName = res.Prize.Name
	}
	payload, err := json.Marshal(WSMessage{Type: "draw", Data: ev})
	if err != nil {
		return
	}
	s.Hub.BroadcastToActivity(activityID, payload)
}
