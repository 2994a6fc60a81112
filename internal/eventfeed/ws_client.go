package eventfeed

import (
	"encoding/json"
	"io"
	"log"
	"sync"
	"time"

	"tutorhub/backend/internal/models"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

var newline = []byte{'\n'}

// WebSocketClient streams the events of one session to a websocket. The
// feed is read-only; anything the peer sends is discarded.
type WebSocketClient struct {
	UserID    string
	SessionID string
	Conn      *websocket.Conn
	Hub       *Hub
	Send      chan models.Event

	closeOnce sync.Once
}

func NewWebSocketClient(hub *Hub, conn *websocket.Conn, userID, sessionID string) *WebSocketClient {
	return &WebSocketClient{
		UserID:    userID,
		SessionID: sessionID,
		Conn:      conn,
		Hub:       hub,
		Send:      make(chan models.Event, 64),
	}
}

func (c *WebSocketClient) GetUserID() string                   { return c.UserID }
func (c *WebSocketClient) GetSessionID() string                { return c.SessionID }
func (c *WebSocketClient) GetSendChannel() chan<- models.Event { return c.Send }

// Run starts the read and write pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close stops the write pump, which closes the connection.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.Send) })
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WARNING: Event feed read error for %s: %v", c.UserID, err)
			}
			return
		}
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			if err := writeEvent(w, event); err != nil {
				log.Printf("ERROR: Failed to encode event %d for %s: %v", event.ID, c.UserID, err)
			}

			// Batch whatever is already queued into the same frame.
			n := len(c.Send)
			for i := 0; i < n; i++ {
				next, ok := <-c.Send
				if !ok {
					break
				}
				w.Write(newline)
				if err := writeEvent(w, next); err != nil {
					log.Printf("ERROR: Failed to encode queued event for %s: %v", c.UserID, err)
				}
			}

			if err := w.Close(); err != nil {
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

func writeEvent(w io.Writer, event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
