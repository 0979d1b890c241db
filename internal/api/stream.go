package api

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"journez/backend/internal/recommend"
)

// Stream event types, in emission order.
const (
	eventStarted   = "started"
	eventGenerated = "generated"
	eventProgress  = "progress"
	eventComplete  = "complete"
	eventError     = "error"
)

// RunEvent describes websocket payloads emitted while a request runs.
type RunEvent struct {
	Type      string            `json:"type"`
	RequestID string            `json:"request_id,omitempty"`
	Items     int               `json:"items,omitempty"`
	Total     int               `json:"total,omitempty"`
	Processed int               `json:"processed,omitempty"`
	Result    *recommend.Result `json:"result,omitempty"`
	Message   string            `json:"message,omitempty"`
	Status    int               `json:"status,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// wsClient wraps a websocket connection with write locking.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) send(event RunEvent) error {
	event.Timestamp = time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteJSON(event)
}

// hooks forwards pipeline milestones to the client. Write failures are
// ignored here; the read loop notices the closed socket.
func (c *wsClient) hooks() recommend.Hooks {
	var requestID string
	return recommend.Hooks{
		Started: func(id string) {
			requestID = id
			_ = c.send(RunEvent{Type: eventStarted, RequestID: id})
		},
		Generated: func(id string, items int) {
			_ = c.send(RunEvent{Type: eventGenerated, RequestID: id, Items: items})
		},
		Progress: func(done, total int) {
			_ = c.send(RunEvent{Type: eventProgress, RequestID: requestID, Processed: done, Total: total})
		},
	}
}
