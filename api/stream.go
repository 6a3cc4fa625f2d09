package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/bhargavap21/tradeforge/logger"
	"github.com/bhargavap21/tradeforge/workflow"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin enforcement belongs to the fronting auth/transport layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleProgressStream Open the progress stream for a session (spec.md §6
// endpoint 2): replay buffered events, emit a ready sentinel, then stream
// live events until the terminal event, yielding briefly before close.
//
// The handler follows the session's history by index and uses the live
// channel only as a wake signal, so a late joiner observes exactly the
// buffered prefix plus the live suffix — no duplicates, no gaps (spec.md
// §8 "Event ordering & terminality").
func (s *Server) handleProgressStream(c *gin.Context) {
	sessionID := c.Param("id")
	session, ok := s.engine.Session(sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("websocket upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	sent := 0
	terminal := false
	flush := func() bool {
		history := session.History()
		for _, evt := range history[sent:] {
			if err := conn.WriteJSON(evt); err != nil {
				// Consumer disconnects stop emission but never abort the
				// workflow (spec.md §5); results stay fetchable for 24h.
				return false
			}
			sent++
			if evt.Type == workflow.EventComplete || evt.Type == workflow.EventError {
				terminal = true
			}
		}
		return true
	}

	if !flush() {
		return
	}
	if terminal {
		time.Sleep(100 * time.Millisecond)
		return
	}

	// Replay finished; mark the live boundary.
	if err := conn.WriteJSON(workflow.Event{Type: workflow.EventReady, SessionID: sessionID, Timestamp: time.Now()}); err != nil {
		return
	}

	for {
		_, chOk := <-session.Events()
		if !flush() {
			return
		}
		if terminal || !chOk {
			break
		}
	}

	// Terminal event grace: give the consumer a beat to read the final
	// frame before the close handshake (spec.md §4.7).
	time.Sleep(100 * time.Millisecond)
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "workflow finished"))
}
