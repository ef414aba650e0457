package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"bracket-core/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// pushTopics are the bus topics streamed to websocket clients.
var pushTopics = []events.Event{
	events.EventConnected,
	events.EventConnectionLost,
	events.EventReconnectStarted,
	events.EventReconnectFailed,
	events.EventReconnectSucceeded,
	events.EventReconnectExhausted,
	events.EventOrderStatus,
	events.EventOrderRejected,
	events.EventBracketPlaced,
	events.EventBracketCancelled,
	events.EventPriceAlert,
	events.EventMonitorTick,
}

type wsEnvelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	// Fan all topics into one channel; the single writer goroutine is the
	// websocket contract, so subscriptions never write directly.
	merged := make(chan wsEnvelope, 100)
	done := make(chan struct{})
	defer close(done)

	for _, topic := range pushTopics {
		sub := s.Bus.Subscribe(topic, 100)
		go func(topic events.Event, sub *events.Subscription) {
			defer sub.Close()
			for {
				select {
				case <-done:
					return
				case msg, ok := <-sub.C:
					if !ok {
						return
					}
					select {
					case merged <- wsEnvelope{Topic: string(topic), Payload: msg}:
					case <-done:
						return
					}
				}
			}
		}(topic, sub)
	}

	for env := range merged {
		if err := conn.WriteJSON(env); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
