package realtime

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

var broadcaster *Broadcaster

// Use wires the websocket handler to a broadcaster. Called once from main.
func Use(b *Broadcaster) {
	broadcaster = b
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// NegotiationWS - websocket stream for a negotiation: snapshot event
// first, then status and message deltas. Subscription failures surface as
// a terminal error event on the socket rather than a bare close.
func NegotiationWS(c echo.Context) error {
	actorID, ok := c.Get("user_id").(string)
	if !ok || actorID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	negotiationID := c.Param("id")
	if negotiationID == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing negotiation id"})
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	sub, err := broadcaster.Subscribe(c.Request().Context(), negotiationID, actorID)
	if err != nil {
		_ = ws.WriteJSON(Event{Type: "error", Data: echo.Map{"error": err.Error()}})
		_ = ws.Close()
		return nil
	}

	// Writer: pump stream events to the socket.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range sub.Events() {
			if err := ws.WriteJSON(evt); err != nil {
				return
			}
		}
	}()

	// Read loop: the protocol is server push; client frames are discarded
	// and a read error means the peer went away.
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	sub.Close()
	_ = ws.Close()
	<-done
	return nil
}
