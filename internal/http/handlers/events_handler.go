// README: Event handlers (ledger event log and websocket stream).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/events"
	"taxihub/internal/modules/ledger"
)

type EventsHandler struct {
	ledger *ledger.Service
	hub    *events.Hub
}

func NewEventsHandler(svc *ledger.Service, hub *events.Hub) *EventsHandler {
	return &EventsHandler{ledger: svc, hub: hub}
}

func (h *EventsHandler) Log(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.ledger.Events(c.Request.Context()))
}

func (h *EventsHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		writeError(c, http.StatusServiceUnavailable, "event stream disabled")
		return
	}
	h.hub.ServeWS(c.Writer, c.Request)
}
