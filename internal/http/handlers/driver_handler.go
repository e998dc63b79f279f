// README: Driver handlers (earnings summary, listing, deletion).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/http/middleware"
	"taxihub/internal/modules/ledger"
	"taxihub/internal/types"
)

type DriverHandler struct {
	ledger *ledger.Service
}

func NewDriverHandler(svc *ledger.Service) *DriverHandler {
	return &DriverHandler{ledger: svc}
}

func (h *DriverHandler) MySummary(c *gin.Context) {
	sum, err := h.ledger.DriverSummary(c.Request.Context(), middleware.Session(c).ID)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sum)
}

func (h *DriverHandler) List(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.ledger.ListDrivers(c.Request.Context()))
}

func (h *DriverHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid driver id")
		return
	}
	if err := h.ledger.DeleteDriver(c.Request.Context(), types.ID(id)); err != nil {
		writeLedgerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
