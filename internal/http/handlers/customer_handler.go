// README: Customer handlers (own ride history, listing, deletion).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/http/middleware"
	"taxihub/internal/modules/ledger"
	"taxihub/internal/types"
)

type CustomerHandler struct {
	ledger *ledger.Service
}

func NewCustomerHandler(svc *ledger.Service) *CustomerHandler {
	return &CustomerHandler{ledger: svc}
}

func (h *CustomerHandler) MyRides(c *gin.Context) {
	rides, err := h.ledger.CustomerRides(c.Request.Context(), middleware.Session(c).ID)
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rides)
}

func (h *CustomerHandler) List(c *gin.Context) {
	writeJSON(c, http.StatusOK, h.ledger.ListCustomers(c.Request.Context()))
}

func (h *CustomerHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid customer id")
		return
	}
	if err := h.ledger.DeleteCustomer(c.Request.Context(), types.ID(id)); err != nil {
		writeLedgerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
