// README: Base handler utilities (JSON helpers, ledger error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/ledger"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeLedgerError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ledger.ErrBadRequest), errors.Is(err, ledger.ErrInvalidRating):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrNoSession):
		writeError(c, http.StatusUnauthorized, err.Error())
	case errors.Is(err, ledger.ErrDriverNotFound),
		errors.Is(err, ledger.ErrCustomerNotFound),
		errors.Is(err, ledger.ErrRideNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, ledger.ErrAlreadyRated), errors.Is(err, ledger.ErrHasRides):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// isValidID accepts the ids the ledger hands out: seed ids, counter ids and
// prefixed UUIDs.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}
