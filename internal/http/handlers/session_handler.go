// README: Session handlers for login/register, current identity and logout.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/ledger"
	"taxihub/internal/types"
)

type SessionHandler struct {
	ledger *ledger.Service
}

func NewSessionHandler(svc *ledger.Service) *SessionHandler {
	return &SessionHandler{ledger: svc}
}

type loginReq struct {
	Role  string `json:"role"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *SessionHandler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	sess, err := h.ledger.LoginOrRegister(c.Request.Context(), ledger.LoginCommand{
		Role:  types.Role(req.Role),
		Name:  req.Name,
		Email: req.Email,
	})
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

func (h *SessionHandler) Get(c *gin.Context) {
	sess, err := h.ledger.CurrentSession(c.Request.Context())
	if err != nil {
		writeLedgerError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sess)
}

func (h *SessionHandler) Logout(c *gin.Context) {
	if err := h.ledger.Logout(c.Request.Context()); err != nil {
		writeLedgerError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
