// README: Session guard; resolves the active ledger session and enforces the caller's role.
package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"taxihub/internal/modules/ledger"
	"taxihub/internal/types"
)

const sessionKey = "taxihub.session"

type SessionSource interface {
	CurrentSession(ctx context.Context) (ledger.Session, error)
}

// RequireRole aborts with 401 when nobody is logged in and 403 when the
// session belongs to another role. On success the session is stored on the
// gin context for Session.
func RequireRole(src SessionSource, role types.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, err := src.CurrentSession(c.Request.Context())
		if err != nil {
			if errors.Is(err, ledger.ErrNoSession) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		if sess.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": string(role) + " session required"})
			return
		}
		c.Set(sessionKey, sess)
		c.Next()
	}
}

// Session returns the session stored by RequireRole, or the zero value.
func Session(c *gin.Context) ledger.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return ledger.Session{}
	}
	sess, _ := v.(ledger.Session)
	return sess
}
