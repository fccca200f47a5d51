package middleware

import "github.com/gin-gonic/gin"

// sessionIDKey is the Gin context key under which the chat session id is stored.
const sessionIDKey = "sessionID"

// SessionID stamps every request with the id of the chat session the process
// serves. Rate limiting, idempotency and access logs key on it.
func SessionID(id func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s := id(); s != "" {
			c.Set(sessionIDKey, s)
		}
		c.Next()
	}
}

// SessionIDFrom returns the session id set by SessionID, or "".
func SessionIDFrom(c *gin.Context) string {
	v, _ := c.Get(sessionIDKey)
	return asString(v)
}
