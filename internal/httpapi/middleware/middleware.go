package middleware

import (
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/common"
	"github.com/suPer8Hu/chatapp/internal/logging"
)

const (
	RequestIDKey    = "request_id"
	RequestIDHeader = "X-Request-ID"
	identityKey     = "identity"
)

var log = logging.For("http")

// Recovery turns a panic into a 500 envelope instead of a dropped connection.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.WithField(RequestIDKey, c.GetString(RequestIDKey)).
					WithField("panic", r).
					WithField("stack", string(debug.Stack())).
					Error("panic recovered")
				common.AbortFail(c, http.StatusInternalServerError, "internal error")
			}
		}()
		c.Next()
	}
}

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(RequestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithField(RequestIDKey, c.GetString(RequestIDKey)).
			WithField("method", c.Request.Method).
			WithField("path", c.FullPath()).
			WithField("status", c.Writer.Status()).
			WithField("latency", time.Since(start).String())
		if id, ok := IdentityFrom(c); ok {
			entry = entry.WithField("user_id", id.UserID)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request")
			return
		}
		entry.Info("request")
	}
}

// AuthRequired resolves the bearer token once and stores the identity for
// handlers to read with IdentityFrom.
func AuthRequired(resolver auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, found := strings.CutPrefix(h, "Bearer ")
		if !found || strings.TrimSpace(token) == "" {
			common.AbortFail(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		id, err := resolver.Resolve(c.Request.Context(), token)
		if err != nil {
			kind := common.KindOf(err)
			if kind == common.KindAuth {
				common.AbortFail(c, http.StatusUnauthorized, "unauthorized")
				return
			}
			log.WithError(err).WithField(RequestIDKey, c.GetString(RequestIDKey)).Error("identity resolution failed")
			common.AbortFail(c, common.HTTPStatus(kind), "internal error")
			return
		}
		c.Set(identityKey, id)
		c.Next()
	}
}

func IdentityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	id, ok := v.(auth.Identity)
	return id, ok && id.UserID != ""
}

// WithIdentity stores id on the context; used by tests and trusted callers.
func WithIdentity(c *gin.Context, id auth.Identity) {
	c.Set(identityKey, id)
}
