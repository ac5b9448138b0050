package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatapp/internal/auth"
	"github.com/suPer8Hu/chatapp/internal/common"
	"github.com/suPer8Hu/chatapp/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatapp/internal/httpapi/middleware"
)

// NewRouter wires the API. corsOrigins lists browser origins allowed to call
// it; nil disables CORS handling and "*" allows any origin.
func NewRouter(h *handlers.Handler, resolver auth.Resolver, corsOrigins []string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog())
	if len(corsOrigins) > 0 {
		r.Use(corsMiddleware(corsOrigins))
	}

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	api := r.Group("/api")
	api.Use(middleware.AuthRequired(resolver))

	api.GET("/me", h.Me)
	api.POST("/auth/logout", h.Logout)
	api.GET("/usage", h.Usage)

	// Chat
	api.POST("/chat/sessions", h.CreateChatSession)
	api.GET("/chat/sessions", h.ListChatSessions)
	api.GET("/chat/sessions/:id/messages", h.ListChatMessages)
	api.POST("/chat", h.Chat)
	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders: []string{"X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
