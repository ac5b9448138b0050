package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatapp/internal/common"
	"github.com/suPer8Hu/chatapp/internal/httpapi/middleware"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, http.StatusOK, gin.H{"pong": true})
}

func (h *Handler) Me(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	common.OK(c, http.StatusOK, who)
}

// Logout revokes the presented token for the rest of its lifetime.
func (h *Handler) Logout(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.Revoker == nil || who.TokenID == "" {
		log.WithField("user_id", who.UserID).Warn("logout without revocation store")
		c.Status(http.StatusNoContent)
		return
	}
	if err := h.Revoker.RevokeToken(c.Request.Context(), who.TokenID, time.Until(who.ExpiresAt)); err != nil {
		log.WithError(err).WithField("user_id", who.UserID).Error("revoke token failed")
		common.Fail(c, http.StatusInternalServerError, "logout failed")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Usage(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}
	totals, err := h.UsageRepo.TotalsForUser(c.Request.Context(), who.UserID)
	if err != nil {
		log.WithError(err).WithField("user_id", who.UserID).Error("usage totals failed")
		common.Fail(c, http.StatusInternalServerError, "failed to load usage")
		return
	}
	common.OK(c, http.StatusOK, totals)
}
