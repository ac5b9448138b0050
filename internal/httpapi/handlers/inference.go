package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatapp/internal/common"
	"github.com/suPer8Hu/chatapp/internal/httpapi/middleware"
	"github.com/suPer8Hu/chatapp/internal/inference"
	"github.com/suPer8Hu/chatapp/internal/stream"
)

// Chat streams a model reply. Failures before the first byte are JSON
// envelopes; after that they arrive as error events in the stream.
func (h *Handler) Chat(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req inference.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}

	ctx := c.Request.Context()
	turn, err := h.Gateway.Prepare(ctx, who, req)
	if err != nil {
		if common.KindOf(err) == common.KindUnknown || common.KindOf(err) == common.KindPersistence {
			log.WithError(err).WithField("session_id", req.SessionID).Error("prepare chat turn failed")
		}
		common.FailErr(c, err)
		return
	}

	stream.SetHeaders(c.Writer.Header())
	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)
	c.Writer.WriteHeaderNow()

	_ = turn.Run(ctx, stream.NewWriter(c.Writer))
}
