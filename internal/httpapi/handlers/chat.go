package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/chatapp/internal/common"
	"github.com/suPer8Hu/chatapp/internal/httpapi/middleware"
)

type createSessionReq struct {
	Title          string `json:"title"`
	InitialMessage string `json:"initialMessage"`
}

func (h *Handler) CreateChatSession(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req createSessionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Title == "" && req.InitialMessage == "" {
		common.Fail(c, http.StatusBadRequest, "title or initialMessage is required")
		return
	}

	res := h.ChatSvc.CreateChatSession(c.Request.Context(), who, req.Title, req.InitialMessage)
	if !res.Success {
		common.FailErr(c, res.Err())
		return
	}
	common.OK(c, http.StatusCreated, res.Data)
}

func (h *Handler) ListChatSessions(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	res := h.ChatSvc.ListChatSessions(c.Request.Context(), who)
	if !res.Success {
		common.FailErr(c, res.Err())
		return
	}
	common.OK(c, http.StatusOK, res.Data)
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	who, ok := middleware.IdentityFrom(c)
	if !ok {
		common.Fail(c, http.StatusUnauthorized, "unauthorized")
		return
	}

	sessionID := strings.TrimSpace(c.Param("id"))
	if sessionID == "" {
		common.Fail(c, http.StatusBadRequest, "session id is required")
		return
	}

	res := h.ChatSvc.ListChatMessages(c.Request.Context(), sessionID, who)
	if !res.Success {
		common.FailErr(c, res.Err())
		return
	}
	common.OK(c, http.StatusOK, res.Data)
}
