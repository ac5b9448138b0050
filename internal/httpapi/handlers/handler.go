package handlers

import (
	"context"
	"time"

	"github.com/suPer8Hu/chatapp/internal/chat"
	"github.com/suPer8Hu/chatapp/internal/inference"
	"github.com/suPer8Hu/chatapp/internal/logging"
	"github.com/suPer8Hu/chatapp/internal/usage"
)

var log = logging.For("handlers")

// TokenRevoker invalidates a token id until its natural expiry.
type TokenRevoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

type Handler struct {
	ChatSvc   *chat.Service
	Gateway   *inference.Gateway
	UsageRepo *usage.Repo
	Revoker   TokenRevoker
}

func NewHandler(chatSvc *chat.Service, gateway *inference.Gateway, usageRepo *usage.Repo, revoker TokenRevoker) *Handler {
	return &Handler{ChatSvc: chatSvc, Gateway: gateway, UsageRepo: usageRepo, Revoker: revoker}
}
