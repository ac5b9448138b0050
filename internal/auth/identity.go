package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/chatapp/internal/common"
	"github.com/suPer8Hu/chatapp/internal/models"
	"gorm.io/gorm"
)

// Identity is the authenticated caller, resolved once per request and passed
// explicitly to every data access call.
type Identity struct {
	UserID     string    `json:"id"`
	ExternalID string    `json:"externalAuthId"`
	Email      string    `json:"email"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	TokenID    string    `json:"-"`
	ExpiresAt  time.Time `json:"-"`
}

type Resolver interface {
	Resolve(ctx context.Context, bearer string) (Identity, error)
}

type UserLookup interface {
	GetByExternalAuthID(ctx context.Context, externalID string) (*models.User, error)
}

// RevocationChecker reports tokens that were logged out before expiry.
type RevocationChecker interface {
	IsTokenRevoked(ctx context.Context, jti string) (bool, error)
}

type TokenResolver struct {
	secret  string
	users   UserLookup
	revoked RevocationChecker
}

// NewTokenResolver builds a resolver; revoked may be nil.
func NewTokenResolver(secret string, users UserLookup, revoked RevocationChecker) *TokenResolver {
	return &TokenResolver{secret: secret, users: users, revoked: revoked}
}

func (r *TokenResolver) Resolve(ctx context.Context, bearer string) (Identity, error) {
	bearer = strings.TrimSpace(bearer)
	if bearer == "" {
		return Identity{}, common.Unauthorized("missing token")
	}
	claims, err := Parse(r.secret, bearer)
	if err != nil {
		return Identity{}, &common.Error{Kind: common.KindAuth, Msg: "invalid token", Err: err}
	}

	if r.revoked != nil && claims.ID != "" {
		revoked, err := r.revoked.IsTokenRevoked(ctx, claims.ID)
		if err != nil {
			return Identity{}, common.Persistence("token check failed", err)
		}
		if revoked {
			return Identity{}, common.Unauthorized("token revoked")
		}
	}

	u, err := r.users.GetByExternalAuthID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Identity{}, common.Unauthorized("unknown user")
		}
		return Identity{}, common.Persistence("user lookup failed", err)
	}

	id := Identity{
		UserID:     u.ID,
		ExternalID: u.ExternalAuthID,
		Email:      u.Email,
		Name:       u.DisplayName(),
		Role:       u.Role,
		TokenID:    claims.ID,
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
