package auth

import (
	"context"

	"github.com/frahmantamala/leave-portal/internal"
	"github.com/frahmantamala/leave-portal/internal/core/user"
)

type ctxKey string

const ContextUserKey ctxKey = "user"

// ContextWithUser stores the authenticated user and mirrors its id and role
// into the generic request context keys.
func ContextWithUser(ctx context.Context, u *user.User) context.Context {
	ctx = context.WithValue(ctx, ContextUserKey, u)
	ctx = internal.ContextWithUserID(ctx, u.ID)
	return internal.ContextWithRole(ctx, string(u.Role))
}

func UserFromContext(ctx context.Context) (*user.User, bool) {
	if ctx == nil {
		return nil, false
	}
	u, ok := ctx.Value(ContextUserKey).(*user.User)
	return u, ok && u != nil
}
