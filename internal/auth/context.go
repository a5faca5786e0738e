package auth

import "context"

type contextKey struct{}

// AuthContext identifies the principals attached to a request. Either field
// may be empty; the member and admin scopes are independent.
type AuthContext struct {
	MemberID      string
	AdminUsername string
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func MemberID(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.MemberID
}

func AdminUsername(ctx context.Context) string {
	ac, _ := FromContext(ctx)
	return ac.AdminUsername
}

func IsAdmin(ctx context.Context) bool {
	return AdminUsername(ctx) != ""
}
