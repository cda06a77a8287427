package middleware

import "context"

type principalCtxKey struct{}

// Principal is the authenticated admin caller.
type Principal struct {
	Subject string
	Role    string
	Dev     bool
}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey{}, p)
}

func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(Principal)
	return p, ok
}
