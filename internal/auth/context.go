package auth

import "context"

type ctxKey struct{}

// WithAuthorized returns a copy of ctx carrying the authorization flag.
func WithAuthorized(ctx context.Context, authorized bool) context.Context {
	return context.WithValue(ctx, ctxKey{}, authorized)
}

// IsAuthorized reports the flag set by the transport. A context that never
// went through the middleware is not authorized.
func IsAuthorized(ctx context.Context) bool {
	v, ok := ctx.Value(ctxKey{}).(bool)
	return ok && v
}
