package auth

import "context"

type contextKey struct{}

// Caller is the resolved identity behind an inbound command.
type Caller struct {
	UserID      int64
	BotIdentity string
	Decision    Decision
}

func WithCaller(ctx context.Context, c Caller) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

func FromContext(ctx context.Context) (Caller, bool) {
	c, ok := ctx.Value(contextKey{}).(Caller)
	return c, ok
}

func BotIdentity(ctx context.Context) string {
	c, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return c.BotIdentity
}

// GrantReason returns the grant the caller was admitted under, or ReasonDenied.
func GrantReason(ctx context.Context) Reason {
	c, ok := FromContext(ctx)
	if !ok {
		return ReasonDenied
	}
	return c.Decision.Reason
}
