package seo

import "context"

type ctxKey int

const (
	userIDKey ctxKey = iota
	restoringKey
)

// WithUserID attributes work done with ctx to a user.
func WithUserID(ctx context.Context, userID int64) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext returns the acting user, or nil for system-triggered work.
func UserIDFromContext(ctx context.Context) *int64 {
	id, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return nil
	}
	return &id
}

// withRestoring marks ctx as belonging to an in-flight restore or import.
// Auto-capture is suppressed for the lifetime of that ctx only.
func withRestoring(ctx context.Context) context.Context {
	return context.WithValue(ctx, restoringKey, true)
}

// IsRestoring reports whether ctx belongs to an in-flight restore or import.
func IsRestoring(ctx context.Context) bool {
	v, _ := ctx.Value(restoringKey).(bool)
	return v
}
