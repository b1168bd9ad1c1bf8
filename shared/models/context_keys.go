package models

import "context"

// contextKey - приватный тип для ключей контекста, чтобы избежать коллизий.
type contextKey string

const (
	// IdentityContextKey хранит *IdentityClaims в context.Context запроса.
	IdentityContextKey contextKey = "identity"

	// GinIdentityKey is the gin.Context key holding *IdentityClaims.
	GinIdentityKey = "identity"
	// GinCorrelationIDKey is the gin.Context key holding the correlation id.
	GinCorrelationIDKey = "correlation_id"
)

// WithIdentity returns a copy of ctx carrying the identity.
func WithIdentity(ctx context.Context, claims *IdentityClaims) context.Context {
	return context.WithValue(ctx, IdentityContextKey, claims)
}

// IdentityFromContext извлекает identity из контекста.
func IdentityFromContext(ctx context.Context) (*IdentityClaims, bool) {
	claims, ok := ctx.Value(IdentityContextKey).(*IdentityClaims)
	return claims, ok && claims != nil
}
