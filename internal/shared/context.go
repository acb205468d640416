package shared

import (
	"context"

	"github.com/google/uuid"
)

type correlationContextKey struct{}

// ContextWithCorrelationID stores the request correlation id in context.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationContextKey{}, id)
}

// CorrelationID extracts the correlation id from context, minting one when
// the request carried none so audit records are always traceable.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationContextKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
