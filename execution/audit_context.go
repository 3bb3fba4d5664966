package execution

import (
	"context"

	"github.com/northbeam/tickengine/models"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

const (
	// auditIPKey is the context key for the requestor IP address, or the
	// string "instance" for a fill Settlement books on an instance's
	// behalf rather than in response to an HTTP request.
	auditIPKey contextKey = "audit_ip"
	// auditKeyIDKey is the context key for the API key identifier, or
	// the originating instance's canonical key string for an
	// engine-submitted fill.
	auditKeyIDKey contextKey = "audit_key_id"
)

// auditIPFromCtx extracts the requestor IP from context.
// Returns "unknown" if not present.
func auditIPFromCtx(ctx context.Context) string {
	if ip, ok := ctx.Value(auditIPKey).(string); ok {
		return ip
	}
	return "unknown"
}

// auditKeyIDFromCtx extracts the API key identifier from context.
// Returns "unknown" if not present.
func auditKeyIDFromCtx(ctx context.Context) string {
	if keyID, ok := ctx.Value(auditKeyIDKey).(string); ok {
		return keyID
	}
	return "unknown"
}

// NewInstanceContext creates an order-submission context attributing the
// order to the tick instance that produced it, so OrderManager's audit
// log traces an engine-booked fill back to the (symbol, strategy,
// exchange, frame, mode) instance that closed or opened, the same way it
// traces an HTTP-submitted order back to an API key.
func NewInstanceContext(key models.InstanceKey) context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, auditIPKey, "instance")
	ctx = context.WithValue(ctx, auditKeyIDKey, key.String())
	return ctx
}
