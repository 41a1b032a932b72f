package core

import "context"

type contextKey string

const ctxKeyTrigger contextKey = "sync_trigger"

// Trigger records who started a run. The HTTP layer stores it in the
// request context; the CLI marks its runs with Source "cli".
type Trigger struct {
	Source    string `json:"source"`
	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

// ContextWithTrigger adds trigger metadata to ctx.
func ContextWithTrigger(ctx context.Context, t Trigger) context.Context {
	return context.WithValue(ctx, ctxKeyTrigger, t)
}

// TriggerFromContext extracts trigger metadata, defaulting Source to "unknown".
func TriggerFromContext(ctx context.Context) Trigger {
	if t, ok := ctx.Value(ctxKeyTrigger).(Trigger); ok {
		return t
	}
	return Trigger{Source: "unknown"}
}
