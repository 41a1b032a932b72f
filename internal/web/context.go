package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/listsync/internal/core"
)

// withTrigger records the requesting client on ctx so runs can be traced
// back to who started them.
func withTrigger(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithTrigger(ctx, core.Trigger{
		Source:    "http",
		IPAddress: r.RemoteAddr, // Already processed by TrustedRealIP
		UserAgent: r.UserAgent(),
	})
}
