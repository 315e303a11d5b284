package middleware

import (
	"context"
	"net/http"

	"github.com/aircare/otpauth"
	"github.com/aircare/otpauth/guard"
	"github.com/aircare/otpauth/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session snapshot a [Guard] admitted the request with.
func SessionFromContext(ctx context.Context) (session.Snapshot, bool) {
	snap, ok := ctx.Value(sessionContextKey{}).(session.Snapshot)
	return snap, ok
}

// Guard admits requests whose session satisfies capability.
func Guard(engine *otpauth.Engine, capability guard.Capability) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := resolveClient(engine, w, r)
			if !ok {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}

			// A failed remember still yields a usable decision.
			d, _ := engine.Authorize(r.Context(), c, capability, r.URL.RequestURI())

			switch d.Action {
			case guard.Render:
				ctx := otpauth.WithClient(r.Context(), c)
				ctx = context.WithValue(ctx, sessionContextKey{}, c.Session.Snapshot())
				next.ServeHTTP(w, r.WithContext(ctx))
			case guard.Redirect:
				w.Header().Set("Cache-Control", "no-store")
				http.Redirect(w, r, d.Location, http.StatusSeeOther)
			default:
				w.Header().Set("Retry-After", "1")
				http.Error(w, "session loading", http.StatusServiceUnavailable)
			}
		})
	}
}
