package middleware

import (
	"net/http"

	"github.com/aircare/otpauth"
)

// Client attaches the request's [otpauth.Client] to the request context. A missing
// or malformed client cookie is replaced by a fresh ID.
func Client(engine *otpauth.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, ok := resolveClient(engine, w, r)
			if !ok {
				http.Error(w, "service unavailable", http.StatusServiceUnavailable)
				return
			}
			next.ServeHTTP(w, r.WithContext(otpauth.WithClient(r.Context(), c)))
		})
	}
}

func resolveClient(engine *otpauth.Engine, w http.ResponseWriter, r *http.Request) (*otpauth.Client, bool) {
	if c, ok := otpauth.ClientFromContext(r.Context()); ok {
		return c, true
	}
	if engine == nil {
		return nil, false
	}

	cfg := engine.Config().Session
	if cookie, err := r.Cookie(cfg.ClientCookie); err == nil {
		if c, err := engine.Client(cookie.Value); err == nil {
			return c, true
		}
	}

	id := otpauth.NewClientID()
	c, err := engine.Client(id)
	if err != nil {
		return nil, false
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cfg.ClientCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cfg.ClientTTL.Seconds()),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return c, true
}
