package middleware

import (
	"net/http"

	"github.com/aircare/otpauth"
	"github.com/aircare/otpauth/guard"
)

// RequireAuthenticated admits any signed-in client.
func RequireAuthenticated(engine *otpauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, guard.AnyAuthenticated)
}

// RequireUser admits regular users only; admins are sent to the app home.
func RequireUser(engine *otpauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, guard.UserOnly)
}

// RequireAdmin admits admins only. Anonymous clients go to the admin login.
func RequireAdmin(engine *otpauth.Engine) func(http.Handler) http.Handler {
	return Guard(engine, guard.AdminOnly)
}
