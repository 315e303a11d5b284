package redirect

import (
	"strings"

	"github.com/aircare/otpauth/identity"
)

// Routes names the destinations the guard and the authentication flow navigate to.
type Routes struct {
	LoginPath      string
	AdminLoginPath string
	AppHome        string
	AdminHome      string
}

// DefaultRoutes returns the storefront's standard route table.
func DefaultRoutes() Routes {
	return Routes{
		LoginPath:      "/login",
		AdminLoginPath: "/admin/login",
		AppHome:        "/",
		AdminHome:      "/admin/dashboard",
	}
}

// HomeFor returns the landing page of a freshly authenticated role.
func (r Routes) HomeFor(role identity.Role) string {
	switch role {
	case identity.RoleAdmin:
		return r.AdminHome
	case identity.RoleUser:
		return r.AppHome
	default:
		return r.AppHome
	}
}

// IsLoginPath reports whether target points at either login destination.
// The query string and a trailing slash are ignored.
func (r Routes) IsLoginPath(target string) bool {
	p := pathOnly(target)
	return p == pathOnly(r.LoginPath) || p == pathOnly(r.AdminLoginPath)
}

func pathOnly(target string) string {
	if i := strings.IndexAny(target, "?#"); i >= 0 {
		target = target[:i]
	}
	if len(target) > 1 {
		target = strings.TrimRight(target, "/")
		if target == "" {
			target = "/"
		}
	}
	return target
}

// LocalPath reports whether target is a same-origin absolute path.
func LocalPath(target string) bool {
	if !strings.HasPrefix(target, "/") {
		return false
	}
	return !strings.HasPrefix(target, "//") && !strings.HasPrefix(target, `/\`)
}
