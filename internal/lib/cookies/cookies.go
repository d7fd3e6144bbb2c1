package cookies

import (
	"net/http"
	"time"
)

const (
	AccessToken  = "access_token"
	RefreshToken = "refresh_token"
)

// New builds a hardened token cookie: HttpOnly, Secure, SameSite=Lax,
// rooted at /.
func New(name, value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Expire returns a cookie that instructs the browser to drop name
// immediately (Max-Age=0).
func Expire(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	}
}
