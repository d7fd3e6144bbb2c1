package authn

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"client_service/internal/lib/cookies"
	sl "client_service/internal/lib/logger"
	"client_service/internal/models"
	"client_service/internal/token"
)

type ctxKey struct{}

// Verifier checks a raw token and returns its claims.
type Verifier interface {
	Verify(raw string) (token.Claims, error)
}

// Resolver loads the user record named by validated claims.
type Resolver interface {
	ResolveUser(ctx context.Context, claims token.Claims) (models.User, error)
}

// UserFromContext returns the principal attached by one of the middlewares.
// For READ tokens the principal is the owner whose data is being viewed,
// not a distinct visitor identity.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(ctxKey{}).(models.User)
	return user, ok
}

func withUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, user)
}

// clearUser drops any principal a previous middleware may have attached.
func clearUser(ctx context.Context) context.Context {
	if _, ok := UserFromContext(ctx); !ok {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, nil)
}

// AccessRead authenticates requests carrying an ACCESS or READ token. It
// never terminates the request: on any failure the request simply proceeds
// unauthenticated and downstream handlers produce the visible rejection.
//
// A bearer Authorization header is preferred over the access_token cookie;
// REFRESH tokens presented here are silently ignored.
func AccessRead(log *slog.Logger, verifier Verifier, resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn.AccessRead"

			raw := candidateToken(r)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(raw)
			if err != nil {
				log.Debug("token rejected", slog.String("op", op), sl.Err(err))
				next.ServeHTTP(w, r.WithContext(clearUser(r.Context())))
				return
			}

			if kind := claims.Kind(); kind != token.KindAccess && kind != token.KindRead {
				next.ServeHTTP(w, r.WithContext(clearUser(r.Context())))
				return
			}

			user, err := resolver.ResolveUser(r.Context(), claims)
			if err != nil {
				log.Debug("principal not resolved", slog.String("op", op), sl.Err(err))
				next.ServeHTTP(w, r.WithContext(clearUser(r.Context())))
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// RefreshOnly authenticates from the refresh_token cookie and accepts only
// REFRESH tokens. It is mounted exclusively on the refresh and logout
// routes; everywhere else refresh tokens carry no authority.
func RefreshOnly(log *slog.Logger, verifier Verifier, resolver Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middleware.authn.RefreshOnly"

			cookie, err := r.Cookie(cookies.RefreshToken)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(cookie.Value)
			if err != nil || claims.Kind() != token.KindRefresh {
				if err != nil {
					log.Debug("refresh token rejected", slog.String("op", op), sl.Err(err))
				}
				next.ServeHTTP(w, r.WithContext(clearUser(r.Context())))
				return
			}

			user, err := resolver.ResolveUser(r.Context(), claims)
			if err != nil {
				log.Debug("principal not resolved", slog.String("op", op), sl.Err(err))
				next.ServeHTTP(w, r.WithContext(clearUser(r.Context())))
				return
			}

			next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
		})
	}
}

// candidateToken picks the token the request will be authenticated with:
// the bearer header when usable, else the access cookie, else none.
func candidateToken(r *http.Request) string {
	if tok := bearerToken(r); tok != "" {
		return tok
	}

	if cookie, err := r.Cookie(cookies.AccessToken); err == nil {
		return cookie.Value
	}

	return ""
}

// bearerToken extracts the Authorization bearer value. Blank values and the
// literal strings "null"/"undefined" are discarded; they show up when a
// frontend stringifies an absent token.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}

	tok := strings.TrimSpace(header[len("Bearer "):])
	if tok == "" || strings.EqualFold(tok, "null") || strings.EqualFold(tok, "undefined") {
		return ""
	}

	return tok
}
