package logout

import (
	"log/slog"
	"net/http"

	resp "client_service/internal/lib/api/response"
	"client_service/internal/lib/cookies"
	"client_service/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

// New returns the logout handler: both token cookies are expired. Tokens
// themselves stay valid until their TTL runs out; there is no server-side
// revocation store.
func New(log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.logout.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		http.SetCookie(w, cookies.Expire(cookies.AccessToken))
		http.SetCookie(w, cookies.Expire(cookies.RefreshToken))

		if user, ok := authn.UserFromContext(r.Context()); ok {
			log.Info("user logged out", slog.Int64("uid", user.ID))
		} else {
			log.Info("logout without valid refresh token")
		}

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
