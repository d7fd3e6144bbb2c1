package refresh

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"client_service/internal/auth"
	resp "client_service/internal/lib/api/response"
	"client_service/internal/lib/cookies"
	sl "client_service/internal/lib/logger"
	"client_service/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
}

// New returns the refresh handler. The principal is attached by the
// refresh-only middleware; its absence means the refresh cookie was
// missing, expired or of the wrong kind.
func New(
	log *slog.Logger,
	authService *auth.Auth,
	accessTTL time.Duration,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.refresh.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, ok := authn.UserFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Invalid refresh token"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		accessToken, err := authService.Refresh(ctx, user)
		if err != nil {
			log.Error("failed to refresh access token", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		http.SetCookie(w, cookies.New(cookies.AccessToken, accessToken, accessTTL))

		log.Info("access token refreshed", slog.Int64("uid", user.ID))

		render.JSON(w, r, Response{Response: resp.OK()})
	}
}
