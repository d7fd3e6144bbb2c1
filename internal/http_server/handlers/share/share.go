package share

import (
	"log/slog"
	"net/http"

	"client_service/internal/auth"
	resp "client_service/internal/lib/api/response"
	sl "client_service/internal/lib/logger"
	"client_service/internal/middleware/authn"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

type Response struct {
	resp.Response
	ShareLink string `json:"shareLink"`
}

// New returns the share handler: a visitor URL carrying a read-only token
// for the caller's client list.
func New(log *slog.Logger, authService *auth.Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.share.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		user, ok := authn.UserFromContext(r.Context())
		if !ok {
			render.Status(r, http.StatusUnauthorized)
			render.JSON(w, r, resp.Error("Authentication required"))

			return
		}

		link, err := authService.ShareLink(user)
		if err != nil {
			log.Error("failed to build share link", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		log.Info("share link issued", slog.Int64("uid", user.ID))

		render.JSON(w, r, Response{
			Response:  resp.OK(),
			ShareLink: link,
		})
	}
}
