package clientfiles

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	clientsvc "client_service/internal/clients"
	resp "client_service/internal/lib/api/response"
	sl "client_service/internal/lib/logger"
	"client_service/internal/middleware/authn"
	"client_service/internal/storage"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
)

// Uploads above this size are rejected before parsing.
const maxImportSize = 10 << 20

// Export streams the caller's full client list as a CSV attachment. Rows
// are written as storage produces them; an aborted download just stops the
// cursor.
func Export(log *slog.Logger, service *clientsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.clientfiles.Export"

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

		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", `attachment; filename="clients.csv"`)

		if err := service.ExportCSV(r.Context(), user, w); err != nil {
			// Headers are already on the wire; all we can do is log.
			log.Error("csv export aborted", sl.Err(err))
			return
		}

		log.Info("clients exported", slog.Int64("uid", user.ID))
	}
}

// Import reads the uploaded CSV (multipart field "file") and persists all
// rows atomically.
func Import(log *slog.Logger, service *clientsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.clientfiles.Import"

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

		file, _, err := r.FormFile("file")
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Missing file upload"))

			return
		}
		defer file.Close()

		// Read one byte past the limit so truncation is detectable.
		data, err := io.ReadAll(io.LimitReader(file, maxImportSize+1))
		if err != nil {
			log.Error("failed to read upload", sl.Err(err))

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Failed to read file"))

			return
		}

		if len(data) > maxImportSize {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("File too large"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		if err := service.ImportCSV(ctx, data, user); err != nil {
			translateError(w, r, log, err)
			return
		}

		log.Info("clients imported", slog.Int64("uid", user.ID))

		render.JSON(w, r, resp.OK())
	}
}

func translateError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, clientsvc.ErrEmptyFile):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("Empty file"))
	case errors.Is(err, clientsvc.ErrBadFile):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error(err.Error()))
	case errors.Is(err, storage.ErrConstraintViolation):
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("Duplicated unique fields: "+err.Error()))
	default:
		log.Error("csv import failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error("Internal error"))
	}
}
