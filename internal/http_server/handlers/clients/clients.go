package clients

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	clientsvc "client_service/internal/clients"
	resp "client_service/internal/lib/api/response"
	sl "client_service/internal/lib/logger"
	"client_service/internal/middleware/authn"
	"client_service/internal/models"
	"client_service/internal/storage"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

type Request struct {
	Name  string `json:"name" validate:"required,min=3,max=40"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone" validate:"required,numeric,min=10,max=11"`
}

type Item struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type ListResponse struct {
	resp.Response
	Items []Item `json:"items"`
	Total int64  `json:"total"`
}

const dateLayout = "2006-01-02"

// Create handles POST: a new client owned by the caller.
func Create(
	log *slog.Logger,
	validate *validator.Validate,
	service *clientsvc.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.clients.Create"

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

		req, ok := decodeRequest(w, r, log, validate)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		id, err := service.Create(ctx, clientsvc.ClientData(req), user)
		if err != nil {
			translateError(w, r, log, err)
			return
		}

		log.Info("client created", slog.Int64("client_id", id))

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, resp.OK())
	}
}

// List handles GET: one page of the caller's clients, optionally filtered.
// Works for both owner sessions and read-only visitor tokens.
func List(log *slog.Logger, service *clientsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.clients.List"

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

		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		search := r.URL.Query().Get("search")

		items, total, err := service.List(r.Context(), user, page, search)
		if err != nil {
			log.Error("failed to list clients", sl.Err(err))

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, resp.Error("Internal error"))

			return
		}

		render.JSON(w, r, ListResponse{
			Response: resp.OK(),
			Items:    toItems(items),
			Total:    total,
		})
	}
}

// Update handles PATCH /{id}.
func Update(
	log *slog.Logger,
	validate *validator.Validate,
	service *clientsvc.Service,
) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.clients.Update"

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

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid client id"))

			return
		}

		req, ok := decodeRequest(w, r, log, validate)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := service.Update(ctx, id, clientsvc.ClientData(req), user); err != nil {
			translateError(w, r, log, err)
			return
		}

		log.Info("client updated", slog.Int64("client_id", id))

		render.JSON(w, r, resp.OK())
	}
}

// Delete handles DELETE /{id}.
func Delete(log *slog.Logger, service *clientsvc.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.clients.Delete"

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

		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, resp.Error("Invalid client id"))

			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := service.Delete(ctx, id, user); err != nil {
			translateError(w, r, log, err)
			return
		}

		log.Info("client deleted", slog.Int64("client_id", id))

		render.JSON(w, r, resp.OK())
	}
}

func decodeRequest(
	w http.ResponseWriter,
	r *http.Request,
	log *slog.Logger,
	validate *validator.Validate,
) (Request, bool) {
	var req Request

	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Error("Failed to decode request body", sl.Err(err))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.Error("Failed to decode request"))

		return Request{}, false
	}

	if err := validate.Struct(req); err != nil {
		validateErr := err.(validator.ValidationErrors)

		log.Error("Invalid request", sl.Err(err))

		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, resp.ValidationError(validateErr))

		return Request{}, false
	}

	return req, true
}

func translateError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	switch {
	case errors.Is(err, storage.ErrEmailExists):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, resp.Error("This email already belongs to another client"))
	case errors.Is(err, storage.ErrPhoneExists):
		render.Status(r, http.StatusConflict)
		render.JSON(w, r, resp.Error("This phone already belongs to another client"))
	case errors.Is(err, storage.ErrClientNotFound):
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, resp.Error("Client not found"))
	case errors.Is(err, clientsvc.ErrNotOwner):
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, resp.Error("No permission for this client"))
	default:
		log.Error("client operation failed", sl.Err(err))

		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, resp.Error("Internal error"))
	}
}

func toItems(clients []models.Client) []Item {
	items := make([]Item, 0, len(clients))

	for _, c := range clients {
		items = append(items, Item{
			ID:        c.ID,
			Name:      c.Name,
			Email:     c.Email,
			Phone:     c.Phone,
			CreatedAt: c.CreatedAt.Format(dateLayout),
			UpdatedAt: c.UpdatedAt.Format(dateLayout),
		})
	}

	return items
}
