package clients

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	sl "client_service/internal/lib/logger"
	"client_service/internal/models"
	"client_service/internal/storage"
)

var (
	ErrNotOwner  = errors.New("user is not the client owner")
	ErrEmptyFile = errors.New("empty file")
	ErrBadFile   = errors.New("malformed csv file")
)

// Fixed page size, chosen for frontend layout reasons.
const pageSize = 11

// maxPage caps caller-supplied page numbers so the offset multiplication
// cannot overflow int.
const maxPage = math.MaxInt32 / pageSize

type ClientData struct {
	Name  string
	Email string
	Phone string
}

type Service struct {
	log  *slog.Logger
	repo Repository
}

type Repository interface {
	SaveClient(ctx context.Context, c models.Client) (int64, error)
	ClientByID(ctx context.Context, id int64) (models.Client, error)
	UpdateClient(ctx context.Context, c models.Client) error
	DeleteClient(ctx context.Context, id int64) error
	ExistsClientByEmail(ctx context.Context, email string) (bool, error)
	ExistsClientByPhone(ctx context.Context, phone string) (bool, error)
	ClientsByOwner(ctx context.Context, ownerID int64, offset, limit int, search string) ([]models.Client, int64, error)
	EachClientByOwner(ctx context.Context, ownerID int64, fn func(models.Client) error) error
	ImportClients(ctx context.Context, clients []models.Client) error
}

func New(log *slog.Logger, repo Repository) *Service {
	return &Service{log: log, repo: repo}
}

// Create persists a new client owned by the caller. Email and phone must be
// unused by any client of any user; these checks are advisory, the real
// guarantee is the storage unique index.
func (s *Service) Create(ctx context.Context, data ClientData, owner models.User) (int64, error) {
	const op = "clients.Create"

	log := s.log.With(slog.String("op", op), slog.Int64("owner", owner.ID))

	if err := s.checkUnique(ctx, data, nil); err != nil {
		return 0, err
	}

	id, err := s.repo.SaveClient(ctx, models.Client{
		Name:    data.Name,
		Email:   strings.ToLower(data.Email),
		Phone:   data.Phone,
		OwnerID: owner.ID,
	})
	if err != nil {
		if errors.Is(err, storage.ErrEmailExists) || errors.Is(err, storage.ErrPhoneExists) {
			return 0, err
		}

		log.Error("failed to save client", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("client created", slog.Int64("client_id", id))

	return id, nil
}

// List returns one fixed-size page of the owner's clients. Page index is
// zero-based; a blank search returns the unfiltered page.
func (s *Service) List(ctx context.Context, owner models.User, page int, search string) ([]models.Client, int64, error) {
	if page < 0 {
		page = 0
	}
	if page > maxPage {
		page = maxPage
	}

	return s.repo.ClientsByOwner(ctx, owner.ID, page*pageSize, pageSize, strings.TrimSpace(search))
}

// Update rewrites a client's fields. The uniqueness checks deliberately run
// before the ownership check to keep the observable behavior of the
// original flow; a non-owner can probe email/phone existence before being
// rejected (see DESIGN.md).
func (s *Service) Update(ctx context.Context, clientID int64, data ClientData, requester models.User) error {
	const op = "clients.Update"

	log := s.log.With(slog.String("op", op), slog.Int64("client_id", clientID))

	client, err := s.repo.ClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return err
		}

		log.Error("failed to load client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.checkUnique(ctx, data, &client); err != nil {
		return err
	}

	if client.OwnerID != requester.ID {
		log.Warn("rejected update by non-owner", slog.Int64("requester", requester.ID))
		return ErrNotOwner
	}

	client.Name = data.Name
	client.Email = strings.ToLower(data.Email)
	client.Phone = data.Phone

	if err := s.repo.UpdateClient(ctx, client); err != nil {
		if errors.Is(err, storage.ErrEmailExists) || errors.Is(err, storage.ErrPhoneExists) {
			return err
		}

		log.Error("failed to update client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Delete removes a client after confirming the requester owns it.
func (s *Service) Delete(ctx context.Context, clientID int64, requester models.User) error {
	const op = "clients.Delete"

	log := s.log.With(slog.String("op", op), slog.Int64("client_id", clientID))

	client, err := s.repo.ClientByID(ctx, clientID)
	if err != nil {
		if errors.Is(err, storage.ErrClientNotFound) {
			return err
		}

		log.Error("failed to load client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	if client.OwnerID != requester.ID {
		log.Warn("rejected delete by non-owner", slog.Int64("requester", requester.ID))
		return ErrNotOwner
	}

	if err := s.repo.DeleteClient(ctx, client.ID); err != nil {
		log.Error("failed to delete client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("client deleted")

	return nil
}

// checkUnique verifies email and phone against every client in storage.
// When current is set, a collision with its own unchanged value is exempt.
func (s *Service) checkUnique(ctx context.Context, data ClientData, current *models.Client) error {
	const op = "clients.checkUnique"

	email := strings.ToLower(data.Email)

	if current == nil || email != current.Email {
		exists, err := s.repo.ExistsClientByEmail(ctx, email)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if exists {
			return storage.ErrEmailExists
		}
	}

	if current == nil || data.Phone != current.Phone {
		exists, err := s.repo.ExistsClientByPhone(ctx, data.Phone)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if exists {
			return storage.ErrPhoneExists
		}
	}

	return nil
}
