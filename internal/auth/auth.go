package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	sl "client_service/internal/lib/logger"
	"client_service/internal/models"
	"client_service/internal/storage"
	"client_service/internal/token"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserExists         = errors.New("user already exists")
	ErrPrincipalNotFound  = errors.New("principal not found")
)

type Auth struct {
	log         *slog.Logger
	usrSaver    UserSaver
	usrProvider UserProvider
	tokens      *token.Service
	publisher   Publisher
	frontendURL string
}

type UserSaver interface {
	SaveUser(ctx context.Context, email string, name string, passHash []byte) (uid int64, err error)
	UpdateUserName(ctx context.Context, id int64, name string) error
	DeleteUser(ctx context.Context, id int64) error
}

type UserProvider interface {
	UserByEmail(ctx context.Context, email string) (models.User, error)
	UserByID(ctx context.Context, id int64) (models.User, error)
}

// Publisher delivers fire-and-forget registration events to the message
// broker.
type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

func New(
	log *slog.Logger,
	userSaver UserSaver,
	userProvider UserProvider,
	tokens *token.Service,
	publisher Publisher,
	frontendURL string,
) *Auth {
	return &Auth{
		log:         log,
		usrSaver:    userSaver,
		usrProvider: userProvider,
		tokens:      tokens,
		publisher:   publisher,
		frontendURL: frontendURL,
	}
}

// Register creates a new user with a bcrypt-hashed password. The welcome
// event is best effort: a broker failure does not fail registration.
func (a *Auth) Register(ctx context.Context, name, email, pass string) (int64, error) {
	const op = "auth.Register"

	log := a.log.With(slog.String("op", op))

	email = strings.ToLower(email)

	passHash, err := bcrypt.GenerateFromPassword([]byte(pass), bcrypt.DefaultCost)
	if err != nil {
		log.Error("failed to generate password hash", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	id, err := a.usrSaver.SaveUser(ctx, email, name, passHash)
	if err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			log.Warn("user already exists")
			return 0, ErrUserExists
		}

		log.Error("failed to save user", sl.Err(err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	if a.publisher != nil {
		msg := models.Message{Email: email, Name: name, Purpose: "welcome"}
		if err := a.publisher.SendMessage(ctx, msg); err != nil {
			log.Error("failed to publish registration event", sl.Err(err))
		}
	}

	log.Info("user registered", slog.Int64("uid", id))

	return id, nil
}

// Login verifies the credentials and returns the user together with fresh
// ACCESS and REFRESH tokens.
func (a *Auth) Login(ctx context.Context, email, password string) (models.User, string, string, error) {
	const op = "auth.Login"

	log := a.log.With(slog.String("op", op))

	user, err := a.usrProvider.UserByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			log.Warn("user not found")
			return models.User{}, "", "", ErrInvalidCredentials
		}

		log.Error("failed to get user", sl.Err(err))
		return models.User{}, "", "", fmt.Errorf("%s: %w", op, err)
	}

	if err := bcrypt.CompareHashAndPassword(user.PassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))
		return models.User{}, "", "", ErrInvalidCredentials
	}

	accessToken, err := a.tokens.Issue(user.ID, user.Email, user.Name, token.KindAccess)
	if err != nil {
		log.Error("failed to generate access token", sl.Err(err))
		return models.User{}, "", "", fmt.Errorf("%s: %w", op, err)
	}

	refreshToken, err := a.tokens.Issue(user.ID, "", "", token.KindRefresh)
	if err != nil {
		log.Error("failed to generate refresh token", sl.Err(err))
		return models.User{}, "", "", fmt.Errorf("%s: %w", op, err)
	}

	log.Info("user logged in", slog.Int64("uid", user.ID))

	return user, accessToken, refreshToken, nil
}

// Refresh mints a new ACCESS token for a principal already resolved from a
// REFRESH token.
func (a *Auth) Refresh(ctx context.Context, user models.User) (string, error) {
	const op = "auth.Refresh"

	accessToken, err := a.tokens.Issue(user.ID, user.Email, user.Name, token.KindAccess)
	if err != nil {
		a.log.With(slog.String("op", op)).Error("failed to generate access token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return accessToken, nil
}

// ShareLink mints a READ token bound to the owner's id and embeds it in the
// visitor URL. Anyone holding the link can read the owner's clients until
// the token expires.
func (a *Auth) ShareLink(owner models.User) (string, error) {
	const op = "auth.ShareLink"

	readToken, err := a.tokens.Issue(owner.ID, "", "", token.KindRead)
	if err != nil {
		a.log.With(slog.String("op", op)).Error("failed to generate read token", sl.Err(err))
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return a.frontendURL + "?token=" + readToken, nil
}

// ResolveUser loads the user record named by the token subject.
func (a *Auth) ResolveUser(ctx context.Context, claims token.Claims) (models.User, error) {
	const op = "auth.ResolveUser"

	id, err := claims.UserID()
	if err != nil {
		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	user, err := a.usrProvider.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return models.User{}, ErrPrincipalNotFound
		}

		return models.User{}, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// UpdateProfile changes the user's display name.
func (a *Auth) UpdateProfile(ctx context.Context, userID int64, name string) error {
	const op = "auth.UpdateProfile"

	if err := a.usrSaver.UpdateUserName(ctx, userID, name); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrPrincipalNotFound
		}

		a.log.With(slog.String("op", op)).Error("failed to update user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// DeleteAccount removes the user; owned clients are cascaded by storage.
func (a *Auth) DeleteAccount(ctx context.Context, userID int64) error {
	const op = "auth.DeleteAccount"

	if err := a.usrSaver.DeleteUser(ctx, userID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			return ErrPrincipalNotFound
		}

		a.log.With(slog.String("op", op)).Error("failed to delete user", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
