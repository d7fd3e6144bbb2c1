package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Kind tags what an issued token may be used for. The three kinds are
// mutually exclusive: a token carries exactly one.
type Kind string

const (
	KindAccess  Kind = "ACCESS"
	KindRefresh Kind = "REFRESH"
	KindRead    Kind = "READ"
)

var (
	ErrTokenMissing = errors.New("token missing")
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired wraps ErrTokenInvalid so callers can treat expiry
	// either as its own case or as plain invalidity.
	ErrTokenExpired = fmt.Errorf("%w: expired", ErrTokenInvalid)
)

// Substituted into ACCESS tokens when the caller has no email/name at hand.
const (
	unknownEmail = "unknown@email"
	unknownName  = "unknown"
)

type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"type"`
}

// Kind returns the token kind carried in the claims.
func (c Claims) Kind() Kind {
	return Kind(c.Type)
}

// UserID parses the subject claim as a user id.
func (c Claims) UserID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject", ErrTokenInvalid)
	}
	return id, nil
}

// Service signs and verifies tokens with a single symmetric secret that is
// constant for the process lifetime.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	readTTL    time.Duration
}

func New(secret string, accessTTL, refreshTTL, readTTL time.Duration) *Service {
	return &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		readTTL:    readTTL,
	}
}

// Issue mints a signed token of the given kind for the subject. REFRESH and
// READ payloads carry only the subject; for READ the subject is whichever id
// the caller supplies (the resource owner's when sharing). ACCESS tokens
// carry email and name, with placeholder values substituted when blank.
func (s *Service) Issue(userID int64, email, name string, kind Kind) (string, error) {
	const op = "token.Issue"

	now := time.Now()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl(kind))),
		},
		Type: string(kind),
	}

	if kind == KindAccess {
		claims.Email = email
		claims.Name = name
		if claims.Email == "" {
			claims.Email = unknownEmail
		}
		if claims.Name == "" {
			claims.Name = unknownName
		}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
func (s *Service) Verify(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, ErrTokenMissing
	}

	claims := Claims{}

	parsed, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	if !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}

	return claims, nil
}

func (s *Service) ttl(kind Kind) time.Duration {
	switch kind {
	case KindRefresh:
		return s.refreshTTL
	case KindRead:
		return s.readTTL
	default:
		return s.accessTTL
	}
}
