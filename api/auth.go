package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/payroll-engine/generic"
	"github.com/warp/payroll-engine/logger"
	"github.com/warp/payroll-engine/payroll"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrMissingSub   = errors.New("token has no subject")
)

// DevActorID is the identity injected when authentication is disabled.
const DevActorID = "dev"

// Claims carries the caller identity and payroll permissions.
type Claims struct {
	jwt.RegisteredClaims
	Permissions []string `json:"permissions,omitempty"`
}

// TokenService issues and verifies HS256 bearer tokens.
type TokenService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	Clock  generic.Clock
}

func NewTokenService(secret, issuer string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		Clock:  generic.SystemClock{},
	}
}

// Issue signs a token for subject holding perms.
func (s *TokenService) Issue(subject string, perms []string) (string, error) {
	if subject == "" {
		return "", ErrMissingSub
	}
	now := s.Clock.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Permissions: perms,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify validates signature, expiry and issuer.
func (s *TokenService) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.Clock.Now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	if !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrMissingSub
	}
	return claims, nil
}

// Actor converts verified claims into the payroll caller.
func (c *Claims) Actor() payroll.Actor {
	return payroll.Actor{ID: c.Subject, Permissions: c.Permissions}
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// Authenticate attaches the bearer token's actor to the request context.
// Requests without a token pass through anonymously; payroll operations then
// fail their permission check. A malformed or expired token is rejected here.
func Authenticate(tokens *TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := tokens.Verify(raw)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Invalid bearer token", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withActor(r, claims.Actor())))
		})
	}
}

// DevAuth injects a wildcard actor. Development only.
func DevAuth() func(http.Handler) http.Handler {
	dev := payroll.Actor{ID: DevActorID, Permissions: []string{string(payroll.PermAll)}}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(withActor(r, dev)))
		})
	}
}

func withActor(r *http.Request, a payroll.Actor) context.Context {
	ctx := payroll.WithActor(r.Context(), a)
	l := logger.FromContext(ctx, nil).With(zap.String("actor", a.ID))
	return logger.WithContext(ctx, l)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
