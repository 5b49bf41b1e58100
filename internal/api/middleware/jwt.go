package middleware

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/mimanitas/settlement/internal/api/response"
)

// CallerAuth authenticates end users by an HS256 bearer token issued by the identity
// provider. The subject claim is the user's profile id.
type CallerAuth struct {
	secret []byte
	parser *jwt.Parser
}

func NewCallerAuth(secret string) *CallerAuth {
	return &CallerAuth{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

var errInvalidSubject = errors.New("subject is not a user id")

// Caller parses a raw token and returns its user id.
func (a *CallerAuth) Caller(raw string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	if _, err := a.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errInvalidSubject
	}
	return id, nil
}

func (a *CallerAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHORIZED", "Missing or invalid Authorization header", nil)
			return
		}
		id, err := a.Caller(raw)
		if err != nil {
			response.Error(w, http.StatusUnauthorized,
				"UNAUTHORIZED", "Invalid or expired token", nil)
			return
		}
		next.ServeHTTP(w, r.WithContext(SetCallerID(r.Context(), id)))
	})
}
