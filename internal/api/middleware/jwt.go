package middleware

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/mindalert/internal/api/response"
)

// UserAuth validates HS256 access tokens issued by the account service.
// The subject claim carries the user UUID.
type UserAuth struct {
	secret []byte
	issuer string
}

// NewUserAuth creates a UserAuth. An empty issuer disables the issuer check.
func NewUserAuth(secret, issuer string) *UserAuth {
	return &UserAuth{secret: []byte(secret), issuer: issuer}
}

var errBadSubject = errors.New("subject is not a user id")

// Authenticate sets the user ID from a valid bearer token.
func (a *UserAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		userID, err := a.parse(raw)
		if err != nil {
			code, msg := "INVALID_TOKEN", "Invalid access token"
			if errors.Is(err, jwt.ErrTokenExpired) {
				code, msg = "TOKEN_EXPIRED", "Access token has expired"
			}
			response.Error(w, http.StatusUnauthorized, code, msg, nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetUserID(r.Context(), userID)))
	})
}

func (a *UserAuth) parse(raw string) (uuid.UUID, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return uuid.Nil, err
	}
	if !token.Valid {
		return uuid.Nil, jwt.ErrTokenUnverifiable
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, errBadSubject
	}
	return id, nil
}

// IssueToken signs an access token for userID. Used by alertctl and tests.
func IssueToken(secret, issuer string, userID uuid.UUID, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = userID.String()
	if issuer != "" {
		claims.Issuer = issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
