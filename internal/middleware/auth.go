package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/wanpark/access-server-go/internal/audit"
	apperrors "github.com/wanpark/access-server-go/internal/errors"
	"github.com/wanpark/access-server-go/internal/util"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// GetIdentity returns the authenticated subject, or "" outside the user
// routes.
func GetIdentity(ctx context.Context) string {
	if identity, ok := ctx.Value(IdentityContextKey).(string); ok {
		return identity
	}
	return ""
}

func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// JWTAuthMiddleware accepts HS256 bearer tokens and exposes their subject as
// the caller identity. An empty secret rejects every token.
type JWTAuthMiddleware struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTAuthMiddleware(secret string) *JWTAuthMiddleware {
	return &JWTAuthMiddleware{
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
	}
}

func (m *JWTAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearer(r)
		if raw == "" {
			writeError(w, apperrors.Unauthorized("Missing authentication token"))
			return
		}

		identity, err := m.subject(raw)
		if err != nil {
			log.Warn().Err(err).Msg("auth middleware: invalid token")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure, Outcome: string(apperrors.ErrCodeUnauthorized)})
			writeError(w, apperrors.Unauthorized("Invalid or expired token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (m *JWTAuthMiddleware) subject(raw string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := m.parser.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		if len(m.secret) == 0 {
			return nil, jwt.ErrInvalidKey
		}
		return m.secret, nil
	}); err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", jwt.ErrTokenInvalidClaims
	}
	return claims.Subject, nil
}

// FacilityAuthMiddleware guards the verify endpoint. Facility panels present
// a shared secret whose bcrypt hash is configured on the server.
type FacilityAuthMiddleware struct {
	tokenHash string
}

func NewFacilityAuthMiddleware(tokenHash string) *FacilityAuthMiddleware {
	return &FacilityAuthMiddleware{tokenHash: tokenHash}
}

func (m *FacilityAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Facility-Token")
		if token == "" {
			token = extractBearer(r)
		}
		if token == "" {
			writeError(w, apperrors.Unauthorized("Missing facility token"))
			return
		}

		if m.tokenHash == "" || !util.CheckPasswordHash(token, m.tokenHash) {
			log.Warn().Msg("facility auth: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{Type: audit.EventAuthFailure, Outcome: string(apperrors.ErrCodeUnauthorized)})
			writeError(w, apperrors.Unauthorized("Invalid facility token"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func extractBearer(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return ""
}
