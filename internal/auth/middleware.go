package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const subjectKey contextKey = "authSubject"

var (
	ErrMissingHeader   = errors.New("authorization header required")
	ErrMalformedHeader = errors.New("invalid authorization header")
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidAudience = errors.New("invalid audience")
	ErrMissingSubject  = errors.New("missing subject")
)

// GetSubject retrieves the authenticated subject from context.
func GetSubject(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	if value, ok := ctx.Value(subjectKey).(string); ok && value != "" {
		return value, true
	}
	return "", false
}

// WithSubject returns a copy of ctx carrying subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectKey, subject)
}

// Verifier checks HMAC-signed bearer tokens.
type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

// NewVerifier returns nil when secret is empty, meaning auth is disabled.
func NewVerifier(secret, audience string) *Verifier {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if audience = strings.TrimSpace(audience); audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &Verifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// Subject validates an Authorization header value and returns the token's
// subject.
func (v *Verifier) Subject(header string) (string, error) {
	raw, err := bearerToken(header)
	if err != nil {
		return "", err
	}

	claims := &jwt.RegisteredClaims{}
	_, err = v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "", ErrInvalidAudience
	case err != nil:
		return "", ErrInvalidToken
	case claims.Subject == "":
		return "", ErrMissingSubject
	}
	return claims.Subject, nil
}

// JWTMiddleware rejects requests without a valid bearer token and stores the
// token subject in the request context. An empty secret disables the check.
func JWTMiddleware(secret, audience string) gin.HandlerFunc {
	verifier := NewVerifier(secret, audience)
	if verifier == nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		subject, err := verifier.Subject(c.Request.Header.Get("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Request = c.Request.WithContext(WithSubject(c.Request.Context(), subject))
		c.Next()
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingHeader
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMalformedHeader
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMalformedHeader
	}
	return token, nil
}
