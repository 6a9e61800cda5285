package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret"

func newRouter(secret, audience string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/guarded", JWTMiddleware(secret, audience), func(c *gin.Context) {
		subject, _ := GetSubject(c.Request.Context())
		c.String(http.StatusOK, subject)
	})
	return router
}

func signToken(t *testing.T, secret string, claims jwt.RegisteredClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func doRequest(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestJWTMiddlewareDisabledWithoutSecret(t *testing.T) {
	w := doRequest(newRouter("", ""), "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected open route, got %d", w.Code)
	}
}

func TestJWTMiddlewareRejectsMissingHeader(t *testing.T) {
	w := doRequest(newRouter(testSecret, ""), "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestJWTMiddlewareAcceptsValidToken(t *testing.T) {
	token := signToken(t, testSecret, jwt.RegisteredClaims{
		Subject:   "analyst-1",
		Audience:  jwt.ClaimStrings{"secqr"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	w := doRequest(newRouter(testSecret, "secqr"), "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "analyst-1" {
		t.Fatalf("expected subject in context, got %q", w.Body.String())
	}
}

func TestJWTMiddlewareRejects(t *testing.T) {
	tests := []struct {
		name   string
		secret string
		claims jwt.RegisteredClaims
	}{
		{"wrong secret", "other", jwt.RegisteredClaims{Subject: "a", Audience: jwt.ClaimStrings{"secqr"}}},
		{"wrong audience", testSecret, jwt.RegisteredClaims{Subject: "a", Audience: jwt.ClaimStrings{"other"}}},
		{"missing subject", testSecret, jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"secqr"}}},
		{"expired", testSecret, jwt.RegisteredClaims{
			Subject:   "a",
			Audience:  jwt.ClaimStrings{"secqr"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signToken(t, tt.secret, tt.claims)
			w := doRequest(newRouter(testSecret, "secqr"), "Bearer "+token)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", w.Code)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	if _, err := bearerToken("Basic abc"); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
	if _, err := bearerToken("Bearer   "); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader, got %v", err)
	}
	if _, err := bearerToken(""); !errors.Is(err, ErrMissingHeader) {
		t.Fatalf("expected ErrMissingHeader, got %v", err)
	}
	token, err := bearerToken("bearer abc")
	if err != nil || token != "abc" {
		t.Fatalf("unexpected result %q, %v", token, err)
	}
}

func TestNewVerifierDisabledWithoutSecret(t *testing.T) {
	if v := NewVerifier("  ", "secqr"); v != nil {
		t.Fatal("expected nil verifier for empty secret")
	}
}

func TestVerifierSubjectErrors(t *testing.T) {
	v := NewVerifier(testSecret, "secqr")

	tests := []struct {
		name   string
		secret string
		claims jwt.RegisteredClaims
		method jwt.SigningMethod
		want   error
	}{
		{"wrong audience", testSecret, jwt.RegisteredClaims{Subject: "a", Audience: jwt.ClaimStrings{"other"}}, jwt.SigningMethodHS256, ErrInvalidAudience},
		{"missing subject", testSecret, jwt.RegisteredClaims{Audience: jwt.ClaimStrings{"secqr"}}, jwt.SigningMethodHS256, ErrMissingSubject},
		{"wrong secret", "other", jwt.RegisteredClaims{Subject: "a", Audience: jwt.ClaimStrings{"secqr"}}, jwt.SigningMethodHS256, ErrInvalidToken},
		{"hs384 accepted", testSecret, jwt.RegisteredClaims{Subject: "a", Audience: jwt.ClaimStrings{"secqr"}}, jwt.SigningMethodHS384, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signed, err := jwt.NewWithClaims(tt.method, tt.claims).SignedString([]byte(tt.secret))
			if err != nil {
				t.Fatalf("sign token: %v", err)
			}
			_, err = v.Subject("Bearer " + signed)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestWithSubject(t *testing.T) {
	if _, ok := GetSubject(context.Background()); ok {
		t.Fatal("expected no subject")
	}
	subject, ok := GetSubject(WithSubject(context.Background(), "analyst-1"))
	if !ok || subject != "analyst-1" {
		t.Fatalf("unexpected subject %q", subject)
	}
}
