package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"shop-api/internal/domain"
)

type stubVerifier struct {
	identity domain.SessionIdentity
	err      error
	got      string
}

func (s *stubVerifier) VerifySessionCredential(_ context.Context, token string) (domain.SessionIdentity, error) {
	s.got = token
	if token == "" {
		return domain.SessionIdentity{}, domain.NewUnauthorized(domain.ReasonMissing)
	}
	return s.identity, s.err
}

func serveGuarded(t *testing.T, verifier SessionVerifier, header string, extra ...gin.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{AuthGuard(verifier)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		identity, ok := GetSessionIdentity(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"account_id": identity.AccountID})
	})
	r.GET("/protected", handlers...)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthGuard_AllowsValidToken(t *testing.T) {
	verifier := &stubVerifier{identity: domain.SessionIdentity{AccountID: "u1"}}
	rec := serveGuarded(t, verifier, "bearer abc.def")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if verifier.got != "abc.def" {
		t.Fatalf("unexpected token forwarded: %q", verifier.got)
	}
}

func TestAuthGuard_Reasons(t *testing.T) {
	tests := []struct {
		name   string
		header string
		err    error
		reason string
	}{
		{name: "missing", header: "", reason: domain.ReasonMissing},
		{name: "not bearer", header: "Basic abc", reason: domain.ReasonMissing},
		{name: "expired", header: "Bearer x", err: domain.NewUnauthorized(domain.ReasonExpired), reason: domain.ReasonExpired},
		{name: "invalid", header: "Bearer x", err: domain.NewUnauthorized(domain.ReasonInvalid), reason: domain.ReasonInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveGuarded(t, &stubVerifier{err: tt.err}, tt.header)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			var body map[string]any
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["reason"] != tt.reason {
				t.Fatalf("expected reason %q, got %v", tt.reason, body["reason"])
			}
		})
	}
}

func TestAdminGuard(t *testing.T) {
	user := &stubVerifier{identity: domain.SessionIdentity{AccountID: "u1"}}
	if rec := serveGuarded(t, user, "Bearer x", AdminGuard()); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	admin := &stubVerifier{identity: domain.SessionIdentity{AccountID: "a1", IsAdmin: true}}
	if rec := serveGuarded(t, admin, "Bearer x", AdminGuard()); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestErrorResponse_HidesInternalDetail(t *testing.T) {
	status, body := errorResponse(&domain.Error{Kind: domain.KindInternal, Message: "pg: connection refused"})
	if status != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", status)
	}
	if body["error"] != "internal error" {
		t.Fatalf("internal detail leaked: %v", body)
	}
}
