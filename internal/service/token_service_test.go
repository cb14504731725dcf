package service

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestTokenService(clock *fakeClock) *TokenService {
	return NewTokenService(testSecret, "shop-api", time.Hour, 10*time.Minute, clock, NewMemorySessionRevocationStore(clock))
}

func TestTokenService_CapabilityRoundTrip(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokenService(clock)

	token, err := svc.IssueCapabilityToken()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if len(token.Plaintext) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(token.Plaintext))
	}
	if token.Hash == token.Plaintext || token.Hash != DigestCapabilityToken(token.Plaintext) {
		t.Fatalf("hash must be the digest of the plaintext")
	}
	if !token.ExpiresAt.Equal(clock.Now().Add(10 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", token.ExpiresAt)
	}
	if !svc.VerifyCapabilityToken(token.Plaintext, token.Hash, &token.ExpiresAt, clock.Now()) {
		t.Fatalf("expected fresh token to verify")
	}
	if svc.VerifyCapabilityToken(token.Plaintext+"x", token.Hash, &token.ExpiresAt, clock.Now()) {
		t.Fatalf("expected altered token to fail")
	}
	if svc.VerifyCapabilityToken(token.Plaintext, "", &token.ExpiresAt, clock.Now()) {
		t.Fatalf("expected cleared hash to fail")
	}
}

func TestTokenService_CapabilityExpiryBoundary(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokenService(clock)
	token, err := svc.IssueCapabilityToken()
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	before := token.ExpiresAt.Add(-time.Millisecond)
	if !svc.VerifyCapabilityToken(token.Plaintext, token.Hash, &token.ExpiresAt, before) {
		t.Fatalf("expected token to verify 1ms before expiry")
	}
	after := token.ExpiresAt.Add(time.Millisecond)
	if svc.VerifyCapabilityToken(token.Plaintext, token.Hash, &token.ExpiresAt, after) {
		t.Fatalf("expected token to fail 1ms after expiry")
	}
}

func TestTokenService_CapabilityTokensAreUnique(t *testing.T) {
	svc := newTestTokenService(newFakeClock())
	seen := make(map[string]struct{})
	for i := 0; i < 50; i++ {
		token, err := svc.IssueCapabilityToken()
		if err != nil {
			t.Fatalf("issue: %v", err)
		}
		if _, dup := seen[token.Plaintext]; dup {
			t.Fatalf("duplicate token issued")
		}
		seen[token.Plaintext] = struct{}{}
	}
}

func TestTokenService_SessionCredential(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokenService(clock)
	ctx := context.Background()

	session, err := svc.IssueSessionCredential("acc-1", true)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if session.ExpiresIn != 3600 {
		t.Fatalf("expected expires_in 3600, got %d", session.ExpiresIn)
	}

	identity, err := svc.VerifySessionCredential(ctx, session.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if identity.AccountID != "acc-1" || !identity.IsAdmin {
		t.Fatalf("unexpected identity %+v", identity)
	}
	if identity.TokenID == "" {
		t.Fatalf("expected token id")
	}
}

func TestTokenService_SessionExpiredVsInvalid(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokenService(clock)
	ctx := context.Background()

	session, err := svc.IssueSessionCredential("acc-1", false)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}

	other := NewTokenService("ffffffffffffffffffffffffffffffff", "shop-api", time.Hour, 0, clock, nil)
	forged, err := other.IssueSessionCredential("acc-1", true)
	if err != nil {
		t.Fatalf("issue forged: %v", err)
	}
	if _, err := svc.VerifySessionCredential(ctx, forged.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected invalid for foreign signature, got %v", err)
	}
	if _, err := svc.VerifySessionCredential(ctx, "not.a.jwt"); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected invalid for garbage, got %v", err)
	}

	wrongIssuer := NewTokenService(testSecret, "other-api", time.Hour, 0, clock, nil)
	foreign, err := wrongIssuer.IssueSessionCredential("acc-1", false)
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}
	if _, err := svc.VerifySessionCredential(ctx, foreign.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected invalid for wrong issuer, got %v", err)
	}

	clock.Advance(time.Hour + time.Second)
	if _, err := svc.VerifySessionCredential(ctx, session.Token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestTokenService_RevokeSession(t *testing.T) {
	clock := newFakeClock()
	svc := newTestTokenService(clock)
	ctx := context.Background()

	session, err := svc.IssueSessionCredential("acc-1", false)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if err := svc.RevokeSessionCredential(ctx, session.Token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := svc.VerifySessionCredential(ctx, session.Token); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected revoked token to be invalid, got %v", err)
	}

	fresh, err := svc.IssueSessionCredential("acc-1", false)
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	if _, err := svc.VerifySessionCredential(ctx, fresh.Token); err != nil {
		t.Fatalf("expected other sessions to stay valid: %v", err)
	}
}
