package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"shop-api/internal/domain"
	"shop-api/internal/email"
	"shop-api/internal/repository"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

type captureSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (s *captureSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, email.Message{To: to, Subject: subject, Body: body})
	return nil
}

func (s *captureSender) last(t *testing.T) email.Message {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sent) == 0 {
		t.Fatalf("expected an email to be sent")
	}
	return s.sent[len(s.sent)-1]
}

func (s *captureSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

// tokenFromBody extrae el token del ultimo segmento del enlace del correo.
func tokenFromBody(t *testing.T, body string) string {
	t.Helper()
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "http") {
			return line[strings.LastIndex(line, "/")+1:]
		}
	}
	t.Fatalf("no link in email body: %q", body)
	return ""
}

// countingHasher cuenta comparaciones para comprobar que no se compara con la cuenta bloqueada.
// onCompare, si no es nil, corre durante la comparacion para simular intentos concurrentes.
type countingHasher struct {
	PasswordHasher
	mu        sync.Mutex
	compares  int
	onCompare func()
}

func (h *countingHasher) Compare(hash, password string) (bool, error) {
	h.mu.Lock()
	h.compares++
	hook := h.onCompare
	h.mu.Unlock()
	if hook != nil {
		hook()
	}
	return h.PasswordHasher.Compare(hash, password)
}

func (h *countingHasher) Compares() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.compares
}

type failingAuditRepo struct{}

func (failingAuditRepo) Insert(context.Context, domain.AuditEntry) error {
	return errors.New("audit store down")
}

type testEnv struct {
	clock    *fakeClock
	accounts *repository.MemoryAccountRepository
	auditLog *repository.MemoryAuditRepository
	hasher   *countingHasher
	sender   *captureSender
	tokens   *TokenService
	store    *CredentialStore
	policy   *PasswordPolicy
	lockout  *LockoutGuard
	audit    *AuditRecorder
	auth     *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	accounts := repository.NewMemoryAccountRepository().WithClock(clock.Now)
	auditLog := repository.NewMemoryAuditRepository()
	hasher := &countingHasher{PasswordHasher: NewBcryptHasher(bcrypt.MinCost)}
	sender := &captureSender{}
	tokens := NewTokenService(testSecret, "shop-api", time.Hour, 10*time.Minute, clock, NewMemorySessionRevocationStore(clock))
	policy := NewPasswordPolicy(hasher, accounts)
	store := NewCredentialStore(accounts, tokens, policy, clock, 3)
	lockout := NewLockoutGuard(store, domain.LockoutPolicy{Threshold: 5, Duration: 30 * time.Minute}, clock)
	audit := NewAuditRecorder(zap.NewNop(), auditLog, clock, AuditConfig{BufferSize: 64, Workers: 2})
	t.Cleanup(audit.Close)

	auth := NewAuthService(zap.NewNop(), AuthDependencies{
		Store:          store,
		Policy:         policy,
		Hasher:         hasher,
		Tokens:         tokens,
		Lockout:        lockout,
		Audit:          audit,
		Sender:         sender,
		Composer:       email.NewComposer("http://shop.test"),
		Limiter:        NewMemoryRequestLimiter(clock, 10*time.Minute, 3),
		Clock:          clock,
		PasswordMaxAge: 90 * 24 * time.Hour,
	})
	return &testEnv{
		clock:    clock,
		accounts: accounts,
		auditLog: auditLog,
		hasher:   hasher,
		sender:   sender,
		tokens:   tokens,
		store:    store,
		policy:   policy,
		lockout:  lockout,
		audit:    audit,
		auth:     auth,
	}
}

// registerVerified crea una cuenta y consume su token de verificacion.
func (e *testEnv) registerVerified(t *testing.T, emailAddr, password string) domain.Profile {
	t.Helper()
	ctx := context.Background()
	res, err := e.auth.Register(ctx, RegisterInput{Email: emailAddr, FirstName: "Test", LastName: "User", Password: password})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	token := tokenFromBody(t, e.sender.last(t).Body)
	if _, err := e.auth.VerifyEmail(ctx, token); err != nil {
		t.Fatalf("verify email: %v", err)
	}
	return res.Account
}
