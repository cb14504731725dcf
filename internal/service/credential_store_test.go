package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"shop-api/internal/domain"
	"shop-api/internal/repository"
)

func newTestStore(t *testing.T, historyCap int) (*CredentialStore, *TokenService, *fakeClock, PasswordHasher) {
	t.Helper()
	clock := newFakeClock()
	accounts := repository.NewMemoryAccountRepository().WithClock(clock.Now)
	hasher := NewBcryptHasher(bcrypt.MinCost)
	tokens := newTestTokenService(clock)
	policy := NewPasswordPolicy(hasher, accounts)
	return NewCredentialStore(accounts, tokens, policy, clock, historyCap), tokens, clock, hasher
}

func TestCredentialStore_CreateAccountConflict(t *testing.T) {
	store, _, _, _ := newTestStore(t, 3)
	ctx := context.Background()

	created, err := store.CreateAccount(ctx, Identity{Email: " Alice@Example.com ", FirstName: "Alice"}, "hash")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.Email != "alice@example.com" {
		t.Fatalf("expected normalized email, got %q", created.Email)
	}
	if created.IsEmailVerified {
		t.Fatalf("new accounts start unverified")
	}

	_, err = store.CreateAccount(ctx, Identity{Email: "alice@example.com"}, "hash")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	found, err := store.FindByEmail(ctx, "ALICE@example.com")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("unexpected account %s", found.ID)
	}
}

func TestCredentialStore_SetPasswordHistoryCap(t *testing.T) {
	store, _, _, _ := newTestStore(t, 3)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, Identity{Email: "h@example.com"}, "hash-0")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 1; i <= 6; i++ {
		account, err = store.SetPassword(ctx, account.ID, fmt.Sprintf("hash-%d", i))
		if err != nil {
			t.Fatalf("set password %d: %v", i, err)
		}
	}

	want := []string{"hash-3", "hash-4", "hash-5"}
	if len(account.PasswordHistory) != len(want) {
		t.Fatalf("expected history %v, got %v", want, account.PasswordHistory)
	}
	for i := range want {
		if account.PasswordHistory[i] != want[i] {
			t.Fatalf("expected history %v, got %v", want, account.PasswordHistory)
		}
	}
	if account.PasswordHash != "hash-6" {
		t.Fatalf("unexpected current hash %q", account.PasswordHash)
	}
	for _, h := range account.PasswordHistory {
		if h == account.PasswordHash {
			t.Fatalf("current hash duplicated in history")
		}
	}
}

func TestCredentialStore_SetPasswordClearsReset(t *testing.T) {
	store, tokens, _, _ := newTestStore(t, 3)
	ctx := context.Background()

	account, err := store.CreateAccount(ctx, Identity{Email: "r@example.com"}, "hash-0")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	token, _ := tokens.IssueCapabilityToken()
	if err := store.BeginPasswordReset(ctx, account.ID, token.Hash, token.ExpiresAt); err != nil {
		t.Fatalf("begin reset: %v", err)
	}
	verify, _ := tokens.IssueCapabilityToken()
	if err := store.BeginEmailVerification(ctx, account.ID, verify.Hash, verify.ExpiresAt); err != nil {
		t.Fatalf("begin verification: %v", err)
	}

	account, err = store.SetPassword(ctx, account.ID, "hash-1")
	if err != nil {
		t.Fatalf("set password: %v", err)
	}
	if account.ResetPasswordTokenHash != "" || account.ResetPasswordExpiresAt != nil {
		t.Fatalf("expected reset token cleared")
	}
	if account.EmailVerificationTokenHash != verify.Hash {
		t.Fatalf("verification token must be independent of reset")
	}
}

func TestCredentialStore_EmailVerificationSingleUse(t *testing.T) {
	store, tokens, _, _ := newTestStore(t, 3)
	ctx := context.Background()

	account, _ := store.CreateAccount(ctx, Identity{Email: "v@example.com"}, "hash")
	token, _ := tokens.IssueCapabilityToken()
	if err := store.BeginEmailVerification(ctx, account.ID, token.Hash, token.ExpiresAt); err != nil {
		t.Fatalf("begin: %v", err)
	}

	verified, err := store.CompleteEmailVerification(ctx, token.Plaintext)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !verified.IsEmailVerified || verified.EmailVerificationTokenHash != "" || verified.EmailVerificationExpiresAt != nil {
		t.Fatalf("expected verified account with cleared token, got %+v", verified)
	}

	if _, err := store.CompleteEmailVerification(ctx, token.Plaintext); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected second use to fail, got %v", err)
	}
}

func TestCredentialStore_ExpiredVerificationIsCleared(t *testing.T) {
	store, tokens, clock, _ := newTestStore(t, 3)
	ctx := context.Background()

	account, _ := store.CreateAccount(ctx, Identity{Email: "e@example.com"}, "hash")
	token, _ := tokens.IssueCapabilityToken()
	_ = store.BeginEmailVerification(ctx, account.ID, token.Hash, token.ExpiresAt)

	clock.Advance(11 * time.Minute)
	if _, err := store.CompleteEmailVerification(ctx, token.Plaintext); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected expired token to fail, got %v", err)
	}
	stored, _ := store.Get(ctx, account.ID)
	if stored.IsEmailVerified {
		t.Fatalf("account must stay unverified")
	}
	if stored.EmailVerificationTokenHash != "" || stored.EmailVerificationExpiresAt != nil {
		t.Fatalf("expired token must be cleared")
	}
}

func TestCredentialStore_ConcurrentVerificationConsumesOnce(t *testing.T) {
	store, tokens, _, _ := newTestStore(t, 3)
	ctx := context.Background()

	account, _ := store.CreateAccount(ctx, Identity{Email: "c@example.com"}, "hash")
	token, _ := tokens.IssueCapabilityToken()
	_ = store.BeginEmailVerification(ctx, account.ID, token.Hash, token.ExpiresAt)

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CompleteEmailVerification(ctx, token.Plaintext)
			if err == nil {
				mu.Lock()
				success++
				mu.Unlock()
				return
			}
			if !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if success != 1 {
		t.Fatalf("expected exactly one success, got %d", success)
	}
}

func TestCredentialStore_CompletePasswordReset(t *testing.T) {
	store, tokens, _, hasher := newTestStore(t, 3)
	ctx := context.Background()

	original, _ := hasher.Hash("Original1!")
	account, _ := store.CreateAccount(ctx, Identity{Email: "p@example.com"}, original)
	token, _ := tokens.IssueCapabilityToken()
	_ = store.BeginPasswordReset(ctx, account.ID, token.Hash, token.ExpiresAt)

	_, err := store.CompletePasswordReset(ctx, token.Plaintext, "Original1!", hasher.Hash)
	if !errors.Is(err, domain.ErrPasswordReused) {
		t.Fatalf("expected reuse rejection, got %v", err)
	}

	updated, err := store.CompletePasswordReset(ctx, token.Plaintext, "Fresh1234!", hasher.Hash)
	if err != nil {
		t.Fatalf("complete reset: %v", err)
	}
	if updated.ResetPasswordTokenHash != "" || updated.ResetPasswordExpiresAt != nil {
		t.Fatalf("reset token must be cleared")
	}
	if len(updated.PasswordHistory) != 1 || updated.PasswordHistory[0] != original {
		t.Fatalf("expected previous hash in history, got %v", updated.PasswordHistory)
	}
	ok, _ := hasher.Compare(updated.PasswordHash, "Fresh1234!")
	if !ok {
		t.Fatalf("new password not stored")
	}

	if _, err := store.CompletePasswordReset(ctx, token.Plaintext, "Another12!", hasher.Hash); !errors.Is(err, domain.ErrInvalidOrExpiredToken) {
		t.Fatalf("expected consumed token to fail, got %v", err)
	}
}

func TestCredentialStore_UpdateProfileEmailChange(t *testing.T) {
	store, _, _, _ := newTestStore(t, 3)
	ctx := context.Background()

	account, _ := store.CreateAccount(ctx, Identity{Email: "old@example.com", FirstName: "Old"}, "hash")
	_, _ = store.Update(ctx, account.ID, func(a *domain.Account) error {
		a.IsEmailVerified = true
		return nil
	})
	_, _ = store.CreateAccount(ctx, Identity{Email: "taken@example.com"}, "hash")

	taken := "taken@example.com"
	if _, _, err := store.UpdateProfile(ctx, account.ID, ProfileChanges{Email: &taken}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}

	newEmail := "New@Example.com"
	name := "New"
	before, after, err := store.UpdateProfile(ctx, account.ID, ProfileChanges{Email: &newEmail, FirstName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if before.Email != "old@example.com" || after.Email != "new@example.com" {
		t.Fatalf("unexpected emails %q -> %q", before.Email, after.Email)
	}
	if after.IsEmailVerified {
		t.Fatalf("email change must reopen verification")
	}
	if after.FirstName != "New" {
		t.Fatalf("expected first name updated")
	}
	if _, err := store.FindByEmail(ctx, "old@example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("old email must be released, got %v", err)
	}
}
