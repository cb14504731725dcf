package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"shop-api/internal/domain"
	"shop-api/internal/repository"
)

// Identity son los datos de alta de una cuenta.
type Identity struct {
	Email     string
	FirstName string
	LastName  string
}

// ProfileChanges son los campos no sensibles editables por el propio usuario.
// No existe campo para el rol: no se puede cambiar por esta via.
type ProfileChanges struct {
	FirstName *string
	LastName  *string
	Email     *string
}

// CapabilityVerifier valida un token presentado contra su hash y expiracion.
type CapabilityVerifier interface {
	VerifyCapabilityToken(presented, storedHash string, storedExpiry *time.Time, now time.Time) bool
}

// CredentialStore concentra las mutaciones atomicas sobre el registro de
// seguridad de una cuenta.
type CredentialStore struct {
	accounts   repository.AccountRepository
	tokens     CapabilityVerifier
	policy     *PasswordPolicy
	clock      Clock
	historyCap int
}

func NewCredentialStore(accounts repository.AccountRepository, tokens CapabilityVerifier, policy *PasswordPolicy, clock Clock, historyCap int) *CredentialStore {
	if clock == nil {
		clock = SystemClock()
	}
	if historyCap < 0 {
		historyCap = 0
	}
	return &CredentialStore{
		accounts:   accounts,
		tokens:     tokens,
		policy:     policy,
		clock:      clock,
		historyCap: historyCap,
	}
}

// CreateAccount da de alta una cuenta sin verificar; Conflict si el email existe.
func (s *CredentialStore) CreateAccount(ctx context.Context, identity Identity, passwordHash string) (domain.Account, error) {
	now := s.clock.Now()
	account := domain.Account{
		ID:                uuid.NewString(),
		Email:             normalizeEmail(identity.Email),
		FirstName:         strings.TrimSpace(identity.FirstName),
		LastName:          strings.TrimSpace(identity.LastName),
		PasswordHash:      passwordHash,
		PasswordHistory:   []string{},
		PasswordChangedAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return domain.Account{}, err
	}
	return account, nil
}

func (s *CredentialStore) Get(ctx context.Context, accountID string) (domain.Account, error) {
	return s.accounts.GetByID(ctx, accountID)
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	return s.accounts.GetByEmail(ctx, normalizeEmail(email))
}

// SetPassword guarda el hash anterior en el historial y cierra resets pendientes.
func (s *CredentialStore) SetPassword(ctx context.Context, accountID, newHash string) (domain.Account, error) {
	now := s.clock.Now()
	return s.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		a.ReplacePassword(newHash, s.historyCap, now)
		return nil
	})
}

func (s *CredentialStore) BeginEmailVerification(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	_, err := s.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		a.EmailVerificationTokenHash = tokenHash
		a.EmailVerificationExpiresAt = &expiresAt
		return nil
	})
	return err
}

// CompleteEmailVerification consume el token de verificacion. Cualquier fallo
// (token inexistente, vencido o ya consumido) es InvalidOrExpiredToken.
func (s *CredentialStore) CompleteEmailVerification(ctx context.Context, presented string) (domain.Account, error) {
	account, err := s.accounts.GetByEmailVerificationHash(ctx, DigestCapabilityToken(presented))
	if err != nil {
		return domain.Account{}, tokenLookupError(err)
	}
	now := s.clock.Now()
	expired := false
	updated, err := s.accounts.Update(ctx, account.ID, func(a *domain.Account) error {
		if s.tokens.VerifyCapabilityToken(presented, a.EmailVerificationTokenHash, a.EmailVerificationExpiresAt, now) {
			a.IsEmailVerified = true
			a.ClearEmailVerification()
			return nil
		}
		if a.EmailVerificationTokenHash == account.EmailVerificationTokenHash && a.EmailVerificationExpiresAt != nil && now.After(*a.EmailVerificationExpiresAt) {
			expired = true
			a.ClearEmailVerification()
			return nil
		}
		return domain.ErrInvalidOrExpiredToken
	})
	if err != nil {
		return domain.Account{}, tokenLookupError(err)
	}
	if expired {
		return domain.Account{}, domain.ErrInvalidOrExpiredToken
	}
	return updated, nil
}

func (s *CredentialStore) BeginPasswordReset(ctx context.Context, accountID, tokenHash string, expiresAt time.Time) error {
	_, err := s.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		a.ResetPasswordTokenHash = tokenHash
		a.ResetPasswordExpiresAt = &expiresAt
		return nil
	})
	return err
}

// PasswordHashFunc produce el hash lento de la nueva contraseña; se invoca
// solo cuando el token y la regla de reutilizacion ya se validaron.
type PasswordHashFunc func(password string) (string, error)

// CompletePasswordReset valida el token, rechaza contraseñas ya usadas y
// aplica el cambio consumiendo el token en la misma escritura.
func (s *CredentialStore) CompletePasswordReset(ctx context.Context, presented, newPassword string, hash PasswordHashFunc) (domain.Account, error) {
	account, err := s.accounts.GetByResetHash(ctx, DigestCapabilityToken(presented))
	if err != nil {
		return domain.Account{}, tokenLookupError(err)
	}
	now := s.clock.Now()
	if !s.tokens.VerifyCapabilityToken(presented, account.ResetPasswordTokenHash, account.ResetPasswordExpiresAt, now) {
		s.expireResetToken(ctx, account, now)
		return domain.Account{}, domain.ErrInvalidOrExpiredToken
	}

	reused, err := s.policy.matchesHistory(account, newPassword)
	if err != nil {
		return domain.Account{}, err
	}
	if reused {
		return domain.Account{}, &domain.Error{Kind: domain.KindPasswordReused, Message: "password was used recently"}
	}

	newHash, err := hash(newPassword)
	if err != nil {
		return domain.Account{}, err
	}

	updated, err := s.accounts.Update(ctx, account.ID, func(a *domain.Account) error {
		if !s.tokens.VerifyCapabilityToken(presented, a.ResetPasswordTokenHash, a.ResetPasswordExpiresAt, now) {
			return domain.ErrInvalidOrExpiredToken
		}
		// La comprobacion de reutilizacion se hizo sobre este hash.
		if a.PasswordHash != account.PasswordHash {
			return domain.ErrInvalidOrExpiredToken
		}
		a.ReplacePassword(newHash, s.historyCap, now)
		return nil
	})
	if err != nil {
		return domain.Account{}, tokenLookupError(err)
	}
	return updated, nil
}

// expireResetToken limpia un token de reset vencido para no dejarlo persistido.
func (s *CredentialStore) expireResetToken(ctx context.Context, account domain.Account, now time.Time) {
	if account.ResetPasswordExpiresAt == nil || !now.After(*account.ResetPasswordExpiresAt) {
		return
	}
	_, _ = s.accounts.Update(ctx, account.ID, func(a *domain.Account) error {
		if a.ResetPasswordTokenHash != account.ResetPasswordTokenHash {
			return domain.ErrInvalidOrExpiredToken
		}
		a.ClearPasswordReset()
		return nil
	})
}

// UpdateProfile aplica cambios de nombre y email. Un email nuevo vuelve a
// dejar la cuenta sin verificar; el llamador emite el token de verificacion.
func (s *CredentialStore) UpdateProfile(ctx context.Context, accountID string, changes ProfileChanges) (before, after domain.Account, err error) {
	after, err = s.accounts.Update(ctx, accountID, func(a *domain.Account) error {
		before = a.Clone()
		if changes.FirstName != nil {
			a.FirstName = strings.TrimSpace(*changes.FirstName)
		}
		if changes.LastName != nil {
			a.LastName = strings.TrimSpace(*changes.LastName)
		}
		if changes.Email != nil {
			email := normalizeEmail(*changes.Email)
			if email != a.Email {
				a.Email = email
				a.IsEmailVerified = false
				a.ClearEmailVerification()
			}
		}
		return nil
	})
	return before, after, err
}

// Update expone el read-modify-write atomico para el guardia de bloqueo.
func (s *CredentialStore) Update(ctx context.Context, accountID string, fn func(*domain.Account) error) (domain.Account, error) {
	return s.accounts.Update(ctx, accountID, fn)
}

func (s *CredentialStore) Delete(ctx context.Context, accountID string) (domain.Account, error) {
	return s.accounts.Delete(ctx, accountID)
}

func tokenLookupError(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrInvalidOrExpiredToken
	}
	return err
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
