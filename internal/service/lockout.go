package service

import (
	"context"
	"errors"
	"time"

	"shop-api/internal/domain"
)

// errNoChange aborta una actualizacion que no modificaria la cuenta.
var errNoChange = errors.New("no change")

// LockoutGuard aplica la politica de bloqueo por intentos fallidos. El estado
// vive en la cuenta y se actualiza con el read-modify-write atomico del store,
// de modo que dos fallos concurrentes cuentan ambos.
type LockoutGuard struct {
	store  *CredentialStore
	policy domain.LockoutPolicy
	clock  Clock
}

func NewLockoutGuard(store *CredentialStore, policy domain.LockoutPolicy, clock Clock) *LockoutGuard {
	if policy.Threshold <= 0 {
		policy.Threshold = 5
	}
	if policy.Duration <= 0 {
		policy.Duration = 30 * time.Minute
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &LockoutGuard{store: store, policy: policy, clock: clock}
}

func (g *LockoutGuard) Threshold() int {
	return g.policy.Threshold
}

// CheckLocked consulta el bloqueo vigente sin modificar la cuenta.
func (g *LockoutGuard) CheckLocked(ctx context.Context, accountID string) (bool, time.Time, error) {
	account, err := g.store.Get(ctx, accountID)
	if err != nil {
		return false, time.Time{}, err
	}
	locked, until := lockState(account, g.clock.Now())
	return locked, until, nil
}

// RecordFailure devuelve los intentos restantes y, si el fallo bloqueo la
// cuenta, el instante de desbloqueo. Si otro intento bloqueo la cuenta entre
// CheckLocked y este registro, devuelve AccountLocked sin modificarla.
func (g *LockoutGuard) RecordFailure(ctx context.Context, accountID string) (int, *time.Time, error) {
	now := g.clock.Now()
	remaining := 0
	account, err := g.store.Update(ctx, accountID, func(a *domain.Account) error {
		if a.IsLocked(now) {
			return domain.NewAccountLocked(*a.LockedUntil)
		}
		remaining = a.RegisterLoginFailure(now, g.policy)
		return nil
	})
	if err != nil {
		return 0, nil, err
	}
	if account.IsLocked(now) {
		until := *account.LockedUntil
		return 0, &until, nil
	}
	return remaining, nil, nil
}

// RecordSuccess reinicia el contador. Devuelve AccountLocked si la cuenta quedo
// bloqueada mientras se comparaba la contraseña; el login no debe continuar.
func (g *LockoutGuard) RecordSuccess(ctx context.Context, accountID string) error {
	now := g.clock.Now()
	_, err := g.store.Update(ctx, accountID, func(a *domain.Account) error {
		if a.IsLocked(now) {
			return domain.NewAccountLocked(*a.LockedUntil)
		}
		if a.FailedLoginCount == 0 && a.LockedUntil == nil {
			return errNoChange
		}
		a.RegisterLoginSuccess(now)
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil
	}
	return err
}

func lockState(account domain.Account, now time.Time) (bool, time.Time) {
	if !account.IsLocked(now) {
		return false, time.Time{}
	}
	return true, *account.LockedUntil
}
