package domain

import "time"

// Account es el registro de seguridad autoritativo de una identidad registrada.
type Account struct {
	ID                         string     `json:"id"`
	Email                      string     `json:"email"`
	FirstName                  string     `json:"first_name"`
	LastName                   string     `json:"last_name"`
	PasswordHash               string     `json:"-"`
	PasswordHistory            []string   `json:"-"`
	PasswordChangedAt          time.Time  `json:"password_changed_at"`
	IsEmailVerified            bool       `json:"is_email_verified"`
	EmailVerificationTokenHash string     `json:"-"`
	EmailVerificationExpiresAt *time.Time `json:"-"`
	ResetPasswordTokenHash     string     `json:"-"`
	ResetPasswordExpiresAt     *time.Time `json:"-"`
	FailedLoginCount           int        `json:"-"`
	LockedUntil                *time.Time `json:"-"`
	IsAdmin                    bool       `json:"is_admin"`
	Version                    int64      `json:"-"`
	CreatedAt                  time.Time  `json:"created_at"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

// Profile es la vista publica de una cuenta, sin material de credenciales.
type Profile struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	FirstName       string    `json:"first_name"`
	LastName        string    `json:"last_name"`
	IsEmailVerified bool      `json:"is_email_verified"`
	IsAdmin         bool      `json:"is_admin"`
	CreatedAt       time.Time `json:"created_at"`
}

func (a Account) Profile() Profile {
	return Profile{
		ID:              a.ID,
		Email:           a.Email,
		FirstName:       a.FirstName,
		LastName:        a.LastName,
		IsEmailVerified: a.IsEmailVerified,
		IsAdmin:         a.IsAdmin,
		CreatedAt:       a.CreatedAt,
	}
}

// Snapshot devuelve los campos seguros para guardar en auditoria.
func (a Account) Snapshot() map[string]any {
	return map[string]any{
		"email":             a.Email,
		"first_name":        a.FirstName,
		"last_name":         a.LastName,
		"is_email_verified": a.IsEmailVerified,
		"is_admin":          a.IsAdmin,
	}
}

// IsLocked indica si la cuenta sigue bloqueada en el instante now.
func (a Account) IsLocked(now time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(now)
}

// Clone copia el agregado para que los slices no se compartan entre lecturas.
func (a Account) Clone() Account {
	c := a
	if a.PasswordHistory != nil {
		c.PasswordHistory = append([]string(nil), a.PasswordHistory...)
	}
	c.EmailVerificationExpiresAt = cloneTime(a.EmailVerificationExpiresAt)
	c.ResetPasswordExpiresAt = cloneTime(a.ResetPasswordExpiresAt)
	c.LockedUntil = cloneTime(a.LockedUntil)
	return c
}

// ReplacePassword mueve el hash actual al historial (acotado a historyCap, se
// descartan los mas antiguos) y cierra cualquier reset pendiente.
func (a *Account) ReplacePassword(newHash string, historyCap int, now time.Time) {
	history := make([]string, 0, len(a.PasswordHistory)+1)
	for _, h := range a.PasswordHistory {
		if h != newHash {
			history = append(history, h)
		}
	}
	if a.PasswordHash != "" && a.PasswordHash != newHash {
		history = append(history, a.PasswordHash)
	}
	if historyCap <= 0 {
		history = nil
	} else if len(history) > historyCap {
		history = history[len(history)-historyCap:]
	}
	a.PasswordHistory = history
	a.PasswordHash = newHash
	a.PasswordChangedAt = now
	a.ClearPasswordReset()
}

func (a *Account) ClearEmailVerification() {
	a.EmailVerificationTokenHash = ""
	a.EmailVerificationExpiresAt = nil
}

func (a *Account) ClearPasswordReset() {
	a.ResetPasswordTokenHash = ""
	a.ResetPasswordExpiresAt = nil
}

// LockoutPolicy parametriza la maquina de estados de bloqueo por intentos fallidos.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

// normalizeLock convierte un bloqueo vencido en Unlocked(0).
func (a *Account) normalizeLock(now time.Time) {
	if a.LockedUntil != nil && !a.LockedUntil.After(now) {
		a.LockedUntil = nil
		a.FailedLoginCount = 0
	}
}

// RegisterLoginFailure aplica un intento fallido. Devuelve los intentos
// restantes antes del bloqueo; 0 cuando la cuenta queda bloqueada. Un intento
// sobre una cuenta bloqueada no modifica el estado.
func (a *Account) RegisterLoginFailure(now time.Time, policy LockoutPolicy) int {
	a.normalizeLock(now)
	if a.IsLocked(now) {
		return 0
	}
	a.FailedLoginCount++
	if a.FailedLoginCount >= policy.Threshold {
		until := now.Add(policy.Duration)
		a.LockedUntil = &until
		return 0
	}
	return policy.Threshold - a.FailedLoginCount
}

// RegisterLoginSuccess reinicia el contador. No desbloquea una cuenta cuyo
// bloqueo sigue vigente.
func (a *Account) RegisterLoginSuccess(now time.Time) {
	a.normalizeLock(now)
	if a.IsLocked(now) {
		return
	}
	a.FailedLoginCount = 0
	a.LockedUntil = nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
