package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"shop-api/internal/domain"
	"shop-api/internal/email"
)

const (
	accountsCollection = "users"

	WarningWeakPassword    = "weak_password"
	WarningPasswordExpired = "password_expired"

	dummyPassword = "not-a-real-password"
)

// AuthDependencies agrupa los colaboradores de AuthService.
type AuthDependencies struct {
	Store    *CredentialStore
	Policy   *PasswordPolicy
	Hasher   PasswordHasher
	Tokens   *TokenService
	Lockout  *LockoutGuard
	Audit    *AuditRecorder
	Sender   email.Sender
	Composer email.Composer
	Limiter  RequestLimiter
	Clock    Clock
	// PasswordMaxAge activa el aviso password_expired en el login; 0 lo desactiva.
	PasswordMaxAge time.Duration
}

// AuthService orquesta registro, login, verificacion y reset de contraseña.
type AuthService struct {
	logger    *zap.Logger
	validate  *validator.Validate
	store     *CredentialStore
	policy    *PasswordPolicy
	hasher    PasswordHasher
	tokens    *TokenService
	lockout   *LockoutGuard
	audit     *AuditRecorder
	sender    email.Sender
	composer  email.Composer
	limiter   RequestLimiter
	clock     Clock
	maxAge    time.Duration
	dummyHash string
}

func NewAuthService(logger *zap.Logger, deps AuthDependencies) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock()
	}
	if deps.Sender == nil {
		deps.Sender = email.NewDisabledSender("email sender not configured")
	}
	if deps.Limiter == nil {
		deps.Limiter = NewMemoryRequestLimiter(deps.Clock, 10*time.Minute, 3)
	}
	s := &AuthService{
		logger:   logger,
		validate: validator.New(),
		store:    deps.Store,
		policy:   deps.Policy,
		hasher:   deps.Hasher,
		tokens:   deps.Tokens,
		lockout:  deps.Lockout,
		audit:    deps.Audit,
		sender:   deps.Sender,
		composer: deps.Composer,
		limiter:  deps.Limiter,
		clock:    deps.Clock,
		maxAge:   deps.PasswordMaxAge,
	}
	// Hash fijo para comparar cuando el email no existe y igualar tiempos.
	if h, err := s.hasher.Hash(dummyPassword); err == nil {
		s.dummyHash = h
	} else {
		logger.Warn("dummy hash unavailable", zap.Error(err))
	}
	return s
}

type RegisterInput struct {
	Email     string `validate:"required,email,max=254"`
	FirstName string `validate:"required,max=64"`
	LastName  string `validate:"required,max=64"`
	Password  string `validate:"required"`
}

// RegisterResult informa si el correo de verificacion salio; la cuenta existe
// igualmente cuando EmailDelivered es false.
type RegisterResult struct {
	Account        domain.Profile `json:"account"`
	EmailDelivered bool           `json:"email_delivered"`
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	input.Email = normalizeEmail(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := s.validateInput(input); err != nil {
		return RegisterResult{}, err
	}
	if eval := s.policy.Evaluate(input.Password); !eval.Acceptable {
		return RegisterResult{}, domain.NewValidationError("password " + eval.Reason)
	}
	if err := ctx.Err(); err != nil {
		return RegisterResult{}, s.fail("register", err)
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return RegisterResult{}, s.fail("register", err)
	}
	account, err := s.store.CreateAccount(ctx, Identity{
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
	}, hash)
	if err != nil {
		return RegisterResult{}, s.fail("register", err)
	}

	delivered := s.openVerification(ctx, account)
	s.audit.Record(ctx, account.ID, domain.AuditCreate, accountsCollection, &account.ID, nil, account.Snapshot())

	s.logger.Info("account registered",
		zap.String("account_id", account.ID),
		zap.Bool("email_delivered", delivered),
	)
	return RegisterResult{Account: account.Profile(), EmailDelivered: delivered}, nil
}

// LoginResult lleva la credencial de sesion y avisos no bloqueantes.
type LoginResult struct {
	Session  domain.Session `json:"session"`
	Account  domain.Profile `json:"account"`
	Warnings []string       `json:"warnings,omitempty"`
}

// Login comprueba el bloqueo antes de comparar la contraseña. Un email
// desconocido produce el mismo error que una contraseña incorrecta.
func (s *AuthService) Login(ctx context.Context, emailAddr, password string) (LoginResult, error) {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" || password == "" {
		return LoginResult{}, domain.NewValidationError("email and password are required")
	}

	account, err := s.store.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.compareDummy(password)
			return LoginResult{}, domain.NewInvalidCredentials(s.lockout.Threshold()-1, nil)
		}
		return LoginResult{}, s.fail("login", err)
	}

	locked, until, err := s.lockout.CheckLocked(ctx, account.ID)
	if err != nil {
		return LoginResult{}, s.fail("login", err)
	}
	if locked {
		return LoginResult{}, domain.NewAccountLocked(until)
	}
	if !account.IsEmailVerified {
		return LoginResult{}, &domain.Error{Kind: domain.KindEmailNotVerified, Message: "email is not verified"}
	}

	ok, err := s.hasher.Compare(account.PasswordHash, password)
	if err != nil {
		return LoginResult{}, s.fail("login", err)
	}
	if !ok {
		remaining, lockedUntil, err := s.lockout.RecordFailure(ctx, account.ID)
		if err != nil {
			return LoginResult{}, s.fail("login", err)
		}
		if lockedUntil != nil {
			s.logger.Warn("account locked after failed logins", zap.String("account_id", account.ID))
		}
		return LoginResult{}, domain.NewInvalidCredentials(remaining, lockedUntil)
	}

	if err := s.lockout.RecordSuccess(ctx, account.ID); err != nil {
		return LoginResult{}, s.fail("login", err)
	}
	session, err := s.tokens.IssueSessionCredential(account.ID, account.IsAdmin)
	if err != nil {
		return LoginResult{}, s.fail("login", err)
	}
	s.audit.Record(ctx, account.ID, domain.AuditLogin, accountsCollection, &account.ID, nil, nil)

	return LoginResult{
		Session:  session,
		Account:  account.Profile(),
		Warnings: s.loginWarnings(account, password),
	}, nil
}

func (s *AuthService) loginWarnings(account domain.Account, password string) []string {
	var warnings []string
	if s.policy.Strength(password) == StrengthWeak {
		warnings = append(warnings, WarningWeakPassword)
	}
	if s.maxAge > 0 && s.clock.Now().Sub(account.PasswordChangedAt) > s.maxAge {
		warnings = append(warnings, WarningPasswordExpired)
	}
	return warnings
}

func (s *AuthService) compareDummy(password string) {
	if s.dummyHash == "" {
		return
	}
	_, _ = s.hasher.Compare(s.dummyHash, password)
}

// Logout revoca la credencial hasta su expiracion. Un token ya vencido no
// requiere revocacion.
func (s *AuthService) Logout(ctx context.Context, sessionToken string) error {
	if strings.TrimSpace(sessionToken) == "" {
		return domain.NewUnauthorized(domain.ReasonMissing)
	}
	err := s.tokens.RevokeSessionCredential(ctx, sessionToken)
	switch {
	case err == nil, errors.Is(err, ErrSessionExpired):
		return nil
	case errors.Is(err, ErrSessionInvalid):
		return domain.NewUnauthorized(domain.ReasonInvalid)
	default:
		return s.fail("logout", err)
	}
}

// VerifySessionCredential traduce los fallos del token a Unauthorized con motivo.
func (s *AuthService) VerifySessionCredential(ctx context.Context, sessionToken string) (domain.SessionIdentity, error) {
	if strings.TrimSpace(sessionToken) == "" {
		return domain.SessionIdentity{}, domain.NewUnauthorized(domain.ReasonMissing)
	}
	identity, err := s.tokens.VerifySessionCredential(ctx, sessionToken)
	switch {
	case err == nil:
		return identity, nil
	case errors.Is(err, ErrSessionExpired):
		return domain.SessionIdentity{}, domain.NewUnauthorized(domain.ReasonExpired)
	case errors.Is(err, ErrSessionInvalid):
		return domain.SessionIdentity{}, domain.NewUnauthorized(domain.ReasonInvalid)
	default:
		return domain.SessionIdentity{}, s.fail("verify session", err)
	}
}

func (s *AuthService) VerifyEmail(ctx context.Context, token string) (domain.Profile, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Profile{}, domain.ErrInvalidOrExpiredToken
	}
	account, err := s.store.CompleteEmailVerification(ctx, token)
	if err != nil {
		return domain.Profile{}, s.fail("verify email", err)
	}
	old := account.Snapshot()
	old["is_email_verified"] = false
	s.audit.Record(ctx, account.ID, domain.AuditUpdate, accountsCollection, &account.ID, old, account.Snapshot())
	return account.Profile(), nil
}

// RequestPasswordReset responde igual exista o no la cuenta.
func (s *AuthService) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if err := s.validate.Var(emailAddr, "required,email"); err != nil {
		return domain.NewValidationError("email is invalid")
	}
	if !s.limiter.Allow("reset:" + emailAddr) {
		return &domain.Error{Kind: domain.KindRateLimited, Message: "too many requests"}
	}

	account, err := s.store.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return s.fail("request password reset", err)
	}

	token, err := s.tokens.IssueCapabilityToken()
	if err != nil {
		return s.fail("request password reset", err)
	}
	if err := s.store.BeginPasswordReset(ctx, account.ID, token.Hash, token.ExpiresAt); err != nil {
		return s.fail("request password reset", err)
	}
	s.deliver(ctx, s.composer.PasswordReset(account.Email, token.Plaintext, token.ExpiresAt))
	return nil
}

// CompletePasswordReset no toca el estado de bloqueo de la cuenta.
func (s *AuthService) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.ErrInvalidOrExpiredToken
	}
	if eval := s.policy.Evaluate(newPassword); !eval.Acceptable {
		return domain.NewValidationError("password " + eval.Reason)
	}
	account, err := s.store.CompletePasswordReset(ctx, token, newPassword, s.hasher.Hash)
	if err != nil {
		return s.fail("complete password reset", err)
	}
	s.audit.Record(ctx, account.ID, domain.AuditUpdate, accountsCollection, &account.ID,
		nil, passwordChange(account))
	s.logger.Info("password reset completed", zap.String("account_id", account.ID))
	return nil
}

// ResendVerification responde igual para emails desconocidos o ya verificados.
func (s *AuthService) ResendVerification(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if err := s.validate.Var(emailAddr, "required,email"); err != nil {
		return domain.NewValidationError("email is invalid")
	}
	if !s.limiter.Allow("verify:" + emailAddr) {
		return &domain.Error{Kind: domain.KindRateLimited, Message: "too many requests"}
	}
	account, err := s.store.FindByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return s.fail("resend verification", err)
	}
	if account.IsEmailVerified {
		return nil
	}
	s.openVerification(ctx, account)
	return nil
}

func (s *AuthService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		return domain.NewValidationError("current and new password are required")
	}
	account, err := s.store.Get(ctx, accountID)
	if err != nil {
		return s.fail("change password", err)
	}
	ok, err := s.hasher.Compare(account.PasswordHash, currentPassword)
	if err != nil {
		return s.fail("change password", err)
	}
	if !ok {
		return &domain.Error{Kind: domain.KindInvalidCredentials, Message: "current password is incorrect"}
	}
	if eval := s.policy.Evaluate(newPassword); !eval.Acceptable {
		return domain.NewValidationError("password " + eval.Reason)
	}
	reused, err := s.policy.IsReused(ctx, accountID, newPassword)
	if err != nil {
		return s.fail("change password", err)
	}
	if reused {
		return &domain.Error{Kind: domain.KindPasswordReused, Message: "password was used recently"}
	}
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return s.fail("change password", err)
	}
	updated, err := s.store.SetPassword(ctx, accountID, hash)
	if err != nil {
		return s.fail("change password", err)
	}
	s.audit.Record(ctx, accountID, domain.AuditUpdate, accountsCollection, &accountID,
		map[string]any{"password_changed_at": account.PasswordChangedAt}, passwordChange(updated))
	return nil
}

// passwordChange describe un cambio de contraseña sin incluir el hash.
func passwordChange(account domain.Account) map[string]any {
	return map[string]any{
		"password":            "changed",
		"password_changed_at": account.PasswordChangedAt,
	}
}

func (s *AuthService) GetAccount(ctx context.Context, accountID string) (domain.Profile, error) {
	account, err := s.store.Get(ctx, accountID)
	if err != nil {
		return domain.Profile{}, s.fail("get account", err)
	}
	return account.Profile(), nil
}

// UpdateProfileInput no tiene campo de rol: is_admin nunca llega al servicio.
type UpdateProfileInput struct {
	FirstName *string `validate:"omitempty,min=1,max=64"`
	LastName  *string `validate:"omitempty,min=1,max=64"`
	Email     *string `validate:"omitempty,email,max=254"`
}

type UpdateProfileResult struct {
	Account          domain.Profile `json:"account"`
	VerificationSent bool           `json:"verification_sent"`
}

// UpdateProfile permite editar la propia cuenta, o cualquiera siendo admin.
// Un cambio de email deja la cuenta sin verificar y envia un token nuevo.
func (s *AuthService) UpdateProfile(ctx context.Context, actor domain.SessionIdentity, accountID string, input UpdateProfileInput) (UpdateProfileResult, error) {
	if err := authorizeOwner(actor, accountID); err != nil {
		return UpdateProfileResult{}, err
	}
	input.FirstName = trimPtr(input.FirstName)
	input.LastName = trimPtr(input.LastName)
	if input.Email != nil {
		e := normalizeEmail(*input.Email)
		input.Email = &e
	}
	if err := s.validateInput(input); err != nil {
		return UpdateProfileResult{}, err
	}

	before, after, err := s.store.UpdateProfile(ctx, accountID, ProfileChanges{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
	})
	if err != nil {
		return UpdateProfileResult{}, s.fail("update profile", err)
	}

	sent := false
	if before.Email != after.Email {
		sent = s.openVerification(ctx, after)
	}
	s.audit.Record(ctx, actor.AccountID, domain.AuditUpdate, accountsCollection, &accountID, before.Snapshot(), after.Snapshot())
	return UpdateProfileResult{Account: after.Profile(), VerificationSent: sent}, nil
}

func (s *AuthService) DeleteAccount(ctx context.Context, actor domain.SessionIdentity, accountID string) error {
	if err := authorizeOwner(actor, accountID); err != nil {
		return err
	}
	deleted, err := s.store.Delete(ctx, accountID)
	if err != nil {
		return s.fail("delete account", err)
	}
	s.audit.Record(ctx, actor.AccountID, domain.AuditDelete, accountsCollection, &accountID, deleted.Snapshot(), nil)
	s.logger.Info("account deleted", zap.String("account_id", accountID), zap.String("actor_id", actor.AccountID))
	return nil
}

func authorizeOwner(actor domain.SessionIdentity, accountID string) error {
	if strings.TrimSpace(accountID) == "" {
		return domain.NewValidationError("account id is required")
	}
	if actor.AccountID != accountID && !actor.IsAdmin {
		return &domain.Error{Kind: domain.KindForbidden, Message: "not allowed to modify this account"}
	}
	return nil
}

// openVerification emite un token de verificacion y lo envia por correo.
// Devuelve false si el correo no salio; la cuenta queda pendiente de verificar.
func (s *AuthService) openVerification(ctx context.Context, account domain.Account) bool {
	token, err := s.tokens.IssueCapabilityToken()
	if err != nil {
		s.logger.Error("issue verification token failed", zap.String("account_id", account.ID), zap.Error(err))
		return false
	}
	if err := s.store.BeginEmailVerification(ctx, account.ID, token.Hash, token.ExpiresAt); err != nil {
		s.logger.Error("store verification token failed", zap.String("account_id", account.ID), zap.Error(err))
		return false
	}
	return s.deliver(ctx, s.composer.Verification(account.Email, token.Plaintext, token.ExpiresAt))
}

func (s *AuthService) deliver(ctx context.Context, msg email.Message) bool {
	if err := s.sender.Send(ctx, msg.To, msg.Subject, msg.Body); err != nil {
		s.logger.Warn("email delivery failed",
			zap.String("email", msg.To),
			zap.String("subject", msg.Subject),
			zap.Error(err),
		)
		return false
	}
	return true
}

func (s *AuthService) validateInput(input any) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return domain.NewValidationError(fmt.Sprintf("%s failed %s validation", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return domain.NewValidationError("invalid input")
}

// fail deja pasar los errores de dominio, convierte cancelaciones en Timeout
// y oculta el resto tras InternalFailure.
func (s *AuthService) fail(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &domain.Error{Kind: domain.KindTimeout, Message: "operation timed out", Err: err}
	}
	var de *domain.Error
	if errors.As(err, &de) {
		if de.Kind == domain.KindInternal {
			s.logger.Error(op+" failed", zap.Error(err))
		}
		return err
	}
	s.logger.Error(op+" failed", zap.Error(err))
	return &domain.Error{Kind: domain.KindInternal, Message: "internal error", Err: err}
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	t := strings.TrimSpace(*v)
	return &t
}
