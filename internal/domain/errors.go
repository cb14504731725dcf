package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind clasifica los fallos que el nucleo de autenticacion devuelve a la capa HTTP.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindInvalidCredentials
	KindAccountLocked
	KindEmailNotVerified
	KindInvalidOrExpiredToken
	KindPasswordReused
	KindUnauthorized
	KindForbidden
	KindRateLimited
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindAccountLocked:
		return "account_locked"
	case KindEmailNotVerified:
		return "email_not_verified"
	case KindInvalidOrExpiredToken:
		return "invalid_or_expired_token"
	case KindPasswordReused:
		return "password_reused"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	case KindTimeout:
		return "timeout"
	default:
		return "internal_failure"
	}
}

// Motivos de Unauthorized para credenciales de sesion.
const (
	ReasonMissing = "missing"
	ReasonExpired = "expired"
	ReasonInvalid = "invalid"
)

// Error es el resultado tipado de una operacion fallida.
type Error struct {
	Kind              ErrorKind
	Message           string
	Reason            string
	LockedUntil       *time.Time
	RemainingAttempts *int
	Err               error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is compara por tipo de error, de modo que errors.Is(err, ErrAccountLocked)
// funciona con cualquier *Error del mismo Kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == "" && t.Err == nil
}

var (
	ErrValidation            = &Error{Kind: KindValidation}
	ErrConflict              = &Error{Kind: KindConflict}
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrAccountLocked         = &Error{Kind: KindAccountLocked}
	ErrEmailNotVerified      = &Error{Kind: KindEmailNotVerified}
	ErrInvalidOrExpiredToken = &Error{Kind: KindInvalidOrExpiredToken}
	ErrPasswordReused        = &Error{Kind: KindPasswordReused}
	ErrUnauthorized          = &Error{Kind: KindUnauthorized}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
	ErrTimeout               = &Error{Kind: KindTimeout}
	ErrInternal              = &Error{Kind: KindInternal}
)

func NewValidationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func NewUnauthorized(reason string) *Error {
	return &Error{Kind: KindUnauthorized, Message: "unauthorized", Reason: reason}
}

func NewInvalidCredentials(remaining int, lockedUntil *time.Time) *Error {
	return &Error{
		Kind:              KindInvalidCredentials,
		Message:           "invalid email or password",
		RemainingAttempts: &remaining,
		LockedUntil:       lockedUntil,
	}
}

func NewAccountLocked(until time.Time) *Error {
	return &Error{Kind: KindAccountLocked, Message: "account is locked", LockedUntil: &until}
}

// KindOf devuelve el tipo de un error; los errores ajenos al dominio son Internal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
