package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"shop-api/internal/domain"
	"shop-api/internal/repository"
)

// Strength es la valoracion orientativa de una contraseña.
type Strength int

const (
	StrengthWeak Strength = iota
	StrengthFair
	StrengthGood
	StrengthStrong
)

func (s Strength) String() string {
	switch s {
	case StrengthFair:
		return "Fair"
	case StrengthGood:
		return "Good"
	case StrengthStrong:
		return "Strong"
	default:
		return "Weak"
	}
}

const (
	minPasswordLength    = 8
	strongPasswordLength = 12
	specialChars         = "@$!%*?&"
)

// Motivos de rechazo de Evaluate.
const (
	ReasonTooShort          = "too short"
	ReasonMissingComplexity = "missing complexity"
)

// Evaluation es el resultado de PasswordPolicy.Evaluate.
type Evaluation struct {
	Acceptable bool
	Reason     string
}

// PasswordPolicy evalua complejidad y reutilizacion de contraseñas.
type PasswordPolicy struct {
	hasher   PasswordHasher
	accounts repository.AccountRepository
}

func NewPasswordPolicy(hasher PasswordHasher, accounts repository.AccountRepository) *PasswordPolicy {
	return &PasswordPolicy{hasher: hasher, accounts: accounts}
}

type charClasses struct {
	upper, lower, digit, special bool
}

func classify(password string) charClasses {
	var c charClasses
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			c.upper = true
		case r >= 'a' && r <= 'z':
			c.lower = true
		case r >= '0' && r <= '9':
			c.digit = true
		case strings.ContainsRune(specialChars, r):
			c.special = true
		}
	}
	return c
}

// Evaluate acepta contraseñas de al menos 8 caracteres con mayuscula,
// minuscula, digito y un simbolo de @$!%*?&.
func (p *PasswordPolicy) Evaluate(password string) Evaluation {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return Evaluation{Reason: ReasonTooShort}
	}
	c := classify(password)
	if !c.upper || !c.lower || !c.digit || !c.special {
		return Evaluation{Reason: ReasonMissingComplexity}
	}
	return Evaluation{Acceptable: true}
}

// Strength suma un punto por cada criterio y satura en Strong.
func (p *PasswordPolicy) Strength(password string) Strength {
	score := 0
	n := utf8.RuneCountInString(password)
	if n >= minPasswordLength {
		score++
	}
	if n >= strongPasswordLength {
		score++
	}
	c := classify(password)
	for _, ok := range []bool{c.upper, c.lower, c.digit, c.special} {
		if ok {
			score++
		}
	}
	if score > int(StrengthStrong) {
		score = int(StrengthStrong)
	}
	return Strength(score)
}

// IsReused indica si candidate coincide con algun hash del historial de la cuenta.
func (p *PasswordPolicy) IsReused(ctx context.Context, accountID, candidate string) (bool, error) {
	account, err := p.accounts.GetByID(ctx, accountID)
	if err != nil {
		return false, err
	}
	return p.matchesHistory(account, candidate)
}

// matchesHistory compara contra el hash actual y el historial; el actual pasa
// al historial en cuanto se cambia la contraseña.
func (p *PasswordPolicy) matchesHistory(account domain.Account, candidate string) (bool, error) {
	hashes := make([]string, 0, len(account.PasswordHistory)+1)
	if account.PasswordHash != "" {
		hashes = append(hashes, account.PasswordHash)
	}
	hashes = append(hashes, account.PasswordHistory...)
	for _, h := range hashes {
		ok, err := p.hasher.Compare(h, candidate)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
