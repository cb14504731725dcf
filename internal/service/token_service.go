package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"shop-api/internal/domain"
)

const (
	defaultSessionTTL    = time.Hour
	defaultCapabilityTTL = 10 * time.Minute
	capabilityTokenBytes = 32
	sessionTokenType     = "access"
)

// TokenService emite y valida tokens de un solo uso y credenciales de sesion.
type TokenService struct {
	secret        []byte
	issuer        string
	sessionTTL    time.Duration
	capabilityTTL time.Duration
	clock         Clock
	revocations   SessionRevocationStore
}

// CapabilityToken es un token recien emitido. Plaintext solo se entrega una vez
// por correo; se persiste unicamente Hash.
type CapabilityToken struct {
	Plaintext string
	Hash      string
	ExpiresAt time.Time
}

// SessionClaims son los claims explicitos de la credencial de sesion.
type SessionClaims struct {
	AccountID string `json:"uid"`
	IsAdmin   bool   `json:"adm"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

var (
	ErrSessionInvalid = errors.New("session token invalid")
	ErrSessionExpired = errors.New("session token expired")
)

func NewTokenService(secret, issuer string, sessionTTL, capabilityTTL time.Duration, clock Clock, revocations SessionRevocationStore) *TokenService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	if capabilityTTL <= 0 {
		capabilityTTL = defaultCapabilityTTL
	}
	if clock == nil {
		clock = SystemClock()
	}
	if revocations == nil {
		revocations = NewMemorySessionRevocationStore(clock)
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "shop-api"
	}
	return &TokenService{
		secret:        []byte(secret),
		issuer:        issuer,
		sessionTTL:    sessionTTL,
		capabilityTTL: capabilityTTL,
		clock:         clock,
		revocations:   revocations,
	}
}

// IssueCapabilityToken genera un valor aleatorio de 256 bits con su digest y expiracion.
func (s *TokenService) IssueCapabilityToken() (CapabilityToken, error) {
	raw := make([]byte, capabilityTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return CapabilityToken{}, err
	}
	plaintext := hex.EncodeToString(raw)
	return CapabilityToken{
		Plaintext: plaintext,
		Hash:      DigestCapabilityToken(plaintext),
		ExpiresAt: s.clock.Now().Add(s.capabilityTTL),
	}, nil
}

// DigestCapabilityToken es el hash rapido de una sola via usado para persistir tokens.
func DigestCapabilityToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// VerifyCapabilityToken compara en tiempo constante y rechaza tokens vencidos
// aunque el hash coincida.
func (s *TokenService) VerifyCapabilityToken(presented, storedHash string, storedExpiry *time.Time, now time.Time) bool {
	if presented == "" || storedHash == "" || storedExpiry == nil {
		return false
	}
	digest := DigestCapabilityToken(presented)
	match := subtle.ConstantTimeCompare([]byte(digest), []byte(storedHash)) == 1
	if now.After(*storedExpiry) {
		return false
	}
	return match
}

// IssueSessionCredential firma un JWT HS256 con {uid, adm} y expiracion fija.
func (s *TokenService) IssueSessionCredential(accountID string, isAdmin bool) (domain.Session, error) {
	if len(s.secret) == 0 {
		return domain.Session{}, ErrSessionInvalid
	}
	if strings.TrimSpace(accountID) == "" {
		return domain.Session{}, ErrSessionInvalid
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.sessionTTL)
	claims := SessionClaims{
		AccountID: accountID,
		IsAdmin:   isAdmin,
		TokenType: sessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		ExpiresIn: int64(s.sessionTTL.Seconds()),
	}, nil
}

// VerifySessionCredential distingue ErrSessionExpired de ErrSessionInvalid
// (firma, estructura, emisor o token revocado).
func (s *TokenService) VerifySessionCredential(ctx context.Context, signed string) (domain.SessionIdentity, error) {
	claims, err := s.parse(signed)
	if err != nil {
		return domain.SessionIdentity{}, err
	}
	revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
	if err != nil {
		return domain.SessionIdentity{}, err
	}
	if revoked {
		return domain.SessionIdentity{}, ErrSessionInvalid
	}
	return domain.SessionIdentity{
		AccountID: claims.AccountID,
		IsAdmin:   claims.IsAdmin,
		TokenID:   claims.ID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// RevokeSessionCredential invalida el token hasta su expiracion natural.
func (s *TokenService) RevokeSessionCredential(ctx context.Context, signed string) error {
	claims, err := s.parse(signed)
	if err != nil {
		return err
	}
	ttl := claims.ExpiresAt.Time.Sub(s.clock.Now())
	if ttl <= 0 {
		return nil
	}
	return s.revocations.Revoke(ctx, claims.ID, ttl)
}

func (s *TokenService) parse(signed string) (SessionClaims, error) {
	if len(s.secret) == 0 || strings.TrimSpace(signed) == "" {
		return SessionClaims{}, ErrSessionInvalid
	}
	var claims SessionClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
	)
	_, err := parser.ParseWithClaims(signed, &claims, func(_ *jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrSessionExpired
		}
		return SessionClaims{}, ErrSessionInvalid
	}
	if !s.isValidClaims(claims) {
		return SessionClaims{}, ErrSessionInvalid
	}
	return claims, nil
}

func (s *TokenService) isValidClaims(claims SessionClaims) bool {
	if claims.TokenType != sessionTokenType {
		return false
	}
	if strings.TrimSpace(claims.AccountID) == "" || claims.Subject != claims.AccountID {
		return false
	}
	return strings.TrimSpace(claims.ID) != ""
}
