package domain

import "time"

// SessionIdentity es el contenido verificado de una credencial de sesion.
type SessionIdentity struct {
	AccountID string    `json:"account_id"`
	IsAdmin   bool      `json:"is_admin"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session es la credencial emitida tras un login correcto.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
}
