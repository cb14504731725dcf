package email

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Message es un correo listo para Sender.Send.
type Message struct {
	To      string
	Subject string
	Body    string
}

// Composer arma los correos de verificacion y reset con enlaces al frontend.
type Composer struct {
	baseURL string
}

func NewComposer(baseURL string) Composer {
	return Composer{baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/")}
}

func (c Composer) Verification(to, token string, expiresAt time.Time) Message {
	link := c.link("verify-email", token)
	return Message{
		To:      to,
		Subject: "Email Verification",
		Body: fmt.Sprintf(
			"Please verify your email by clicking on this link:\n\n%s\n\nThe link expires at %s UTC.\n",
			link,
			expiresAt.UTC().Format(time.RFC3339),
		),
	}
}

func (c Composer) PasswordReset(to, token string, expiresAt time.Time) Message {
	link := c.link("resetPassword", token)
	return Message{
		To:      to,
		Subject: "Password Reset Token",
		Body: fmt.Sprintf(
			"You are receiving this email because a password reset was requested for your account.\n\n%s\n\nThe link expires at %s UTC. If you did not request it, ignore this email.\n",
			link,
			expiresAt.UTC().Format(time.RFC3339),
		),
	}
}

func (c Composer) link(path, token string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, path, url.PathEscape(token))
}
