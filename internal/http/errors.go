package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shop-api/internal/domain"
)

var kindStatus = map[domain.ErrorKind]int{
	domain.KindValidation:            http.StatusBadRequest,
	domain.KindConflict:              http.StatusConflict,
	domain.KindNotFound:              http.StatusNotFound,
	domain.KindInvalidCredentials:    http.StatusUnauthorized,
	domain.KindAccountLocked:         http.StatusLocked,
	domain.KindEmailNotVerified:      http.StatusForbidden,
	domain.KindInvalidOrExpiredToken: http.StatusBadRequest,
	domain.KindPasswordReused:        http.StatusBadRequest,
	domain.KindUnauthorized:          http.StatusUnauthorized,
	domain.KindForbidden:             http.StatusForbidden,
	domain.KindRateLimited:           http.StatusTooManyRequests,
	domain.KindTimeout:               http.StatusGatewayTimeout,
}

// errorResponse traduce un error del nucleo a status y cuerpo JSON. Los
// errores internos nunca exponen su causa.
func errorResponse(err error) (int, gin.H) {
	var de *domain.Error
	if !errors.As(err, &de) || de.Kind == domain.KindInternal {
		return http.StatusInternalServerError, gin.H{"error": "internal error", "code": domain.KindInternal.String()}
	}
	status, ok := kindStatus[de.Kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := de.Message
	if msg == "" {
		msg = de.Kind.String()
	}
	body := gin.H{"error": msg, "code": de.Kind.String()}
	if de.Reason != "" {
		body["reason"] = de.Reason
	}
	if de.RemainingAttempts != nil {
		body["remaining_attempts"] = *de.RemainingAttempts
	}
	if de.LockedUntil != nil {
		body["locked_until"] = de.LockedUntil.UTC().Format(time.RFC3339)
	}
	return status, body
}

func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	}
	c.JSON(status, body)
}
