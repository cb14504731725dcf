package http

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shop-api/internal/service"
)

// UserHandler expone las operaciones de cuenta y sesion bajo /api/user.
type UserHandler struct {
	logger *zap.Logger
	auth   *service.AuthService
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
func NewUserHandler(logger *zap.Logger, auth *service.AuthService) *UserHandler {
	return &UserHandler{
		logger: logger,
		auth:   auth,
	}
}

func (h *UserHandler) invalidRequest(c *gin.Context, op string, err error) {
	h.logger.Warn("invalid "+op+" request", zap.Error(err))
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "code": "validation_error"})
}

// Register maneja POST /api/user/register.
func (h *UserHandler) Register(c *gin.Context) {
	var req struct {
		Email     string `json:"email" binding:"required"`
		FirstName string `json:"first_name" binding:"required"`
		LastName  string `json:"last_name" binding:"required"`
		Password  string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, "register", err)
		return
	}

	res, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	})
	if err != nil {
		writeError(c, h.logger, "register", err)
		return
	}

	status := "verification_sent"
	if !res.EmailDelivered {
		status = "verification_pending"
	}
	c.JSON(http.StatusCreated, gin.H{"user": res.Account, "status": status})
}

// Login maneja POST /api/user/login.
func (h *UserHandler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, "login", err)
		return
	}

	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		writeError(c, h.logger, "login", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":     res.Account,
		"token":    res.Session.Token,
		"expires":  res.Session.ExpiresIn,
		"warnings": res.Warnings,
	})
}

// Logout maneja POST /api/user/logout (requiere AuthGuard).
func (h *UserHandler) Logout(c *gin.Context) {
	token := c.GetString(authTokenKey)
	if err := h.auth.Logout(c.Request.Context(), token); err != nil {
		writeError(c, h.logger, "logout", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ForgotPassword maneja POST /api/user/forgotPassword. Responde igual exista
// o no la cuenta.
func (h *UserHandler) ForgotPassword(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, "forgot password", err)
		return
	}
	if err := h.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, "forgot password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset_requested"})
}

// ResetPassword maneja PUT /api/user/resetPassword/:token.
func (h *UserHandler) ResetPassword(c *gin.Context) {
	var req struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, "reset password", err)
		return
	}
	if err := h.auth.CompletePasswordReset(c.Request.Context(), c.Param("token"), req.Password); err != nil {
		writeError(c, h.logger, "reset password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_reset"})
}

// VerifyEmail maneja PUT /api/user/verifyEmail/:token.
func (h *UserHandler) VerifyEmail(c *gin.Context) {
	profile, err := h.auth.VerifyEmail(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, h.logger, "verify email", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile, "status": "email_verified"})
}

// ResendVerification maneja POST /api/user/resendVerification.
func (h *UserHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, "resend verification", err)
		return
	}
	if err := h.auth.ResendVerification(c.Request.Context(), req.Email); err != nil {
		writeError(c, h.logger, "resend verification", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "verification_requested"})
}

// Profile maneja GET /api/user/profile.
func (h *UserHandler) Profile(c *gin.Context) {
	identity, _ := GetSessionIdentity(c)
	profile, err := h.auth.GetAccount(c.Request.Context(), identity.AccountID)
	if err != nil {
		writeError(c, h.logger, "profile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}

// UpdateProfile maneja PUT /api/user/update/:id. Campos desconocidos como
// is_admin se descartan al decodificar.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	var req struct {
		FirstName *string `json:"first_name"`
		LastName  *string `json:"last_name"`
		Email     *string `json:"email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, "update profile", err)
		return
	}
	identity, _ := GetSessionIdentity(c)
	res, err := h.auth.UpdateProfile(c.Request.Context(), identity, strings.TrimSpace(c.Param("id")), service.UpdateProfileInput{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
	})
	if err != nil {
		writeError(c, h.logger, "update profile", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": res.Account, "verification_sent": res.VerificationSent})
}

// ChangePassword maneja PUT /api/user/changePassword.
func (h *UserHandler) ChangePassword(c *gin.Context) {
	var req struct {
		CurrentPassword string `json:"current_password" binding:"required"`
		NewPassword     string `json:"new_password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalidRequest(c, "change password", err)
		return
	}
	identity, _ := GetSessionIdentity(c)
	if err := h.auth.ChangePassword(c.Request.Context(), identity.AccountID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(c, h.logger, "change password", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "password_changed"})
}

// DeleteAccount maneja DELETE /api/user/delete_account/:id.
func (h *UserHandler) DeleteAccount(c *gin.Context) {
	identity, _ := GetSessionIdentity(c)
	if err := h.auth.DeleteAccount(c.Request.Context(), identity, strings.TrimSpace(c.Param("id"))); err != nil {
		writeError(c, h.logger, "delete account", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetAccount maneja GET /api/user/account/:id (solo admin).
func (h *UserHandler) GetAccount(c *gin.Context) {
	profile, err := h.auth.GetAccount(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		writeError(c, h.logger, "get account", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": profile})
}
