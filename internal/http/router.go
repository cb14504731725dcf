package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter configura el router de Gin con middlewares y rutas de cuenta.
func NewRouter(
	logger *zap.Logger,
	userH *UserHandler,
	sessions SessionVerifier,
) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	user := r.Group("/api/user")
	user.POST("/register", userH.Register)
	user.POST("/login", userH.Login)
	user.POST("/forgotPassword", userH.ForgotPassword)
	user.PUT("/resetPassword/:token", userH.ResetPassword)
	user.PUT("/verifyEmail/:token", userH.VerifyEmail)
	user.POST("/resendVerification", userH.ResendVerification)

	authed := user.Group("", AuthGuard(sessions))
	authed.POST("/logout", userH.Logout)
	authed.GET("/profile", userH.Profile)
	authed.PUT("/update/:id", userH.UpdateProfile)
	authed.PUT("/changePassword", userH.ChangePassword)
	authed.DELETE("/delete_account/:id", userH.DeleteAccount)

	admin := authed.Group("", AdminGuard())
	admin.GET("/account/:id", userH.GetAccount)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
