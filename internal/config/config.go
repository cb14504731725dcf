package config

import (
	"errors"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config centraliza la configuración del servicio.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" envDefault:"8080"`
	DatabaseURL string `env:"DATABASE_URL"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"10"`
	AppBaseURL  string `env:"APP_BASE_URL" envDefault:"http://localhost:3000"`

	JWTSecret          string        `env:"JWT_SECRET,required"`
	JWTIssuer          string        `env:"JWT_ISSUER" envDefault:"shop-api"`
	SessionTTL         time.Duration `env:"SESSION_TTL" envDefault:"1h"`
	CapabilityTokenTTL time.Duration `env:"CAPABILITY_TOKEN_TTL" envDefault:"10m"`

	LockoutThreshold    int           `env:"LOCKOUT_THRESHOLD" envDefault:"5"`
	LockoutDuration     time.Duration `env:"LOCKOUT_DURATION" envDefault:"30m"`
	PasswordHistorySize int           `env:"PASSWORD_HISTORY_SIZE" envDefault:"5"`
	PasswordMaxAge      time.Duration `env:"PASSWORD_MAX_AGE" envDefault:"2160h"`
	BcryptCost          int           `env:"BCRYPT_COST" envDefault:"10"`

	ResetRequestLimit  int           `env:"RESET_REQUEST_LIMIT" envDefault:"3"`
	ResetRequestWindow time.Duration `env:"RESET_REQUEST_WINDOW" envDefault:"10m"`

	SMTPHost     string        `env:"SMTP_HOST"`
	SMTPPort     int           `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser     string        `env:"SMTP_USER"`
	SMTPPass     string        `env:"SMTP_PASS"`
	SMTPFrom     string        `env:"SMTP_FROM"`
	SMTPFromName string        `env:"SMTP_FROM_NAME"`
	SMTPUseTLS   bool          `env:"SMTP_USE_TLS" envDefault:"false"`
	SMTPTimeout  time.Duration `env:"SMTP_TIMEOUT" envDefault:"10s"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	AuditBufferSize    int    `env:"AUDIT_BUFFER_SIZE" envDefault:"256"`
	AuditWorkers       int    `env:"AUDIT_WORKERS" envDefault:"4"`
	AuditDropIfFull    bool   `env:"AUDIT_DROP_IF_FULL" envDefault:"false"`
	AuditMongoURI      string `env:"AUDIT_MONGO_URI"`
	AuditMongoDatabase string `env:"AUDIT_MONGO_DATABASE" envDefault:"shop"`
}

const minJWTSecretLen = 32

// LoadConfig carga la configuración desde variables de entorno.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rechaza combinaciones que dejarian el servicio en un estado inseguro.
func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < minJWTSecretLen {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 bytes"))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.CapabilityTokenTTL <= 0 {
		errs = append(errs, errors.New("CAPABILITY_TOKEN_TTL must be positive"))
	}
	if c.LockoutThreshold <= 0 {
		errs = append(errs, errors.New("LOCKOUT_THRESHOLD must be positive"))
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, errors.New("LOCKOUT_DURATION must be positive"))
	}
	if c.PasswordHistorySize < 0 {
		errs = append(errs, errors.New("PASSWORD_HISTORY_SIZE must not be negative"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 4 and 31"))
	}
	if c.AuditWorkers <= 0 {
		errs = append(errs, errors.New("AUDIT_WORKERS must be positive"))
	}
	return errors.Join(errs...)
}
