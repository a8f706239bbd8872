package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// EncryptionKeySize is the AES-256 key length the password cipher requires.
const EncryptionKeySize = 32

// Password cipher modes.
const (
	CipherCTR        = "ctr"
	CipherXChaCha    = "xchacha20poly1305"
	defaultJWTSecret = "dev-secret"
	envDevelopment   = "development"
)

// Config aggregates runtime configuration for the service. It is built once
// at startup and passed by value afterwards.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Classifier   ClassifierConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
	// ConnectAttempts bounds startup retries while the database comes up.
	ConnectAttempts int
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	// URL, when set, takes precedence over the discrete fields.
	URL      string
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	SessionSecret          string
	SessionTTLMinutes      int
	PasswordCipher         string
	SignInRateCapacity     int
	SignInRateWindowSecond int
	BootstrapAdminName     string
	BootstrapAdminEmail    string
	BootstrapAdminPassword string

	encryptionKey []byte
}

// NotificationConfig holds the broker used to fan out ticket events.
type NotificationConfig struct {
	AMQPURL   string
	Exchange  string
	QueueSize int
}

// ClassifierConfig points at the optional category prediction service.
type ClassifierConfig struct {
	URL            string
	TimeoutSeconds int
	RatePerSecond  float64
	Burst          int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	key, err := DecodeEncryptionKey(os.Getenv("AUTH_ENCRYPTION_SECRET"))
	if err != nil {
		return nil, fmt.Errorf("invalid AUTH_ENCRYPTION_SECRET: %w", err)
	}

	cipherMode := strings.ToLower(getEnv("AUTH_PASSWORD_CIPHER", CipherCTR))
	if cipherMode != CipherCTR && cipherMode != CipherXChaCha {
		return nil, fmt.Errorf("invalid AUTH_PASSWORD_CIPHER: %q", cipherMode)
	}

	appEnv := getEnv("APP_ENV", envDevelopment)
	sessionSecret, err := sessionSecretFor(appEnv, os.Getenv("AUTH_SESSION_SECRET"))
	if err != nil {
		return nil, err
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "support-desk"),
			Env:                   appEnv,
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:             os.Getenv("POSTGRES_DSN"),
			MaxConns:        maxConns,
			MinConns:        minConns,
			RunMigrations:   runMigrations,
			MigrationsDir:   getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec:  connMaxIdle,
			ConnMaxLifeSec:  connMaxLife,
			ConnectAttempts: getEnvAsInt("POSTGRES_CONNECT_ATTEMPTS", 5),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			SessionSecret:          sessionSecret,
			SessionTTLMinutes:      getEnvAsInt("AUTH_SESSION_TTL_MINUTES", 60),
			PasswordCipher:         cipherMode,
			SignInRateCapacity:     getEnvAsInt("AUTH_SIGNIN_RATE_CAPACITY", 10),
			SignInRateWindowSecond: getEnvAsInt("AUTH_SIGNIN_RATE_WINDOW_SECONDS", 60),
			BootstrapAdminName:     getEnv("AUTH_BOOTSTRAP_ADMIN_NAME", "Administrator"),
			BootstrapAdminEmail:    strings.TrimSpace(os.Getenv("AUTH_BOOTSTRAP_ADMIN_EMAIL")),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
			encryptionKey:          key,
		},
		Notification: NotificationConfig{
			AMQPURL:   os.Getenv("NOTIFY_AMQP_URL"),
			Exchange:  getEnv("NOTIFY_EXCHANGE", "tickets.events"),
			QueueSize: getEnvAsInt("NOTIFY_QUEUE_SIZE", 256),
		},
		Classifier: ClassifierConfig{
			URL:            strings.TrimRight(os.Getenv("CLASSIFIER_URL"), "/"),
			TimeoutSeconds: getEnvAsInt("CLASSIFIER_TIMEOUT_SECONDS", 5),
			RatePerSecond:  getEnvAsFloat("CLASSIFIER_RATE_PER_SECOND", 5),
			Burst:          getEnvAsInt("CLASSIFIER_BURST", 5),
		},
	}

	return cfg, nil
}

// sessionSecretFor returns the token signing secret. Only development may run
// on the built-in secret; every other environment must set one.
func sessionSecretFor(env, secret string) (string, error) {
	secret = strings.TrimSpace(secret)
	if secret != "" {
		return secret, nil
	}
	if env != envDevelopment {
		return "", fmt.Errorf("AUTH_SESSION_SECRET is required when APP_ENV=%s", env)
	}
	return defaultJWTSecret, nil
}

// DecodeEncryptionKey decodes a base64 secret and checks it is a 256-bit key.
func DecodeEncryptionKey(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, errors.New("secret is empty")
	}
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, err
	}
	if len(key) != EncryptionKeySize {
		return nil, fmt.Errorf("secret decodes to %d bytes, want %d", len(key), EncryptionKeySize)
	}
	return key, nil
}

// NewAuthConfig builds an AuthConfig around an already decoded key.
func NewAuthConfig(key []byte, sessionSecret string, sessionTTLMinutes int) AuthConfig {
	return AuthConfig{
		SessionSecret:          sessionSecret,
		SessionTTLMinutes:      sessionTTLMinutes,
		PasswordCipher:         CipherCTR,
		SignInRateCapacity:     10,
		SignInRateWindowSecond: 60,
		encryptionKey:          append([]byte(nil), key...),
	}
}

// EncryptionKey returns a copy of the decoded password encryption key.
func (a AuthConfig) EncryptionKey() []byte {
	return append([]byte(nil), a.encryptionKey...)
}

// SessionTTL returns the lifetime of issued sessions.
func (a AuthConfig) SessionTTL() time.Duration {
	if a.SessionTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(a.SessionTTLMinutes) * time.Minute
}

// SignInRateWindow returns the refill window of the sign-in limiter.
func (a AuthConfig) SignInRateWindow() time.Duration {
	if a.SignInRateWindowSecond <= 0 {
		return time.Minute
	}
	return time.Duration(a.SignInRateWindowSecond) * time.Second
}

// BootstrapAdminEnabled reports whether an admin account should be ensured at startup.
func (a AuthConfig) BootstrapAdminEnabled() bool {
	return a.BootstrapAdminEmail != "" && a.BootstrapAdminPassword != ""
}

// Enabled reports whether the classifier endpoint is configured.
func (c ClassifierConfig) Enabled() bool {
	return c.URL != ""
}

// Timeout returns the per-call deadline for classifier requests.
func (c ClassifierConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
