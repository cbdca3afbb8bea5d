package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  Sub-configs group the settings of one
// collaborator (mail, payment gateway, broker).
type Config struct {
	Env            string        // application environment (e.g. "dev", "prod")
	Port           string        // HTTP port to listen on
	AppURL         string        // public base URL used in emails and gateway redirects
	DBUser         string        // database username
	DBPass         string        // database password (optional)
	DBHost         string        // database host address
	DBPort         string        // database port number
	DBName         string        // database name
	JWTSecret      string        // secret used to sign access JWTs
	JWTRefresh     string        // secret used to sign refresh JWTs (defaults to JWTSecret)
	AccessTTL      time.Duration // access token time‑to‑live
	RefreshTTL     time.Duration // refresh token time‑to‑live
	ActivationTTL  time.Duration // activation token time‑to‑live
	ResetTTL       time.Duration // password reset token time‑to‑live
	BcryptCost     int           // bcrypt cost for password hashing
	RequestTimeout time.Duration // per-request deadline for DB work
	SweepInterval  time.Duration // how often expired ledger rows are deleted
	Mail           MailConfig
	Payment        PaymentConfig
	Queue          QueueConfig
}

// MailConfig configures outgoing email.  Transport is one of "smtp",
// "queue" (publish to the broker, a consumer sends) or "log".
type MailConfig struct {
	Transport string
	SMTPHost  string
	SMTPPort  int
	SMTPUser  string
	SMTPPass  string
	From      string
}

// PaymentConfig configures the payment gateway.
type PaymentConfig struct {
	SecretKey      string
	WebhookSecret  string
	Currency       string
	GatewayTimeout time.Duration
	SessionTTL     time.Duration
}

// QueueConfig configures the message broker.  An empty URL disables
// publishing and the consumers.
type QueueConfig struct {
	URL           string
	EmailQueue    string
	PaymentQueue  string
	PaymentLogDir string
}

// Load reads configuration values from environment variables and returns a
// Config.  A .env file in the working directory is applied first when it
// exists.  Required variables are enforced by must() and missing values
// cause the program to exit with a fatal log message.
func Load() Config {
	_ = godotenv.Load() // absent .env is fine; real env vars win

	cfg := Config{
		Env:            envStr("APP_ENV", "dev"),
		Port:           envStr("APP_PORT", "8080"),
		AppURL:         strings.TrimRight(envStr("APP_URL", "http://localhost:8080"), "/"),
		DBUser:         must("DB_USER"),
		DBPass:         os.Getenv("DB_PASS"), // empty allowed
		DBHost:         must("DB_HOST"),
		DBPort:         envStr("DB_PORT", "3306"),
		DBName:         must("DB_NAME"),
		JWTSecret:      must("JWT_SECRET"),
		JWTRefresh:     os.Getenv("JWT_REFRESH_SECRET"),
		AccessTTL:      time.Duration(mustInt("ACCESS_TOKEN_TTL_MIN")) * time.Minute,
		RefreshTTL:     time.Duration(mustInt("REFRESH_TOKEN_TTL_DAYS")) * 24 * time.Hour,
		ActivationTTL:  envDur("ACTIVATION_TOKEN_TTL", 24*time.Hour),
		ResetTTL:       envDur("PASSWORD_RESET_TOKEN_TTL", 24*time.Hour),
		BcryptCost:     envInt("BCRYPT_COST", 12),
		RequestTimeout: envDur("REQUEST_TIMEOUT", 5*time.Second),
		SweepInterval:  envDur("TOKEN_SWEEP_INTERVAL", time.Minute),
		Mail: MailConfig{
			Transport: strings.ToLower(envStr("EMAIL_TRANSPORT", "log")),
			SMTPHost:  envStr("SMTP_HOST", "localhost"),
			SMTPPort:  envInt("SMTP_PORT", 587),
			SMTPUser:  os.Getenv("SMTP_USER"),
			SMTPPass:  os.Getenv("SMTP_PASSWORD"),
			From:      envStr("EMAIL_FROM", "no-reply@online-cinema.local"),
		},
		Payment: PaymentConfig{
			SecretKey:      os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:  os.Getenv("STRIPE_WEBHOOK_SECRET"),
			Currency:       strings.ToLower(envStr("PAYMENT_CURRENCY", "usd")),
			GatewayTimeout: envDur("PAYMENT_GATEWAY_TIMEOUT", 10*time.Second),
			SessionTTL:     envDur("PAYMENT_SESSION_TTL", 30*time.Minute),
		},
		Queue: QueueConfig{
			URL:           rabbitURL(),
			EmailQueue:    envStr("EMAIL_QUEUE", "email.outbox"),
			PaymentQueue:  envStr("PAYMENT_EVENTS_QUEUE", "payment.events"),
			PaymentLogDir: envStr("PAYMENT_LOG_DIR", "logs"),
		},
	}
	if cfg.Mail.Transport == "queue" && cfg.Queue.URL == "" {
		log.Fatalf("EMAIL_TRANSPORT=queue requires RABBITMQ_URL")
	}
	return cfg
}

// IsProd reports whether the service runs in production mode.
func (c Config) IsProd() bool {
	return c.Env == "prod" || c.Env == "production"
}

// rabbitURL honours RABBITMQ_URL and the AMQP_URL alias.
func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		log.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
// If conversion fails, the application logs a fatal error and exits.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		log.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
