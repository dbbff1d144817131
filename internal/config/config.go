// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

var configFile = altsrc.StringSourcer("config.toml")

// Storage drivers for profile images.
const (
	StorageLocal = "local"
	StorageS3    = "s3"
)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server      ServerConfig
	Log         LogConfig
	Database    DatabaseConfig
	TLS         TLSConfig
	Session     SessionConfig
	SMTP        SMTPConfig
	Challenge   ChallengeConfig
	Password    PasswordConfig
	Storage     StorageConfig
	Maintenance MaintenanceConfig
	Metrics     MetricsConfig
}

type TLSConfig struct {
	Mode     string // auto, acme, manual, off
	CertDir  string // ACME certificate cache
	Email    string // ACME email for Let's Encrypt
	CertFile string // manual mode
	KeyFile  string // manual mode
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host        string
	Port        int
	BaseURL     string
	MaxBodySize int // in MB
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type SessionConfig struct { //nolint:govet // fieldalignment not critical
	CookieName string // Session cookie name
	MaxAge     int    // Session max age in seconds
	HashKey    string // 32-byte hex string for HMAC signing
	BlockKey   string // 32-byte hex string for AES encryption (optional)
}

// SMTPConfig configures outgoing mail. An empty Host logs challenges instead of sending them.
type SMTPConfig struct { //nolint:govet // fieldalignment not critical
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      string // mandatory, opportunistic, none
}

type ChallengeConfig struct {
	TTL time.Duration
}

type PasswordConfig struct {
	BcryptCost int
}

type StorageConfig struct { //nolint:govet // fieldalignment not critical
	Driver       string // local, s3
	Dir          string
	URLPrefix    string
	MaxImageSize int64 // in bytes
	S3Bucket     string
	S3Region     string
	S3Endpoint   string
	S3AccessKey  string
	S3SecretKey  string
}

type MaintenanceConfig struct {
	Schedule string // cron expression, "off" disables the sweeper
}

type MetricsConfig struct {
	Enabled bool
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:        cmd.String("host"),
			Port:        int(cmd.Int("port")),
			BaseURL:     cmd.String("base-url"),
			MaxBodySize: int(cmd.Int("max-body-size")),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		TLS: TLSConfig{
			Mode:     cmd.String("tls-mode"),
			CertDir:  cmd.String("tls-cert-dir"),
			Email:    cmd.String("tls-email"),
			CertFile: cmd.String("tls-cert-file"),
			KeyFile:  cmd.String("tls-key-file"),
		},
		Session: SessionConfig{
			CookieName: cmd.String("session-cookie-name"),
			MaxAge:     int(cmd.Int("session-max-age")),
			HashKey:    cmd.String("session-hash-key"),
			BlockKey:   cmd.String("session-block-key"),
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.String("smtp-tls"),
		},
		Challenge: ChallengeConfig{
			TTL: cmd.Duration("challenge-ttl"),
		},
		Password: PasswordConfig{
			BcryptCost: int(cmd.Int("bcrypt-cost")),
		},
		Storage: StorageConfig{
			Driver:       strings.ToLower(cmd.String("storage-driver")),
			Dir:          cmd.String("storage-dir"),
			URLPrefix:    cmd.String("storage-url-prefix"),
			MaxImageSize: cmd.Int64("storage-max-image-size"),
			S3Bucket:     cmd.String("s3-bucket"),
			S3Region:     cmd.String("s3-region"),
			S3Endpoint:   cmd.String("s3-endpoint"),
			S3AccessKey:  cmd.String("s3-access-key"),
			S3SecretKey:  cmd.String("s3-secret-key"),
		},
		Maintenance: MaintenanceConfig{
			Schedule: cmd.String("maintenance-schedule"),
		},
		Metrics: MetricsConfig{
			Enabled: cmd.Bool("metrics-enabled"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimRight(cfg.Server.BaseURL, "/")

	return cfg
}

// Validate reports configuration combinations that cannot work at runtime.
func (c *Config) Validate() error {
	if c.Challenge.TTL <= 0 {
		return fmt.Errorf("challenge TTL must be positive, got %s", c.Challenge.TTL)
	}
	switch c.Storage.Driver {
	case StorageLocal:
		if c.Storage.Dir == "" {
			return fmt.Errorf("local storage requires a directory")
		}
	case StorageS3:
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("s3 storage requires a bucket")
		}
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}
	if c.SMTP.Host != "" && c.SMTP.From == "" {
		return fmt.Errorf("SMTP from address is required when SMTP host is set")
	}
	return nil
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	mode := strings.ToLower(cfg.TLS.Mode)

	scheme := "http"
	if shouldUseTLS(mode, host) {
		scheme = "https"
	}

	// ACME always serves on 443
	if mode == "acme" {
		return fmt.Sprintf("https://%s", host)
	}

	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		return fmt.Sprintf("%s://%s", scheme, host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, host, port)
}

func shouldUseTLS(mode, host string) bool {
	switch mode {
	case "off":
		return false
	case "acme", "manual":
		return true
	default: // "auto" or empty
		return !IsLocalhost(host)
	}
}

// IsLocalhost checks if the host is a localhost address.
func IsLocalhost(host string) bool {
	switch host {
	case "", "localhost", "127.0.0.1", "::1":
		return true
	}
	return strings.HasSuffix(host, ".localhost")
}

func Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: cli.NewValueSourceChain(cli.EnvVar("HOST"), toml.TOML("server.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: cli.NewValueSourceChain(cli.EnvVar("PORT"), toml.TOML("server.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL used in e-mail links",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BASE_URL"), toml.TOML("server.base_url", configFile)),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   5,
			Usage:   "Maximum request body size in MB",
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAX_BODY_SIZE"), toml.TOML("server.max_body_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_LEVEL"), toml.TOML("log.level", configFile)),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("LOG_FORMAT"), toml.TOML("log.format", configFile)),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/accounts.db",
			Usage:   "Database DSN",
			Sources: cli.NewValueSourceChain(cli.EnvVar("DATABASE_DSN"), toml.TOML("database.dsn", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-mode",
			Value:   "auto",
			Usage:   "TLS mode (auto, acme, manual, off)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_MODE"), toml.TOML("tls.mode", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-dir",
			Value:   "./data/certs",
			Usage:   "Directory for cached ACME certificates",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_DIR"), toml.TOML("tls.cert_dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-email",
			Usage:   "Email for ACME/Let's Encrypt registration",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_EMAIL"), toml.TOML("tls.email", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-cert-file",
			Usage:   "Path to TLS certificate file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_CERT_FILE"), toml.TOML("tls.cert_file", configFile)),
		},
		&cli.StringFlag{
			Name:    "tls-key-file",
			Usage:   "Path to TLS private key file (manual mode)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("TLS_KEY_FILE"), toml.TOML("tls.key_file", configFile)),
		},
	}
	flags = append(flags, sessionFlags()...)
	flags = append(flags, smtpFlags()...)
	flags = append(flags, accountFlags()...)
	flags = append(flags, storageFlags()...)
	return flags
}

func sessionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "session-cookie-name",
			Value:   "_session",
			Usage:   "Session cookie name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_COOKIE_NAME"), toml.TOML("session.cookie_name", configFile)),
		},
		&cli.IntFlag{
			Name:    "session-max-age",
			Value:   604800, // 7 days
			Usage:   "Session max age in seconds",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_MAX_AGE"), toml.TOML("session.max_age", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-hash-key",
			Usage:   "Session hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_HASH_KEY"), toml.TOML("session.hash_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "session-block-key",
			Usage:   "Session block key for encryption (32-byte hex, optional)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SESSION_BLOCK_KEY"), toml.TOML("session.block_key", configFile)),
		},
	}
}

func smtpFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host (empty logs challenges instead of mailing them)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_HOST"), toml.TOML("smtp.host", configFile)),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PORT"), toml.TOML("smtp.port", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_USERNAME"), toml.TOML("smtp.username", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_PASSWORD"), toml.TOML("smtp.password", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Usage:   "Sender address for account e-mails",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM"), toml.TOML("smtp.from", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "Accounts",
			Usage:   "Sender display name",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_FROM_NAME"), toml.TOML("smtp.from_name", configFile)),
		},
		&cli.StringFlag{
			Name:    "smtp-tls",
			Value:   "opportunistic",
			Usage:   "SMTP TLS policy (mandatory, opportunistic, none)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("SMTP_TLS"), toml.TOML("smtp.tls", configFile)),
		},
	}
}

func accountFlags() []cli.Flag {
	return []cli.Flag{
		&cli.DurationFlag{
			Name:    "challenge-ttl",
			Value:   2 * time.Minute,
			Usage:   "Lifetime of registration and password reset challenges",
			Sources: cli.NewValueSourceChain(cli.EnvVar("CHALLENGE_TTL"), toml.TOML("challenge.ttl", configFile)),
		},
		&cli.IntFlag{
			Name:    "bcrypt-cost",
			Value:   12,
			Usage:   "bcrypt cost for password hashes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("BCRYPT_COST"), toml.TOML("password.bcrypt_cost", configFile)),
		},
		&cli.StringFlag{
			Name:    "maintenance-schedule",
			Value:   "@every 5m",
			Usage:   `Cron schedule for clearing expired challenges ("off" disables)`,
			Sources: cli.NewValueSourceChain(cli.EnvVar("MAINTENANCE_SCHEDULE"), toml.TOML("maintenance.schedule", configFile)),
		},
		&cli.BoolFlag{
			Name:    "metrics-enabled",
			Value:   true,
			Usage:   "Expose Prometheus metrics on /metrics",
			Sources: cli.NewValueSourceChain(cli.EnvVar("METRICS_ENABLED"), toml.TOML("metrics.enabled", configFile)),
		},
	}
}

func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "storage-driver",
			Value:   StorageLocal,
			Usage:   "Profile image storage (local, s3)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("STORAGE_DRIVER"), toml.TOML("storage.driver", configFile)),
		},
		&cli.StringFlag{
			Name:    "storage-dir",
			Value:   "./data/images",
			Usage:   "Directory for locally stored profile images",
			Sources: cli.NewValueSourceChain(cli.EnvVar("STORAGE_DIR"), toml.TOML("storage.dir", configFile)),
		},
		&cli.StringFlag{
			Name:    "storage-url-prefix",
			Value:   "/media",
			Usage:   "URL prefix under which local images are served",
			Sources: cli.NewValueSourceChain(cli.EnvVar("STORAGE_URL_PREFIX"), toml.TOML("storage.url_prefix", configFile)),
		},
		&cli.Int64Flag{
			Name:    "storage-max-image-size",
			Value:   2 << 20,
			Usage:   "Maximum profile image size in bytes",
			Sources: cli.NewValueSourceChain(cli.EnvVar("STORAGE_MAX_IMAGE_SIZE"), toml.TOML("storage.max_image_size", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			Usage:   "S3 bucket for profile images",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_BUCKET"), toml.TOML("storage.s3.bucket", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Value:   "us-east-1",
			Usage:   "S3 region",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_REGION"), toml.TOML("storage.s3.region", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "Custom S3 endpoint (MinIO and friends)",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_ENDPOINT"), toml.TOML("storage.s3.endpoint", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-access-key",
			Usage:   "S3 access key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_ACCESS_KEY"), toml.TOML("storage.s3.access_key", configFile)),
		},
		&cli.StringFlag{
			Name:    "s3-secret-key",
			Usage:   "S3 secret key",
			Sources: cli.NewValueSourceChain(cli.EnvVar("S3_SECRET_KEY"), toml.TOML("storage.s3.secret_key", configFile)),
		},
	}
}
