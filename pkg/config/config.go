// Package config loads server settings from defaults, a .env file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"coffrefort/pkg/auth"
	"coffrefort/pkg/catalog"
	"coffrefort/pkg/log"
	"coffrefort/pkg/quota"
)

const (
	BackendDisk = "disk"
	BackendS3   = "s3"

	defaultEnvFile    = ".env"
	defaultSQLiteDSN  = "storage/coffrefort.db"
	defaultUploadDir  = "storage/uploads"
	defaultWebDir     = "web"
	defaultQuotaBytes = 1 << 30
)

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Addr string

	DBDriver   string
	DBDSN      string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string

	StorageBackend string
	UploadDir      string
	S3Bucket       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3PathStyle    bool

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	TokenTTL    time.Duration

	QuotaScope   string
	DefaultQuota int64

	LogLevel  string
	LogFormat string
	WebDir    string

	AuthRateLimit   float64
	AuthRateBurst   int
	ShutdownTimeout time.Duration
}

// env resolves keys against the process environment first, then the .env file.
type env map[string]string

func (e env) get(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if value, exists := e[key]; exists {
		return value
	}
	return defaultValue
}

func (e env) getInt64(key string, defaultValue int64) int64 {
	if value := e.get(key, ""); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err == nil {
			return intValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid integer setting")
	}
	return defaultValue
}

func (e env) getFloat(key string, defaultValue float64) float64 {
	if value := e.get(key, ""); value != "" {
		floatValue, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return floatValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid number setting")
	}
	return defaultValue
}

func (e env) getBool(key string, defaultValue bool) bool {
	if value := e.get(key, ""); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid boolean setting")
	}
	return defaultValue
}

// getDuration accepts Go durations ("90m") or whole seconds ("3600").
func (e env) getDuration(key string, defaultValue time.Duration) time.Duration {
	value := e.get(key, "")
	if value == "" {
		return defaultValue
	}
	if seconds, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	log.Warn().Str("key", key).Str("value", value).Msg("Ignoring invalid duration setting")
	return defaultValue
}

// Load builds the configuration for the given command-line arguments
// (without the program name). ENV_FILE names the dotenv file, .env by default;
// a missing file is not an error.
func Load(args []string) (*Config, error) {
	values, err := readEnvFile(os.Getenv("ENV_FILE"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Addr: values.get("ADDR", ":8080"),

		DBDriver:   values.get("DB_DRIVER", catalog.DriverSQLite),
		DBDSN:      values.get("DB_DSN", ""),
		DBHost:     values.get("DB_HOST", "localhost"),
		DBPort:     values.get("DB_PORT", "5432"),
		DBName:     values.get("DB_NAME", "coffrefort"),
		DBUser:     values.get("DB_USER", ""),
		DBPassword: values.get("DB_PASSWORD", ""),
		DBSSLMode:  values.get("DB_SSLMODE", "disable"),

		StorageBackend: values.get("STORAGE_BACKEND", BackendDisk),
		UploadDir:      values.get("UPLOAD_DIR", defaultUploadDir),
		S3Bucket:       values.get("S3_BUCKET", ""),
		S3Region:       values.get("S3_REGION", "us-east-1"),
		S3Endpoint:     values.get("S3_ENDPOINT", ""),
		S3AccessKey:    values.get("S3_ACCESS_KEY", ""),
		S3SecretKey:    values.get("S3_SECRET_KEY", ""),
		S3PathStyle:    values.getBool("S3_PATH_STYLE", true),

		JWTSecret:   values.get("JWT_SECRET", ""),
		JWTIssuer:   values.get("JWT_ISSUER", auth.DefaultIssuer),
		JWTAudience: values.get("JWT_AUDIENCE", auth.DefaultAudience),
		TokenTTL:    values.getDuration("TOKEN_TTL", auth.DefaultTokenTTL),

		QuotaScope:   values.get("QUOTA_SCOPE", string(quota.ScopeGlobal)),
		DefaultQuota: values.getInt64("DEFAULT_QUOTA", defaultQuotaBytes),

		LogLevel:  values.get("LOG_LEVEL", "info"),
		LogFormat: values.get("LOG_FORMAT", log.FormatConsole),
		WebDir:    values.get("WEB_DIR", defaultWebDir),

		AuthRateLimit:   values.getFloat("AUTH_RATE_LIMIT", 5),
		AuthRateBurst:   int(values.getInt64("AUTH_RATE_BURST", 10)),
		ShutdownTimeout: values.getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	flags := flag.NewFlagSet("coffrefortd", flag.ContinueOnError)
	flags.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	flags.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Database driver (sqlite or pgx)")
	flags.StringVar(&cfg.DBDSN, "db-dsn", cfg.DBDSN, "Database DSN")
	flags.StringVar(&cfg.StorageBackend, "storage", cfg.StorageBackend, "Object storage backend (disk or s3)")
	flags.StringVar(&cfg.UploadDir, "upload-dir", cfg.UploadDir, "Upload directory for the disk backend")
	flags.StringVar(&cfg.QuotaScope, "quota-scope", cfg.QuotaScope, "Usage compared to the quota (global or user)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level")
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format (console or json)")
	flags.StringVar(&cfg.WebDir, "web", cfg.WebDir, "Web assets directory path")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFile(path string) (env, error) {
	if path == "" {
		path = defaultEnvFile
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return env{}, nil
	}

	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return values, nil
}

// Validate normalizes aliases and rejects unknown values.
func (c *Config) Validate() error {
	switch strings.ToLower(c.DBDriver) {
	case catalog.DriverSQLite, "sqlite3":
		c.DBDriver = catalog.DriverSQLite
	case catalog.DriverPostgres, "postgres", "postgresql":
		c.DBDriver = catalog.DriverPostgres
	default:
		return fmt.Errorf("%w: unknown DB_DRIVER %q", ErrInvalidConfig, c.DBDriver)
	}

	switch c.StorageBackend {
	case BackendDisk:
		if c.UploadDir == "" {
			return fmt.Errorf("%w: UPLOAD_DIR is required for the disk backend", ErrInvalidConfig)
		}
	case BackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("%w: S3_BUCKET is required for the s3 backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown STORAGE_BACKEND %q", ErrInvalidConfig, c.StorageBackend)
	}

	scope, err := quota.ParseScope(c.QuotaScope)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	c.QuotaScope = string(scope)

	if c.LogFormat != log.FormatConsole && c.LogFormat != log.FormatJSON {
		return fmt.Errorf("%w: unknown LOG_FORMAT %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.DefaultQuota < 0 {
		return fmt.Errorf("%w: DEFAULT_QUOTA must not be negative", ErrInvalidConfig)
	}
	if c.AuthRateLimit <= 0 || c.AuthRateBurst < 1 {
		return fmt.Errorf("%w: AUTH_RATE_LIMIT and AUTH_RATE_BURST must be positive", ErrInvalidConfig)
	}
	if c.TokenTTL <= 0 || c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: TOKEN_TTL and SHUTDOWN_TIMEOUT must be positive", ErrInvalidConfig)
	}
	return nil
}

// DatabaseDSN returns DB_DSN, or a DSN built from the DB_* parts.
func (c *Config) DatabaseDSN() string {
	if c.DBDSN != "" {
		return c.DBDSN
	}
	if c.DBDriver == catalog.DriverPostgres {
		return c.PostgresDSN()
	}
	return defaultSQLiteDSN
}

// PostgresDSN builds a postgres:// URL from the DB_* parts.
func (c *Config) PostgresDSN() string {
	dsn := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	if c.DBUser != "" {
		if c.DBPassword != "" {
			dsn.User = url.UserPassword(c.DBUser, c.DBPassword)
		} else {
			dsn.User = url.User(c.DBUser)
		}
	}
	if c.DBSSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": []string{c.DBSSLMode}}.Encode()
	}
	return dsn.String()
}
