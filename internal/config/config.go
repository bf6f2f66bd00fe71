package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Omeka S
	OmekaURL           string
	KeyIdentity        string
	KeyCredential      string
	AdminKeyIdentity   string
	AdminKeyCredential string
	PreloadDir         string
	SiteTheme          string
	SiteOwnerID        int
	SiteRole           string
	UserEmailDomain    string
	RequestDelay       time.Duration
	HTTPTimeout        time.Duration

	// Item-set reconciliation
	MarkerProperty string
	MarkerPrefix   string

	// WordPress
	WPUsername  string
	WPPassword  string
	CASLoginURL string

	// Files
	ExportsDir      string
	ReportPath      string
	ImportersConfig string

	// Run journal
	StorageType string // "none", "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// Export archive
	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOUseSSL    bool
	MinIOBucket    string

	// Progress events
	RedisURL     string
	RedisChannel string

	// Logging
	LogLevel        string
	LogFormat       string // "text" or "json"
	LogstashTCPAddr string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string
}

// Load loads the configuration from environment variables. Files are read
// with godotenv first; a missing default .env is ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) > 0 && envFiles[0] != "" {
		if err := godotenv.Load(envFiles...); err != nil {
			return nil, &ConfigError{Field: "env", Message: err.Error()}
		}
	} else {
		_ = godotenv.Load()
	}

	return &Config{
		OmekaURL:           strings.TrimRight(getEnv("OMEKA_API_URL", ""), "/"),
		KeyIdentity:        getEnv("OMEKA_KEY_IDENTITY", ""),
		KeyCredential:      getEnv("OMEKA_KEY_CREDENTIAL", ""),
		AdminKeyIdentity:   getEnv("OMEKA_ADMIN_KEY_IDENTITY", ""),
		AdminKeyCredential: getEnv("OMEKA_ADMIN_KEY_CREDENTIAL", ""),
		PreloadDir:         getEnv("OMEKA_PRELOAD_DIR", "/var/www/html/omeka-s/files/preload"),
		SiteTheme:          getEnv("OMEKA_SITE_THEME", "freedom"),
		SiteOwnerID:        getEnvInt("OMEKA_SITE_OWNER_ID", 1),
		SiteRole:           getEnv("OMEKA_SITE_ROLE", "editor"),
		UserEmailDomain:    getEnv("USER_EMAIL_DOMAIN", "gobiernodecanarias.org"),
		RequestDelay:       getEnvDuration("OMEKA_REQUEST_DELAY", 100*time.Millisecond),
		HTTPTimeout:        getEnvDuration("HTTP_TIMEOUT", 5*time.Minute),
		MarkerProperty:     getEnv("MARKER_PROPERTY", "dcterms:audience"),
		MarkerPrefix:       getEnv("MARKER_PREFIX", "site:"),
		WPUsername:         getEnv("WP_USERNAME", ""),
		WPPassword:         getEnv("WP_PASSWORD", ""),
		CASLoginURL:        getEnv("CAS_LOGIN_URL", "https://www3.gobiernodecanarias.org/educacion/cau_ce/cas/login"),
		ExportsDir:         getEnv("EXPORTS_DIR", "./exports"),
		ReportPath:         getEnv("REPORT_PATH", "./migration_report.json"),
		ImportersConfig:    getEnv("IMPORTERS_CONFIG", "./migration_config.json"),
		StorageType:        getEnv("STORAGE_TYPE", "none"),
		SQLitePath:         getEnv("SQLITE_PATH", "./migration_runs.db"),
		PostgresURL:        getEnv("POSTGRES_URL", ""),
		MinIOEndpoint:      getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:     getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:     getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:        getEnv("MINIO_USE_SSL", "false") == "true",
		MinIOBucket:        getEnv("MINIO_BUCKET", "channel-exports"),
		RedisURL:           getEnv("REDIS_URL", ""),
		RedisChannel:       getEnv("REDIS_CHANNEL", "omeka-migration:progress"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "text"),
		LogstashTCPAddr:    getEnv("LOGSTASH_TCP_ADDR", ""),
		APIPort:            getEnv("API_PORT", "8080"),
		APIHost:            getEnv("API_HOST", "localhost"),
		APIEndpoint:        getEnv("API_ENDPOINT", "http://localhost:8080"),
	}, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil && v > 0 {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil && d >= 0 {
		return d
	}
	return defaultValue
}

// Validate validates the settings every command shares
func (c *Config) Validate() error {
	if c.StorageType != "none" && c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'none', 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return &ConfigError{Field: "LOG_FORMAT", Message: "must be 'text' or 'json'"}
	}
	return nil
}

// ValidateOmeka validates the settings needed to talk to Omeka S
func (c *Config) ValidateOmeka() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.OmekaURL == "" {
		return &ConfigError{Field: "OMEKA_API_URL", Message: "Omeka S API URL is required"}
	}
	if (c.KeyIdentity == "") != (c.KeyCredential == "") {
		return &ConfigError{Field: "OMEKA_KEY_CREDENTIAL", Message: "key identity and credential must be set together"}
	}
	if (c.AdminKeyIdentity == "") != (c.AdminKeyCredential == "") {
		return &ConfigError{Field: "OMEKA_ADMIN_KEY_CREDENTIAL", Message: "admin key identity and credential must be set together"}
	}
	return nil
}

// ValidateWordPress validates the settings needed to export channels
func (c *Config) ValidateWordPress() error {
	if c.WPUsername == "" {
		return &ConfigError{Field: "WP_USERNAME", Message: "WordPress username is required"}
	}
	if c.WPPassword == "" {
		return &ConfigError{Field: "WP_PASSWORD", Message: "WordPress password is required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
