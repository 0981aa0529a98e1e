package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration with validation
type Config struct {
	// Application settings
	Port     int
	LogLevel string

	// Database settings
	Database DatabaseConfig

	// External services
	Mailer MailerConfig
	NATS   NATSConfig

	// Security settings
	Security SecurityConfig

	// Performance settings
	Server ServerConfig

	// Lab scheduling settings
	Lab LabConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// MailerConfig holds the mail relay configuration. The relay is an external
// HTTP service; delivery is best-effort and never blocks the lifecycle.
type MailerConfig struct {
	URL            string
	AdminEmail     string
	Timeout        time.Duration
	RetryAttempts  int
	RetryDelay     time.Duration
	MaxPayloadSize int64
}

// NATSConfig holds the optional NATS event mirror configuration. When URL is
// empty, events are fanned out to SSE listeners only.
type NATSConfig struct {
	URL           string
	SubjectPrefix string
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	RateLimitRPS    int
	RateLimitBurst  int
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	EnableCORS      bool
	AllowedOrigins  []string
	TrustedProxies  []string
	JWTSecret       string
	TokenTTL        time.Duration
}

// ServerConfig holds server performance configuration
type ServerConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
}

// LabConfig holds session scheduling and remote provisioning settings.
type LabConfig struct {
	// RDP forwarding port pool assigned to approved sessions.
	RDPPortMin int
	RDPPortMax int

	// A booking must start at least MinLeadTime after the request instant.
	MinLeadTime time.Duration

	// The reminder command is enqueued RemindBefore ahead of session end.
	RemindBefore time.Duration

	// Reachability probe budget during approval.
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration

	// Terminal commands older than CommandRetention are purged every
	// PurgeInterval.
	CommandRetention time.Duration
	PurgeInterval    time.Duration

	// Reverse tunnel endpoint the agent connects back through.
	TunnelHost   string
	TunnelPort   int
	TunnelUser   string
	LocalRDPPort int
}

// LoadConfig loads and validates the configuration from environment variables
func LoadConfig() (*Config, error) {

	config := &Config{
		Port:     getEnvAsInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", ""),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", ""),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
		},

		Mailer: MailerConfig{
			URL:            getEnv("MAIL_API_URL", ""),
			AdminEmail:     getEnv("ADMIN_EMAIL", ""),
			Timeout:        getEnvAsDuration("MAIL_TIMEOUT", 10*time.Second),
			RetryAttempts:  getEnvAsInt("MAIL_RETRY_ATTEMPTS", 3),
			RetryDelay:     getEnvAsDuration("MAIL_RETRY_DELAY", time.Second),
			MaxPayloadSize: getEnvAsInt64("MAIL_MAX_PAYLOAD_SIZE", 1024*1024),
		},

		NATS: NATSConfig{
			URL:           getEnv("NATS_URL", ""),
			SubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "lab.events"),
		},

		Security: SecurityConfig{
			RateLimitRPS:    getEnvAsInt("RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvAsInt("RATE_LIMIT_BURST", 200),
			RequestTimeout:  getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
			EnableCORS:      getEnvAsBool("ENABLE_CORS", true),
			AllowedOrigins:  getEnvAsSlice("ALLOWED_ORIGINS", []string{"*"}),
			TrustedProxies:  getEnvAsSlice("TRUSTED_PROXIES", []string{}),
			JWTSecret:       getEnv("JWT_SECRET", ""),
			TokenTTL:        getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		},

		Server: ServerConfig{
			ReadTimeout:    getEnvAsDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:   getEnvAsDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:    getEnvAsDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxHeaderBytes: getEnvAsInt("SERVER_MAX_HEADER_BYTES", 1<<20), // 1MB
		},

		Lab: LabConfig{
			RDPPortMin:       getEnvAsInt("RDP_PORT_MIN", 3000),
			RDPPortMax:       getEnvAsInt("RDP_PORT_MAX", 3999),
			MinLeadTime:      getEnvAsDuration("MIN_LEAD_TIME", time.Minute),
			RemindBefore:     getEnvAsDuration("REMIND_BEFORE", time.Minute),
			ProbeTimeout:     getEnvAsDuration("PROBE_TIMEOUT", 30*time.Second),
			ProbeInterval:    getEnvAsDuration("PROBE_INTERVAL", 500*time.Millisecond),
			CommandRetention: getEnvAsDuration("COMMAND_RETENTION", 7*24*time.Hour),
			PurgeInterval:    getEnvAsDuration("PURGE_INTERVAL", time.Hour),
			TunnelHost:       getEnv("TUNNEL_HOST", ""),
			TunnelPort:       getEnvAsInt("TUNNEL_PORT", 8030),
			TunnelUser:       getEnv("TUNNEL_USER", "remote"),
			LocalRDPPort:     getEnvAsInt("LOCAL_RDP_PORT", 3389),
		},
	}

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// validateConfig performs basic validation on the configuration
func validateConfig(config *Config) error {
	var errors []string

	// Validate required database fields
	if config.Database.User == "" {
		errors = append(errors, "database user is required")
	}
	if config.Database.Name == "" {
		errors = append(errors, "database name is required")
	}

	if config.Security.JWTSecret == "" {
		errors = append(errors, "JWT secret is required")
	}

	if config.Mailer.URL == "" {
		errors = append(errors, "mail relay URL is required")
	}
	if config.Mailer.AdminEmail == "" {
		errors = append(errors, "admin email is required")
	}

	if config.Lab.TunnelHost == "" {
		errors = append(errors, "tunnel host is required")
	}

	// Validate port ranges
	if config.Port < 1 || config.Port > 65535 {
		errors = append(errors, "port must be between 1 and 65535")
	}
	if config.Database.Port < 1 || config.Database.Port > 65535 {
		errors = append(errors, "database port must be between 1 and 65535")
	}
	if config.Lab.RDPPortMin < 1 || config.Lab.RDPPortMax > 65535 || config.Lab.RDPPortMin > config.Lab.RDPPortMax {
		errors = append(errors, "RDP port range is invalid")
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// GetDatabaseDSN returns the database connection string
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
