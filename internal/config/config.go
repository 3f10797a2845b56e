// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret      string `mapstructure:"JWT_SECRET"`
	Port           string `mapstructure:"PORT"`
	DBHost         string `mapstructure:"DB_HOST"`
	DBPort         string `mapstructure:"DB_PORT"`
	DBUser         string `mapstructure:"DB_USER"`
	DBPassword     string `mapstructure:"DB_PASSWORD"`
	DBName         string `mapstructure:"DB_NAME"`
	DBSSLMode      string `mapstructure:"DB_SSLMODE"`
	DBSchemaMode   string `mapstructure:"DB_SCHEMA_MODE"`
	RedisURL       string `mapstructure:"REDIS_URL"`
	AllowedOrigins string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags   string `mapstructure:"FEATURE_FLAGS"`
	Env            string `mapstructure:"APP_ENV"`

	DBMaxOpenConns                int  `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int  `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int  `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`
	DBAutoMigrateAllowDestructive bool `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`

	// Collaborators
	StudentRecordsURL  string `mapstructure:"STUDENT_RECORDS_URL"`
	NotificationsURL   string `mapstructure:"NOTIFICATIONS_URL"`
	ServiceToken       string `mapstructure:"SERVICE_TOKEN"`
	SideEffectTimeoutS int    `mapstructure:"SIDE_EFFECT_TIMEOUT_SECONDS"`

	// Provisioning
	StudentEmailDomain     string `mapstructure:"STUDENT_EMAIL_DOMAIN"`
	DefaultParentPassword  string `mapstructure:"DEFAULT_PARENT_PASSWORD"`
	DefaultStudentPassword string `mapstructure:"DEFAULT_STUDENT_PASSWORD"`

	// Session tokens
	TokenIssuer            string `mapstructure:"TOKEN_ISSUER"`
	TokenAudience          string `mapstructure:"TOKEN_AUDIENCE"`
	SessionTokenTTLMinutes int    `mapstructure:"SESSION_TOKEN_TTL_MINUTES"`
	CodeTokenTTLMinutes    int    `mapstructure:"CODE_TOKEN_TTL_MINUTES"`

	// Parent email delivery; disabled when SMTP_HOST is empty.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	TracingEnabled      bool    `mapstructure:"TRACING_ENABLED"`
	TracingExporter     string  `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint        string  `mapstructure:"OTLP_ENDPOINT"`
	TracingSamplerRatio float64 `mapstructure:"TRACING_SAMPLER_RATIO"`

	DevBootstrapRoot        bool   `mapstructure:"DEV_BOOTSTRAP_ROOT"`
	DevRootEmail            string `mapstructure:"DEV_ROOT_EMAIL"`
	DevRootPassword         string `mapstructure:"DEV_ROOT_PASSWORD"`
	DevRootFullName         string `mapstructure:"DEV_ROOT_FULL_NAME"`
	DevRootForceCredentials bool   `mapstructure:"DEV_ROOT_FORCE_CREDENTIALS"`
}

// Collaborators groups the addresses and credentials of the services the
// approval workflow talks to. It is passed explicitly at construction.
type Collaborators struct {
	StudentRecordsURL  string
	NotificationsURL   string
	ServiceToken       string
	Timeout            time.Duration
	StudentEmailDomain string
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "school_registration")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("REDIS_URL", "localhost:6379")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173")
	viper.SetDefault("FEATURE_FLAGS", "code_access=on,student_mirror=on,parent_email=on")
	viper.SetDefault("APP_ENV", "development")

	viper.SetDefault("STUDENT_RECORDS_URL", "http://localhost:8082")
	viper.SetDefault("NOTIFICATIONS_URL", "http://localhost:8085")
	viper.SetDefault("SERVICE_TOKEN", "")
	viper.SetDefault("SIDE_EFFECT_TIMEOUT_SECONDS", 5)

	viper.SetDefault("STUDENT_EMAIL_DOMAIN", "student.ecole.local")
	viper.SetDefault("DEFAULT_PARENT_PASSWORD", "Parent123!")
	viper.SetDefault("DEFAULT_STUDENT_PASSWORD", "Student123!")

	viper.SetDefault("TOKEN_ISSUER", "schoolreg")
	viper.SetDefault("TOKEN_AUDIENCE", "schoolreg-api")
	viper.SetDefault("SESSION_TOKEN_TTL_MINUTES", 24*60)
	viper.SetDefault("CODE_TOKEN_TTL_MINUTES", 60)

	viper.SetDefault("SMTP_HOST", "")
	viper.SetDefault("SMTP_PORT", 587)
	viper.SetDefault("SMTP_FROM", "admissions@ecole.local")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("TRACING_SAMPLER_RATIO", 1.0)

	viper.SetDefault("DEV_BOOTSTRAP_ROOT", false)
	viper.SetDefault("DEV_ROOT_EMAIL", "root@ecole.local")
	viper.SetDefault("DEV_ROOT_FULL_NAME", "Direction")
}

func (c *Config) normalize() {
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	c.StudentEmailDomain = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.StudentEmailDomain), "@"))
	c.StudentRecordsURL = strings.TrimRight(strings.TrimSpace(c.StudentRecordsURL), "/")
	c.NotificationsURL = strings.TrimRight(strings.TrimSpace(c.NotificationsURL), "/")
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// Collaborators returns the collaborator settings used by the approval workflow.
func (c *Config) Collaborators() Collaborators {
	timeout := time.Duration(c.SideEffectTimeoutS) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return Collaborators{
		StudentRecordsURL:  c.StudentRecordsURL,
		NotificationsURL:   c.NotificationsURL,
		ServiceToken:       c.ServiceToken,
		Timeout:            timeout,
		StudentEmailDomain: c.StudentEmailDomain,
	}
}

// SessionTokenTTL is the lifetime of credentials issued by sign-in.
func (c *Config) SessionTokenTTL() time.Duration {
	if c.SessionTokenTTLMinutes <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.SessionTokenTTLMinutes) * time.Minute
}

// CodeTokenTTL is the lifetime of credentials issued by code access.
func (c *Config) CodeTokenTTL() time.Duration {
	if c.CodeTokenTTLMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.CodeTokenTTLMinutes) * time.Minute
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.StudentEmailDomain == "" {
		return errors.New("STUDENT_EMAIL_DOMAIN is required")
	}
	if c.DefaultParentPassword == "" || c.DefaultStudentPassword == "" {
		return errors.New("DEFAULT_PARENT_PASSWORD and DEFAULT_STUDENT_PASSWORD are required")
	}
	if c.DBConnMaxLifetimeMinutes < 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES cannot be negative")
	}

	// Strict checks for production
	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.StudentRecordsURL != "" && c.ServiceToken == "" {
			log.Println("WARNING: SERVICE_TOKEN is empty in production; mirror calls will use a minted system token.")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
