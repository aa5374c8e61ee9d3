package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

const (
	envPrefix                  = "TASKBOARD"
	defaultHTTPAddress         = "0.0.0.0:8080"
	defaultDatabaseDriver      = DriverSQLite
	defaultDatabasePath        = "taskboard.db"
	defaultLogLevel            = "info"
	defaultAuthIssuer          = "taskboard-auth"
	defaultAuthAudience        = "taskboard-api"
	defaultAuthTokenTTL        = 24 * time.Hour
	defaultAuthCookieName      = "taskboard_session"
	defaultInvitationTTL       = 7 * 24 * time.Hour
	defaultInvitationAcceptURL = "http://localhost:3000/invitations"
	defaultSMTPPort            = 587
	defaultSMTPTimeout         = 10 * time.Second
	defaultDeadlineSpec        = "@hourly"
	defaultInvitationSpec      = "@daily"
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// SMTPConfig configures outbound invitation email.
type SMTPConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
	Timeout  time.Duration
}

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress         string
	AllowedOrigins      []string
	DatabaseDriver      string
	DatabasePath        string
	DatabaseDSN         string
	LogLevel            string
	AuthSigningSecret   string
	AuthIssuer          string
	AuthAudience        string
	AuthTokenTTL        time.Duration
	AuthCookieName      string
	InvitationTTL       time.Duration
	InvitationAcceptURL string
	SMTP                SMTPConfig
	PushCredentialsFile string
	DeadlineSpec        string
	InvitationSpec      string
	MetricsEnabled      bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultAuthIssuer)
	configViper.SetDefault("auth.audience", defaultAuthAudience)
	configViper.SetDefault("auth.token_ttl", defaultAuthTokenTTL)
	configViper.SetDefault("auth.cookie_name", defaultAuthCookieName)
	configViper.SetDefault("invitations.ttl", defaultInvitationTTL)
	configViper.SetDefault("invitations.accept_url", defaultInvitationAcceptURL)
	configViper.SetDefault("smtp.enabled", false)
	configViper.SetDefault("smtp.port", defaultSMTPPort)
	configViper.SetDefault("smtp.use_tls", true)
	configViper.SetDefault("smtp.timeout", defaultSMTPTimeout)
	configViper.SetDefault("scheduler.deadline_spec", defaultDeadlineSpec)
	configViper.SetDefault("scheduler.invitation_spec", defaultInvitationSpec)
	configViper.SetDefault("metrics.enabled", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:         configViper.GetString("http.address"),
		AllowedOrigins:      splitList(configViper.GetStringSlice("http.allowed_origins")),
		DatabaseDriver:      strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:        configViper.GetString("database.path"),
		DatabaseDSN:         configViper.GetString("database.dsn"),
		LogLevel:            configViper.GetString("log.level"),
		AuthSigningSecret:   configViper.GetString("auth.signing_secret"),
		AuthIssuer:          configViper.GetString("auth.issuer"),
		AuthAudience:        configViper.GetString("auth.audience"),
		AuthTokenTTL:        configViper.GetDuration("auth.token_ttl"),
		AuthCookieName:      configViper.GetString("auth.cookie_name"),
		InvitationTTL:       configViper.GetDuration("invitations.ttl"),
		InvitationAcceptURL: configViper.GetString("invitations.accept_url"),
		SMTP: SMTPConfig{
			Enabled:  configViper.GetBool("smtp.enabled"),
			Host:     configViper.GetString("smtp.host"),
			Port:     configViper.GetInt("smtp.port"),
			Username: configViper.GetString("smtp.username"),
			Password: configViper.GetString("smtp.password"),
			From:     configViper.GetString("smtp.from"),
			UseTLS:   configViper.GetBool("smtp.use_tls"),
			Timeout:  configViper.GetDuration("smtp.timeout"),
		},
		PushCredentialsFile: configViper.GetString("push.credentials_file"),
		DeadlineSpec:        configViper.GetString("scheduler.deadline_spec"),
		InvitationSpec:      configViper.GetString("scheduler.invitation_spec"),
		MetricsEnabled:      configViper.GetBool("metrics.enabled"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.AuthSigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.AuthCookieName) == "" {
		return fmt.Errorf("auth.cookie_name is required")
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required for the sqlite driver")
		}
	case DriverPostgres, DriverMySQL:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the %s driver", c.DatabaseDriver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver)
	}
	if c.InvitationTTL <= 0 {
		return fmt.Errorf("invitations.ttl must be positive")
	}
	if c.SMTP.Enabled {
		if strings.TrimSpace(c.SMTP.Host) == "" {
			return fmt.Errorf("smtp.host is required when smtp is enabled")
		}
		if strings.TrimSpace(c.SMTP.From) == "" {
			return fmt.Errorf("smtp.from is required when smtp is enabled")
		}
	}
	if _, err := cron.ParseStandard(c.DeadlineSpec); err != nil {
		return fmt.Errorf("scheduler.deadline_spec: %w", err)
	}
	if _, err := cron.ParseStandard(c.InvitationSpec); err != nil {
		return fmt.Errorf("scheduler.invitation_spec: %w", err)
	}
	return nil
}

// splitList accepts both repeated values and a single comma separated env value.
func splitList(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}
