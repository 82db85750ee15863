// Package config loads the fiscal core configuration from TOML and
// environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/fiscal/backend/internal/infrastructure/integrity"
)

// Config holds all application configuration
type Config struct {
	App       AppConfig
	Security  SecurityConfig
	Storage   StorageConfig
	Log       LogConfig
	Telemetry TelemetryConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
}

// SecurityConfig holds the integrity engine settings.
type SecurityConfig struct {
	// MasterSecret derives both the encryption key and the signing key. It
	// is mandatory: without it the process refuses to start, because an
	// ephemeral key would invalidate every previously sealed document.
	MasterSecret string
	// KDFSalt defaults to the legacy fixed salt for parity with existing
	// deployments. The shared default is a known weakness; set a
	// per-installation value unless old ciphertexts must keep decrypting.
	KDFSalt       string
	SystemVersion string
}

// StorageConfig holds the local-disk paths of the durable stores.
type StorageConfig struct {
	ControlFilePath string
	AuditLogPath    string
	EmergencyPath   string
	DocumentDBPath  string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
}

// Load loads configuration from a TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with FISCAL_ prefix (e.g. FISCAL_SECURITY_MASTER_SECRET)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// No config file is fine; env vars and defaults apply.
	}

	v.SetEnvPrefix("FISCAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
		},
		Security: SecurityConfig{
			MasterSecret:  v.GetString("security.master_secret"),
			KDFSalt:       v.GetString("security.kdf_salt"),
			SystemVersion: v.GetString("security.system_version"),
		},
		Storage: StorageConfig{
			ControlFilePath: v.GetString("storage.control_file"),
			AuditLogPath:    v.GetString("storage.audit_log"),
			EmergencyPath:   v.GetString("storage.emergency_log"),
			DocumentDBPath:  v.GetString("storage.document_db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "fiscal-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	// NOTE: Security.MasterSecret has no default on purpose. See validate.
	if cfg.Security.KDFSalt == "" {
		cfg.Security.KDFSalt = integrity.DefaultKDFSalt
	}
	if cfg.Security.SystemVersion == "" {
		cfg.Security.SystemVersion = integrity.DefaultSystemVersion
	}
	if cfg.Storage.ControlFilePath == "" {
		cfg.Storage.ControlFilePath = "control_numeracion_fiscal.json"
	}
	if cfg.Storage.AuditLogPath == "" {
		cfg.Storage.AuditLogPath = "logs/auditoria_fiscal.log"
	}
	if cfg.Storage.EmergencyPath == "" {
		cfg.Storage.EmergencyPath = "logs/emergency.log"
	}
	if cfg.Storage.DocumentDBPath == "" {
		cfg.Storage.DocumentDBPath = "documentos_fiscales/documentos.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "fiscal-backend"
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	// Fail closed: never generate an ephemeral master secret.
	if c.Security.MasterSecret == "" {
		return fmt.Errorf("security.master_secret is required; refusing to start without it")
	}
	if c.Security.KDFSalt == "" {
		return fmt.Errorf("security.kdf_salt cannot be empty")
	}

	if c.App.Env == "production" {
		if len(c.Security.MasterSecret) < 32 {
			return fmt.Errorf("security.master_secret must be at least 32 characters in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}
