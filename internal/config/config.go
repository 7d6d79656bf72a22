/**
 * @description
 * This file handles the configuration management for the subscription-service.
 * It uses the 'viper' library to load configuration from environment variables,
 * providing a centralized and consistent way to manage application settings.
 */
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
//
// RenewalLookaheadHours must exceed the sweep interval by a safety margin so
// no subscription can slip past the window between sweeps; the defaults pair
// a daily sweep with a 2-day lookahead.
type Config struct {
	ServerPort string `mapstructure:"SERVER_PORT"`

	DatabaseURL string `mapstructure:"DATABASE_URL"`
	RabbitMQURL string `mapstructure:"RABBITMQ_URL"`

	GraphTenantID     string `mapstructure:"GRAPH_TENANT_ID"`
	GraphClientID     string `mapstructure:"GRAPH_CLIENT_ID"`
	GraphClientSecret string `mapstructure:"GRAPH_CLIENT_SECRET"`
	GraphBaseURL      string `mapstructure:"GRAPH_BASE_URL"`
	GraphLoginBaseURL string `mapstructure:"GRAPH_LOGIN_BASE_URL"`
	GraphScope        string `mapstructure:"GRAPH_SCOPE"`

	NotificationURL    string `mapstructure:"NOTIFICATION_URL"`
	WebhookClientState string `mapstructure:"WEBHOOK_CLIENT_STATE"`
	InternalAPIKey     string `mapstructure:"INTERNAL_API_KEY"`

	RenewalJobSchedule         string `mapstructure:"RENEWAL_JOB_SCHEDULE"`
	RenewalLookaheadHours      int    `mapstructure:"RENEWAL_LOOKAHEAD_HOURS"`
	RenewalExtensionHours      int    `mapstructure:"RENEWAL_EXTENSION_HOURS"`
	RenewalConcurrency         int    `mapstructure:"RENEWAL_CONCURRENCY"`
	RenewalMaxAttempts         int    `mapstructure:"RENEWAL_MAX_ATTEMPTS"`
	ExternalCallTimeoutSeconds int    `mapstructure:"EXTERNAL_CALL_TIMEOUT_SECONDS"`
}

// Lookahead returns the renewal window as a duration.
func (c *Config) Lookahead() time.Duration {
	return time.Duration(c.RenewalLookaheadHours) * time.Hour
}

// Extension returns the renewal extension as a duration.
func (c *Config) Extension() time.Duration {
	return time.Duration(c.RenewalExtensionHours) * time.Hour
}

// CallTimeout returns the external call timeout as a duration.
func (c *Config) CallTimeout() time.Duration {
	return time.Duration(c.ExternalCallTimeoutSeconds) * time.Second
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	viper.SetDefault("SERVER_PORT", "8080")
	viper.SetDefault("GRAPH_BASE_URL", "https://graph.microsoft.com/v1.0")
	viper.SetDefault("GRAPH_LOGIN_BASE_URL", "https://login.microsoftonline.com")
	viper.SetDefault("GRAPH_SCOPE", "https://graph.microsoft.com/.default")
	viper.SetDefault("RENEWAL_JOB_SCHEDULE", "0 2 * * *") // Daily at 02:00.
	viper.SetDefault("RENEWAL_LOOKAHEAD_HOURS", 48)
	viper.SetDefault("RENEWAL_EXTENSION_HOURS", 24)
	viper.SetDefault("RENEWAL_CONCURRENCY", 4)
	viper.SetDefault("RENEWAL_MAX_ATTEMPTS", 3)
	viper.SetDefault("EXTERNAL_CALL_TIMEOUT_SECONDS", 30)
	viper.AutomaticEnv()

	// Bind environment variables explicitly to ensure they appear in Unmarshal
	for _, key := range []string{
		"SERVER_PORT",
		"DATABASE_URL",
		"RABBITMQ_URL",
		"GRAPH_TENANT_ID",
		"GRAPH_CLIENT_ID",
		"GRAPH_CLIENT_SECRET",
		"GRAPH_BASE_URL",
		"GRAPH_LOGIN_BASE_URL",
		"GRAPH_SCOPE",
		"NOTIFICATION_URL",
		"WEBHOOK_CLIENT_STATE",
		"INTERNAL_API_KEY",
		"RENEWAL_JOB_SCHEDULE",
		"RENEWAL_LOOKAHEAD_HOURS",
		"RENEWAL_EXTENSION_HOURS",
		"RENEWAL_CONCURRENCY",
		"RENEWAL_MAX_ATTEMPTS",
		"EXTERNAL_CALL_TIMEOUT_SECONDS",
	} {
		_ = viper.BindEnv(key)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if config.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if config.GraphTenantID == "" || config.GraphClientID == "" || config.GraphClientSecret == "" {
		return nil, fmt.Errorf("GRAPH_TENANT_ID, GRAPH_CLIENT_ID and GRAPH_CLIENT_SECRET are required")
	}

	return &config, nil
}
