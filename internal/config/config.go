package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	defaultCategories = []string{"F&B", "Transport", "Necessities", "Social", "Education", "Shopping", "Others"}
	defaultAccounts   = []string{"OCBC", "Standard Chartered", "Cash", "Webull"}
)

type Config struct {
	// Discord
	DiscordBotToken  string
	DiscordChannelId string
	CommandPrefix    string

	// Storage
	DatabasePath string

	// Health server
	HealthAddr string

	// AMQP ledger events, disabled when AMQPURL is empty
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Ledger
	Categories       []string
	Accounts         []string
	DefaultPeriod    string // YYYY-MM, empty means the current calendar month
	PendingEntryTTL  time.Duration
	RolloverInterval time.Duration
	DeleteListSize   int

	// Logging
	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	cfg := &Config{
		DiscordBotToken:  os.Getenv("DISCORD_BOT_TOKEN"),
		DiscordChannelId: os.Getenv("DISCORD_CHANNEL_ID"),
		CommandPrefix:    getEnv("COMMAND_PREFIX", "!"),

		DatabasePath: getEnv("DATABASE_PATH", "./data/ledger.db"),
		HealthAddr:   getEnv("HEALTH_ADDR", ":8080"),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "ledger"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		Categories:       getEnvList("LEDGER_CATEGORIES", defaultCategories),
		Accounts:         getEnvList("LEDGER_ACCOUNTS", defaultAccounts),
		DefaultPeriod:    os.Getenv("DEFAULT_PERIOD"),
		PendingEntryTTL:  getEnvDuration("PENDING_ENTRY_TTL", 10*time.Minute),
		RolloverInterval: getEnvDuration("ROLLOVER_INTERVAL", time.Hour),
		DeleteListSize:   getEnvInt("DELETE_LIST_SIZE", 10),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if c.DiscordBotToken == "" {
		errors = append(errors, "DISCORD_BOT_TOKEN is not set")
	}
	if strings.TrimSpace(c.CommandPrefix) == "" {
		errors = append(errors, "command prefix cannot be empty")
	}
	if c.DatabasePath == "" {
		errors = append(errors, "database path cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	// Discord allows at most 25 buttons on one message.
	if n := len(c.Categories); n == 0 || n > 25 {
		errors = append(errors, fmt.Sprintf("invalid category count %d: must be between 1 and 25", n))
	}
	if n := len(c.Accounts); n == 0 || n > 25 {
		errors = append(errors, fmt.Sprintf("invalid account count %d: must be between 1 and 25", n))
	}

	if c.DeleteListSize < 1 || c.DeleteListSize > 25 {
		errors = append(errors, fmt.Sprintf("invalid delete list size %d: must be between 1 and 25", c.DeleteListSize))
	}

	if c.DefaultPeriod != "" {
		if _, err := time.Parse("2006-01", c.DefaultPeriod); err != nil {
			errors = append(errors, fmt.Sprintf("invalid default period '%s': must be YYYY-MM", c.DefaultPeriod))
		}
	}

	if c.PendingEntryTTL < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid pending entry TTL %v: must be at least 1 minute", c.PendingEntryTTL))
	} else if c.PendingEntryTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid pending entry TTL %v: must be at most 24 hours", c.PendingEntryTTL))
	}

	if c.RolloverInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at least 1 second", c.RolloverInterval))
	} else if c.RolloverInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid rollover interval %v: must be at most 24 hours", c.RolloverInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated variable, dropping blank items.
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
