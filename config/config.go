/*
Package config loads runtime configuration from the environment.

PURPOSE:
  Centralizes every tunable of the service: HTTP port, database path,
  timezone, SMTP endpoint, report recipients and the scheduler/permit
  toggles. A .env file in the working directory is honored when present,
  so local development does not need exported variables.

SECRETS:
  CRON_SECRET gates the manual report trigger. SMTP credentials pass
  through to the dialer. Neither is ever logged.
*/
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Port   int
	DBPath string

	Timezone string
	Location *time.Location

	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	MailFrom     string

	// Fallback recipients when no admin profile carries an email.
	ReportRecipients []string

	CronSecret string

	PermCountsAreMinutes bool
	SchedulerEnabled     bool
}

// Load reads the environment (plus an optional .env file) into a Config.
// Missing optional values fall back to sensible defaults; a bad timezone is
// downgraded to UTC with a warning rather than refusing to start.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Debug("no .env file found, using process environment")
	}

	cfg := &Config{
		Port:   int(getEnvAsInt("PORT", 8080)),
		DBPath: getEnv("DB_PATH", "./data/presenze.db"),

		Timezone: getEnv("TZ_NAME", "Europe/Rome"),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     int(getEnvAsInt("SMTP_PORT", 587)),
		SMTPUsername: getEnv("SMTP_USERNAME", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		MailFrom:     getEnv("MAIL_FROM", "presenze@localhost"),

		ReportRecipients: splitList(getEnv("REPORT_RECIPIENTS", "")),

		CronSecret: getEnv("CRON_SECRET", ""),

		PermCountsAreMinutes: getEnvAsBool("PERM_COUNTS_ARE_MINUTES", false),
		SchedulerEnabled:     getEnvAsBool("SCHEDULER_ENABLED", true),
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logrus.WithField("timezone", cfg.Timezone).Warn("unknown timezone, falling back to UTC")
		loc = time.UTC
	}
	cfg.Location = loc

	return cfg
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key string, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvAsBool(name string, defaultVal bool) bool {
	valStr := getEnv(name, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsInt(name string, defaultVal int64) int64 {
	valStr := getEnv(name, "")
	if val, err := strconv.Atoi(valStr); err == nil {
		return int64(val)
	}
	return defaultVal
}
