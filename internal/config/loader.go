package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/example/conference-scheduler/internal/logging"
)

// DotEnvFile is read before the process environment is parsed. Variables
// already present in the environment win.
const DotEnvFile = ".env"

// Config captures environment driven configuration values for the conference service.
type Config struct {
	HTTPPort        int
	SQLiteDSN       string
	LogLevel        slog.Level
	LogFormat       string
	AutosaveSpec    string
	LayoutFile      string
	Location        *time.Location
	MaxRoomCapacity int
}

// Load parses configuration values from the .env file and the current process
// environment.
//
// The loader applies defaults for optional fields and reports every invalid
// entry at once.
func Load() (Config, error) {
	if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf(".env ファイルを読み込めません: %w", err)
	}

	cfg := Config{
		HTTPPort:     8080,
		SQLiteDSN:    "conference.db",
		LogLevel:     slog.LevelInfo,
		LogFormat:    "json",
		AutosaveSpec: "@every 5m",
		Location:     time.UTC,
	}

	invalid := make([]string, 0, 2)

	if portValue := strings.TrimSpace(os.Getenv("CONFERENCE_HTTP_PORT")); portValue != "" {
		port, err := strconv.Atoi(portValue)
		if err != nil || port <= 0 || port > 65535 {
			invalid = append(invalid, "CONFERENCE_HTTP_PORT")
		} else {
			cfg.HTTPPort = port
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("CONFERENCE_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	if levelValue := strings.TrimSpace(os.Getenv("CONFERENCE_LOG_LEVEL")); levelValue != "" {
		level, err := logging.ParseLevel(levelValue)
		if err != nil {
			invalid = append(invalid, "CONFERENCE_LOG_LEVEL")
		} else {
			cfg.LogLevel = level
		}
	}

	if format := strings.ToLower(strings.TrimSpace(os.Getenv("CONFERENCE_LOG_FORMAT"))); format != "" {
		if format != "json" && format != "text" {
			invalid = append(invalid, "CONFERENCE_LOG_FORMAT")
		} else {
			cfg.LogFormat = format
		}
	}

	// An explicitly empty value turns autosave off.
	if spec, ok := os.LookupEnv("CONFERENCE_AUTOSAVE"); ok {
		spec = strings.TrimSpace(spec)
		if spec != "" {
			if _, err := cron.ParseStandard(spec); err != nil {
				invalid = append(invalid, "CONFERENCE_AUTOSAVE")
			}
		}
		cfg.AutosaveSpec = spec
	}

	if layout := strings.TrimSpace(os.Getenv("CONFERENCE_LAYOUT_FILE")); layout != "" {
		if _, err := os.Stat(layout); err != nil {
			invalid = append(invalid, "CONFERENCE_LAYOUT_FILE")
		} else {
			cfg.LayoutFile = layout
		}
	}

	if tz := strings.TrimSpace(os.Getenv("CONFERENCE_TIMEZONE")); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			invalid = append(invalid, "CONFERENCE_TIMEZONE")
		} else {
			cfg.Location = loc
		}
	}

	if capacityValue := strings.TrimSpace(os.Getenv("CONFERENCE_MAX_ROOM_CAPACITY")); capacityValue != "" {
		capacity, err := strconv.Atoi(capacityValue)
		if err != nil || capacity < 0 {
			invalid = append(invalid, "CONFERENCE_MAX_ROOM_CAPACITY")
		} else {
			cfg.MaxRoomCapacity = capacity
		}
	}

	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("環境変数の値が不正です: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// Address returns the listen address for the HTTP server.
func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}
