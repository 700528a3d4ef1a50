package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"guidepost/internal/apperr"
	"guidepost/internal/config"
)

const logLevelEnvKey = "GUIDEPOST_LOG_LEVEL"

// logSettings is the logger configuration resolved for one CLI run.
type logSettings struct {
	Level  slog.Level
	Source string
	// JSON switches stderr logs to JSON lines when command output is structured,
	// so scripts consuming -o json|yaml can parse both streams.
	JSON bool
	// Warning is set when an env or config level was invalid and info was used.
	Warning string
}

// resolveLogSettings applies flag > GUIDEPOST_LOG_LEVEL > log_level.
// An invalid flag is a usage error; an invalid env or config value falls back
// to the default level with a warning.
func resolveLogSettings(flagLevel, envLevel, configLevel string, structured bool) (logSettings, error) {
	settings := logSettings{Level: slog.LevelInfo, Source: "default", JSON: structured}
	for _, candidate := range []struct {
		source string
		raw    string
	}{
		{"--log-level", flagLevel},
		{logLevelEnvKey, envLevel},
		{"log_level", configLevel},
	} {
		if strings.TrimSpace(candidate.raw) == "" {
			continue
		}
		level, err := parseLogLevel(candidate.raw)
		if err == nil {
			settings.Level = level
			settings.Source = candidate.source
			return settings, nil
		}
		if candidate.source == "--log-level" {
			return settings, apperr.Validationf("invalid --log-level %q", candidate.raw)
		}
		settings.Warning = fmt.Sprintf("invalid %s=%q; defaulting to %s", candidate.source, candidate.raw, config.DefaultLogLevel)
		return settings, nil
	}
	return settings, nil
}

// configureLogger installs the process-wide logger the services pick up through slog.Default.
func configureLogger(flagLevel, configLevel string, structured bool) error {
	settings, err := resolveLogSettings(flagLevel, os.Getenv(logLevelEnvKey), configLevel, structured)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stderr, settings)
	slog.SetDefault(logger)
	if settings.Warning != "" {
		logger.Warn(settings.Warning)
	}
	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return slog.LevelInfo, nil
	}
	if strings.EqualFold(value, "warning") {
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

func newLogger(w io.Writer, settings logSettings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: settings.Level}
	if settings.JSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
