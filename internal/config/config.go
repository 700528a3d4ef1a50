package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"guidepost/internal/models"
)

const (
	DefaultDBFileName            = ".guidepost.db"
	DefaultLogLevel              = "info"
	DefaultOperationTimeout      = 30 * time.Second
	DefaultChunkSize             = models.DefaultChunkSize
	DefaultOrphanChunkGrace      = 24 * time.Hour
	DefaultStaleRequestRetention = 30 * 24 * time.Hour
	DefaultMaintenanceBatchSize  = 500
	configFileName               = ".guidepost.toml"
	envFileName                  = ".env"
	configDirEnvKey              = "GUIDEPOST_CONFIG_DIR"
	trustProjectConfigEnvKey     = "GUIDEPOST_TRUST_PROJECT_CONFIG"
	envFileEnvKey                = "GUIDEPOST_ENV_FILE"
	dbPathEnvKey                 = "GUIDEPOST_DB"
	logLevelEnvKey               = "GUIDEPOST_LOG_LEVEL"
	operationTimeoutEnvKey       = "GUIDEPOST_OPERATION_TIMEOUT"
	chunkSizeEnvKey              = "GUIDEPOST_CHUNK_SIZE"
	staleRequestRetentionEnvKey  = "GUIDEPOST_STALE_REQUEST_RETENTION"
	orphanChunkGraceEnvKey       = "GUIDEPOST_ORPHAN_CHUNK_GRACE"
)

// Duration is a time.Duration that reads and writes as text in TOML.
// Besides time.ParseDuration syntax it accepts whole days ("30d").
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ParseDuration parses a Go duration, a whole number of days ("7d"), or a bare number of seconds.
func ParseDuration(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds < 0 {
			return 0, fmt.Errorf("invalid duration %q", raw)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	return parsed, nil
}

// BlobConfig configures the chunked blob store.
type BlobConfig struct {
	ChunkSize        int      `toml:"chunk_size"`
	OrphanChunkGrace Duration `toml:"orphan_chunk_grace"`
}

// MaintenanceConfig configures the reconciliation sweeps.
type MaintenanceConfig struct {
	StaleRequestRetention Duration `toml:"stale_request_retention"`
	BatchSize             int      `toml:"batch_size"`
}

// Config defines runtime configuration for guidepost.
type Config struct {
	DBPath                   string            `toml:"db_path"`
	LogLevel                 string            `toml:"log_level"`
	OperationTimeout         Duration          `toml:"operation_timeout"`
	Blobs                    BlobConfig        `toml:"blobs"`
	Maintenance              MaintenanceConfig `toml:"maintenance"`
	TrustedProjectConfigPath string            `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		DBPath:           "",
		LogLevel:         DefaultLogLevel,
		OperationTimeout: Duration{DefaultOperationTimeout},
		Blobs: BlobConfig{
			ChunkSize:        DefaultChunkSize,
			OrphanChunkGrace: Duration{DefaultOrphanChunkGrace},
		},
		Maintenance: MaintenanceConfig{
			StaleRequestRetention: Duration{DefaultStaleRequestRetention},
			BatchSize:             DefaultMaintenanceBatchSize,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, configFileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"db_path",
	"log_level",
	"operation_timeout",
	"blobs.chunk_size",
	"blobs.orphan_chunk_grace",
	"maintenance.stale_request_retention",
	"maintenance.batch_size",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "db_path":
		return c.DBPath, nil
	case "log_level":
		return c.LogLevel, nil
	case "operation_timeout":
		return c.OperationTimeout.String(), nil
	case "blobs.chunk_size":
		return strconv.Itoa(c.Blobs.ChunkSize), nil
	case "blobs.orphan_chunk_grace":
		return c.Blobs.OrphanChunkGrace.String(), nil
	case "maintenance.stale_request_retention":
		return c.Maintenance.StaleRequestRetention.String(), nil
	case "maintenance.batch_size":
		return strconv.Itoa(c.Maintenance.BatchSize), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, configFileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, configFileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files, then the .env file, then the
// process environment. Later sources win.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, configFileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, configFileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	dotenv, err := readEnvFile()
	if err != nil {
		return nil, err
	}
	lookup := func(key string) string {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
		return strings.TrimSpace(dotenv[key])
	}

	if dbPath := lookup(dbPathEnvKey); dbPath != "" {
		cfg.DBPath = dbPath
	}
	if level := lookup(logLevelEnvKey); level != "" {
		cfg.LogLevel = level
	}
	if raw := lookup(operationTimeoutEnvKey); raw != "" {
		if parsed, err := ParseDuration(raw); err == nil {
			cfg.OperationTimeout = Duration{parsed}
		}
	}
	if raw := lookup(chunkSizeEnvKey); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.Blobs.ChunkSize = parsed
		}
	}
	if raw := lookup(staleRequestRetentionEnvKey); raw != "" {
		if parsed, err := ParseDuration(raw); err == nil {
			cfg.Maintenance.StaleRequestRetention = Duration{parsed}
		}
	}
	if raw := lookup(orphanChunkGraceEnvKey); raw != "" {
		if parsed, err := ParseDuration(raw); err == nil {
			cfg.Blobs.OrphanChunkGrace = Duration{parsed}
		}
	}

	if cfg.DBPath == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DBPath = filepath.Join(cwd, DefaultDBFileName)
		}
	}
	cfg.normalizeDefaults()

	return &cfg, nil
}

// readEnvFile reads KEY=VALUE pairs from the .env file without touching the
// process environment. A missing file yields no values.
func readEnvFile() (map[string]string, error) {
	path := strings.TrimSpace(os.Getenv(envFileEnvKey))
	if path == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return map[string]string{}, nil
		}
		path = filepath.Join(cwd, envFileName)
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, err
	}
	if info.IsDir() {
		return map[string]string{}, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
	}
	return values, nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "blobs.chunk_size", "maintenance.batch_size":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "operation_timeout", "blobs.orphan_chunk_grace", "maintenance.stale_request_retention":
		parsed, err := ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be a duration such as 30s, 12h or 30d", key)
		}
		return parsed.String(), nil
	case "log_level":
		switch strings.ToLower(value) {
		case "debug", "info", "warn", "warning", "error":
			return strings.ToLower(value), nil
		default:
			return nil, fmt.Errorf("log_level must be one of debug, info, warn, error")
		}
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalizeDefaults() {
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = DefaultLogLevel
	}
	if c.OperationTimeout.Duration <= 0 {
		c.OperationTimeout = Duration{DefaultOperationTimeout}
	}
	if c.Blobs.ChunkSize <= 0 {
		c.Blobs.ChunkSize = DefaultChunkSize
	}
	if c.Maintenance.StaleRequestRetention.Duration <= 0 {
		c.Maintenance.StaleRequestRetention = Duration{DefaultStaleRequestRetention}
	}
	if c.Maintenance.BatchSize <= 0 {
		c.Maintenance.BatchSize = DefaultMaintenanceBatchSize
	}
}
