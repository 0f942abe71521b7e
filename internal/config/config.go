package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/LBVDSEC/telecat/internal/hardware"
	"github.com/LBVDSEC/telecat/internal/hashcat"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

const (
	// DefaultEnvFile is read when present and no other file is given
	DefaultEnvFile = ".env"
	// DefaultHashcatPath is used when HASHCAT_PATH is unset and no installed binary is found
	DefaultHashcatPath = "/usr/local/bin/hashcat"
	// DefaultDataDirectory holds installed hashcat releases under binaries/<version>/
	DefaultDataDirectory = "data"
	// DefaultListenAddr is where the status feed listens when enabled
	DefaultListenAddr = "127.0.0.1:8089"
)

// Config holds the supervisor configuration
type Config struct {
	HashcatPath    string
	StatusTimer    int
	PauseTimeout   time.Duration
	ResumeTimeout  time.Duration
	IncludeCracked bool
	TempDir        string
	OutputTail     int
	DataDirectory  string
	ListenAddr     string

	Debug    bool
	LogLevel string
	LogDir   string
}

// Load reads envFile into the environment, then builds the Config from the
// environment. Variables already set in the environment win over the file. An
// empty envFile means DefaultEnvFile, which may be missing.
func Load(envFile string) (*Config, error) {
	optional := envFile == ""
	if optional {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil {
		if !optional || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	} else {
		debug.Info("Loaded environment from %s", envFile)
	}

	cfg := &Config{
		StatusTimer:    getEnvInt("HASHCAT_STATUS_TIMER", hashcat.DefaultStatusTimer),
		PauseTimeout:   getEnvDuration("HASHCAT_PAUSE_TIMEOUT", hashcat.DefaultPauseTimeout),
		ResumeTimeout:  getEnvDuration("HASHCAT_RESUME_TIMEOUT", hashcat.DefaultResumeTimeout),
		IncludeCracked: getEnvBool("HASHCAT_INCLUDE_CRACKED", true),
		TempDir:        getEnvString("HASHCAT_TEMP_DIR", ""),
		OutputTail:     getEnvInt("HASHCAT_OUTPUT_TAIL", hashcat.DefaultOutputTail),
		DataDirectory:  getEnvString("DATA_DIR", DefaultDataDirectory),
		ListenAddr:     getEnvString("TELECAT_LISTEN", ""),
		Debug:          getEnvBool("DEBUG", false),
		LogLevel:       getEnvString("LOG_LEVEL", "INFO"),
		LogDir:         getEnvString("LOG_DIR", ""),
	}
	cfg.HashcatPath = resolveHashcatPath(cfg.DataDirectory)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveHashcatPath prefers HASHCAT_PATH, then the newest installed release
func resolveHashcatPath(dataDir string) string {
	if path := os.Getenv("HASHCAT_PATH"); path != "" {
		return path
	}
	if path, err := hardware.NewBinaryLocator(dataDir).Latest(); err == nil {
		debug.Info("Using installed hashcat binary %s", path)
		return path
	}
	return DefaultHashcatPath
}

// Validate checks value ranges
func (c *Config) Validate() error {
	var problems []string
	if c.HashcatPath == "" {
		problems = append(problems, "hashcat path is empty")
	}
	if c.StatusTimer <= 0 {
		problems = append(problems, fmt.Sprintf("HASHCAT_STATUS_TIMER must be positive, got %d", c.StatusTimer))
	}
	if c.PauseTimeout <= 0 {
		problems = append(problems, "HASHCAT_PAUSE_TIMEOUT must be positive")
	}
	if c.ResumeTimeout <= 0 {
		problems = append(problems, "HASHCAT_RESUME_TIMEOUT must be positive")
	}
	if c.OutputTail <= 0 {
		problems = append(problems, "HASHCAT_OUTPUT_TAIL must be positive")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ControllerOptions converts the configuration into hashcat controller options
func (c *Config) ControllerOptions() hashcat.Options {
	return hashcat.Options{
		Binary:         c.HashcatPath,
		StatusTimer:    c.StatusTimer,
		PauseTimeout:   c.PauseTimeout,
		ResumeTimeout:  c.ResumeTimeout,
		TempDir:        c.TempDir,
		IncludeCracked: c.IncludeCracked,
		OutputTail:     c.OutputTail,
	}
}

// DebugOptions converts the logging settings for debug.Configure
func (c *Config) DebugOptions() debug.Options {
	return debug.Options{
		Enabled: c.Debug,
		Level:   c.LogLevel,
		LogDir:  c.LogDir,
	}
}

func getEnvString(key, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
		debug.Warning("Invalid %s value: %s, using default: %d", key, val, defaultValue)
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
		debug.Warning("Invalid %s value: %s, using default: %v", key, val, defaultValue)
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("1500ms") and plain seconds ("2")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	if seconds, err := strconv.ParseFloat(val, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	debug.Warning("Invalid %s value: %s, using default: %v", key, val, defaultValue)
	return defaultValue
}
