package debug

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/LBVDSEC/telecat/internal/logbuffer"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

const (
	// DefaultLogBufferSize is the default number of entries in the ring buffer
	DefaultLogBufferSize = 1000
	// LogFileName is the name of the log file when file logging is enabled
	LogFileName = "telecat.log"
)

// Options configures the logger at runtime. It mirrors the DEBUG, LOG_LEVEL
// and LOG_DIR environment variables read at startup.
type Options struct {
	Enabled bool
	Level   string
	LogDir  string
}

var (
	// mu protects all mutable state from concurrent access
	mu sync.RWMutex

	isEnabled    bool
	currentLevel LogLevel

	fileLoggingEnabled bool
	logFile            *os.File
	logFilePath        string

	stdoutLogger *log.Logger
	multiLogger  *log.Logger

	logBuffer *logbuffer.RingBuffer

	levelNames = map[LogLevel]string{
		LevelDebug:   "DEBUG",
		LevelInfo:    "INFO",
		LevelWarning: "WARNING",
		LevelError:   "ERROR",
	}
	levelMap = map[string]LogLevel{
		"DEBUG":   LevelDebug,
		"INFO":    LevelInfo,
		"WARNING": LevelWarning,
		"WARN":    LevelWarning,
		"ERROR":   LevelError,
	}
)

func init() {
	stdoutLogger = log.New(os.Stderr, "", 0)

	bufferSize := DefaultLogBufferSize
	if sizeStr := os.Getenv("LOG_BUFFER_SIZE"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			bufferSize = size
		}
	}
	logBuffer = logbuffer.New(bufferSize)

	Reinitialize()
}

// ParseLevel converts a level name to a LogLevel, defaulting to INFO
func ParseLevel(name string) LogLevel {
	if l, ok := levelMap[strings.ToUpper(strings.TrimSpace(name))]; ok {
		return l
	}
	return LevelInfo
}

// Reinitialize re-reads DEBUG, LOG_LEVEL and LOG_DIR from the environment
func Reinitialize() {
	debugEnv := os.Getenv("DEBUG")
	_ = Configure(Options{
		Enabled: debugEnv == "true" || debugEnv == "1",
		Level:   os.Getenv("LOG_LEVEL"),
		LogDir:  os.Getenv("LOG_DIR"),
	})
}

// Configure applies opts. File logging is only attempted when logging is
// enabled and a directory is given; a failure to open the file leaves stdout
// logging in place and is returned to the caller.
func Configure(opts Options) error {
	level := ParseLevel(opts.Level)

	mu.Lock()
	isEnabled = opts.Enabled
	currentLevel = level
	mu.Unlock()

	var err error
	if opts.Enabled && opts.LogDir != "" {
		err = EnableFileLogging(opts.LogDir)
	} else {
		err = DisableFileLogging()
	}

	if opts.Enabled {
		Debug("Logging configured - Level: %s, FileLogging: %v", levelNames[level], IsFileLoggingEnabled())
	}
	return err
}

// IsDebugEnabled returns whether logging is enabled
func IsDebugEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return isEnabled
}

// IsFileLoggingEnabled returns whether file logging is enabled
func IsFileLoggingEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return fileLoggingEnabled
}

// GetLogFilePath returns the path to the log file if file logging is enabled
func GetLogFilePath() string {
	mu.RLock()
	defer mu.RUnlock()
	return logFilePath
}

// GetLogLevel returns the current log level
func GetLogLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return currentLevel
}

// GetLogLevelName returns the name of the current log level
func GetLogLevelName() string {
	mu.RLock()
	defer mu.RUnlock()
	return levelNames[currentLevel]
}

// EnableFileLogging writes logs to logsDir/telecat.log in addition to stderr
func EnableFileLogging(logsDir string) error {
	mu.Lock()
	defer mu.Unlock()

	path := filepath.Join(logsDir, LogFileName)
	if fileLoggingEnabled && logFilePath == path {
		return nil
	}

	if logFile != nil {
		logFile.Close()
		logFile = nil
	}

	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}

	logFile = f
	logFilePath = path
	fileLoggingEnabled = true
	multiLogger = log.New(io.MultiWriter(os.Stderr, f), "", 0)

	return nil
}

// DisableFileLogging disables file logging and closes the log file
func DisableFileLogging() error {
	mu.Lock()
	defer mu.Unlock()

	if !fileLoggingEnabled {
		return nil
	}

	fileLoggingEnabled = false
	logFilePath = ""
	multiLogger = nil

	if logFile != nil {
		err := logFile.Close()
		logFile = nil
		return err
	}
	return nil
}

// GetBufferedLogs returns all log entries since the specified time
func GetBufferedLogs(since time.Time) []logbuffer.Entry {
	return logBuffer.GetSince(since)
}

// GetAllBufferedLogs returns all log entries in the buffer
func GetAllBufferedLogs() []logbuffer.Entry {
	return logBuffer.GetAll()
}

// ClearLogBuffer clears the in-memory log buffer
func ClearLogBuffer() {
	logBuffer.Clear()
}

// GetBufferCount returns the number of entries in the log buffer
func GetBufferCount() int {
	return logBuffer.Count()
}

// Log prints a message with the specified level if logging is enabled
func Log(level LogLevel, format string, v ...interface{}) {
	mu.RLock()
	enabled := isEnabled
	minLevel := currentLevel
	mu.RUnlock()

	if !enabled || level < minLevel {
		return
	}

	// skip Log and the level helper
	pc, file, line, _ := runtime.Caller(2)
	funcName := runtime.FuncForPC(pc).Name()

	message := fmt.Sprintf(format, v...)
	timestamp := time.Now()

	logBuffer.Add(logbuffer.Entry{
		Timestamp: timestamp,
		Source:    "log",
		Level:     levelNames[level],
		Message:   message,
		File:      file,
		Line:      line,
		Function:  funcName,
	})

	logLine := fmt.Sprintf("[%s] [%s] [%s:%d] [%s] %s\n",
		levelNames[level],
		timestamp.Format("2006-01-02 15:04:05.000"),
		filepath.Base(file),
		line,
		funcName,
		message,
	)

	mu.RLock()
	if fileLoggingEnabled && multiLogger != nil {
		multiLogger.Print(logLine)
	} else {
		stdoutLogger.Print(logLine)
	}
	mu.RUnlock()
}

// Debug logs a debug level message
func Debug(format string, v ...interface{}) {
	Log(LevelDebug, format, v...)
}

// Info logs an info level message
func Info(format string, v ...interface{}) {
	Log(LevelInfo, format, v...)
}

// Warning logs a warning level message
func Warning(format string, v ...interface{}) {
	Log(LevelWarning, format, v...)
}

// Error logs an error level message
func Error(format string, v ...interface{}) {
	Log(LevelError, format, v...)
}

// SetEnabled directly sets the enabled state
func SetEnabled(enabled bool) {
	mu.Lock()
	isEnabled = enabled
	mu.Unlock()
}

// SetLevel directly sets the log level
func SetLevel(level LogLevel) {
	mu.Lock()
	currentLevel = level
	mu.Unlock()
}

// Status summarises the current logger configuration
type Status struct {
	Enabled            bool   `json:"enabled"`
	Level              string `json:"level"`
	FileLoggingEnabled bool   `json:"file_logging_enabled"`
	LogFilePath        string `json:"log_file_path,omitempty"`
	BufferCount        int    `json:"buffer_count"`
	BufferCapacity     int    `json:"buffer_capacity"`
}

// GetStatus returns the current logger status
func GetStatus() Status {
	mu.RLock()
	defer mu.RUnlock()

	return Status{
		Enabled:            isEnabled,
		Level:              levelNames[currentLevel],
		FileLoggingEnabled: fileLoggingEnabled,
		LogFilePath:        logFilePath,
		BufferCount:        logBuffer.Count(),
		BufferCapacity:     logBuffer.Capacity(),
	}
}
