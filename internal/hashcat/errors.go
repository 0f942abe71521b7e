package hashcat

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every ConfigurationError through errors.Is
	ErrConfiguration = errors.New("invalid hashcat configuration")
	// ErrSpawn matches every ProcessSpawnError through errors.Is
	ErrSpawn = errors.New("failed to start hashcat")
	// ErrProcessNotRunning is returned when a control command targets a process that is gone
	ErrProcessNotRunning = errors.New("hashcat process is not running")
	// ErrAlreadyLaunched is returned when Launch is called on a used controller
	ErrAlreadyLaunched = errors.New("controller has already been launched")
)

// ConfigurationError reports an argument list that cannot be turned into a command
type ConfigurationError struct {
	Reason string
	Cause  error
}

func (e *ConfigurationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid hashcat arguments: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("invalid hashcat arguments: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Cause
}

// Is lets errors.Is(err, ErrConfiguration) match without losing the cause chain
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// ProcessSpawnError reports a hashcat binary that could not be started
type ProcessSpawnError struct {
	Binary string
	Cause  error
}

func (e *ProcessSpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Binary, e.Cause)
}

func (e *ProcessSpawnError) Unwrap() error {
	return e.Cause
}

func (e *ProcessSpawnError) Is(target error) bool {
	return target == ErrSpawn
}
