package hashcat

import "fmt"

// StatusCode is the value of the STATUS field in a machine-readable status line
type StatusCode int

const (
	StatusInitializing StatusCode = iota
	StatusStarting
	StatusRunning
	StatusPaused
	StatusExhausted
	StatusCracked
	StatusAborted
	StatusQuit
	StatusBypass
	StatusRunningStopAtCheckpoint
	StatusAutotuning
)

var statusNames = map[StatusCode]string{
	StatusInitializing:            "Initializing",
	StatusStarting:                "Starting",
	StatusRunning:                 "Running",
	StatusPaused:                  "Paused",
	StatusExhausted:               "Exhausted",
	StatusCracked:                 "Cracked",
	StatusAborted:                 "Aborted",
	StatusQuit:                    "Quit",
	StatusBypass:                  "Bypass",
	StatusRunningStopAtCheckpoint: "Running (Stop at Checkpoint)",
	StatusAutotuning:              "Autotuning",
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", int(s))
}

// ExitCode is a hashcat process exit status
type ExitCode int

const (
	ExitCracked         ExitCode = 0
	ExitExhausted       ExitCode = 1
	ExitAborted         ExitCode = 2
	ExitCheckpointAbort ExitCode = 3
	ExitRuntimeAbort    ExitCode = 4
	ExitFinishAbort     ExitCode = 5
	ExitWatchdogAlarm   ExitCode = 254
	ExitError           ExitCode = 255
)

var exitNames = map[ExitCode]string{
	ExitCracked:         "cracked",
	ExitExhausted:       "exhausted",
	ExitAborted:         "aborted",
	ExitCheckpointAbort: "aborted by checkpoint",
	ExitRuntimeAbort:    "aborted by runtime limit",
	ExitFinishAbort:     "aborted by finish",
	ExitWatchdogAlarm:   "temperature watchdog alarm",
	ExitError:           "error",
}

func (c ExitCode) String() string {
	if name, ok := exitNames[c]; ok {
		return name
	}
	return fmt.Sprintf("unknown exit code %d", int(c))
}

// ExitClass groups exit codes by how the monitor treats them
type ExitClass int

const (
	ClassUnknown ExitClass = iota
	ClassError
	ClassCracked
	ClassExhausted
	ClassAborted
	ClassWatchdog
)

func (c ExitClass) String() string {
	switch c {
	case ClassError:
		return "error"
	case ClassCracked:
		return "cracked"
	case ClassExhausted:
		return "exhausted"
	case ClassAborted:
		return "aborted"
	case ClassWatchdog:
		return "watchdog"
	default:
		return "unknown"
	}
}

func (c ExitClass) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *ExitClass) UnmarshalText(text []byte) error {
	for class := ClassUnknown; class <= ClassWatchdog; class++ {
		if class.String() == string(text) {
			*c = class
			return nil
		}
	}
	return fmt.Errorf("unknown exit class %q", text)
}

// Classify maps an exit code to its class. Signals (negative codes) and codes
// hashcat does not document are treated as errors.
func (c ExitCode) Classify() ExitClass {
	switch c {
	case ExitCracked:
		return ClassCracked
	case ExitExhausted:
		return ClassExhausted
	case ExitAborted, ExitCheckpointAbort, ExitRuntimeAbort, ExitFinishAbort:
		return ClassAborted
	case ExitWatchdogAlarm:
		return ClassWatchdog
	default:
		return ClassError
	}
}
