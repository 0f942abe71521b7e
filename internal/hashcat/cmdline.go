package hashcat

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/shlex"
	"github.com/google/uuid"
)

const (
	// DefaultBinary is used when no binary path is configured
	DefaultBinary = "hashcat"
	// DefaultStatusTimer is the status report interval in seconds
	DefaultStatusTimer = 3
)

// BuildOptions controls how a CommandSpec is built
type BuildOptions struct {
	Binary      string // path to the hashcat binary
	StatusTimer int    // seconds between status lines, used unless the caller passes --status-timer
	TempDir     string // directory for auto-allocated output files, os.TempDir() when empty
}

// CommandSpec is a normalized hashcat invocation. It is immutable once built.
type CommandSpec struct {
	binary      string
	args        []string
	outputPath  string
	outputAuto  bool
	statusTimer int
}

// Binary returns the path of the executable to run
func (c CommandSpec) Binary() string {
	return c.binary
}

// Args returns a copy of the argument vector, binary excluded
func (c CommandSpec) Args() []string {
	out := make([]string, len(c.args))
	copy(out, c.args)
	return out
}

// OutputPath returns the resolved -o path
func (c CommandSpec) OutputPath() string {
	return c.outputPath
}

// OutputAutoAllocated reports whether OutputPath was allocated here and must be removed on cleanup
func (c CommandSpec) OutputAutoAllocated() bool {
	return c.outputAuto
}

// StatusTimer returns the effective --status-timer value
func (c CommandSpec) StatusTimer() int {
	return c.statusTimer
}

// CommandLine renders the invocation for display
func (c CommandSpec) CommandLine() string {
	parts := make([]string, 0, len(c.args)+1)
	parts = append(parts, quoteArg(c.binary))
	for _, arg := range c.args {
		parts = append(parts, quoteArg(arg))
	}
	return strings.Join(parts, " ")
}

func quoteArg(arg string) string {
	if arg == "" || strings.ContainsAny(arg, " \t\n'\"\\") {
		return strconv.Quote(arg)
	}
	return arg
}

// ParseCommand splits line with shell quoting rules and builds a CommandSpec from the tokens
func ParseCommand(line string, opts BuildOptions) (CommandSpec, error) {
	tokens, err := SplitCommandLine(line)
	if err != nil {
		return CommandSpec{}, err
	}
	return BuildCommand(tokens, opts)
}

// SplitCommandLine tokenizes line with shell quoting rules
func SplitCommandLine(line string) ([]string, error) {
	tokens, err := shlex.Split(line)
	if err != nil {
		return nil, &ConfigurationError{Reason: "cannot tokenize command line", Cause: err}
	}
	return tokens, nil
}

// BuildCommand normalizes a token list into a CommandSpec. Caller copies of the
// injected flags are removed before --quiet, --status, --machine-readable and
// --status-timer are added once each, and a single -o is appended last.
func BuildCommand(args []string, opts BuildOptions) (CommandSpec, error) {
	binary := opts.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	statusTimer := opts.StatusTimer
	if statusTimer <= 0 {
		statusTimer = DefaultStatusTimer
	}

	tokens := args
	if len(tokens) > 0 && isBinaryToken(tokens[0], binary) {
		tokens = tokens[1:]
	}
	if len(tokens) == 0 {
		return CommandSpec{}, &ConfigurationError{Reason: "no arguments to run"}
	}

	var (
		rest       = make([]string, 0, len(tokens))
		outputPath string
	)

	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		switch {
		case tok == "--quiet" || tok == "--status" || tok == "--machine-readable":
			continue

		case tok == "--status-timer":
			if i+1 >= len(tokens) {
				return CommandSpec{}, &ConfigurationError{Reason: "--status-timer requires a value"}
			}
			i++
			n, err := parseStatusTimer(tokens[i])
			if err != nil {
				return CommandSpec{}, err
			}
			statusTimer = n

		case strings.HasPrefix(tok, "--status-timer="):
			n, err := parseStatusTimer(strings.TrimPrefix(tok, "--status-timer="))
			if err != nil {
				return CommandSpec{}, err
			}
			statusTimer = n

		case tok == "-o" || tok == "--outfile":
			if i+1 >= len(tokens) || tokens[i+1] == "" {
				return CommandSpec{}, &ConfigurationError{Reason: tok + " requires a value"}
			}
			i++
			outputPath = tokens[i]

		case strings.HasPrefix(tok, "--outfile="):
			value := strings.TrimPrefix(tok, "--outfile=")
			if value == "" {
				return CommandSpec{}, &ConfigurationError{Reason: "--outfile requires a value"}
			}
			outputPath = value

		case strings.HasPrefix(tok, "-o") && !strings.HasPrefix(tok, "--"):
			// attached short form, -o/tmp/out
			outputPath = tok[2:]

		default:
			rest = append(rest, tok)
		}
	}

	if len(rest) == 0 {
		return CommandSpec{}, &ConfigurationError{Reason: "no arguments to run"}
	}

	auto := false
	if outputPath == "" {
		dir := opts.TempDir
		if dir == "" {
			dir = os.TempDir()
		}
		outputPath = filepath.Join(dir, fmt.Sprintf("telecat-%s.out", uuid.NewString()))
		auto = true
	}

	final := make([]string, 0, len(rest)+6)
	final = append(final,
		"--quiet",
		"--status",
		"--machine-readable",
		fmt.Sprintf("--status-timer=%d", statusTimer),
	)
	final = append(final, rest...)
	final = append(final, "-o", outputPath)

	return CommandSpec{
		binary:      binary,
		args:        final,
		outputPath:  outputPath,
		outputAuto:  auto,
		statusTimer: statusTimer,
	}, nil
}

func parseStatusTimer(value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, &ConfigurationError{Reason: fmt.Sprintf("invalid --status-timer value %q", value), Cause: err}
	}
	return n, nil
}

// isBinaryToken reports whether tok names hashcat itself rather than an argument
func isBinaryToken(tok, binary string) bool {
	base := filepath.Base(tok)
	if base == filepath.Base(binary) {
		return true
	}
	name := strings.TrimSuffix(strings.TrimSuffix(base, ".exe"), ".bin")
	switch name {
	case "hashcat", "hashcat64", "hashcat32":
		return true
	}
	return false
}
