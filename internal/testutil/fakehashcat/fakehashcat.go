// Package fakehashcat simulates a hashcat process for tests. A test binary
// calls RunIfRequested from TestMain and is then launched as its own hashcat,
// configured through MOCK_* environment variables built by Scenario.Env.
package fakehashcat

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Modes decide how the fake run ends once Lines status lines were printed
const (
	ModeRun      = "run"      // report status until quit
	ModeCrack    = "crack"    // write the outfile, report Cracked, exit 0
	ModePotfile  = "potfile"  // exit 0 without ever reporting Cracked
	ModeExhaust  = "exhaust"  // report Exhausted, exit 1
	ModeWatchdog = "watchdog" // exit 254
	ModeError    = "error"    // print diagnostics, exit 255
	ModeExit     = "exit"     // exit with Scenario.ExitCode
)

const (
	envMode       = "MOCK_HASHCAT_MODE"
	envLines      = "MOCK_HASHCAT_LINES"
	envInterval   = "MOCK_HASHCAT_INTERVAL_MS"
	envCracked    = "MOCK_HASHCAT_CRACKED"
	envExitCode   = "MOCK_HASHCAT_EXIT_CODE"
	envStdout     = "MOCK_HASHCAT_STDOUT"
	envStderr     = "MOCK_HASHCAT_STDERR"
	envIgnoreQuit = "MOCK_HASHCAT_IGNORE_QUIT"
	envNoAck      = "MOCK_HASHCAT_NO_ACK"
	envGPUCount   = "MOCK_GPU_COUNT"
	envArgsFile   = "MOCK_HASHCAT_ARGS_FILE"
)

// Scenario describes one fake run
type Scenario struct {
	Mode       string
	Lines      int           // status lines printed before the mode's ending
	Interval   time.Duration // delay between status lines
	Cracked    string        // outfile content for ModeCrack
	ExitCode   int           // for ModeExit
	Stdout     string        // extra non-status stdout text printed at start
	Stderr     string        // text printed on stderr at start
	IgnoreQuit bool          // keep running after q
	NoAck      bool          // never print Paused/Resumed
	GPUCount   int
	ArgsFile   string // when set the received argv is written here, one per line
}

// Env returns the environment that selects s in the re-executed test binary
func (s Scenario) Env() []string {
	mode := s.Mode
	if mode == "" {
		mode = ModeRun
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 20 * time.Millisecond
	}
	gpus := s.GPUCount
	if gpus <= 0 {
		gpus = 2
	}
	return []string{
		envMode + "=" + mode,
		envLines + "=" + strconv.Itoa(s.Lines),
		envInterval + "=" + strconv.FormatInt(interval.Milliseconds(), 10),
		envCracked + "=" + s.Cracked,
		envExitCode + "=" + strconv.Itoa(s.ExitCode),
		envStdout + "=" + s.Stdout,
		envStderr + "=" + s.Stderr,
		envIgnoreQuit + "=" + strconv.FormatBool(s.IgnoreQuit),
		envNoAck + "=" + strconv.FormatBool(s.NoAck),
		envGPUCount + "=" + strconv.Itoa(gpus),
		envArgsFile + "=" + s.ArgsFile,
	}
}

// RunIfRequested turns the current process into a fake hashcat when the
// scenario environment is present. It never returns in that case.
func RunIfRequested() {
	if os.Getenv(envMode) == "" {
		return
	}
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

type fake struct {
	mode       string
	lines      int
	interval   time.Duration
	cracked    string
	exitCode   int
	ignoreQuit bool
	noAck      bool
	gpus       int
	outfile    string

	mu     sync.Mutex
	stdout io.Writer
	paused bool
	n      int
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	f := &fake{
		mode:       os.Getenv(envMode),
		lines:      getEnvInt(envLines, 3),
		interval:   time.Duration(getEnvInt(envInterval, 20)) * time.Millisecond,
		cracked:    os.Getenv(envCracked),
		exitCode:   getEnvInt(envExitCode, 0),
		ignoreQuit: os.Getenv(envIgnoreQuit) == "true",
		noAck:      os.Getenv(envNoAck) == "true",
		gpus:       getEnvInt(envGPUCount, 2),
		stdout:     stdout,
	}

	if path := os.Getenv(envArgsFile); path != "" {
		_ = os.WriteFile(path, []byte(strings.Join(args, "\n")+"\n"), 0644)
	}

	for i, arg := range args {
		switch {
		case arg == "-I":
			fmt.Fprint(stdout, DeviceInfo(f.gpus))
			return 0
		case arg == "-o" && i+1 < len(args):
			f.outfile = args[i+1]
		}
	}

	if text := os.Getenv(envStdout); text != "" {
		f.println(text)
	}
	if text := os.Getenv(envStderr); text != "" {
		fmt.Fprintln(stderr, text)
	}

	quit := make(chan struct{}, 1)
	status := make(chan struct{}, 1)
	go f.readControl(stdin, quit, status)

	if f.mode != ModeRun && f.lines == 0 {
		return f.end()
	}

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-quit:
			if f.ignoreQuit {
				continue
			}
			f.printStatus(7)
			return 2
		case <-status:
			f.printStatus(f.currentCode())
		case <-ticker.C:
			f.mu.Lock()
			paused := f.paused
			if !paused {
				f.n++
			}
			n := f.n
			f.mu.Unlock()
			if paused {
				continue
			}
			f.printStatus(2)
			if f.mode != ModeRun && n >= f.lines {
				return f.end()
			}
		}
	}
}

// readControl handles single-key commands from stdin
func (f *fake) readControl(stdin io.Reader, quit, status chan<- struct{}) {
	r := bufio.NewReader(stdin)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}
		switch b {
		case 'p':
			f.mu.Lock()
			f.paused = true
			f.mu.Unlock()
			if !f.noAck {
				f.println("Paused")
			}
		case 'r':
			f.mu.Lock()
			f.paused = false
			f.mu.Unlock()
			if !f.noAck {
				f.println("Resumed")
			}
		case 's':
			select {
			case status <- struct{}{}:
			default:
			}
		case 'q':
			select {
			case quit <- struct{}{}:
			default:
			}
		}
	}
}

func (f *fake) currentCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.paused {
		return 3
	}
	return 2
}

// end finishes the run according to the mode and returns the exit code
func (f *fake) end() int {
	switch f.mode {
	case ModeCrack:
		if f.outfile != "" {
			_ = os.WriteFile(f.outfile, []byte(f.cracked), 0644)
		}
		f.printStatus(5)
		return 0
	case ModePotfile:
		return 0
	case ModeExhaust:
		f.printStatus(4)
		return 1
	case ModeWatchdog:
		return 254
	case ModeError:
		f.println("")
		f.println("Hashfile 'hashes.txt' on line 1 (x): Token length exception")
		return 255
	case ModeExit:
		return f.exitCode
	default:
		return 0
	}
}

// StatusLine renders the status line for counter n. Every field derives from
// n so a reader can tell whether fields come from the same line.
func StatusLine(code, n, gpus int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "STATUS\t%d\tSPEED", code)
	for d := 1; d <= gpus; d++ {
		fmt.Fprintf(&b, "\t%d\t1000.0", int64(n)*1000*int64(d))
	}
	b.WriteString("\tEXEC_RUNTIME")
	for d := 0; d < gpus; d++ {
		fmt.Fprintf(&b, "\t%d.5", n)
	}
	fmt.Fprintf(&b, "\tCURKU\t%d\tPROGRESS\t%d\t1000000\tRECHASH\t0\t1\tRECSALT\t0\t1\tTEMP", n, n)
	for d := 0; d < gpus; d++ {
		fmt.Fprintf(&b, "\t%d", 40+d)
	}
	b.WriteString("\tREJECTED\t0\tUTIL")
	for d := 0; d < gpus; d++ {
		b.WriteString("\t99")
	}
	return b.String()
}

func (f *fake) printStatus(code int) {
	f.mu.Lock()
	n := f.n
	f.mu.Unlock()
	f.println(StatusLine(code, n, f.gpus))
}

func (f *fake) println(line string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintln(f.stdout, line)
}

// DeviceInfo renders `hashcat -I` output for gpus CUDA devices, each also
// visible through OpenCL as an alias
func DeviceInfo(gpus int) string {
	var b strings.Builder
	b.WriteString("hashcat (v6.2.6) starting in backend information mode\n\n")
	b.WriteString("CUDA Info:\n==========\n\nCUDA.Version.: 12.2\n\n")
	for d := 1; d <= gpus; d++ {
		fmt.Fprintf(&b, "Backend Device ID #%d (Alias: #%d)\n", d, d+gpus)
		b.WriteString("  Name...........: NVIDIA GeForce RTX 3090\n")
		b.WriteString("  Processor(s)...: 82\n")
		b.WriteString("  Clock..........: 1695\n")
		b.WriteString("  Memory.Total...: 24268 MB\n")
		b.WriteString("  Memory.Free....: 23879 MB\n")
		fmt.Fprintf(&b, "  PCI.Addr.BDFe..: 0000:0%d:00.0\n\n", d)
	}
	b.WriteString("OpenCL Info:\n============\n\nOpenCL Platform ID #1\n  Vendor..: NVIDIA Corporation\n\n")
	for d := 1; d <= gpus; d++ {
		fmt.Fprintf(&b, "  Backend Device ID #%d (Alias: #%d)\n", d+gpus, d)
		b.WriteString("    Type...........: GPU\n")
		b.WriteString("    Name...........: NVIDIA GeForce RTX 3090\n")
		b.WriteString("    Processor(s)...: 82\n")
		b.WriteString("    Clock..........: 1695\n")
		b.WriteString("    Memory.Total...: 24268 MB\n")
		b.WriteString("    Memory.Free....: 23680 MB\n\n")
	}
	return b.String()
}

func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultValue
}
