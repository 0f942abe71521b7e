package hashcat

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LBVDSEC/telecat/internal/logbuffer"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

const (
	// DefaultPauseTimeout bounds how long Pause waits for the Paused marker
	DefaultPauseTimeout = 2 * time.Second
	// DefaultResumeTimeout bounds how long Resume waits for the Resumed marker
	DefaultResumeTimeout = 2 * time.Second
	// DefaultOutputTail is how many non-status output lines are kept per stream
	DefaultOutputTail = 200
)

// Options configures a Controller
type Options struct {
	Binary         string
	StatusTimer    int // seconds
	PauseTimeout   time.Duration
	ResumeTimeout  time.Duration
	TempDir        string
	IncludeCracked bool // false replaces the cracked payload by a count
	OutputTail     int
	WorkDir        string
	Env            []string // appended to the current environment

	// Observers run on the monitor goroutine and must not block
	OnStatus func(Snapshot)
	OnExit   func(Result)
}

// DefaultOptions returns Options with every default applied
func DefaultOptions() Options {
	return Options{
		Binary:         DefaultBinary,
		StatusTimer:    DefaultStatusTimer,
		PauseTimeout:   DefaultPauseTimeout,
		ResumeTimeout:  DefaultResumeTimeout,
		IncludeCracked: true,
		OutputTail:     DefaultOutputTail,
	}
}

// Result is the final outcome of a run
type Result struct {
	ExitCode     ExitCode  `json:"exit_code"`
	Class        ExitClass `json:"class"`
	Output       string    `json:"output,omitempty"`
	Diagnostic   string    `json:"diagnostic,omitempty"`
	Crashed      bool      `json:"crashed"`
	CrackedCount int       `json:"cracked_count"`
	Snapshot     Snapshot  `json:"snapshot"`
	StartedAt    time.Time `json:"started_at"`
	FinishedAt   time.Time `json:"finished_at"`
}

// Duration returns how long the process ran
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Controller supervises a single hashcat run. It is single use: once DONE a
// new Controller is needed for the next launch.
type Controller struct {
	opts  Options
	state *stateManager

	// launchMu serializes Launch and the never-launched Abandon path
	launchMu sync.Mutex
	launched bool

	mu        sync.RWMutex
	spec      CommandSpec
	hasSpec   bool
	cmd       *exec.Cmd
	startedAt time.Time

	pid      atomic.Int64
	snapshot atomic.Pointer[Snapshot]
	result   atomic.Pointer[Result]

	control *controlChannel
	paused  *flag
	started *flag

	stdoutTail *logbuffer.RingBuffer
	stderrTail *logbuffer.RingBuffer

	cancelOnce  sync.Once
	cancelCh    chan struct{}
	cleanupOnce sync.Once
	cleanups    atomic.Int32
	finishOnce  sync.Once
	done        chan struct{}
}

// NewController creates a controller in the NEW state. Zero durations and
// counts in opts are replaced by their defaults.
func NewController(opts Options) *Controller {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.StatusTimer <= 0 {
		opts.StatusTimer = DefaultStatusTimer
	}
	if opts.PauseTimeout <= 0 {
		opts.PauseTimeout = DefaultPauseTimeout
	}
	if opts.ResumeTimeout <= 0 {
		opts.ResumeTimeout = DefaultResumeTimeout
	}
	if opts.OutputTail <= 0 {
		opts.OutputTail = DefaultOutputTail
	}

	c := &Controller{
		opts:       opts,
		state:      newStateManager(),
		paused:     newFlag(),
		started:    newFlag(),
		stdoutTail: logbuffer.New(opts.OutputTail),
		stderrTail: logbuffer.New(opts.OutputTail),
		cancelCh:   make(chan struct{}),
		done:       make(chan struct{}),
	}
	c.control = newControlChannel(c.processAlive)
	return c
}

func (c *Controller) buildOptions() BuildOptions {
	return BuildOptions{
		Binary:      c.opts.Binary,
		StatusTimer: c.opts.StatusTimer,
		TempDir:     c.opts.TempDir,
	}
}

// Launch builds the command from args and starts hashcat. It returns once the
// process is spawned. Cancelling ctx asks hashcat to quit.
func (c *Controller) Launch(ctx context.Context, args []string) error {
	return c.launch(ctx, func() (CommandSpec, error) {
		return BuildCommand(args, c.buildOptions())
	})
}

// LaunchString is Launch for a raw command line split with shell quoting rules
func (c *Controller) LaunchString(ctx context.Context, line string) error {
	return c.launch(ctx, func() (CommandSpec, error) {
		return ParseCommand(line, c.buildOptions())
	})
}

func (c *Controller) launch(ctx context.Context, build func() (CommandSpec, error)) error {
	c.launchMu.Lock()
	defer c.launchMu.Unlock()

	if c.launched {
		return ErrAlreadyLaunched
	}

	spec, err := build()
	if err != nil {
		return err
	}
	c.launched = true

	cmd := exec.Command(spec.Binary(), spec.Args()...)
	cmd.Dir = c.opts.WorkDir
	if len(c.opts.Env) > 0 {
		cmd.Env = append(os.Environ(), c.opts.Env...)
	}

	c.mu.Lock()
	c.spec = spec
	c.hasSpec = true
	c.cmd = cmd
	c.mu.Unlock()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return c.spawnFailed(spec, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return c.spawnFailed(spec, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return c.spawnFailed(spec, err)
	}

	debug.Info("Starting hashcat: %s", spec.CommandLine())
	if err := cmd.Start(); err != nil {
		return c.spawnFailed(spec, err)
	}

	c.mu.Lock()
	c.startedAt = time.Now()
	c.mu.Unlock()
	c.pid.Store(int64(cmd.Process.Pid))
	c.control.attach(stdin)
	c.state.TransitionTo(StateStarting)
	debug.Info("Hashcat process started with PID %d", cmd.Process.Pid)

	go c.monitor(ctx, stdout, stderr)
	return nil
}

// spawnFailed finishes a run whose process never started
func (c *Controller) spawnFailed(spec CommandSpec, cause error) error {
	spawnErr := &ProcessSpawnError{Binary: spec.Binary(), Cause: cause}
	debug.Error("Failed to start hashcat: %v", spawnErr)

	now := time.Now()
	c.finish(Result{
		ExitCode:   ExitCode(-1),
		Class:      ClassError,
		Diagnostic: spawnErr.Error(),
		Crashed:    true,
		StartedAt:  now,
		FinishedAt: now,
	}, false)
	return spawnErr
}

// Pause sends p and waits for hashcat to acknowledge it. It returns false
// without sending anything unless the run is reporting status and not paused.
func (c *Controller) Pause(ctx context.Context) bool {
	if !c.IsRunning() || c.paused.IsSet() {
		return false
	}
	if err := c.control.send(CommandPause); err != nil {
		debug.Warning("Pause request failed: %v", err)
		return false
	}
	if !c.paused.Wait(ctx, true, c.opts.PauseTimeout, c.done) {
		debug.Warning("Hashcat did not acknowledge pause within %v", c.opts.PauseTimeout)
		return false
	}
	return true
}

// Resume sends r and waits for hashcat to acknowledge it. It returns false
// when the run is not paused.
func (c *Controller) Resume(ctx context.Context) bool {
	if !c.IsRunning() || !c.paused.IsSet() {
		return false
	}
	if err := c.control.send(CommandResume); err != nil {
		debug.Warning("Resume request failed: %v", err)
		return false
	}
	if !c.paused.Wait(ctx, false, c.opts.ResumeTimeout, c.done) {
		debug.Warning("Hashcat did not acknowledge resume within %v", c.opts.ResumeTimeout)
		return false
	}
	return true
}

// Quit sends q without waiting for the process to exit
func (c *Controller) Quit() bool {
	if err := c.control.send(CommandQuit); err != nil {
		debug.Warning("Quit request failed: %v", err)
		return false
	}
	return true
}

// RequestStatus asks hashcat to print a status line now
func (c *Controller) RequestStatus() bool {
	if err := c.control.send(CommandStatus); err != nil {
		debug.Debug("Status request failed: %v", err)
		return false
	}
	return true
}

// Cancel asks the monitor to quit hashcat. It never blocks and may be called repeatedly.
func (c *Controller) Cancel() {
	c.cancelOnce.Do(func() {
		close(c.cancelCh)
	})
}

// Abandon cancels the run and waits for it to finish. When ctx expires first
// the process is killed and the usual exit handling still runs.
func (c *Controller) Abandon(ctx context.Context) Result {
	c.launchMu.Lock()
	if !c.launched {
		c.launched = true
		c.launchMu.Unlock()

		now := time.Now()
		c.finish(Result{
			ExitCode:   ExitCode(-1),
			Class:      ClassUnknown,
			Diagnostic: "abandoned before launch",
			StartedAt:  now,
			FinishedAt: now,
		}, false)
		res, _ := c.Result()
		return res
	}
	c.launchMu.Unlock()

	c.Cancel()
	select {
	case <-c.done:
	case <-ctx.Done():
		c.mu.RLock()
		cmd := c.cmd
		c.mu.RUnlock()
		if cmd != nil && cmd.Process != nil {
			debug.Warning("Hashcat did not exit in time, killing PID %d", cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
				debug.Error("Failed to kill hashcat: %v", err)
			}
		}
		<-c.done
	}

	res, _ := c.Result()
	return res
}

// processAlive gates control commands
func (c *Controller) processAlive() bool {
	s := c.state.GetState()
	return s == StateStarting || s == StateRunning
}

// cleanup removes an auto-allocated output file. It runs at most once.
func (c *Controller) cleanup() {
	c.cleanupOnce.Do(func() {
		c.cleanups.Add(1)

		spec, ok := c.Command()
		if !ok || !spec.OutputAutoAllocated() {
			return
		}
		if err := os.Remove(spec.OutputPath()); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				debug.Warning("Failed to remove output file %s: %v", spec.OutputPath(), err)
			}
			return
		}
		debug.Debug("Removed output file %s", spec.OutputPath())
	})
}

// finish records res and completes the run. Only the first call has any effect.
func (c *Controller) finish(res Result, notify bool) {
	c.finishOnce.Do(func() {
		c.cleanup()
		c.result.Store(&res)
		c.control.close()
		c.state.TransitionTo(StateDone)
		close(c.done)

		if notify && c.opts.OnExit != nil {
			c.opts.OnExit(res)
		}
	})
}

// State returns the lifecycle state
func (c *Controller) State() LifecycleState {
	return c.state.GetState()
}

// Snapshot returns the latest decoded status, or the zero Snapshot
func (c *Controller) Snapshot() Snapshot {
	if p := c.snapshot.Load(); p != nil {
		return *p
	}
	return Snapshot{}
}

// IsRunning reports whether hashcat has reported status and not yet exited
func (c *Controller) IsRunning() bool {
	return c.started.IsSet() && c.State() != StateDone
}

// HasStarted reports whether a status line was ever accepted
func (c *Controller) HasStarted() bool {
	return c.started.IsSet()
}

// IsPaused reports whether hashcat acknowledged a pause that has not been resumed
func (c *Controller) IsPaused() bool {
	return c.paused.IsSet()
}

// Result returns the final outcome once the run is DONE
func (c *Controller) Result() (Result, bool) {
	if p := c.result.Load(); p != nil {
		return *p, true
	}
	return Result{}, false
}

// Command returns the normalized command once Launch has built it
func (c *Controller) Command() (CommandSpec, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spec, c.hasSpec
}

// PID returns the process ID, 0 before spawn
func (c *Controller) PID() int {
	return int(c.pid.Load())
}

// StartedAt returns the spawn time, zero before spawn
func (c *Controller) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// Done is closed once the run is DONE and the Result is available
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the run is DONE or ctx is done
func (c *Controller) Wait(ctx context.Context) (Result, error) {
	select {
	case <-c.done:
		res, _ := c.Result()
		return res, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
