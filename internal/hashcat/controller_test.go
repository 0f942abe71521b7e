package hashcat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LBVDSEC/telecat/internal/testutil/fakehashcat"
)

func TestMain(m *testing.M) {
	fakehashcat.RunIfRequested()
	os.Exit(m.Run())
}

var hashArgs = []string{"-m", "0", "-a", "0", "hashes.txt", "words.txt"}

// newFakeController returns a controller whose binary is this test executable
// acting as hashcat for the given scenario
func newFakeController(t *testing.T, sc fakehashcat.Scenario, mutate ...func(*Options)) *Controller {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Binary = exe
	opts.StatusTimer = 1
	opts.TempDir = t.TempDir()
	opts.PauseTimeout = 3 * time.Second
	opts.ResumeTimeout = 3 * time.Second
	opts.Env = sc.Env()
	for _, fn := range mutate {
		fn(&opts)
	}

	c := NewController(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Abandon(ctx)
	})
	return c
}

func waitResult(t *testing.T, c *Controller) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	res, err := c.Wait(ctx)
	require.NoError(t, err, "hashcat run did not finish")
	return res
}

func waitRunning(t *testing.T, c *Controller) {
	t.Helper()
	require.Eventually(t, c.IsRunning, 10*time.Second, 5*time.Millisecond)
}

func TestCrackedRunReadsOutfileAndRemovesIt(t *testing.T) {
	cracked := "5f4dcc3b5aa765d61d8327deb882cf99:password\n098f6bcd4621d373cade4e832627b4f6:test\n"
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeCrack, Lines: 2, Cracked: cracked})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	spec, ok := c.Command()
	require.True(t, ok)
	require.True(t, spec.OutputAutoAllocated())

	res := waitResult(t, c)

	assert.Equal(t, ExitCracked, res.ExitCode)
	assert.Equal(t, ClassCracked, res.Class)
	assert.Equal(t, cracked, res.Output)
	assert.Equal(t, 2, res.CrackedCount)
	assert.False(t, res.Crashed)
	assert.Empty(t, res.Diagnostic)

	status, ok := res.Snapshot.Status()
	require.True(t, ok)
	assert.Equal(t, StatusCracked, status)

	assert.Equal(t, StateDone, c.State())
	assert.False(t, c.IsRunning())
	assert.True(t, c.HasStarted())
	assert.NoFileExists(t, spec.OutputPath())
	assert.Equal(t, int32(1), c.cleanups.Load())
	assert.True(t, res.FinishedAt.After(res.StartedAt))
}

func TestCallerOutfileIsNeverDeleted(t *testing.T) {
	outfile := filepath.Join(t.TempDir(), "cracked.txt")
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeCrack, Lines: 1, Cracked: "hash:secret\n"})

	args := append(append([]string{}, hashArgs...), "-o", outfile)
	require.NoError(t, c.Launch(context.Background(), args))

	spec, _ := c.Command()
	assert.Equal(t, outfile, spec.OutputPath())
	assert.False(t, spec.OutputAutoAllocated())

	res := waitResult(t, c)
	assert.Equal(t, "hash:secret\n", res.Output)
	assert.FileExists(t, outfile)
}

func TestIncludeCrackedDisabledSummarizes(t *testing.T) {
	c := newFakeController(t,
		fakehashcat.Scenario{Mode: fakehashcat.ModeCrack, Lines: 1, Cracked: "a:1\nb:2\nc:3\n"},
		func(o *Options) { o.IncludeCracked = false },
	)

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	res := waitResult(t, c)

	assert.Equal(t, "3 credential(s) recovered", res.Output)
	assert.Equal(t, 3, res.CrackedCount)
}

func TestSuccessWithoutCrackedStatusIsPotfileHit(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModePotfile, Lines: 2})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	res := waitResult(t, c)

	assert.Equal(t, ClassCracked, res.Class)
	assert.Equal(t, PotfileNotice, res.Output)
	assert.Zero(t, res.CrackedCount)
	assert.False(t, res.Crashed)
}

func TestExitClassesFinishOnce(t *testing.T) {
	tests := []struct {
		name     string
		scenario fakehashcat.Scenario
		code     ExitCode
		class    ExitClass
	}{
		{"cracked", fakehashcat.Scenario{Mode: fakehashcat.ModeCrack, Lines: 1, Cracked: "x:y\n"}, ExitCracked, ClassCracked},
		{"exhausted", fakehashcat.Scenario{Mode: fakehashcat.ModeExhaust, Lines: 2}, ExitExhausted, ClassExhausted},
		{"aborted", fakehashcat.Scenario{Mode: fakehashcat.ModeExit, Lines: 1, ExitCode: 2}, ExitAborted, ClassAborted},
		{"checkpoint", fakehashcat.Scenario{Mode: fakehashcat.ModeExit, Lines: 1, ExitCode: 3}, ExitCheckpointAbort, ClassAborted},
		{"runtime", fakehashcat.Scenario{Mode: fakehashcat.ModeExit, Lines: 1, ExitCode: 4}, ExitRuntimeAbort, ClassAborted},
		{"watchdog", fakehashcat.Scenario{Mode: fakehashcat.ModeWatchdog, Lines: 1}, ExitWatchdogAlarm, ClassWatchdog},
		{"error", fakehashcat.Scenario{Mode: fakehashcat.ModeError, Lines: 1, Stderr: "clGetPlatformIDs(): CL_PLATFORM_NOT_FOUND_KHR"}, ExitError, ClassError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var exits atomic.Int32
			c := newFakeController(t, tt.scenario, func(o *Options) {
				o.OnExit = func(Result) { exits.Add(1) }
			})

			require.NoError(t, c.Launch(context.Background(), hashArgs))
			res := waitResult(t, c)
			spec, _ := c.Command()
			require.Eventually(t, func() bool { return exits.Load() == 1 }, time.Second, 5*time.Millisecond)

			assert.Equal(t, tt.code, res.ExitCode)
			assert.Equal(t, tt.class, res.Class)
			assert.False(t, res.Crashed)
			assert.Equal(t, StateDone, c.State())
			assert.NoFileExists(t, spec.OutputPath())

			// a second exit detection must not redo any work
			c.handleExit(nil, errors.New("late wait"))
			c.finish(Result{ExitCode: 99}, true)
			c.cleanup()

			again, ok := c.Result()
			require.True(t, ok)
			assert.Equal(t, res.ExitCode, again.ExitCode)
			assert.Equal(t, int32(1), c.cleanups.Load())
			assert.Equal(t, int32(1), exits.Load())
		})
	}
}

func TestErrorExitCapturesDiagnostics(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{
		Mode:   fakehashcat.ModeError,
		Lines:  2,
		Stdout: "Hashfile 'hashes.txt': Separator unmatched",
		Stderr: "OpenCL API (clCreateContext) failed",
	})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	res := waitResult(t, c)

	assert.Equal(t, ClassError, res.Class)
	assert.Empty(t, res.Output)
	lines := strings.Split(res.Diagnostic, "\n")
	assert.Equal(t, []string{
		"Hashfile 'hashes.txt': Separator unmatched",
		"Hashfile 'hashes.txt' on line 1 (x): Token length exception",
		"OpenCL API (clCreateContext) failed",
	}, lines)
}

func TestCrashBeforeFirstStatus(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeError, Lines: 0, Stderr: "No devices found/left."})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	res := waitResult(t, c)

	assert.True(t, res.Crashed)
	assert.True(t, strings.HasPrefix(res.Diagnostic, "hashcat exited with code 255 before reporting status"))
	assert.Contains(t, res.Diagnostic, "No devices found/left.")
	assert.False(t, c.HasStarted())
	assert.True(t, res.Snapshot.IsZero())
	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, int32(1), c.cleanups.Load())
}

func TestCrashWithSuccessCodeStillFlagged(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModePotfile, Lines: 0})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	res := waitResult(t, c)

	assert.True(t, res.Crashed)
	assert.Equal(t, PotfileNotice, res.Output)
	assert.Equal(t, "hashcat exited with code 0 before reporting status", res.Diagnostic)
}

func TestSpawnFailure(t *testing.T) {
	var exits atomic.Int32
	c := NewController(Options{
		Binary:  filepath.Join(t.TempDir(), "no-such-hashcat"),
		TempDir: t.TempDir(),
		OnExit:  func(Result) { exits.Add(1) },
	})

	err := c.Launch(context.Background(), hashArgs)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSpawn)

	var spawnErr *ProcessSpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Contains(t, spawnErr.Binary, "no-such-hashcat")

	assert.Equal(t, StateDone, c.State())
	select {
	case <-c.Done():
	default:
		t.Fatal("Done() not closed after spawn failure")
	}

	res, ok := c.Result()
	require.True(t, ok)
	assert.True(t, res.Crashed)
	assert.Equal(t, ClassError, res.Class)
	assert.Equal(t, int32(1), c.cleanups.Load())
	assert.Zero(t, exits.Load())
	assert.ErrorIs(t, c.Launch(context.Background(), hashArgs), ErrAlreadyLaunched)
}

func TestConfigurationErrorKeepsControllerNew(t *testing.T) {
	c := NewController(DefaultOptions())

	err := c.Launch(context.Background(), []string{"hashcat"})
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, StateNew, c.State())

	err = c.LaunchString(context.Background(), `-m 0 "broken`)
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.Equal(t, StateNew, c.State())
}

func TestLaunchTwiceFails(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun})

	require.NoError(t, c.LaunchString(context.Background(), "hashcat -m 0 hashes.txt"))
	assert.Contains(t, []LifecycleState{StateStarting, StateRunning}, c.State())
	assert.ErrorIs(t, c.Launch(context.Background(), hashArgs), ErrAlreadyLaunched)
	assert.Positive(t, c.PID())

	assert.True(t, c.Quit())
	waitResult(t, c)
}

func TestPauseResume(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	waitRunning(t, c)
	assert.Equal(t, StateRunning, c.State())

	ctx := context.Background()
	assert.False(t, c.Resume(ctx), "resume while not paused")

	require.True(t, c.Pause(ctx))
	assert.True(t, c.IsPaused())

	start := time.Now()
	assert.False(t, c.Pause(ctx), "pause while paused")
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	require.True(t, c.Resume(ctx))
	assert.False(t, c.IsPaused())

	assert.True(t, c.Quit())
	res := waitResult(t, c)
	assert.Equal(t, ClassAborted, res.Class)

	assert.False(t, c.Quit(), "quit after exit")
	assert.False(t, c.Pause(ctx), "pause after exit")
}

func TestPauseTimesOutWithoutAcknowledgement(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun, NoAck: true}, func(o *Options) {
		o.PauseTimeout = 150 * time.Millisecond
	})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	waitRunning(t, c)

	start := time.Now()
	assert.False(t, c.Pause(context.Background()))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.False(t, c.IsPaused())
}

func TestPauseHonoursContext(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun, NoAck: true})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	waitRunning(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	assert.False(t, c.Pause(ctx))
	assert.Less(t, time.Since(start), time.Second)
}

func TestControlBeforeLaunch(t *testing.T) {
	c := NewController(DefaultOptions())
	ctx := context.Background()

	assert.False(t, c.Pause(ctx))
	assert.False(t, c.Resume(ctx))
	assert.False(t, c.Quit())
	assert.False(t, c.RequestStatus())
	assert.False(t, c.IsRunning())
	assert.False(t, c.IsPaused())
	assert.True(t, c.Snapshot().IsZero())
	assert.Zero(t, c.PID())

	_, ok := c.Result()
	assert.False(t, ok)
	_, ok = c.Command()
	assert.False(t, ok)
}

func TestRequestStatus(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun, Interval: time.Hour})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	assert.False(t, c.IsRunning())

	assert.True(t, c.RequestStatus())
	waitRunning(t, c)
	assert.False(t, c.Snapshot().IsZero())

	assert.True(t, c.Quit())
	waitResult(t, c)
}

func TestCancelContextQuits(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun})

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Launch(ctx, hashArgs))
	waitRunning(t, c)

	cancel()
	res := waitResult(t, c)
	assert.Equal(t, ExitAborted, res.ExitCode)
	status, _ := res.Snapshot.Status()
	assert.Equal(t, StatusQuit, status)
}

func TestCancelQuits(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	waitRunning(t, c)

	c.Cancel()
	c.Cancel()
	res := waitResult(t, c)
	assert.Equal(t, ClassAborted, res.Class)
}

func TestAbandonKillsUnresponsiveProcess(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun, IgnoreQuit: true})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	waitRunning(t, c)
	spec, _ := c.Command()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	res := c.Abandon(ctx)

	assert.Equal(t, ClassError, res.Class)
	assert.Negative(t, int(res.ExitCode))
	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, int32(1), c.cleanups.Load())
	assert.NoFileExists(t, spec.OutputPath())
}

func TestAbandonBeforeLaunch(t *testing.T) {
	c := NewController(DefaultOptions())

	res := c.Abandon(context.Background())
	assert.Equal(t, "abandoned before launch", res.Diagnostic)
	assert.Equal(t, StateDone, c.State())
	assert.Equal(t, int32(1), c.cleanups.Load())
	assert.ErrorIs(t, c.Launch(context.Background(), hashArgs), ErrAlreadyLaunched)
}

func TestNormalizedArgumentsReachProcess(t *testing.T) {
	argsFile := filepath.Join(t.TempDir(), "argv.txt")
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeExhaust, Lines: 1, ArgsFile: argsFile})

	require.NoError(t, c.Launch(context.Background(), []string{"hashcat", "--status", "-m", "0", "hashes.txt"}))
	waitResult(t, c)

	data, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	argv := strings.Fields(string(data))
	spec, _ := c.Command()

	assert.Equal(t, spec.Args(), argv)
	assert.Equal(t, 1, countToken(argv, "--status"))
	assert.Equal(t, "--status-timer=1", argv[3])
}

func TestObserversSeeEveryStatus(t *testing.T) {
	var (
		mu       sync.Mutex
		statuses []StatusCode
		final    Result
	)
	exited := make(chan struct{})
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeExhaust, Lines: 3}, func(o *Options) {
		o.OnStatus = func(s Snapshot) {
			code, _ := s.Status()
			mu.Lock()
			statuses = append(statuses, code)
			mu.Unlock()
		}
		o.OnExit = func(r Result) {
			final = r
			close(exited)
		}
	})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	waitResult(t, c)
	<-exited

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []StatusCode{StatusRunning, StatusRunning, StatusRunning, StatusExhausted}, statuses)
	assert.Equal(t, ClassExhausted, final.Class)
}

func TestSnapshotReadsAreNeverTorn(t *testing.T) {
	c := newFakeController(t, fakehashcat.Scenario{Mode: fakehashcat.ModeRun, Interval: time.Millisecond, GPUCount: 3})

	require.NoError(t, c.Launch(context.Background(), hashArgs))
	waitRunning(t, c)

	var (
		wg    sync.WaitGroup
		reads atomic.Int64
		stop  = make(chan struct{})
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				snap := c.Snapshot()
				progress, ok := snap.Progress()
				if !assert.True(t, ok) {
					return
				}
				curku, _ := snap.Get("CURKU")
				n, _ := curku.Int()
				assert.Equal(t, progress.Current, n)

				speeds := snap.Speeds()
				if assert.Len(t, speeds, 3) {
					for d, s := range speeds {
						assert.Equal(t, n*1000*int64(d+1), s.Hashes)
					}
				}
				runtimes := snap.ExecRuntimes()
				for _, r := range runtimes {
					assert.Equal(t, float64(n)+0.5, r)
				}
				reads.Add(1)
			}
		}()
	}

	time.Sleep(300 * time.Millisecond)
	close(stop)
	wg.Wait()

	assert.Positive(t, reads.Load())
	assert.True(t, c.Quit())
	waitResult(t, c)
}

func TestNonStatusLineKeepsSnapshot(t *testing.T) {
	c := NewController(DefaultOptions())

	c.handleLine(fakehashcat.StatusLine(2, 7, 1))
	before := c.Snapshot()
	require.False(t, before.IsZero())

	c.handleLine("Session..........: hashcat")
	c.handleLine("Paused")
	c.handleLine("")

	after := c.Snapshot()
	assert.Equal(t, before.Raw(), after.Raw())
	assert.Equal(t, before.ReceivedAt(), after.ReceivedAt())
	assert.True(t, c.IsPaused())
	assert.Equal(t, []string{"Session..........: hashcat", "Paused"}, c.stdoutTail.Messages())

	c.handleLine("Resumed")
	assert.False(t, c.IsPaused())
}
