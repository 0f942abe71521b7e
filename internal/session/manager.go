// Package session runs one hashcat Controller at a time and fans its events
// out to subscribers such as the terminal and the websocket feed.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LBVDSEC/telecat/internal/hardware"
	"github.com/LBVDSEC/telecat/internal/hashcat"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

// DeviceSelector supplies hashcat's -d selection and the device labels of a run
type DeviceSelector interface {
	DeviceFlag() string
	DeviceNames() []string
}

// Info describes a launched session
type Info struct {
	ID         string    `json:"session_id"`
	Command    string    `json:"command"`
	LaunchedAt time.Time `json:"launched_at"`
}

// Completion is a finished session and its result
type Completion struct {
	Info
	Result hashcat.Result `json:"result"`
}

type session struct {
	info       Info
	controller *hashcat.Controller
	devices    []string
}

// Manager owns the active session. At most one hashcat process runs at a time.
type Manager struct {
	opts     hashcat.Options
	selector DeviceSelector
	sample   func(pid int) (hardware.ProcessStats, error)

	mu      sync.RWMutex
	current *session
	last    *Completion

	subMu      sync.RWMutex
	onLaunch   []func(Info)
	onStatus   []func(Info, hashcat.Snapshot)
	onComplete []func(Completion)
}

// NewManager creates a manager whose sessions use opts. OnStatus and OnExit
// in opts are replaced by the manager's subscriptions.
func NewManager(opts hashcat.Options) *Manager {
	opts.OnStatus = nil
	opts.OnExit = nil
	return &Manager{
		opts:   opts,
		sample: hardware.SampleProcess,
	}
}

// SetDeviceSelector restricts later sessions to the selector's devices
func (m *Manager) SetDeviceSelector(selector DeviceSelector) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.selector = selector
}

// OnLaunch registers fn for every successful launch
func (m *Manager) OnLaunch(fn func(Info)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onLaunch = append(m.onLaunch, fn)
}

// OnStatus registers fn for every accepted status line. It runs on the
// session's monitor goroutine and must not block.
func (m *Manager) OnStatus(fn func(Info, hashcat.Snapshot)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onStatus = append(m.onStatus, fn)
}

// OnComplete registers fn for every finished session
func (m *Manager) OnComplete(fn func(Completion)) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.onComplete = append(m.onComplete, fn)
}

// Launch starts hashcat with args. Cancelling ctx asks the run to quit.
func (m *Manager) Launch(ctx context.Context, args []string) (Info, error) {
	return m.launch(ctx, args)
}

// LaunchString starts hashcat from a single command line
func (m *Manager) LaunchString(ctx context.Context, line string) (Info, error) {
	args, err := hashcat.SplitCommandLine(line)
	if err != nil {
		return Info{}, err
	}
	return m.launch(ctx, args)
}

func (m *Manager) launch(ctx context.Context, args []string) (Info, error) {
	m.mu.Lock()

	if m.current != nil && m.current.controller.State() != hashcat.StateDone {
		m.mu.Unlock()
		return Info{}, ErrSessionActive
	}

	s := &session{info: Info{ID: uuid.NewString()}}
	args = m.withDeviceFlag(args, s)

	opts := m.opts
	opts.OnStatus = func(snap hashcat.Snapshot) {
		m.publishStatus(s, snap)
	}
	opts.OnExit = func(res hashcat.Result) {
		m.complete(s, res)
	}
	s.controller = hashcat.NewController(opts)

	// the exit observer takes m.mu, so it cannot run before current is set
	if err := s.controller.Launch(ctx, args); err != nil {
		m.mu.Unlock()
		return Info{}, err
	}
	spec, _ := s.controller.Command()
	s.info.Command = spec.CommandLine()
	s.info.LaunchedAt = time.Now()
	m.current = s
	m.mu.Unlock()

	debug.Info("Launched session %s (pid %d): %s", s.info.ID, s.controller.PID(), s.info.Command)

	m.subMu.RLock()
	subs := append([]func(Info){}, m.onLaunch...)
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(s.info)
	}
	return s.info, nil
}

// withDeviceFlag appends the selector's -d value unless args choose devices
func (m *Manager) withDeviceFlag(args []string, s *session) []string {
	if m.selector == nil {
		return args
	}
	s.devices = m.selector.DeviceNames()
	flag := m.selector.DeviceFlag()
	if flag == "" {
		return args
	}
	for _, arg := range args {
		if selectsDevices(arg) {
			return args
		}
	}
	return append(args[:len(args):len(args)], "-d", flag)
}

// selectsDevices reports whether arg is -d, -d<list> or --backend-devices
func selectsDevices(arg string) bool {
	switch {
	case arg == "-d", arg == "--backend-devices":
		return true
	case strings.HasPrefix(arg, "--backend-devices="):
		return true
	case strings.HasPrefix(arg, "-d") && !strings.HasPrefix(arg, "--"):
		return strings.Trim(arg[2:], "0123456789,") == ""
	}
	return false
}

func (m *Manager) publishStatus(s *session, snap hashcat.Snapshot) {
	m.mu.RLock()
	info := s.info
	m.mu.RUnlock()

	m.subMu.RLock()
	subs := append([]func(Info, hashcat.Snapshot){}, m.onStatus...)
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(info, snap)
	}
}

func (m *Manager) complete(s *session, res hashcat.Result) {
	m.mu.Lock()
	c := Completion{Info: s.info, Result: res}
	if m.current == s {
		m.current = nil
	}
	m.last = &c
	m.mu.Unlock()

	debug.Info("Session %s finished: %s (exit code %d)", s.info.ID, res.Class, res.ExitCode)

	m.subMu.RLock()
	subs := append([]func(Completion){}, m.onComplete...)
	m.subMu.RUnlock()
	for _, fn := range subs {
		fn(c)
	}
}

func (m *Manager) active() (*session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil || m.current.controller.State() == hashcat.StateDone {
		return nil, false
	}
	return m.current, true
}

// Pause pauses the running session
func (m *Manager) Pause(ctx context.Context) error {
	s, ok := m.active()
	if !ok || !s.controller.IsRunning() {
		return ErrNotRunning
	}
	if s.controller.IsPaused() {
		return ErrAlreadyPaused
	}
	if !s.controller.Pause(ctx) {
		return ErrPauseFailed
	}
	return nil
}

// Resume resumes the paused session
func (m *Manager) Resume(ctx context.Context) error {
	s, ok := m.active()
	if !ok || !s.controller.IsRunning() {
		return ErrNotRunning
	}
	if !s.controller.IsPaused() {
		return ErrNotPaused
	}
	if !s.controller.Resume(ctx) {
		return ErrResumeFailed
	}
	return nil
}

// Quit asks the session to stop. It does not wait for the exit.
func (m *Manager) Quit() error {
	s, ok := m.active()
	if !ok || !s.controller.Quit() {
		return ErrNotRunning
	}
	return nil
}

// RequestStatus asks hashcat for an immediate status line
func (m *Manager) RequestStatus() error {
	s, ok := m.active()
	if !ok || !s.controller.RequestStatus() {
		return ErrNotRunning
	}
	return nil
}

// Current returns the active session
func (m *Manager) Current() (Info, bool) {
	s, ok := m.active()
	if !ok {
		return Info{}, false
	}
	return s.info, true
}

// Wait blocks until the active session finishes and returns its completion
func (m *Manager) Wait(ctx context.Context) (Completion, error) {
	// current stays set until complete has recorded last
	m.mu.RLock()
	s := m.current
	m.mu.RUnlock()
	if s == nil {
		if last, ok := m.LastResult(); ok {
			return last, nil
		}
		return Completion{}, ErrNotRunning
	}
	res, err := s.controller.Wait(ctx)
	if err != nil {
		return Completion{}, err
	}
	return Completion{Info: s.info, Result: res}, nil
}

// LastResult returns the most recently finished session
func (m *Manager) LastResult() (Completion, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return Completion{}, false
	}
	return *m.last, true
}

// Status reports the active session
func (m *Manager) Status() (Report, error) {
	s, ok := m.active()
	if !ok {
		return Report{}, ErrNotRunning
	}
	return m.report(s), nil
}

// StartStatusReporter calls fn with a status report every interval while a
// session runs, until ctx is done
func (m *Manager) StartStatusReporter(ctx context.Context, interval time.Duration, fn func(Report)) error {
	if interval <= 0 {
		return fmt.Errorf("invalid status interval %v", interval)
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				report, err := m.Status()
				if errors.Is(err, ErrNotRunning) || !report.Started {
					continue
				}
				fn(report)
			}
		}
	}()
	return nil
}

// Shutdown stops the active session, killing it if it has not exited when
// ctx expires
func (m *Manager) Shutdown(ctx context.Context) error {
	s, ok := m.active()
	if !ok {
		return nil
	}
	debug.Info("Shutting down session %s", s.info.ID)
	res := s.controller.Abandon(ctx)
	debug.Info("Session %s stopped with exit code %d", s.info.ID, res.ExitCode)
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("session %s did not quit in time: %w", s.info.ID, err)
	}
	return nil
}
