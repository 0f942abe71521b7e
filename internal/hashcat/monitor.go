package hashcat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/LBVDSEC/telecat/pkg/debug"
)

const (
	// PotfileNotice is the output of a successful exit that cracked nothing new
	PotfileNotice = "Found in potfile"

	pausedMarker  = "Paused"
	resumedMarker = "Resumed"

	maxLineSize = 1024 * 1024
)

// monitor owns the process output for the lifetime of the run. It returns
// after the process has exited and the run is DONE.
func (c *Controller) monitor(ctx context.Context, stdout, stderr io.Reader) {
	lines := make(chan string, 64)

	var streams sync.WaitGroup
	streams.Add(2)
	go func() {
		defer streams.Done()
		defer close(lines)
		scanLines(stdout, func(line string) {
			lines <- line
		})
	}()
	go func() {
		defer streams.Done()
		scanLines(stderr, func(line string) {
			if strings.TrimSpace(line) == "" {
				return
			}
			c.stderrTail.AddLine("stderr", line)
			debug.Debug("hashcat stderr: %s", line)
		})
	}()

	ctxDone := ctx.Done()
	cancelled := c.cancelCh
	quitSent := false
	requestQuit := func(reason string) {
		if quitSent {
			return
		}
		quitSent = true
		debug.Info("Quitting hashcat (%s)", reason)
		if err := c.control.send(CommandQuit); err != nil {
			debug.Warning("Failed to send quit: %v", err)
		}
	}

loop:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				break loop
			}
			c.handleLine(line)
		case <-ctxDone:
			ctxDone = nil
			requestQuit("context cancelled")
		case <-cancelled:
			cancelled = nil
			requestQuit("cancel requested")
		}
	}

	streams.Wait()

	c.mu.RLock()
	cmd := c.cmd
	c.mu.RUnlock()
	waitErr := cmd.Wait()

	c.handleExit(cmd.ProcessState, waitErr)
}

// scanLines feeds every line of r to fn. A line longer than maxLineSize ends
// scanning; the rest of the stream is discarded so the process never blocks on
// a full pipe.
func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		fn(strings.TrimRight(scanner.Text(), "\r"))
	}
	if err := scanner.Err(); err != nil {
		debug.Warning("Stopped reading hashcat output: %v", err)
		_, _ = io.Copy(io.Discard, r)
	}
}

// handleLine applies one stdout line to the run state
func (c *Controller) handleLine(line string) {
	if strings.Contains(line, pausedMarker) {
		c.paused.Set()
	}
	if strings.Contains(line, resumedMarker) {
		c.paused.Clear()
	}

	if snap, ok := ParseStatusLine(line); ok {
		c.snapshot.Store(&snap)
		if c.started.Set() {
			c.state.transitionFrom(StateStarting, StateRunning)
			debug.Info("Hashcat reported its first status")
		}
		if c.opts.OnStatus != nil {
			c.opts.OnStatus(snap)
		}
		return
	}

	if strings.TrimSpace(line) == "" {
		return
	}
	c.stdoutTail.AddLine("stdout", line)
	debug.Debug("hashcat: %s", line)
}

// exitCodeOf extracts the exit status. Signals and wait failures give -1.
func exitCodeOf(state *os.ProcessState, waitErr error) int {
	if state != nil {
		return state.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

// handleExit classifies the exit, captures output and finishes the run
func (c *Controller) handleExit(state *os.ProcessState, waitErr error) {
	code := exitCodeOf(state, waitErr)
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			debug.Warning("Waiting for hashcat failed: %v", waitErr)
		}
	}

	res := Result{
		ExitCode:   ExitCode(code),
		Class:      ExitCode(code).Classify(),
		Snapshot:   c.Snapshot(),
		Crashed:    !c.started.IsSet(),
		StartedAt:  c.StartedAt(),
		FinishedAt: time.Now(),
	}

	switch res.Class {
	case ClassError:
		res.Diagnostic = c.collectOutput()
	case ClassCracked:
		res.Output, res.CrackedCount = c.readCracked(res.Snapshot)
	}

	if res.Crashed {
		header := fmt.Sprintf("hashcat exited with code %d before reporting status", code)
		res.Diagnostic = joinNonEmpty(header, c.collectOutput())
	}

	debug.Info("Hashcat exited with code %d (%s) after %v", code, res.Class, res.Duration())
	c.finish(res, true)
}

// collectOutput joins retained stdout then stderr lines
func (c *Controller) collectOutput() string {
	lines := append(c.stdoutTail.Messages(), c.stderrTail.Messages()...)
	return strings.Join(lines, "\n")
}

// readCracked returns the payload of a successful exit. A run that never
// reported the Cracked status found its hashes in the potfile.
func (c *Controller) readCracked(snap Snapshot) (string, int) {
	if status, ok := snap.Status(); !ok || status != StatusCracked {
		return PotfileNotice, 0
	}

	spec, ok := c.Command()
	if !ok {
		return PotfileNotice, 0
	}
	data, err := os.ReadFile(spec.OutputPath())
	if err != nil {
		debug.Warning("Failed to read output file %s: %v", spec.OutputPath(), err)
		return PotfileNotice, 0
	}
	payload := string(data)
	if strings.TrimSpace(payload) == "" {
		return PotfileNotice, 0
	}

	count := 0
	for _, line := range strings.Split(payload, "\n") {
		if strings.TrimSpace(line) != "" {
			count++
		}
	}

	if !c.opts.IncludeCracked {
		return fmt.Sprintf("%d credential(s) recovered", count), count
	}
	return payload, count
}

func joinNonEmpty(parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
