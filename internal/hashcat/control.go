package hashcat

import (
	"fmt"
	"io"
	"sync"
)

// Command is a single-key control command understood by hashcat on stdin
type Command byte

const (
	CommandStatus Command = 's'
	CommandPause  Command = 'p'
	CommandResume Command = 'r'
	CommandQuit   Command = 'q'
)

func (c Command) String() string {
	switch c {
	case CommandStatus:
		return "status"
	case CommandPause:
		return "pause"
	case CommandResume:
		return "resume"
	case CommandQuit:
		return "quit"
	default:
		return fmt.Sprintf("command(%q)", byte(c))
	}
}

// controlChannel serializes writes to the process stdin
type controlChannel struct {
	mu    sync.Mutex
	w     io.WriteCloser
	alive func() bool
}

func newControlChannel(alive func() bool) *controlChannel {
	return &controlChannel{alive: alive}
}

// attach installs the stdin pipe once the process has been spawned
func (c *controlChannel) attach(w io.WriteCloser) {
	c.mu.Lock()
	c.w = w
	c.mu.Unlock()
}

// send writes exactly one byte. Nothing is written when the process is not
// believed alive.
func (c *controlChannel) send(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w == nil || (c.alive != nil && !c.alive()) {
		return ErrProcessNotRunning
	}
	if _, err := c.w.Write([]byte{byte(cmd)}); err != nil {
		return fmt.Errorf("failed to send %s command: %w", cmd, err)
	}
	return nil
}

// close detaches the pipe. Later sends report ErrProcessNotRunning.
func (c *controlChannel) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.w != nil {
		// exec.Cmd.Wait may have closed it already
		_ = c.w.Close()
		c.w = nil
	}
}
