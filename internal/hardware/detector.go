package hardware

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/LBVDSEC/telecat/internal/hardware/types"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

// DefaultDetectTimeout bounds one `hashcat -I` run
const DefaultDetectTimeout = 30 * time.Second

// Detector lists compute devices by running `hashcat -I`
type Detector struct {
	binary  string
	timeout time.Duration
	env     []string
}

// NewDetector creates a detector for the given hashcat binary
func NewDetector(binary string) *Detector {
	return &Detector{binary: binary, timeout: DefaultDetectTimeout}
}

// WithTimeout sets the limit for one detection run
func (d *Detector) WithTimeout(timeout time.Duration) *Detector {
	if timeout > 0 {
		d.timeout = timeout
	}
	return d
}

// WithEnv appends variables to the environment of the detection run
func (d *Detector) WithEnv(env []string) *Detector {
	d.env = append(d.env, env...)
	return d
}

// Binary returns the hashcat executable used for detection
func (d *Detector) Binary() string {
	return d.binary
}

// Detect runs `hashcat -I` and groups its devices per physical accelerator.
// hashcat may exit non-zero on warnings, so the output is parsed regardless
// and the exit error only matters when no device was found.
func (d *Detector) Detect(ctx context.Context) (*types.DetectionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	debug.Info("Detecting devices with %s -I", d.binary)

	cmd := exec.CommandContext(ctx, d.binary, "-I")
	if dir := filepath.Dir(d.binary); dir != "." {
		// hashcat resolves its OpenCL directory relative to the working directory
		cmd.Dir = dir
	}
	cmd.Env = append(os.Environ(), d.env...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("device detection timed out after %v", d.timeout)
		}
		debug.Warning("hashcat -I returned error (may be just warnings): %v", runErr)
	}
	debug.Debug("Raw hashcat -I output:\n%s", output)

	devices, err := ParseDeviceInfo(string(output))
	if err != nil {
		if runErr != nil {
			return nil, fmt.Errorf("failed to detect devices: %w (hashcat: %v)", err, runErr)
		}
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}

	physical := GroupPhysicalDevices(devices)
	debug.Info("Detected %d physical devices (grouped from %d backend devices)", len(physical), len(devices))

	return &types.DetectionResult{
		Binary:  d.binary,
		Devices: physical,
	}, nil
}
