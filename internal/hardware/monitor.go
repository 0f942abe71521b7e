package hardware

import (
	"context"
	"fmt"
	"sync"

	"github.com/LBVDSEC/telecat/internal/hardware/types"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

// Monitor keeps the last detected device list and the per-device selection
// used to build hashcat's -d option
type Monitor struct {
	mu       sync.RWMutex
	detector *Detector
	devices  []types.PhysicalDevice
}

// NewMonitor creates a monitor detecting through detector
func NewMonitor(detector *Detector) *Monitor {
	return &Monitor{
		detector: detector,
		devices:  []types.PhysicalDevice{},
	}
}

// Detect refreshes the device list. Enabled flags and runtime choices of
// devices that are still present are carried over.
func (m *Monitor) Detect(ctx context.Context) (*types.DetectionResult, error) {
	result, err := m.detector.Detect(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous := make(map[int]types.PhysicalDevice, len(m.devices))
	for _, dev := range m.devices {
		previous[dev.Index] = dev
	}
	for i := range result.Devices {
		if old, ok := previous[result.Devices[i].Index]; ok && old.Name == result.Devices[i].Name {
			result.Devices[i].Enabled = old.Enabled
			if hasRuntime(result.Devices[i], old.SelectedRuntime) {
				result.Devices[i].SelectedRuntime = old.SelectedRuntime
			}
		}
	}
	m.devices = result.Devices

	return &types.DetectionResult{Binary: result.Binary, Devices: m.copyDevices()}, nil
}

// GetDevices returns a copy of the current device list
func (m *Monitor) GetDevices() []types.PhysicalDevice {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.copyDevices()
}

func (m *Monitor) copyDevices() []types.PhysicalDevice {
	devices := make([]types.PhysicalDevice, len(m.devices))
	for i, dev := range m.devices {
		dev.RuntimeOptions = append([]types.RuntimeOption(nil), dev.RuntimeOptions...)
		devices[i] = dev
	}
	return devices
}

// UpdateDeviceStatus enables or disables a physical device
func (m *Monitor) UpdateDeviceStatus(index int, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.devices {
		if m.devices[i].Index == index {
			m.devices[i].Enabled = enabled
			debug.Info("Device %d (%s) enabled=%t", index, m.devices[i].Name, enabled)
			return nil
		}
	}
	return fmt.Errorf("device with index %d not found", index)
}

// EnableOnly enables exactly the listed devices
func (m *Monitor) EnableOnly(indexes []int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[int]bool, len(indexes))
	for _, idx := range indexes {
		want[idx] = true
	}
	found := 0
	for i := range m.devices {
		m.devices[i].Enabled = want[m.devices[i].Index]
		if m.devices[i].Enabled {
			found++
		}
	}
	if found != len(want) {
		return fmt.Errorf("only %d of %d requested devices exist", found, len(want))
	}
	return nil
}

// SelectRuntime chooses the backend a physical device is driven through
func (m *Monitor) SelectRuntime(index int, backend string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.devices {
		if m.devices[i].Index != index {
			continue
		}
		if !hasRuntime(m.devices[i], backend) {
			return fmt.Errorf("device %d has no %s runtime", index, backend)
		}
		m.devices[i].SelectedRuntime = backend
		return nil
	}
	return fmt.Errorf("device with index %d not found", index)
}

// DeviceFlag returns the -d value for the current selection
func (m *Monitor) DeviceFlag() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return DeviceFlag(m.devices)
}

// DeviceNames labels the enabled devices in status line order
func (m *Monitor) DeviceNames() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return DeviceNames(m.devices)
}

func hasRuntime(dev types.PhysicalDevice, backend string) bool {
	for _, opt := range dev.RuntimeOptions {
		if opt.Backend == backend {
			return true
		}
	}
	return false
}
