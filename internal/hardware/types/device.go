package types

// Device is one backend device entry from `hashcat -I`
type Device struct {
	ID      int    `json:"device_id"`
	Name    string `json:"device_name"`
	Type    string `json:"device_type"` // "GPU" or "CPU"
	Backend string `json:"backend"`     // "CUDA", "HIP" or "OpenCL"
	AliasOf int    `json:"alias_of,omitempty"`

	Processors  int    `json:"processors,omitempty"`
	Clock       int    `json:"clock,omitempty"`        // MHz
	MemoryTotal int64  `json:"memory_total,omitempty"` // MB
	MemoryFree  int64  `json:"memory_free,omitempty"`  // MB
	PCIAddress  string `json:"pci_address,omitempty"`
}

// PhysicalDevice is one accelerator, possibly visible through several backends
type PhysicalDevice struct {
	Index           int             `json:"index"`
	Name            string          `json:"name"`
	Type            string          `json:"type"`
	Enabled         bool            `json:"enabled"`
	RuntimeOptions  []RuntimeOption `json:"runtime_options"`
	SelectedRuntime string          `json:"selected_runtime"`
}

// SelectedDeviceID returns the hashcat device ID of the selected runtime
func (p PhysicalDevice) SelectedDeviceID() (int, bool) {
	for _, opt := range p.RuntimeOptions {
		if opt.Backend == p.SelectedRuntime {
			return opt.DeviceID, true
		}
	}
	return 0, false
}

// RuntimeOption is one backend's view of a physical device
type RuntimeOption struct {
	Backend     string `json:"backend"`
	DeviceID    int    `json:"device_id"`
	Processors  int    `json:"processors"`
	Clock       int    `json:"clock"`
	MemoryTotal int64  `json:"memory_total"`
	MemoryFree  int64  `json:"memory_free"`
	PCIAddress  string `json:"pci_address"`
}

// DetectionResult is the outcome of a `hashcat -I` run
type DetectionResult struct {
	Binary  string           `json:"binary"`
	Devices []PhysicalDevice `json:"devices"`
	Error   string           `json:"error,omitempty"`
}
