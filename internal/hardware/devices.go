package hardware

import (
	"bufio"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/LBVDSEC/telecat/internal/hardware/types"
	"github.com/LBVDSEC/telecat/pkg/debug"
)

// ErrNoDevices is returned when `hashcat -I` output lists no backend device
var ErrNoDevices = errors.New("no devices found in hashcat output")

// runtime preference when a physical device is reachable through several backends
var backendPriority = map[string]int{
	"CUDA":   3,
	"HIP":    2,
	"OpenCL": 1,
}

var (
	backendRe     = regexp.MustCompile(`^(HIP|OpenCL|CUDA) Info:`)
	platformRe    = regexp.MustCompile(`^\s*(OpenCL|CUDA|HIP) Platform ID #\d+`)
	deviceIDRe    = regexp.MustCompile(`^\s*Backend Device ID #(\d+)(?:\s+\(Alias:\s+#(\d+)\))?`)
	nameRe        = regexp.MustCompile(`^\s*Name\.+:\s+(.+)`)
	typeRe        = regexp.MustCompile(`^\s*Type\.+:\s+(.+)`)
	processorsRe  = regexp.MustCompile(`^\s*Processor\(s\)\.+:\s+(\d+)`)
	clockRe       = regexp.MustCompile(`^\s*Clock\.+:\s+(\d+)`)
	memoryTotalRe = regexp.MustCompile(`^\s*Memory\.Total\.+:\s+(\d+)\s+MB`)
	memoryFreeRe  = regexp.MustCompile(`^\s*Memory\.Free\.+:\s+(\d+)\s+MB`)
	pciAddrRe     = regexp.MustCompile(`^\s*PCI\.Addr\.(?:BDF|BDFe)\.+:\s+(.+)`)
)

// ParseDeviceInfo extracts the backend devices listed by `hashcat -I`.
// Platform headers are skipped; alias references are kept on each device.
func ParseDeviceInfo(output string) ([]types.Device, error) {
	var (
		devices    []types.Device
		current    *types.Device
		backend    string
		inPlatform bool
	)

	flush := func() {
		if current != nil {
			devices = append(devices, *current)
			current = nil
		}
	}

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()

		if m := backendRe.FindStringSubmatch(line); m != nil {
			flush()
			backend = m[1]
			inPlatform = false
			continue
		}
		if platformRe.MatchString(line) {
			flush()
			inPlatform = true
			continue
		}
		if m := deviceIDRe.FindStringSubmatch(line); m != nil {
			flush()
			inPlatform = false
			id, _ := strconv.Atoi(m[1])
			current = &types.Device{ID: id, Backend: backend, Type: "GPU"}
			if m[2] != "" {
				current.AliasOf, _ = strconv.Atoi(m[2])
			}
			continue
		}
		if current == nil || inPlatform {
			continue
		}

		switch {
		case nameRe.MatchString(line):
			current.Name = strings.TrimSpace(nameRe.FindStringSubmatch(line)[1])
		case typeRe.MatchString(line):
			current.Type = strings.TrimSpace(typeRe.FindStringSubmatch(line)[1])
		case processorsRe.MatchString(line):
			current.Processors, _ = strconv.Atoi(processorsRe.FindStringSubmatch(line)[1])
		case clockRe.MatchString(line):
			current.Clock, _ = strconv.Atoi(clockRe.FindStringSubmatch(line)[1])
		case memoryTotalRe.MatchString(line):
			current.MemoryTotal, _ = strconv.ParseInt(memoryTotalRe.FindStringSubmatch(line)[1], 10, 64)
		case memoryFreeRe.MatchString(line):
			current.MemoryFree, _ = strconv.ParseInt(memoryFreeRe.FindStringSubmatch(line)[1], 10, 64)
		case pciAddrRe.MatchString(line):
			current.PCIAddress = strings.TrimSpace(pciAddrRe.FindStringSubmatch(line)[1])
		}
	}
	flush()

	if len(devices) == 0 {
		return nil, ErrNoDevices
	}
	return devices, nil
}

// GroupPhysicalDevices folds backend devices into physical accelerators.
// hashcat 6.2.6+ declares aliases explicitly; older releases list devices in
// the same order under every backend, so position is used instead.
func GroupPhysicalDevices(devices []types.Device) []types.PhysicalDevice {
	for _, dev := range devices {
		if dev.AliasOf > 0 {
			return groupByAliases(devices)
		}
	}
	return groupByPosition(devices)
}

func runtimeOption(dev types.Device) types.RuntimeOption {
	return types.RuntimeOption{
		Backend:     dev.Backend,
		DeviceID:    dev.ID,
		Processors:  dev.Processors,
		Clock:       dev.Clock,
		MemoryTotal: dev.MemoryTotal,
		MemoryFree:  dev.MemoryFree,
		PCIAddress:  dev.PCIAddress,
	}
}

func groupByAliases(devices []types.Device) []types.PhysicalDevice {
	byID := make(map[int]types.Device, len(devices))
	for _, dev := range devices {
		byID[dev.ID] = dev
	}

	seen := make(map[int]bool)
	var physical []types.PhysicalDevice
	for _, dev := range devices {
		if seen[dev.ID] || dev.Name == "" {
			continue
		}
		seen[dev.ID] = true

		pd := types.PhysicalDevice{
			Index:          len(physical),
			Name:           dev.Name,
			Type:           dev.Type,
			Enabled:        true,
			RuntimeOptions: []types.RuntimeOption{runtimeOption(dev)},
		}
		if alias, ok := byID[dev.AliasOf]; ok && dev.AliasOf > 0 && !seen[alias.ID] {
			seen[alias.ID] = true
			pd.RuntimeOptions = append(pd.RuntimeOptions, runtimeOption(alias))
			debug.Debug("Device #%d (%s) and #%d (%s) are physical device %d",
				dev.ID, dev.Backend, alias.ID, alias.Backend, pd.Index)
		}
		pd.SelectedRuntime = selectRuntime(pd.RuntimeOptions)
		physical = append(physical, pd)
	}
	return physical
}

func groupByPosition(devices []types.Device) []types.PhysicalDevice {
	byBackend := make(map[string][]types.Device)
	var backends []string
	for _, dev := range devices {
		if dev.Backend == "" || dev.Name == "" {
			continue
		}
		if _, ok := byBackend[dev.Backend]; !ok {
			backends = append(backends, dev.Backend)
		}
		byBackend[dev.Backend] = append(byBackend[dev.Backend], dev)
	}
	if len(backends) == 0 {
		return []types.PhysicalDevice{}
	}

	reference := backends[0]
	for _, b := range backends {
		devs := byBackend[b]
		sort.Slice(devs, func(i, j int) bool { return devs[i].ID < devs[j].ID })
		if len(devs) > len(byBackend[reference]) {
			reference = b
		}
	}

	physical := make([]types.PhysicalDevice, 0, len(byBackend[reference]))
	for i, ref := range byBackend[reference] {
		pd := types.PhysicalDevice{
			Index:   i,
			Name:    ref.Name,
			Type:    ref.Type,
			Enabled: true,
		}
		for _, b := range backends {
			if devs := byBackend[b]; i < len(devs) {
				pd.RuntimeOptions = append(pd.RuntimeOptions, runtimeOption(devs[i]))
			}
		}
		pd.SelectedRuntime = selectRuntime(pd.RuntimeOptions)
		physical = append(physical, pd)
	}
	return physical
}

func selectRuntime(options []types.RuntimeOption) string {
	if len(options) == 0 {
		return ""
	}
	best := options[0].Backend
	for _, opt := range options[1:] {
		if backendPriority[opt.Backend] > backendPriority[best] {
			best = opt.Backend
		}
	}
	return best
}

// DeviceFlag returns the value for hashcat's -d option selecting the enabled
// devices through their selected runtime. It is empty when every device is
// enabled or none is.
func DeviceFlag(devices []types.PhysicalDevice) string {
	var ids []string
	for _, dev := range devices {
		if !dev.Enabled {
			continue
		}
		if id, ok := dev.SelectedDeviceID(); ok {
			ids = append(ids, strconv.Itoa(id))
		}
	}
	if len(ids) == 0 || len(ids) == len(devices) {
		return ""
	}
	return strings.Join(ids, ",")
}

// DeviceNames labels devices in index order, e.g. "#1 NVIDIA GeForce RTX 3090 (CUDA)".
// Status lines report one speed per enabled device in this order.
func DeviceNames(devices []types.PhysicalDevice) []string {
	var names []string
	for _, dev := range devices {
		if !dev.Enabled {
			continue
		}
		names = append(names, "#"+strconv.Itoa(dev.Index+1)+" "+dev.Name+" ("+dev.SelectedRuntime+")")
	}
	return names
}
