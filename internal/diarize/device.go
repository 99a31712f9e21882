package diarize

import (
	"fmt"
	goruntime "runtime"
	"strings"

	"github.com/jaypipes/ghw"
	"github.com/mudler/xlog"
)

// Device is the compute target passed to the model.
type Device string

const (
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
	DeviceMPS  Device = "mps"
)

// ParseDevice validates a configured device preference.
func ParseDevice(raw string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(raw))); d {
	case "":
		return DeviceAuto, nil
	case DeviceAuto, DeviceCPU, DeviceCUDA, DeviceMPS:
		return d, nil
	default:
		return "", fmt.Errorf("unknown device %q", raw)
	}
}

// DeviceSelector picks the compute device for one inference call.
type DeviceSelector interface {
	Select() Device
}

// SystemDevices prefers an accelerator reported by the host, else the CPU.
// Detection runs on every call.
type SystemDevices struct {
	preference Device
	goos       string
	goarch     string
	gpuNames   func() ([]string, error)
}

// NewSystemDevices builds a selector honoring an explicit preference.
func NewSystemDevices(preference Device) *SystemDevices {
	return &SystemDevices{
		preference: preference,
		goos:       goruntime.GOOS,
		goarch:     goruntime.GOARCH,
		gpuNames:   ghwGPUNames,
	}
}

// Select returns the preference when explicit, otherwise the detected device.
func (s *SystemDevices) Select() Device {
	if s.preference != "" && s.preference != DeviceAuto {
		return s.preference
	}

	if s.goos == "darwin" && s.goarch == "arm64" {
		return DeviceMPS
	}

	names, err := s.gpuNames()
	if err != nil {
		xlog.Debug("gpu detection failed, using cpu", "error", err)
		return DeviceCPU
	}
	for _, name := range names {
		if strings.Contains(strings.ToLower(name), "nvidia") {
			return DeviceCUDA
		}
	}
	return DeviceCPU
}

// ghwGPUNames lists graphics cards visible to the host.
func ghwGPUNames() ([]string, error) {
	info, err := ghw.GPU()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(info.GraphicsCards))
	for _, card := range info.GraphicsCards {
		if card != nil {
			names = append(names, card.String())
		}
	}
	return names, nil
}

// NewSystemDevicesForTests builds a selector with injected platform facts.
func NewSystemDevicesForTests(preference Device, goos, goarch string, gpuNames func() ([]string, error)) *SystemDevices {
	return &SystemDevices{
		preference: preference,
		goos:       goos,
		goarch:     goarch,
		gpuNames:   gpuNames,
	}
}
