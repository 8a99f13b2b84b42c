package pipeline

import (
	"fmt"
	"runtime"
	"strings"
)

type Device string

const (
	DeviceAccelerator Device = "coreml"
	DeviceGPU         Device = "cuda"
	DeviceCPU         Device = "cpu"
)

// Label is the human readable name of the backend.
func (d Device) Label() string {
	switch d {
	case DeviceAccelerator:
		return "Apple Neural Engine"
	case DeviceGPU:
		return "NVIDIA GPU"
	default:
		return "CPU"
	}
}

func (d Device) String() string { return string(d) }

// ParseDevice accepts a device name. "" and "auto" return "" which means
// automatic selection.
func ParseDevice(s string) (Device, error) {
	switch d := Device(strings.ToLower(strings.TrimSpace(s))); d {
	case "", "auto":
		return "", nil
	case DeviceAccelerator, DeviceGPU, DeviceCPU:
		return d, nil
	case "mps":
		return DeviceAccelerator, nil
	default:
		return "", fmt.Errorf("unknown device %q (want auto, coreml, cuda or cpu)", s)
	}
}

// Backend answers capability queries about the compute runtime.
type Backend interface {
	Available(d Device) bool
}

// SelectDevice picks the fastest available device:
// platform accelerator, then GPU, then CPU.
func SelectDevice(b Backend) Device {
	return selectDevice(b, runtime.GOOS)
}

func selectDevice(b Backend, goos string) Device {
	if b == nil {
		return DeviceCPU
	}
	if goos == "darwin" && b.Available(DeviceAccelerator) {
		return DeviceAccelerator
	}
	if b.Available(DeviceGPU) {
		return DeviceGPU
	}
	return DeviceCPU
}
