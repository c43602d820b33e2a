package model

import (
	"fmt"
	"strings"

	ort "github.com/yalue/onnxruntime_go"
)

// Device is the compute target the session is bound to. It is resolved once at load.
type Device string

const (
	// DeviceAuto probes for CUDA and falls back to CPU.
	DeviceAuto Device = "auto"
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// ParseDevice maps a config string to a Device. Empty selects DeviceAuto.
func ParseDevice(s string) (Device, error) {
	switch Device(strings.ToLower(strings.TrimSpace(s))) {
	case "", DeviceAuto:
		return DeviceAuto, nil
	case DeviceCPU:
		return DeviceCPU, nil
	case DeviceCUDA, "gpu":
		return DeviceCUDA, nil
	default:
		return "", fmt.Errorf("unknown device %q (want auto, cpu or cuda)", s)
	}
}

func (d Device) String() string {
	return string(d)
}

// sessionOptions builds ORT options for a concrete device. CUDA attaches the CUDA
// execution provider on GPU 0; that fails on CPU-only runtime builds.
func sessionOptions(d Device) (*ort.SessionOptions, error) {
	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if d != DeviceCUDA {
		return opts, nil
	}

	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("cuda provider options: %w", err)
	}
	defer cuda.Destroy()

	if err := cuda.Update(map[string]string{"device_id": "0"}); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("configure cuda provider: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("attach cuda provider: %w", err)
	}
	return opts, nil
}
