package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/blur/compute"
)

func TestOpenDeviceCPU(t *testing.T) {
	dev, err := OpenDevice("CPU", 2, slog.Default())
	if err != nil {
		t.Fatalf("OpenDevice(cpu) error = %v", err)
	}
	defer dev.Close()
	if _, ok := dev.(*compute.CPUDevice); !ok {
		t.Errorf("OpenDevice(cpu) = %T, want *compute.CPUDevice", dev)
	}
	if !strings.Contains(dev.Name(), "2 workers") {
		t.Errorf("Name() = %q", dev.Name())
	}
}

func TestOpenDeviceAutoNeverFails(t *testing.T) {
	var buf bytes.Buffer
	dev, err := OpenDevice(DeviceAuto, 1, NewLogger(&buf, false))
	if err != nil {
		t.Fatalf("OpenDevice(auto) error = %v", err)
	}
	_ = dev.Close()
}

func TestOpenDeviceUnknown(t *testing.T) {
	_, err := OpenDevice("tpu", 1, slog.Default())
	if !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("OpenDevice(tpu) error = %v, want ErrUnknownDevice", err)
	}
}

func TestLoadKernel(t *testing.T) {
	src, err := LoadKernel("")
	if err != nil || src != nil {
		t.Errorf("LoadKernel(\"\") = %v, %v, want nil, nil", src, err)
	}

	path := filepath.Join(t.TempDir(), "k.cl")
	if err := os.WriteFile(path, []byte("kernel"), 0o600); err != nil {
		t.Fatal(err)
	}
	src, err = LoadKernel(path)
	if err != nil || string(src) != "kernel" {
		t.Errorf("LoadKernel() = %q, %v", src, err)
	}

	if _, err := LoadKernel(filepath.Join(t.TempDir(), "missing.cl")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("LoadKernel(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	quiet := NewLogger(&buf, false)
	if quiet.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("non-verbose logger enabled at Info")
	}
	if !NewLogger(&buf, true).Enabled(context.Background(), slog.LevelDebug) {
		t.Error("verbose logger not enabled at Debug")
	}
}
