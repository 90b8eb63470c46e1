package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gogpu/blur"
)

func writeInput(t *testing.T) string {
	t.Helper()
	img, err := blur.NewImage(5, 4, blur.RGB)
	if err != nil {
		t.Fatal(err)
	}
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 7)
	}
	path := filepath.Join(t.TempDir(), "in.tga")
	if err := blur.Save(img, path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunWithFlags(t *testing.T) {
	in := writeInput(t)
	out := filepath.Join(t.TempDir(), "out.png")

	var stdout, stderr bytes.Buffer
	err := run([]string{"-in", in, "-out", out, "-sigma", "2", "-device", "cpu", "-workers", "2"},
		strings.NewReader(""), &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "Blurred") {
		t.Errorf("stdout = %q", stdout.String())
	}

	res, err := blur.Load(out)
	if err != nil {
		t.Fatalf("Load(out) error = %v", err)
	}
	if res.Width != 5 || res.Height != 4 || res.Mode != blur.RGB {
		t.Errorf("output = %dx%d %v, want 5x4 RGB", res.Width, res.Height, res.Mode)
	}
}

func TestRunPrompts(t *testing.T) {
	in := writeInput(t)
	out := filepath.Join(t.TempDir(), "out.tga")

	var stdout, stderr bytes.Buffer
	stdin := strings.NewReader(in + "\n" + out + "\n1.5\n")
	if err := run([]string{"-device", "cpu"}, stdin, &stdout, &stderr); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for _, label := range []string{"Input image:", "Output image:", "Sigma:"} {
		if !strings.Contains(stdout.String(), label) {
			t.Errorf("stdout missing prompt %q: %q", label, stdout.String())
		}
	}
	if _, err := blur.Load(out); err != nil {
		t.Errorf("Load(out) error = %v", err)
	}
}

// An explicit -sigma 0 is an invalid value, not a missing one.
func TestRunSigmaZeroNotPrompted(t *testing.T) {
	in := writeInput(t)
	var stdout, stderr bytes.Buffer
	err := run([]string{"-in", in, "-out", filepath.Join(t.TempDir(), "a.tga"), "-sigma", "0", "-device", "cpu"},
		strings.NewReader("2\n"), &stdout, &stderr)
	if !errors.Is(err, blur.ErrInvalidParameter) {
		t.Fatalf("run() error = %v, want ErrInvalidParameter", err)
	}
	if strings.Contains(stdout.String(), "Sigma:") {
		t.Errorf("stdout = %q, want no sigma prompt", stdout.String())
	}
}

func TestRunErrors(t *testing.T) {
	in := writeInput(t)
	dir := t.TempDir()

	tests := []struct {
		name  string
		args  []string
		stdin string
		want  error
		text  string
	}{
		{"sigma below one", []string{"-in", in, "-out", filepath.Join(dir, "a.tga"), "-sigma", "0.5", "-device", "cpu"}, "", blur.ErrInvalidParameter, "sigma"},
		{"sigma zero given", []string{"-in", in, "-out", filepath.Join(dir, "a.tga"), "-sigma", "0", "-device", "cpu"}, "5\n", blur.ErrInvalidParameter, "sigma"},
		{"sigma not a number", []string{"-in", in, "-out", filepath.Join(dir, "a.tga"), "-device", "cpu"}, "abc\n", nil, "parse sigma"},
		{"missing input", []string{"-in", filepath.Join(dir, "missing.tga"), "-out", filepath.Join(dir, "a.tga"), "-sigma", "2", "-device", "cpu"}, "", blur.ErrImageLoad, "load"},
		{"unsupported output", []string{"-in", in, "-out", filepath.Join(dir, "a.xyz"), "-sigma", "2", "-device", "cpu"}, "", blur.ErrImageSave, "save"},
		{"unknown device", []string{"-in", in, "-out", filepath.Join(dir, "a.tga"), "-sigma", "2", "-device", "tpu"}, "", nil, "open device"},
		{"missing kernel file", []string{"-in", in, "-out", filepath.Join(dir, "a.tga"), "-sigma", "2", "-kernel", filepath.Join(dir, "none.cl")}, "", nil, "kernel"},
		{"eof at prompt", []string{"-device", "cpu"}, "", nil, "Input image"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			err := run(tt.args, strings.NewReader(tt.stdin), &stdout, &stderr)
			if err == nil {
				t.Fatal("run() error = nil")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("run() error = %v, want %v", err, tt.want)
			}
			if !strings.Contains(err.Error(), tt.text) {
				t.Errorf("run() error = %q, want mention of %q", err, tt.text)
			}
		})
	}
}
