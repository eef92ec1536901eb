package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// executeCommand runs the root command and captures stdout and stderr.
func executeCommand(args ...string) (string, string, error) {
	var out, errOut bytes.Buffer
	cmd := newRootCmd(&out, &errOut)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func writePNG(t *testing.T, p string, w, h int) {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = uint8(i * 3)
	}
	img.SetGray(0, 0, color.Gray{Y: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	if err := os.WriteFile(p, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write png: %v", err)
	}
}

func TestRootCmd_FilePath(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "page.png")
	writePNG(t, in, 12, 10)
	outDir := filepath.Join(dir, "out")

	stdout, stderr, err := executeCommand(
		"-f", in,
		"-o", outDir,
		"-m", filepath.Join(dir, "models"),
		"-u", "3",
		"--format", "png",
		"--env-file", filepath.Join(dir, "missing.env"),
		"--log-format", "text",
	)
	if err != nil {
		t.Fatalf("command failed: %v\n%s", err, stderr)
	}

	out := filepath.Join(outDir, "page-mangajanai.png")
	f, err := os.Open(out)
	if err != nil {
		t.Fatalf("expected output at %s: %v", out, err)
	}
	defer f.Close()
	c, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode output: %v", err)
	}
	if c.Width != 36 || c.Height != 30 {
		t.Errorf("dimensions: got %dx%d, want 36x30", c.Width, c.Height)
	}

	if !strings.Contains(stdout, "PROGRESS=postprocess_worker_image") {
		t.Errorf("expected a progress token on stdout, got: %s", stdout)
	}
	if !strings.Contains(stdout, "Elapsed time:") {
		t.Errorf("expected elapsed time on stdout, got: %s", stdout)
	}
	if !strings.Contains(stderr, "1 processed") {
		t.Errorf("expected summary on stderr, got: %s", stderr)
	}
}

const settingsDoc = `{
  "SelectedWorkflowIndex": 0,
  "ModelsDirectory": "",
  "Workflows": {"$values": [{
    "SelectedTabIndex": 1,
    "InputFolderPath": %q,
    "OutputFolderPath": %q,
    "OutputFilename": "%%filename%%",
    "UpscaleImages": true,
    "UpscaleArchives": true,
    "PngSelected": true,
    "ModeWidthSelected": true,
    "ResizeWidthAfterUpscale": 20,
    "GrayscaleDetectionThreshold": 12,
    "Chains": {"$values": [{
      "MinResolution": "0x0", "MaxResolution": "0x0",
      "IsGrayscale": true, "IsColor": true,
      "MinScaleFactor": 0, "MaxScaleFactor": 0,
      "ModelFilePath": "No Model", "ModelTileSize": "Auto (Estimate)"
    }]}
  }]}
}`

func TestRootCmd_Settings(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in")
	if err := os.MkdirAll(filepath.Join(in, "ch1"), 0o755); err != nil {
		t.Fatal(err)
	}
	writePNG(t, filepath.Join(in, "ch1", "001.png"), 10, 5)
	outDir := filepath.Join(dir, "out")

	settings := filepath.Join(dir, "settings.json")
	doc := fmt.Sprintf(settingsDoc, filepath.ToSlash(in), filepath.ToSlash(outDir))
	if err := os.WriteFile(settings, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	_, stderr, err := executeCommand("--settings", settings, "--env-file", filepath.Join(dir, "none.env"))
	if err != nil {
		t.Fatalf("command failed: %v\n%s", err, stderr)
	}
	f, err := os.Open(filepath.Join(outDir, "ch1", "001.png"))
	if err != nil {
		t.Fatalf("expected mirrored output: %v", err)
	}
	defer f.Close()
	c, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatal(err)
	}
	if c.Width != 20 || c.Height != 10 {
		t.Errorf("dimensions: got %dx%d, want 20x10", c.Width, c.Height)
	}
}

func TestRootCmd_FlagErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		args []string
	}{
		{"no input", []string{"-o", dir}},
		{"two inputs", []string{"-f", "a.png", "-d", dir}},
		{"bad factor", []string{"-d", dir, "-u", "5"}},
		{"bad log format", []string{"-d", dir, "--log-format", "xml", "--env-file", filepath.Join(dir, "x.env")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := executeCommand(tc.args...); err == nil {
				t.Errorf("expected an error for %v", tc.args)
			}
		})
	}
}
