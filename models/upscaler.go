package models

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

// FileModel is a model handle that only records where the weights live.
// The weights themselves are read by the external inference executable.
type FileModel struct {
	path string
	size int64
}

func (m *FileModel) Path() string { return m.path }

// Size returns the size of the weights file in bytes.
func (m *FileModel) Size() int64 { return m.size }

// FileLoader produces FileModel handles after checking the file is readable.
type FileLoader struct{}

func (FileLoader) Load(_ context.Context, path string) (core.Model, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrModelNotFound, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", apperrors.ErrModelNotFound, path)
	}
	return &FileModel{path: path, size: fi.Size()}, nil
}

// CommandUpscaler runs an external inference executable once per image.
//
// Args is the argument vector; the placeholders {input}, {output}, {model},
// {tile}, {device} and {fp16} are substituted in every argument.  The image
// is exchanged as 8-bit PNG files in a per-call temporary directory.
type CommandUpscaler struct {
	Command string
	Args    []string
	// TempDir overrides os.TempDir for the exchanged files.
	TempDir string
}

// NewCommandUpscaler parses a command line such as
// "upscale -i {input} -o {output} -m {model}" into a CommandUpscaler.
func NewCommandUpscaler(cmdline string) (*CommandUpscaler, error) {
	fields := strings.Fields(cmdline)
	if len(fields) == 0 {
		return nil, apperrors.New(apperrors.CategoryConfig, "models.command", apperrors.ErrNoUpscaler)
	}
	return &CommandUpscaler{Command: fields[0], Args: fields[1:]}, nil
}

func (u *CommandUpscaler) Upscale(ctx context.Context, m core.Model, t *core.Tensor, tile core.TileSize, dev core.DeviceOptions) (*core.Tensor, error) {
	dir, err := os.MkdirTemp(u.TempDir, "upscale-*")
	if err != nil {
		return nil, apperrors.Transient("models.upscale", err)
	}
	defer os.RemoveAll(dir)

	in := filepath.Join(dir, "in.png")
	out := filepath.Join(dir, "out.png")

	var buf bytes.Buffer
	if err := png.Encode(&buf, t.Quantize().Image()); err != nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "models.upscale", err)
	}
	if err := os.WriteFile(in, buf.Bytes(), 0o644); err != nil {
		return nil, apperrors.Transient("models.upscale", err)
	}

	repl := strings.NewReplacer(
		"{input}", in,
		"{output}", out,
		"{model}", m.Path(),
		"{tile}", strconv.Itoa(int(tile)),
		"{device}", deviceString(dev),
		"{fp16}", strconv.FormatBool(dev.UseFP16),
	)
	args := make([]string, len(u.Args))
	for i, a := range u.Args {
		args[i] = repl.Replace(a)
	}

	cmd := exec.CommandContext(ctx, u.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, apperrors.New(apperrors.CategoryModel, "models.upscale",
			fmt.Errorf("%s: %w: %s", u.Command, err, strings.TrimSpace(stderr.String())))
	}

	data, err := os.ReadFile(out)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryModel, "models.upscale", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "models.upscale", err)
	}
	return core.TensorFromImage(img), nil
}

func deviceString(dev core.DeviceOptions) string {
	if dev.UseCPU {
		return "cpu"
	}
	return "gpu:" + strconv.Itoa(dev.DeviceIndex)
}
