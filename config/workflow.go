package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/Skryldev/batch-upscale/core"
	apperrors "github.com/Skryldev/batch-upscale/errors"
)

//go:embed default_workflow.json
var defaultWorkflow []byte

// Settings is the settings document written by the desktop application.
// The document is JSON; it is parsed with the YAML decoder, which accepts it.
type Settings struct {
	SelectedWorkflowIndex int       `yaml:"SelectedWorkflowIndex"`
	ModelsDirectory       string    `yaml:"ModelsDirectory"`
	UseCPU                bool      `yaml:"UseCpu"`
	UseFP16               bool      `yaml:"UseFp16"`
	SelectedDeviceIndex   int       `yaml:"SelectedDeviceIndex"`
	Workflows             Workflows `yaml:"Workflows"`
}

// Workflows wraps the serialised workflow list.
type Workflows struct {
	Values []Workflow `yaml:"$values"`
}

// Workflow is one saved batch setup.
type Workflow struct {
	WorkflowName     string `yaml:"WorkflowName"`
	SelectedTabIndex int    `yaml:"SelectedTabIndex"` // 0 = file, 1 = folder

	InputFilePath   string `yaml:"InputFilePath"`
	InputFolderPath string `yaml:"InputFolderPath"`
	OutputFilename  string `yaml:"OutputFilename"`
	OutputFolder    string `yaml:"OutputFolderPath"`

	OverwriteExistingFiles bool `yaml:"OverwriteExistingFiles"`
	UpscaleImages          bool `yaml:"UpscaleImages"`
	UpscaleArchives        bool `yaml:"UpscaleArchives"`

	WebpSelected bool `yaml:"WebpSelected"`
	PngSelected  bool `yaml:"PngSelected"`
	AvifSelected bool `yaml:"AvifSelected"`
	JpegSelected bool `yaml:"JpegSelected"`

	LossyCompressionQuality int  `yaml:"LossyCompressionQuality"`
	UseLosslessCompression  bool `yaml:"UseLosslessCompression"`

	ModeScaleSelected  bool `yaml:"ModeScaleSelected"`
	ModeWidthSelected  bool `yaml:"ModeWidthSelected"`
	ModeHeightSelected bool `yaml:"ModeHeightSelected"`

	UpscaleScaleFactor       float64 `yaml:"UpscaleScaleFactor"`
	ResizeWidthAfterUpscale  int     `yaml:"ResizeWidthAfterUpscale"`
	ResizeHeightAfterUpscale int     `yaml:"ResizeHeightAfterUpscale"`
	DisplayDeviceWidth       int     `yaml:"DisplayDeviceWidth"`
	DisplayDeviceHeight      int     `yaml:"DisplayDeviceHeight"`

	GrayscaleDetectionThreshold int `yaml:"GrayscaleDetectionThreshold"`

	Chains ChainList `yaml:"Chains"`
}

// ChainList wraps the serialised chain list.
type ChainList struct {
	Values []ChainRecord `yaml:"$values"`
}

// ChainRecord is a chain rule as stored in the settings document.
type ChainRecord struct {
	MinResolution             string  `yaml:"MinResolution"`
	MaxResolution             string  `yaml:"MaxResolution"`
	IsGrayscale               bool    `yaml:"IsGrayscale"`
	IsColor                   bool    `yaml:"IsColor"`
	MinScaleFactor            float64 `yaml:"MinScaleFactor"`
	MaxScaleFactor            float64 `yaml:"MaxScaleFactor"`
	ResizeWidthBeforeUpscale  int     `yaml:"ResizeWidthBeforeUpscale"`
	ResizeHeightBeforeUpscale int     `yaml:"ResizeHeightBeforeUpscale"`
	ResizeFactorBeforeUpscale float64 `yaml:"ResizeFactorBeforeUpscale"`
	AutoAdjustLevels          bool    `yaml:"AutoAdjustLevels"`
	ModelFilePath             string  `yaml:"ModelFilePath"`
	ModelTileSize             string  `yaml:"ModelTileSize"`
}

// LoadSettings reads and parses a settings document.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "config.load", err)
	}
	return ParseSettings(data)
}

// ParseSettings parses a settings document.
func ParseSettings(data []byte) (*Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "config.parse", err)
	}
	return &s, nil
}

// DefaultSettings returns the built-in workflow used when no settings file
// is given.
func DefaultSettings() *Settings {
	s, err := ParseSettings(defaultWorkflow)
	if err != nil {
		panic(fmt.Sprintf("config: embedded default workflow: %v", err))
	}
	return s
}

// Workflow returns the selected workflow.
func (s *Settings) Workflow() (*Workflow, error) {
	i := s.SelectedWorkflowIndex
	if i < 0 || i >= len(s.Workflows.Values) {
		return nil, apperrors.New(apperrors.CategoryConfig, "config.workflow",
			fmt.Errorf("selected workflow %d out of range (%d workflows)", i, len(s.Workflows.Values)))
	}
	return &s.Workflows.Values[i], nil
}

// Apply copies the selected workflow onto cfg.  Chain records are parsed and
// every malformed record is reported.
func (s *Settings) Apply(cfg *Config) error {
	wf, err := s.Workflow()
	if err != nil {
		return err
	}

	if s.ModelsDirectory != "" {
		cfg.ModelsDir = s.ModelsDirectory
	}
	cfg.Device = core.DeviceOptions{
		UseCPU:      s.UseCPU,
		UseFP16:     s.UseFP16,
		DeviceIndex: s.SelectedDeviceIndex,
	}

	switch wf.SelectedTabIndex {
	case 0:
		cfg.Mode = ModeFile
		cfg.InputPath = wf.InputFilePath
	case 1:
		cfg.Mode = ModeFolder
		cfg.InputPath = wf.InputFolderPath
	default:
		return apperrors.New(apperrors.CategoryConfig, "config.workflow",
			fmt.Errorf("unknown tab index %d", wf.SelectedTabIndex))
	}

	if wf.OutputFolder != "" {
		cfg.OutputFolder = wf.OutputFolder
	}
	if wf.OutputFilename != "" {
		cfg.OutputFilename = wf.OutputFilename
	}
	cfg.Overwrite = wf.OverwriteExistingFiles
	cfg.UpscaleImages = wf.UpscaleImages
	cfg.UpscaleArchives = wf.UpscaleArchives
	cfg.Format = wf.format()
	cfg.Quality = wf.LossyCompressionQuality
	cfg.Lossless = wf.UseLosslessCompression
	cfg.Geometry = wf.geometry()
	cfg.GrayscaleThreshold = wf.GrayscaleDetectionThreshold

	chains, err := ParseChains(wf.Chains.Values)
	if err != nil {
		return err
	}
	cfg.Chains = chains
	return nil
}

func (wf *Workflow) format() core.Format {
	switch {
	case wf.WebpSelected:
		return core.FormatWebP
	case wf.PngSelected:
		return core.FormatPNG
	case wf.AvifSelected:
		return core.FormatAVIF
	}
	return core.FormatJPEG
}

// geometry maps the mode switches; with none selected the image is fitted
// into the display device box.
func (wf *Workflow) geometry() core.Geometry {
	switch {
	case wf.ModeScaleSelected:
		return core.Geometry{Scale: wf.UpscaleScaleFactor}
	case wf.ModeWidthSelected:
		return core.Geometry{Width: wf.ResizeWidthAfterUpscale}
	case wf.ModeHeightSelected:
		return core.Geometry{Height: wf.ResizeHeightAfterUpscale}
	}
	return core.Geometry{Width: wf.DisplayDeviceWidth, Height: wf.DisplayDeviceHeight}
}

// ParseChains converts chain records in order, collecting every error.
func ParseChains(recs []ChainRecord) ([]core.Chain, error) {
	var result *multierror.Error
	chains := make([]core.Chain, 0, len(recs))
	for i, rec := range recs {
		c, err := ParseChain(rec)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("chain %d: %w", i, err))
			continue
		}
		chains = append(chains, c)
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "config.chains", err)
	}
	return chains, nil
}

// ParseChain converts one chain record.
func ParseChain(rec ChainRecord) (core.Chain, error) {
	minW, minH, err := parseResolution(rec.MinResolution)
	if err != nil {
		return core.Chain{}, fmt.Errorf("MinResolution: %w", err)
	}
	maxW, maxH, err := parseResolution(rec.MaxResolution)
	if err != nil {
		return core.Chain{}, fmt.Errorf("MaxResolution: %w", err)
	}
	model := rec.ModelFilePath
	if model == core.NoModel {
		model = ""
	}
	return core.Chain{
		MinWidth:     minW,
		MinHeight:    minH,
		MaxWidth:     maxW,
		MaxHeight:    maxH,
		Grayscale:    rec.IsGrayscale,
		Color:        rec.IsColor,
		MinScale:     rec.MinScaleFactor,
		MaxScale:     rec.MaxScaleFactor,
		ResizeWidth:  rec.ResizeWidthBeforeUpscale,
		ResizeHeight: rec.ResizeHeightBeforeUpscale,
		ResizeFactor: rec.ResizeFactorBeforeUpscale,
		AutoLevels:   rec.AutoAdjustLevels,
		ModelPath:    model,
		TileToken:    rec.ModelTileSize,
	}, nil
}

// parseResolution parses "WxH"; an empty string is 0x0.
func parseResolution(s string) (int, int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}
	parts := strings.Split(strings.ToLower(s), "x")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q is not WxH", apperrors.ErrInvalidChain, s)
	}
	w, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", apperrors.ErrInvalidChain, s, err)
	}
	h, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q: %v", apperrors.ErrInvalidChain, s, err)
	}
	if w < 0 || h < 0 {
		return 0, 0, fmt.Errorf("%w: %q is negative", apperrors.ErrInvalidChain, s)
	}
	return w, h, nil
}

// ValidateChains checks parsed rules for contradictory bounds.
func ValidateChains(chains []core.Chain) error {
	var result *multierror.Error
	for i, c := range chains {
		if c.MinWidth < 0 || c.MinHeight < 0 || c.MaxWidth < 0 || c.MaxHeight < 0 {
			result = multierror.Append(result, fmt.Errorf("chain %d: %w: negative resolution", i, apperrors.ErrInvalidChain))
		}
		if c.MaxWidth != 0 && c.MinWidth > c.MaxWidth || c.MaxHeight != 0 && c.MinHeight > c.MaxHeight {
			result = multierror.Append(result, fmt.Errorf("chain %d: %w: min resolution above max", i, apperrors.ErrInvalidChain))
		}
		if c.MinScale < 0 || c.MaxScale < 0 || c.MaxScale != 0 && c.MinScale > c.MaxScale {
			result = multierror.Append(result, fmt.Errorf("chain %d: %w: bad scale bounds", i, apperrors.ErrInvalidChain))
		}
		if c.ResizeWidth < 0 || c.ResizeHeight < 0 || c.ResizeFactor < 0 {
			result = multierror.Append(result, fmt.Errorf("chain %d: %w: negative pre-resize", i, apperrors.ErrInvalidChain))
		}
		if zeroTile(c.TileToken) {
			result = multierror.Append(result, fmt.Errorf("chain %d: %w: tile size %q must be positive", i, apperrors.ErrInvalidChain, c.TileToken))
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return apperrors.New(apperrors.CategoryConfig, "config.chains", err)
	}
	return nil
}

// zeroTile reports an explicit tile size of zero pixels.
func zeroTile(token string) bool {
	token = strings.TrimSpace(token)
	if token == "" || strings.Trim(token, "0123456789") != "" {
		return false
	}
	n, err := strconv.Atoi(token)
	return err == nil && n == 0
}
