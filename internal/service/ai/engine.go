package ai

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"

	"gocv.io/x/gocv"
)

// ErrEngineClosed is returned by calls made after Close.
var ErrEngineClosed = errors.New("detection engine is closed")

// Device is the compute target a model is bound to.
type Device string

const (
	DeviceCPU  Device = "cpu"
	DeviceCUDA Device = "cuda"
)

// Model is a loaded detection network.
type Model interface {
	Predict(frame gocv.Mat, threshold float64) ([]model.Detection, error)
	Close() error
}

// LoadOptions are handed to a Loader for every model it loads.
type LoadOptions struct {
	Device       Device
	ImageSize    int
	NMSThreshold float64
	Labels       Labels
}

// Loader builds a Model from a file on disk.
type Loader func(path string, opts LoadOptions) (Model, error)

// Option customizes an Engine.
type Option func(*Engine)

// WithLoader replaces the gocv model loader.
func WithLoader(l Loader) Option {
	return func(e *Engine) { e.load = l }
}

// WithAcceleratorProbe replaces the check used when the device is "auto".
func WithAcceleratorProbe(probe func() bool) Option {
	return func(e *Engine) { e.probe = probe }
}

// Engine owns the active model. One Engine is shared by every request; forward
// passes are serialized because the underlying network keeps per-call state.
type Engine struct {
	cfg    config.Detector
	logger *logger.Logger
	load   Loader
	probe  func() bool
	device Device

	mu    sync.Mutex
	model Model
	path  string
}

// NewEngine selects a device and loads the configured default model.
func NewEngine(cfg config.Detector, logger *logger.Logger, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		logger: logger,
		load:   LoadYOLO,
		probe:  nvidiaPresent,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.device = e.selectDevice()

	path, err := e.resolve(cfg.DefaultModel)
	if err != nil {
		return nil, err
	}
	m, err := e.loadModel(path)
	if err != nil {
		return nil, err
	}
	e.model, e.path = m, path

	e.logger.Info("Detection model %s loaded on %s", filepath.Base(path), e.device)
	return e, nil
}

func (e *Engine) selectDevice() Device {
	switch e.cfg.Device {
	case string(DeviceCPU):
		return DeviceCPU
	case string(DeviceCUDA):
		return DeviceCUDA
	}
	if e.probe != nil && e.probe() {
		return DeviceCUDA
	}
	return DeviceCPU
}

func nvidiaPresent() bool {
	_, err := os.Stat("/proc/driver/nvidia/version")
	return err == nil
}

// resolve maps a model name to a file inside the models directory.
func (e *Engine) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || filepath.Base(name) != name || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid model name %q", model.ErrValidation, name)
	}
	if filepath.Ext(name) == "" {
		name += e.cfg.ModelExt
	}
	path := filepath.Join(e.cfg.ModelsDir, name)
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: model %s", model.ErrNotFound, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to stat model %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: model %s is a directory", model.ErrNotFound, path)
	}
	return path, nil
}

func (e *Engine) loadModel(path string) (Model, error) {
	labels, err := LoadLabels(path)
	if err != nil {
		return nil, err
	}
	m, err := e.load(path, LoadOptions{
		Device:       e.device,
		ImageSize:    e.cfg.ImageSize,
		NMSThreshold: e.cfg.NMSThreshold,
		Labels:       labels,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load model %s: %w", path, err)
	}
	return m, nil
}

// Infer runs the active model on frame. Every returned detection has
// confidence >= threshold.
func (e *Engine) Infer(frame gocv.Mat, threshold float64) ([]model.Detection, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: confidence threshold %v outside [0, 1]", model.ErrValidation, threshold)
	}
	if frame.Empty() {
		return nil, fmt.Errorf("%w: empty frame", model.ErrDecode)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil, ErrEngineClosed
	}

	dets, err := e.model.Predict(frame, threshold)
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	return ScoreFilter(dets, threshold), nil
}

// ChangeModel loads name from the models directory and swaps it in. On any
// failure the previous model stays active.
func (e *Engine) ChangeModel(name string) error {
	path, err := e.resolve(name)
	if err != nil {
		return err
	}
	m, err := e.loadModel(path)
	if err != nil {
		return err
	}

	e.mu.Lock()
	old := e.model
	if old == nil {
		e.mu.Unlock()
		m.Close()
		return ErrEngineClosed
	}
	e.model, e.path = m, path
	e.mu.Unlock()

	if err := old.Close(); err != nil {
		e.logger.Warning("Failed to release previous model: %v", err)
	}
	e.logger.Info("Detection model changed to %s", filepath.Base(path))
	return nil
}

// ModelName is the file name of the active model.
func (e *Engine) ModelName() string {
	return filepath.Base(e.ModelPath())
}

func (e *Engine) ModelPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.path
}

func (e *Engine) Device() Device {
	return e.device
}

// AvailableModels lists model files in the models directory, sorted by name.
func (e *Engine) AvailableModels() ([]string, error) {
	return ListModels(e.cfg.ModelsDir, e.cfg.ModelExt)
}

// ListModels returns the files in dir whose extension matches ext, sorted.
func ListModels(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read models directory: %w", err)
	}
	models := []string{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ext) {
			continue
		}
		models = append(models, entry.Name())
	}
	sort.Strings(models)
	return models, nil
}

// Close releases the active model.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model == nil {
		return nil
	}
	err := e.model.Close()
	e.model = nil
	return err
}
