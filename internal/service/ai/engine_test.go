package ai

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"

	"github.com/google/go-cmp/cmp"
	"gocv.io/x/gocv"
)

// ========================================
// Fakes
// ========================================

type fakeModel struct {
	path   string
	dets   []model.Detection
	mu     sync.Mutex
	closed bool
}

func (m *fakeModel) Predict(frame gocv.Mat, threshold float64) ([]model.Detection, error) {
	return m.dets, nil
}

func (m *fakeModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *fakeModel) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type fakeLoader struct {
	mu     sync.Mutex
	loaded map[string]*fakeModel
	fail   map[string]bool
	opts   []LoadOptions
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{loaded: map[string]*fakeModel{}, fail: map[string]bool{}}
}

func (l *fakeLoader) Load(path string, opts LoadOptions) (Model, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts = append(l.opts, opts)
	if l.fail[filepath.Base(path)] {
		return nil, errors.New("corrupt model")
	}
	m := &fakeModel{path: path, dets: []model.Detection{
		{Box: image.Rect(0, 0, 5, 5), Confidence: 0.2, ClassID: 0, Label: filepath.Base(path)},
		{Box: image.Rect(1, 1, 6, 6), Confidence: 0.5, ClassID: 1, Label: filepath.Base(path)},
		{Box: image.Rect(2, 2, 7, 7), Confidence: 0.9, ClassID: 2, Label: filepath.Base(path)},
	}}
	l.loaded[filepath.Base(path)] = m
	return m, nil
}

// ========================================
// Helpers
// ========================================

func createModelsDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), []byte("weights"), 0644); err != nil {
			t.Fatalf("Failed to create %s: %v", n, err)
		}
	}
	return dir
}

func testDetectorConfig(modelsDir string) config.Detector {
	return config.Detector{
		DefaultConfThreshold: 0.25,
		ImageSize:            640,
		NMSThreshold:         0.45,
		ModelsDir:            modelsDir,
		DefaultModel:         "a.onnx",
		ModelExt:             ".onnx",
		Device:               "cpu",
		VideoCodec:           "MJPG",
		VideoExt:             ".avi",
	}
}

func newTestEngine(t *testing.T, loader *fakeLoader) *Engine {
	t.Helper()
	dir := createModelsDir(t, "a.onnx", "b.onnx", "broken.onnx", "notes.txt")
	e, err := NewEngine(testDetectorConfig(dir), logger.NewNop(), WithLoader(loader.Load))
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func testFrame(t *testing.T) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

// ========================================
// Engine Tests
// ========================================

func TestNewEngine_MissingModel(t *testing.T) {
	loader := newFakeLoader()
	cfg := testDetectorConfig(createModelsDir(t))

	_, err := NewEngine(cfg, logger.NewNop(), WithLoader(loader.Load))
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if len(loader.opts) != 0 {
		t.Errorf("Loader should not be called for a missing model")
	}
}

func TestEngine_InferFiltersByThreshold(t *testing.T) {
	e := newTestEngine(t, newFakeLoader())
	frame := testFrame(t)

	tests := []struct {
		threshold float64
		want      []float64
	}{
		{0, []float64{0.2, 0.5, 0.9}},
		{0.5, []float64{0.5, 0.9}},
		{0.91, nil},
		{1, nil},
	}
	for _, tt := range tests {
		dets, err := e.Infer(frame, tt.threshold)
		if err != nil {
			t.Fatalf("Infer(%v) failed: %v", tt.threshold, err)
		}
		var got []float64
		for _, d := range dets {
			if d.Confidence < tt.threshold {
				t.Errorf("Detection %v below threshold %v", d.Confidence, tt.threshold)
			}
			got = append(got, d.Confidence)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Infer(%v) confidences mismatch (-want +got):\n%s", tt.threshold, diff)
		}
	}
}

func TestEngine_InferRejectsBadInput(t *testing.T) {
	e := newTestEngine(t, newFakeLoader())

	if _, err := e.Infer(testFrame(t), 1.2); !errors.Is(err, model.ErrValidation) {
		t.Errorf("Expected ErrValidation for threshold 1.2, got %v", err)
	}
	empty := gocv.NewMat()
	defer empty.Close()
	if _, err := e.Infer(empty, 0.5); !errors.Is(err, model.ErrDecode) {
		t.Errorf("Expected ErrDecode for empty frame, got %v", err)
	}
}

func TestEngine_ChangeModelMissingKeepsPrevious(t *testing.T) {
	e := newTestEngine(t, newFakeLoader())

	err := e.ChangeModel("nope.onnx")
	if !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
	if e.ModelName() != "a.onnx" {
		t.Errorf("Expected a.onnx to stay active, got %s", e.ModelName())
	}
	dets, err := e.Infer(testFrame(t), 0)
	if err != nil {
		t.Fatalf("Infer after failed change: %v", err)
	}
	if dets[0].Label != "a.onnx" {
		t.Errorf("Inference served by %s, expected a.onnx", dets[0].Label)
	}
}

func TestEngine_ChangeModelLoadFailureKeepsPrevious(t *testing.T) {
	loader := newFakeLoader()
	loader.fail["broken.onnx"] = true
	e := newTestEngine(t, loader)

	if err := e.ChangeModel("broken.onnx"); err == nil {
		t.Fatal("Expected load failure")
	}
	if e.ModelName() != "a.onnx" {
		t.Errorf("Expected a.onnx to stay active, got %s", e.ModelName())
	}
	if loader.loaded["a.onnx"].isClosed() {
		t.Error("Previous model must not be released on failed change")
	}
}

func TestEngine_ChangeModelSwapsAndReleases(t *testing.T) {
	loader := newFakeLoader()
	e := newTestEngine(t, loader)

	if err := e.ChangeModel("b"); err != nil {
		t.Fatalf("ChangeModel failed: %v", err)
	}
	if e.ModelName() != "b.onnx" {
		t.Errorf("Expected b.onnx, got %s", e.ModelName())
	}
	if !loader.loaded["a.onnx"].isClosed() {
		t.Error("Previous model should be released after swap")
	}
	dets, err := e.Infer(testFrame(t), 0)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if dets[0].Label != "b.onnx" {
		t.Errorf("Inference served by %s, expected b.onnx", dets[0].Label)
	}
}

func TestEngine_ChangeModelAfterClose(t *testing.T) {
	loader := newFakeLoader()
	e := newTestEngine(t, loader)
	if err := e.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := e.ChangeModel("b"); !errors.Is(err, ErrEngineClosed) {
		t.Fatalf("Expected ErrEngineClosed, got %v", err)
	}
	if !loader.loaded["b.onnx"].isClosed() {
		t.Error("Model loaded after Close should be released")
	}
	if _, err := e.Infer(testFrame(t), 0); !errors.Is(err, ErrEngineClosed) {
		t.Errorf("Infer after Close: expected ErrEngineClosed, got %v", err)
	}
}

func TestEngine_ChangeModelRejectsPaths(t *testing.T) {
	e := newTestEngine(t, newFakeLoader())

	for _, name := range []string{"", "../a.onnx", "sub/a.onnx", ".."} {
		if err := e.ChangeModel(name); !errors.Is(err, model.ErrValidation) {
			t.Errorf("ChangeModel(%q): expected ErrValidation, got %v", name, err)
		}
	}
}

func TestEngine_ConcurrentInferAndChange(t *testing.T) {
	e := newTestEngine(t, newFakeLoader())
	frame := testFrame(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%4 == 0 {
				_ = e.ChangeModel([]string{"a.onnx", "b.onnx"}[i%8/4])
				return
			}
			if _, err := e.Infer(frame, 0.3); err != nil {
				t.Errorf("Infer failed: %v", err)
			}
		}(i)
	}
	wg.Wait()
}

func TestEngine_AvailableModels(t *testing.T) {
	e := newTestEngine(t, newFakeLoader())

	got, err := e.AvailableModels()
	if err != nil {
		t.Fatalf("AvailableModels failed: %v", err)
	}
	want := []string{"a.onnx", "b.onnx", "broken.onnx"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("AvailableModels mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_SelectDevice(t *testing.T) {
	tests := []struct {
		configured string
		probe      bool
		want       Device
	}{
		{"cpu", true, DeviceCPU},
		{"cuda", false, DeviceCUDA},
		{"auto", true, DeviceCUDA},
		{"auto", false, DeviceCPU},
	}
	for _, tt := range tests {
		loader := newFakeLoader()
		cfg := testDetectorConfig(createModelsDir(t, "a.onnx"))
		cfg.Device = tt.configured
		probe := tt.probe
		e, err := NewEngine(cfg, logger.NewNop(), WithLoader(loader.Load),
			WithAcceleratorProbe(func() bool { return probe }))
		if err != nil {
			t.Fatalf("NewEngine failed: %v", err)
		}
		if e.Device() != tt.want {
			t.Errorf("device(%s, probe=%v) = %s, expected %s", tt.configured, tt.probe, e.Device(), tt.want)
		}
		if loader.opts[0].Device != tt.want {
			t.Errorf("Loader got device %s, expected %s", loader.opts[0].Device, tt.want)
		}
		e.Close()
	}
}

// ========================================
// Labels Tests
// ========================================

func TestLoadLabels(t *testing.T) {
	dir := createModelsDir(t, "coco.onnx", "custom.onnx")
	if err := os.WriteFile(filepath.Join(dir, "custom.names"), []byte("helmet\n\nvest\n"), 0644); err != nil {
		t.Fatal(err)
	}

	def, err := LoadLabels(filepath.Join(dir, "coco.onnx"))
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}
	if len(def) != 80 || def.Name(0) != "person" {
		t.Errorf("Expected COCO labels, got %d starting with %q", len(def), def.Name(0))
	}

	custom, err := LoadLabels(filepath.Join(dir, "custom.onnx"))
	if err != nil {
		t.Fatalf("LoadLabels failed: %v", err)
	}
	if diff := cmp.Diff(Labels{"helmet", "vest"}, custom); diff != "" {
		t.Errorf("Custom labels mismatch (-want +got):\n%s", diff)
	}
	if custom.Name(7) != "class7" {
		t.Errorf("Expected synthetic name for unknown class, got %q", custom.Name(7))
	}
}
