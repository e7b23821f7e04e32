package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadDetector_Defaults(t *testing.T) {
	for _, key := range []string{"DEFAULT_CONF_THRESHOLD", "IMGSZ", "NMS_THRESHOLD", "MODELS_DIR",
		"MODEL_NAME", "MODEL_EXT", "DEVICE", "VIDEO_CODEC", "VIDEO_EXT", "MAX_UPLOAD_MB"} {
		t.Setenv(key, "")
	}

	got := LoadDetector()
	want := Detector{
		DefaultConfThreshold: 0.25,
		ImageSize:            640,
		NMSThreshold:         0.45,
		ModelsDir:            "models",
		DefaultModel:         "yolo11n.onnx",
		ModelExt:             ".onnx",
		Device:               "auto",
		VideoCodec:           "mp4v",
		VideoExt:             ".mp4",
		MaxUploadMB:          512,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadDetector() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadDetector_Overrides(t *testing.T) {
	t.Setenv("DEFAULT_CONF_THRESHOLD", "0.5")
	t.Setenv("IMGSZ", "320")
	t.Setenv("DEVICE", "CUDA")

	got := LoadDetector()
	if got.DefaultConfThreshold != 0.5 {
		t.Errorf("Expected threshold 0.5, got %v", got.DefaultConfThreshold)
	}
	if got.ImageSize != 320 {
		t.Errorf("Expected imgsz 320, got %d", got.ImageSize)
	}
	if got.Device != "cuda" {
		t.Errorf("Expected device cuda, got %s", got.Device)
	}
}

func TestGetEnvHelpers_InvalidFallsBack(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_FLOAT", "nope")
	t.Setenv("X_DUR", "ten minutes")

	if got := getEnvAsInt("X_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt fallback = %d, expected 7", got)
	}
	if got := getEnvAsFloat("X_FLOAT", 0.1); got != 0.1 {
		t.Errorf("getEnvAsFloat fallback = %v, expected 0.1", got)
	}
	if got := getEnvAsDuration("X_DUR", time.Minute); got != time.Minute {
		t.Errorf("getEnvAsDuration fallback = %v, expected 1m", got)
	}
}

func TestGetEnvAsList(t *testing.T) {
	tests := []struct {
		value    string
		expected []string
	}{
		{"", []string{"d"}},
		{"a,b", []string{"a", "b"}},
		{" a , ,b ", []string{"a", "b"}},
		{" , ", []string{"d"}},
	}

	for _, tt := range tests {
		t.Setenv("X_LIST", tt.value)
		got := getEnvAsList("X_LIST", []string{"d"})
		if diff := cmp.Diff(tt.expected, got); diff != "" {
			t.Errorf("getEnvAsList(%q) mismatch (-want +got):\n%s", tt.value, diff)
		}
	}
}
