package model

import (
	"fmt"
	"image"
	"time"
)

// MediaKind distinguishes image batches from single videos.
type MediaKind string

const (
	KindImage MediaKind = "image"
	KindVideo MediaKind = "video"
)

// ParseMediaKind accepts "image" or "video".
func ParseMediaKind(s string) (MediaKind, error) {
	switch MediaKind(s) {
	case KindImage, KindVideo:
		return MediaKind(s), nil
	}
	return "", fmt.Errorf("%w: unknown media kind %q", ErrValidation, s)
}

// Detection is one box produced by the model for one frame.
type Detection struct {
	Box        image.Rectangle `json:"box"`
	Confidence float64         `json:"confidence"`
	ClassID    int             `json:"class_id"`
	Label      string          `json:"label"`
}

// Progress is emitted by the pipeline while a run is in flight.
type Progress struct {
	RunID string    `json:"run_id"`
	Kind  MediaKind `json:"kind"`
	Stage Stage     `json:"stage"`
	Done  int       `json:"done"`
	Total int       `json:"total"`
	Error string    `json:"error,omitempty"`
}

// ProgressFunc receives progress updates. It must not block for long.
type ProgressFunc func(Progress)

// DetectionRequest describes one pipeline invocation.
type DetectionRequest struct {
	RunID               string
	Kind                MediaKind
	Items               []string
	ConfidenceThreshold float64
	OnProgress          ProgressFunc
}

// Validate checks the request shape before any media is touched.
func (r DetectionRequest) Validate() error {
	if r.ConfidenceThreshold < 0 || r.ConfidenceThreshold > 1 {
		return fmt.Errorf("%w: confidence threshold %v outside [0, 1]", ErrValidation, r.ConfidenceThreshold)
	}
	if len(r.Items) == 0 {
		return fmt.Errorf("%w: no media items", ErrValidation)
	}
	if r.Kind == KindVideo && len(r.Items) != 1 {
		return fmt.Errorf("%w: video requests take exactly one file, got %d", ErrValidation, len(r.Items))
	}
	if r.RunID == "" {
		return fmt.Errorf("%w: missing run id", ErrValidation)
	}
	return nil
}

// DetectionSummary is what a completed run returns.
type DetectionSummary struct {
	RunID                 string   `json:"run_id"`
	ItemCount             int      `json:"item_count"`
	DetectedObjectCount   int      `json:"detected_objects"`
	FramesProcessed       int      `json:"frames_processed,omitempty"`
	ProcessingTimeSeconds float64  `json:"processing_time"`
	OutputArtifactNames   []string `json:"output_names"`
}

// DetectionRecord is the persisted, immutable result of a successful run.
type DetectionRecord struct {
	ID                    int64     `json:"id"`
	UserID                int64     `json:"user_id"`
	RunID                 string    `json:"run_id"`
	Kind                  MediaKind `json:"detection_type"`
	ModelUsed             string    `json:"model_used"`
	FileCount             int       `json:"file_count"`
	ConfThreshold         float64   `json:"conf_threshold"`
	DetectedObjectsCount  int       `json:"detected_objects_count"`
	ProcessingTimeSeconds *float64  `json:"processing_time"`
	FileNames             []string  `json:"file_names"`
	OutputFiles           []string  `json:"output_files"`
	CreatedAt             time.Time `json:"created_at"`
}

// Validate enforces the name/count invariants of a record.
func (r DetectionRecord) Validate() error {
	switch r.Kind {
	case KindImage:
		if r.FileCount != len(r.FileNames) || r.FileCount != len(r.OutputFiles) {
			return fmt.Errorf("%w: image record has %d files, %d inputs, %d outputs",
				ErrValidation, r.FileCount, len(r.FileNames), len(r.OutputFiles))
		}
	case KindVideo:
		if r.FileCount != 1 || len(r.FileNames) != 1 || len(r.OutputFiles) != 1 {
			return fmt.Errorf("%w: video record must reference exactly one input and output", ErrValidation)
		}
	default:
		return fmt.Errorf("%w: unknown media kind %q", ErrValidation, r.Kind)
	}
	return nil
}

// UserStats are derived from a user's records on demand.
type UserStats struct {
	ImagesProcessed     int        `json:"images_processed"`
	VideosProcessed     int        `json:"videos_processed"`
	TotalDetections     int        `json:"total_detections"`
	TotalProcessingTime float64    `json:"total_processing_time"`
	LastDetection       *time.Time `json:"last_detection"`
}
