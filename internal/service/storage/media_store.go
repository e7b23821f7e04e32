package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

var (
	unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".bmp": true, ".webp": true, ".tif": true, ".tiff": true}
	videoExts = map[string]bool{".mp4": true, ".avi": true, ".mov": true, ".mkv": true, ".webm": true, ".m4v": true}
)

// MediaStore lays out uploads and annotated outputs on disk:
//
//	<uploads>/<images|videos>/<run>/<file>
//	<outputs>/<images|videos>/<run>/<file>
type MediaStore struct {
	uploadDir      string
	outputDir      string
	maxUploadBytes int64
	clock          clock.Clock
	logger         *logger.Logger
}

// NewMediaStore creates a store rooted at the configured upload and output directories.
func NewMediaStore(cfg *config.Config, logger *logger.Logger, c clock.Clock) *MediaStore {
	if c == nil {
		c = clock.New()
	}
	return &MediaStore{
		uploadDir:      cfg.UploadDirectory,
		outputDir:      cfg.OutputDirectory,
		maxUploadBytes: cfg.Detector.MaxUploadMB << 20,
		clock:          c,
		logger:         logger,
	}
}

func kindDir(kind model.MediaKind) string {
	if kind == model.KindVideo {
		return "videos"
	}
	return "images"
}

// NewRunID returns a fresh identifier for one detection call.
func (s *MediaStore) NewRunID() string {
	return uuid.NewString()
}

// StagingDir is where uploads of a run are kept until the run ends.
func (s *MediaStore) StagingDir(kind model.MediaKind, runID string) string {
	return filepath.Join(s.uploadDir, kindDir(kind), runID)
}

// OutputRoot is the parent of every run's output directory for kind.
func (s *MediaStore) OutputRoot(kind model.MediaKind) string {
	return filepath.Join(s.outputDir, kindDir(kind))
}

// OutputURL is the public path of an annotated artifact.
func (s *MediaStore) OutputURL(kind model.MediaKind, runID, name string) string {
	return path.Join("/static/outputs", kindDir(kind), runID, name)
}

// SanitizeName strips directories and characters unsafe for file names.
func SanitizeName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimLeft(name, ".")
	if name == "" || name == "_" {
		return "upload"
	}
	return name
}

// CheckExtension reports whether name looks like media of the given kind.
func CheckExtension(kind model.MediaKind, name string) error {
	ext := strings.ToLower(filepath.Ext(name))
	allowed := imageExts
	if kind == model.KindVideo {
		allowed = videoExts
	}
	if !allowed[ext] {
		return fmt.Errorf("%w: %s is not a supported %s file", model.ErrValidation, name, kind)
	}
	return nil
}

// Stage copies an upload into the run's staging directory and returns its path.
// Uploads larger than the configured limit are rejected and removed.
func (s *MediaStore) Stage(kind model.MediaKind, runID, name string, r io.Reader) (string, error) {
	if err := CheckExtension(kind, name); err != nil {
		return "", err
	}

	dir := s.StagingDir(kind, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}

	clean := SanitizeName(name)
	target := filepath.Join(dir, clean)
	for i := 1; fileExists(target); i++ {
		target = filepath.Join(dir, fmt.Sprintf("%d_%s", i, clean))
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create staged file: %w", err)
	}

	src := r
	if s.maxUploadBytes > 0 {
		src = io.LimitReader(r, s.maxUploadBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr == nil && closeErr == nil && s.maxUploadBytes > 0 && n > s.maxUploadBytes {
		copyErr = fmt.Errorf("%w: %s exceeds %d MB", model.ErrValidation, name, s.maxUploadBytes>>20)
	}
	if err := multierr.Combine(copyErr, closeErr); err != nil {
		os.Remove(target)
		return "", err
	}
	return target, nil
}

// DiscardRun removes every staged upload of a run.
func (s *MediaStore) DiscardRun(kind model.MediaKind, runID string) error {
	if runID == "" {
		return nil
	}
	return os.RemoveAll(s.StagingDir(kind, runID))
}

// CleanupStaging removes run staging directories last modified before the
// retention window. It returns how many were removed.
func (s *MediaStore) CleanupStaging(retention time.Duration) (int, error) {
	cutoff := s.clock.Now().Add(-retention)
	removed := 0
	var errs error

	for _, kind := range []model.MediaKind{model.KindImage, model.KindVideo} {
		root := filepath.Join(s.uploadDir, kindDir(kind))
		entries, err := os.ReadDir(root)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if info.ModTime().After(cutoff) {
				continue
			}
			if err := os.RemoveAll(filepath.Join(root, entry.Name())); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			removed++
		}
	}

	if removed > 0 {
		s.logger.Info("Removed %d stale staging director(ies)", removed)
	}
	return removed, errs
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
