package handler

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/middleware"
	"detectserver/internal/model"
	"detectserver/internal/service"
	"detectserver/internal/service/ai"
	"detectserver/internal/service/auth"

	"go.uber.org/multierr"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temp files.
const multipartMemory = 32 << 20

// DetectionRunner is implemented by service.Manager.
type DetectionRunner interface {
	DetectImages(ctx context.Context, user *model.User, uploads []service.Upload, threshold float64) (*service.DetectionResult, error)
	DetectVideo(ctx context.Context, user *model.User, upload service.Upload, threshold float64) (*service.DetectionResult, error)
}

// ModelCatalog is implemented by ai.Engine.
type ModelCatalog interface {
	ModelName() string
	Device() ai.Device
	AvailableModels() ([]string, error)
	ChangeModel(name string) error
}

// parseThreshold reads conf_threshold, falling back to def when absent.
func parseThreshold(r *http.Request, def float64) (float64, error) {
	raw := strings.TrimSpace(r.FormValue("conf_threshold"))
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v < 0 || v > 1 {
		return 0, fmt.Errorf("%w: conf_threshold must be a number in [0, 1]", model.ErrValidation)
	}
	return v, nil
}

// parseUpload limits the body and parses the multipart form. It writes the
// error response itself and reports whether the request can continue.
func parseUpload(w http.ResponseWriter, r *http.Request, cfg config.Detector, logger *logger.Logger) bool {
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadMB<<20)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondJSON(w, http.StatusRequestEntityTooLarge, dto.ErrorResponse{
				Detail: fmt.Sprintf("Upload exceeds %d MB", cfg.MaxUploadMB),
			})
			return false
		}
		respondError(w, logger, fmt.Errorf("%w: invalid multipart form: %v", model.ErrValidation, err))
		return false
	}
	return true
}

func openUploads(headers []*multipart.FileHeader) ([]service.Upload, func() error, error) {
	uploads := make([]service.Upload, 0, len(headers))
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() error {
		var err error
		for _, f := range files {
			err = multierr.Append(err, f.Close())
		}
		return err
	}
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open upload %s: %w", fh.Filename, err)
		}
		files = append(files, f)
		uploads = append(uploads, service.Upload{Name: fh.Filename, Reader: f})
	}
	return uploads, closeAll, nil
}

// DetectPictureHandler handles POST /yolo/detect_picture.
func DetectPictureHandler(runner DetectionRunner, cfg config.Detector, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			respondError(w, logger, auth.ErrInvalidToken)
			return
		}
		if !parseUpload(w, r, cfg, logger) {
			return
		}
		defer r.MultipartForm.RemoveAll()

		threshold, err := parseThreshold(r, cfg.DefaultConfThreshold)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		headers := r.MultipartForm.File["files"]
		if len(headers) == 0 {
			respondError(w, logger, fmt.Errorf("%w: no files uploaded", model.ErrValidation))
			return
		}
		uploads, closeAll, err := openUploads(headers)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		defer closeAll()

		res, err := runner.DetectImages(r.Context(), user, uploads, threshold)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, dto.DetectPictureResponse{
			Message:         fmt.Sprintf("Processed %d image(s)", res.Record.FileCount),
			RunID:           res.Record.RunID,
			OutputImages:    res.Record.OutputFiles,
			OutputURLs:      res.OutputURLs,
			DetectedObjects: res.Record.DetectedObjectsCount,
			ProcessingTime:  res.Summary.ProcessingTimeSeconds,
			RecordID:        res.Record.ID,
		})
	}
}

// DetectVideoHandler handles POST /yolo/detect_video.
func DetectVideoHandler(runner DetectionRunner, cfg config.Detector, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			respondError(w, logger, auth.ErrInvalidToken)
			return
		}
		if !parseUpload(w, r, cfg, logger) {
			return
		}
		defer r.MultipartForm.RemoveAll()

		threshold, err := parseThreshold(r, cfg.DefaultConfThreshold)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		headers := r.MultipartForm.File["file"]
		if len(headers) != 1 {
			respondError(w, logger, fmt.Errorf("%w: exactly one video file is required", model.ErrValidation))
			return
		}
		uploads, closeAll, err := openUploads(headers)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		defer closeAll()

		res, err := runner.DetectVideo(r.Context(), user, uploads[0], threshold)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		resp := dto.DetectVideoResponse{
			Message:         "Video processed",
			RunID:           res.Record.RunID,
			DetectedObjects: res.Record.DetectedObjectsCount,
			FramesProcessed: res.Summary.FramesProcessed,
			ProcessingTime:  res.Summary.ProcessingTimeSeconds,
			RecordID:        res.Record.ID,
		}
		if len(res.Record.OutputFiles) > 0 {
			resp.OutputVideo = res.Record.OutputFiles[0]
		}
		if len(res.OutputURLs) > 0 {
			resp.OutputURL = res.OutputURLs[0]
		}
		respondJSON(w, http.StatusOK, resp)
	}
}

// ChangeModelHandler handles POST /yolo/change_model with form field model_path.
func ChangeModelHandler(models ModelCatalog, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSpace(r.FormValue("model_path"))
		if name == "" {
			respondError(w, logger, fmt.Errorf("%w: model_path is required", model.ErrValidation))
			return
		}
		if err := models.ChangeModel(name); err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, dto.MessageResponse{Message: "Model changed to " + models.ModelName()})
	}
}

// AvailableModelsHandler handles GET /yolo/available_models.
func AvailableModelsHandler(models ModelCatalog, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := models.AvailableModels()
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, dto.ModelsResponse{
			Models:       names,
			CurrentModel: models.ModelName(),
			Device:       string(models.Device()),
		})
	}
}

// HealthHandler handles GET /health.
func HealthHandler(models ModelCatalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, dto.HealthResponse{
			Status: "ok",
			Model:  models.ModelName(),
			Device: string(models.Device()),
		})
	}
}
