package service

import (
	"context"
	"fmt"
	"io"
	"os"

	"detectserver/internal/logger"
	"detectserver/internal/model"
	"detectserver/internal/repository"
	"detectserver/internal/service/events"
	"detectserver/internal/service/storage"

	"github.com/benbjohnson/clock"
	"github.com/samber/lo"
)

// Runner executes detection runs.
type Runner interface {
	DetectImages(ctx context.Context, req model.DetectionRequest) (model.DetectionSummary, error)
	DetectVideo(ctx context.Context, req model.DetectionRequest) (model.DetectionSummary, error)
	RunDir(kind model.MediaKind, runID string) string
}

// ModelInfo names the model currently serving inference.
type ModelInfo interface {
	ModelName() string
}

// ProgressSink hands out per-user progress callbacks.
type ProgressSink interface {
	ProgressFor(userID int64) model.ProgressFunc
}

// Upload is one file received from a client.
type Upload struct {
	Name   string
	Reader io.Reader
}

// DetectionResult is what a successful detection call hands back to the client.
type DetectionResult struct {
	Record     model.DetectionRecord
	Summary    model.DetectionSummary
	OutputURLs []string
}

// Manager stages uploads, runs the pipeline, and persists exactly one record
// for every successful run.
type Manager struct {
	runner    Runner
	models    ModelInfo
	store     *storage.MediaStore
	records   repository.DetectionRepository
	publisher events.Publisher
	progress  ProgressSink
	clock     clock.Clock
	logger    *logger.Logger
}

func NewManager(runner Runner, models ModelInfo, store *storage.MediaStore, records repository.DetectionRepository,
	publisher events.Publisher, progress ProgressSink, c clock.Clock, logger *logger.Logger) *Manager {
	if c == nil {
		c = clock.New()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Manager{
		runner:    runner,
		models:    models,
		store:     store,
		records:   records,
		publisher: publisher,
		progress:  progress,
		clock:     c,
		logger:    logger,
	}
}

// DetectImages runs a batch of images for user.
func (m *Manager) DetectImages(ctx context.Context, user *model.User, uploads []Upload, threshold float64) (*DetectionResult, error) {
	if len(uploads) == 0 {
		return nil, fmt.Errorf("%w: no images uploaded", model.ErrValidation)
	}
	return m.run(ctx, user, model.KindImage, uploads, threshold)
}

// DetectVideo runs a single video for user.
func (m *Manager) DetectVideo(ctx context.Context, user *model.User, upload Upload, threshold float64) (*DetectionResult, error) {
	return m.run(ctx, user, model.KindVideo, []Upload{upload}, threshold)
}

func (m *Manager) run(ctx context.Context, user *model.User, kind model.MediaKind, uploads []Upload, threshold float64) (*DetectionResult, error) {
	if threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("%w: confidence threshold %v outside [0, 1]", model.ErrValidation, threshold)
	}

	runID := m.store.NewRunID()
	defer func() {
		if err := m.store.DiscardRun(kind, runID); err != nil {
			m.logger.Warning("Failed to discard staged uploads of run %s: %v", runID, err)
		}
	}()

	items := make([]string, 0, len(uploads))
	for _, up := range uploads {
		staged, err := m.store.Stage(kind, runID, up.Name, up.Reader)
		if err != nil {
			return nil, err
		}
		items = append(items, staged)
	}

	req := model.DetectionRequest{
		RunID:               runID,
		Kind:                kind,
		Items:               items,
		ConfidenceThreshold: threshold,
	}
	if m.progress != nil {
		req.OnProgress = m.progress.ProgressFor(user.ID)
	}

	modelName := m.models.ModelName()
	var (
		summary model.DetectionSummary
		err     error
	)
	if kind == model.KindVideo {
		summary, err = m.runner.DetectVideo(ctx, req)
	} else {
		summary, err = m.runner.DetectImages(ctx, req)
	}
	if err != nil {
		m.logger.Warning("Run %s for user %s failed: %v", runID, user.Username, err)
		return nil, err
	}

	processing := summary.ProcessingTimeSeconds
	record := model.DetectionRecord{
		UserID:                user.ID,
		RunID:                 runID,
		Kind:                  kind,
		ModelUsed:             modelName,
		FileCount:             summary.ItemCount,
		ConfThreshold:         threshold,
		DetectedObjectsCount:  summary.DetectedObjectCount,
		ProcessingTimeSeconds: &processing,
		FileNames:             lo.Map(uploads, func(u Upload, _ int) string { return storage.SanitizeName(u.Name) }),
		OutputFiles:           summary.OutputArtifactNames,
		CreatedAt:             m.clock.Now().UTC(),
	}
	if _, err := m.records.Insert(ctx, &record); err != nil {
		if rmErr := os.RemoveAll(m.runner.RunDir(kind, runID)); rmErr != nil {
			m.logger.Warning("Failed to remove outputs of unrecorded run %s: %v", runID, rmErr)
		}
		return nil, fmt.Errorf("failed to save detection record: %w", err)
	}

	if err := m.publisher.PublishRecord(ctx, record); err != nil {
		m.logger.Warning("Failed to publish detection event for run %s: %v", runID, err)
	}

	m.logger.Info("User %s: %s run %s recorded as #%d (%d objects)", user.Username, kind, runID, record.ID, record.DetectedObjectsCount)
	return &DetectionResult{
		Record:  record,
		Summary: summary,
		OutputURLs: lo.Map(summary.OutputArtifactNames, func(name string, _ int) string {
			return m.store.OutputURL(kind, runID, name)
		}),
	}, nil
}
