package stats

import (
	"context"
	"fmt"

	"detectserver/internal/dto"
	"detectserver/internal/model"
	"detectserver/internal/repository"

	"github.com/samber/lo"
)

// Aggregator derives per-user statistics from persisted detection records.
// Nothing is cached; every call reflects the records as they are now.
type Aggregator struct {
	records repository.DetectionRepository
}

func NewAggregator(records repository.DetectionRepository) *Aggregator {
	return &Aggregator{records: records}
}

// Compute scans every record of userID once.
func (a *Aggregator) Compute(ctx context.Context, userID int64) (model.UserStats, error) {
	records, err := a.records.ListByUser(ctx, userID, dto.HistoryFilter{})
	if err != nil {
		return model.UserStats{}, fmt.Errorf("failed to load detection history: %w", err)
	}
	return Summarize(records), nil
}

// Summarize folds records into UserStats. Images are counted per file, videos
// per record. An empty slice yields zero stats.
func Summarize(records []model.DetectionRecord) model.UserStats {
	images := lo.Filter(records, func(r model.DetectionRecord, _ int) bool { return r.Kind == model.KindImage })
	byKind := lo.CountValuesBy(records, func(r model.DetectionRecord) model.MediaKind { return r.Kind })

	stats := model.UserStats{
		ImagesProcessed: lo.SumBy(images, func(r model.DetectionRecord) int { return r.FileCount }),
		VideosProcessed: byKind[model.KindVideo],
		TotalDetections: lo.SumBy(records, func(r model.DetectionRecord) int { return r.DetectedObjectsCount }),
		TotalProcessingTime: lo.SumBy(records, func(r model.DetectionRecord) float64 {
			return lo.FromPtr(r.ProcessingTimeSeconds)
		}),
	}

	if len(records) > 0 {
		latest := lo.MaxBy(records, func(a, b model.DetectionRecord) bool { return a.CreatedAt.After(b.CreatedAt) })
		last := latest.CreatedAt
		stats.LastDetection = &last
	}
	return stats
}
