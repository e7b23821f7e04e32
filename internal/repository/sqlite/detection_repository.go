package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"detectserver/internal/dto"
	"detectserver/internal/model"
)

// DetectionRepository implements repository.DetectionRepository for SQLite.
type DetectionRepository struct {
	db *DB
}

// NewDetectionRepository creates a new SQLite detection repository.
func NewDetectionRepository(db *DB) *DetectionRepository {
	return &DetectionRepository{db: db}
}

// Insert adds a new detection record to the database.
func (r *DetectionRepository) Insert(ctx context.Context, rec *model.DetectionRecord) (int64, error) {
	if err := rec.Validate(); err != nil {
		return 0, err
	}

	fileNames, err := json.Marshal(rec.FileNames)
	if err != nil {
		return 0, fmt.Errorf("failed to encode file names: %w", err)
	}
	outputFiles, err := json.Marshal(rec.OutputFiles)
	if err != nil {
		return 0, fmt.Errorf("failed to encode output files: %w", err)
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO detection_history (user_id, run_id, detection_type, model_used, file_count,
			conf_threshold, detected_objects_count, processing_time, file_names, output_files, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.UserID, rec.RunID, string(rec.Kind), rec.ModelUsed, rec.FileCount, rec.ConfThreshold,
		rec.DetectedObjectsCount, rec.ProcessingTimeSeconds, string(fileNames), string(outputFiles),
		rec.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert detection record: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read detection record id: %w", err)
	}
	rec.ID = id
	return id, nil
}

// ListByUser returns a user's records, newest first.
func (r *DetectionRepository) ListByUser(ctx context.Context, userID int64, filter dto.HistoryFilter) ([]model.DetectionRecord, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var query strings.Builder
	query.WriteString(`
		SELECT id, user_id, run_id, detection_type, model_used, file_count, conf_threshold,
			detected_objects_count, processing_time, file_names, output_files, created_at
		FROM detection_history WHERE user_id = ?`)
	args := []interface{}{userID}

	if filter.Kind != "" {
		query.WriteString(" AND detection_type = ?")
		args = append(args, string(filter.Kind))
	}
	query.WriteString(" ORDER BY created_at DESC, id DESC")
	if filter.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	rows, err := r.db.Conn().QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query detection history: %w", err)
	}
	defer rows.Close()

	records := []model.DetectionRecord{}
	for rows.Next() {
		var (
			rec         model.DetectionRecord
			kind        string
			procTime    sql.NullFloat64
			fileNames   string
			outputFiles string
		)
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.RunID, &kind, &rec.ModelUsed, &rec.FileCount,
			&rec.ConfThreshold, &rec.DetectedObjectsCount, &procTime, &fileNames, &outputFiles,
			&rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detection record: %w", err)
		}
		rec.Kind = model.MediaKind(kind)
		if procTime.Valid {
			v := procTime.Float64
			rec.ProcessingTimeSeconds = &v
		}
		if err := json.Unmarshal([]byte(fileNames), &rec.FileNames); err != nil {
			return nil, fmt.Errorf("failed to decode file names of record %d: %w", rec.ID, err)
		}
		if err := json.Unmarshal([]byte(outputFiles), &rec.OutputFiles); err != nil {
			return nil, fmt.Errorf("failed to decode output files of record %d: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detection history: %w", err)
	}

	return records, nil
}
