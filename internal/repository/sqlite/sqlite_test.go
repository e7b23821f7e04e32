package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"detectserver/internal/dto"
	"detectserver/internal/model"

	"github.com/google/go-cmp/cmp"
)

// ========================================
// Helpers
// ========================================

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createUser(t *testing.T, repo *UserRepository, name string) *model.User {
	t.Helper()
	u := &model.User{Username: name, FullName: "Test " + name, PasswordHash: "hash"}
	if _, err := repo.Create(context.Background(), u); err != nil {
		t.Fatalf("Failed to create user %s: %v", name, err)
	}
	return u
}

func imageRecord(userID int64, runID string, objects int, at time.Time) *model.DetectionRecord {
	pt := 1.5
	return &model.DetectionRecord{
		UserID:                userID,
		RunID:                 runID,
		Kind:                  model.KindImage,
		ModelUsed:             "yolo11n.onnx",
		FileCount:             2,
		ConfThreshold:         0.25,
		DetectedObjectsCount:  objects,
		ProcessingTimeSeconds: &pt,
		FileNames:             []string{"a.jpg", "b.jpg"},
		OutputFiles:           []string{"detected_0.jpg", "detected_1.jpg"},
		CreatedAt:             at,
	}
}

// ========================================
// Migration Tests
// ========================================

func TestMigrationStatus_AllApplied(t *testing.T) {
	db := newTestDB(t)

	states, err := db.MigrationStatus(context.Background())
	if err != nil {
		t.Fatalf("MigrationStatus failed: %v", err)
	}
	if len(states) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(states))
	}
	for _, s := range states {
		if !s.Applied {
			t.Errorf("Migration %d (%s) not applied", s.Version, s.Path)
		}
	}
}

func TestMigrateDown_ThenUp(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	v, err := db.MigrateDown(ctx)
	if err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}
	if v != 2 {
		t.Errorf("Expected to roll back version 2, got %d", v)
	}

	applied, err := db.MigrateUp(ctx)
	if err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if diff := cmp.Diff([]int64{2}, applied); diff != "" {
		t.Errorf("MigrateUp versions mismatch (-want +got):\n%s", diff)
	}
}

// ========================================
// User Repository Tests
// ========================================

func TestUserRepository_CreateAndGet(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	u := createUser(t, repo, "alice")
	if u.ID == 0 {
		t.Fatal("Expected user id to be set")
	}

	byName, err := repo.GetByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	byID, err := repo.GetByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if byName.ID != byID.ID || byName.FullName != "Test alice" {
		t.Errorf("Unexpected users: %+v / %+v", byName, byID)
	}
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)

	createUser(t, repo, "bob")
	_, err := repo.Create(context.Background(), &model.User{Username: "bob", PasswordHash: "x"})
	if !errors.Is(err, model.ErrConflict) {
		t.Errorf("Expected ErrConflict, got %v", err)
	}
}

func TestUserRepository_NotFound(t *testing.T) {
	db := newTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	if _, err := repo.GetByUsername(ctx, "ghost"); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("GetByUsername: expected ErrNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, 42); !errors.Is(err, model.ErrNotFound) {
		t.Errorf("Delete: expected ErrNotFound, got %v", err)
	}
}

func TestUserRepository_DeleteCascadesHistory(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	records := NewDetectionRepository(db)
	ctx := context.Background()

	u := createUser(t, users, "carol")
	if _, err := records.Insert(ctx, imageRecord(u.ID, "run-1", 3, time.Now())); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := users.Delete(ctx, u.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	var count int
	if err := db.Conn().QueryRow(`SELECT COUNT(*) FROM detection_history`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected history to be cascaded, %d rows remain", count)
	}
}

// ========================================
// Detection Repository Tests
// ========================================

func TestDetectionRepository_InsertAndList(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	records := NewDetectionRepository(db)
	ctx := context.Background()

	u := createUser(t, users, "dave")
	base := time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

	rec := imageRecord(u.ID, "run-1", 4, base)
	if _, err := records.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := records.ListByUser(ctx, u.ID, dto.HistoryFilter{})
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(got))
	}
	if diff := cmp.Diff(*rec, got[0]); diff != "" {
		t.Errorf("Record mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectionRepository_NullProcessingTime(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	records := NewDetectionRepository(db)
	ctx := context.Background()

	u := createUser(t, users, "erin")
	rec := imageRecord(u.ID, "run-1", 1, time.Now())
	rec.ProcessingTimeSeconds = nil
	if _, err := records.Insert(ctx, rec); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := records.ListByUser(ctx, u.ID, dto.HistoryFilter{})
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if got[0].ProcessingTimeSeconds != nil {
		t.Errorf("Expected nil processing time, got %v", *got[0].ProcessingTimeSeconds)
	}
}

func TestDetectionRepository_RejectsInconsistentRecord(t *testing.T) {
	db := newTestDB(t)
	records := NewDetectionRepository(db)

	rec := imageRecord(1, "run-1", 1, time.Now())
	rec.OutputFiles = rec.OutputFiles[:1]
	if _, err := records.Insert(context.Background(), rec); !errors.Is(err, model.ErrValidation) {
		t.Errorf("Expected ErrValidation, got %v", err)
	}
}

func TestDetectionRepository_FilterOrderLimit(t *testing.T) {
	db := newTestDB(t)
	users := NewUserRepository(db)
	records := NewDetectionRepository(db)
	ctx := context.Background()

	u := createUser(t, users, "frank")
	other := createUser(t, users, "grace")
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		if _, err := records.Insert(ctx, imageRecord(u.ID, "img-"+string(rune('a'+i)), i, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	video := &model.DetectionRecord{
		UserID: u.ID, RunID: "vid", Kind: model.KindVideo, ModelUsed: "m", FileCount: 1,
		FileNames: []string{"clip.mp4"}, OutputFiles: []string{"clip_m_detected.mp4"},
		CreatedAt: base.Add(10 * time.Hour),
	}
	if _, err := records.Insert(ctx, video); err != nil {
		t.Fatalf("Insert video failed: %v", err)
	}
	if _, err := records.Insert(ctx, imageRecord(other.ID, "other", 9, base)); err != nil {
		t.Fatalf("Insert other failed: %v", err)
	}

	tests := []struct {
		name   string
		filter dto.HistoryFilter
		runIDs []string
	}{
		{"all newest first", dto.HistoryFilter{}, []string{"vid", "img-c", "img-b", "img-a"}},
		{"images only", dto.HistoryFilter{Kind: model.KindImage}, []string{"img-c", "img-b", "img-a"}},
		{"videos only", dto.HistoryFilter{Kind: model.KindVideo}, []string{"vid"}},
		{"limited", dto.HistoryFilter{Limit: 2}, []string{"vid", "img-c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := records.ListByUser(ctx, u.ID, tt.filter)
			if err != nil {
				t.Fatalf("ListByUser failed: %v", err)
			}
			var ids []string
			for _, r := range got {
				ids = append(ids, r.RunID)
			}
			if diff := cmp.Diff(tt.runIDs, ids); diff != "" {
				t.Errorf("Run ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
