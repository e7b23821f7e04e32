package repository

import (
	"context"

	"detectserver/internal/dto"
	"detectserver/internal/model"
)

// UserRepository defines the interface for account data operations.
type UserRepository interface {
	// Create operations
	Create(ctx context.Context, user *model.User) (int64, error)

	// Read operations
	GetByID(ctx context.Context, id int64) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)

	// Delete operations
	Delete(ctx context.Context, id int64) error
}

// DetectionRepository defines the interface for detection history operations.
// Records are immutable: there is no update, and deletion only happens by
// cascading from the owning user.
type DetectionRepository interface {
	// Create operations
	Insert(ctx context.Context, rec *model.DetectionRecord) (int64, error)

	// Read operations
	ListByUser(ctx context.Context, userID int64, filter dto.HistoryFilter) ([]model.DetectionRecord, error)
}
