package dto

import "detectserver/internal/model"

// DefaultHistoryLimit matches the page size of the history endpoint.
const DefaultHistoryLimit = 50

// HistoryFilter narrows a user's detection history.
type HistoryFilter struct {
	Kind  model.MediaKind // empty means all kinds
	Limit int             // zero or negative means unlimited
}
