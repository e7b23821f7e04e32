package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/middleware"
	"detectserver/internal/model"
	"detectserver/internal/repository"
	"detectserver/internal/service/auth"
)

// StatsComputer is implemented by stats.Aggregator.
type StatsComputer interface {
	Compute(ctx context.Context, userID int64) (model.UserStats, error)
}

func parseHistoryFilter(r *http.Request) (dto.HistoryFilter, error) {
	q := r.URL.Query()
	filter := dto.HistoryFilter{Limit: dto.DefaultHistoryLimit}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, fmt.Errorf("%w: limit must be a positive integer", model.ErrValidation)
		}
		filter.Limit = limit
	}
	if raw := q.Get("type"); raw != "" {
		kind, err := model.ParseMediaKind(raw)
		if err != nil {
			return filter, err
		}
		filter.Kind = kind
	}
	return filter, nil
}

// HistoryHandler handles GET /detection/history?limit=&type=.
func HistoryHandler(records repository.DetectionRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			respondError(w, logger, auth.ErrInvalidToken)
			return
		}
		filter, err := parseHistoryFilter(r)
		if err != nil {
			respondError(w, logger, err)
			return
		}

		history, err := records.ListByUser(r.Context(), user.ID, filter)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, history)
	}
}

// StatsHandler handles GET /detection/stats.
func StatsHandler(stats StatsComputer, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			respondError(w, logger, auth.ErrInvalidToken)
			return
		}
		s, err := stats.Compute(r.Context(), user.ID)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, s)
	}
}
