package handler

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"detectserver/internal/config"
	"detectserver/internal/dto"
	"detectserver/internal/logger"
	"detectserver/internal/model"
)

// logFiles maps the {level} path segment to its log file.
var logFiles = map[string]string{
	"info":    "info.log",
	"warning": "warning.log",
	"error":   "error.log",
}

func logFileFor(r *http.Request) (string, error) {
	name, ok := logFiles[r.PathValue("level")]
	if !ok {
		return "", fmt.Errorf("%w: unknown log level %q", model.ErrNotFound, r.PathValue("level"))
	}
	return name, nil
}

// ShowLogsHandler serves GET /logs/{level} as text/plain.
func ShowLogsHandler(cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := logFileFor(r)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		filePath := filepath.Join(cfg.LogDirectory, name)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			respondJSON(w, http.StatusNotFound, dto.ErrorResponse{Detail: "Log file not found: " + name})
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		http.ServeFile(w, r, filePath)
	}
}

// ClearLogsHandler truncates the log file of POST /logs/{level}/clear.
func ClearLogsHandler(logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := logFileFor(r)
		if err != nil {
			respondError(w, logger, err)
			return
		}
		if err := logger.CleanLogs(name); err != nil {
			respondError(w, logger, err)
			return
		}
		respondJSON(w, http.StatusOK, dto.MessageResponse{Message: name + " cleared"})
	}
}
