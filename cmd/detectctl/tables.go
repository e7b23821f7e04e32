package main

import (
	"fmt"
	"strings"
	"time"

	"detectserver/internal/model"
	"detectserver/internal/repository/sqlite"

	"github.com/jedib0t/go-pretty/v6/table"
)

func renderMigrations(states []sqlite.MigrationState) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Version", "Migration", "Applied"})
	for _, s := range states {
		applied := "no"
		if s.Applied {
			applied = "yes"
		}
		t.AppendRow(table.Row{s.Version, s.Path, applied})
	}
	return t.Render()
}

func renderStats(user *model.User, s model.UserStats) string {
	last := "never"
	if s.LastDetection != nil {
		last = s.LastDetection.Format(time.RFC3339)
	}
	t := table.NewWriter()
	t.SetTitle("Statistics for " + user.Username)
	t.AppendRows([]table.Row{
		{"Images processed", s.ImagesProcessed},
		{"Videos processed", s.VideosProcessed},
		{"Total detections", s.TotalDetections},
		{"Total processing time", fmt.Sprintf("%.2fs", s.TotalProcessingTime)},
		{"Last detection", last},
	})
	return t.Render()
}

func renderHistory(records []model.DetectionRecord) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"#", "Created", "Type", "Model", "Files", "Objects", "Time", "Outputs"})
	for _, r := range records {
		elapsed := "-"
		if r.ProcessingTimeSeconds != nil {
			elapsed = fmt.Sprintf("%.2fs", *r.ProcessingTimeSeconds)
		}
		t.AppendRow(table.Row{
			r.ID,
			r.CreatedAt.Format(time.RFC3339),
			r.Kind,
			r.ModelUsed,
			r.FileCount,
			r.DetectedObjectsCount,
			elapsed,
			strings.Join(r.OutputFiles, ", "),
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "", "", fmt.Sprintf("%d record(s)", len(records))})
	return t.Render()
}

func renderModels(names []string, defaultModel string) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"Model", "Default"})
	for _, n := range names {
		mark := ""
		if n == defaultModel {
			mark = "*"
		}
		t.AppendRow(table.Row{n, mark})
	}
	return t.Render()
}
