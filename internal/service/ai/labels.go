package ai

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:embed coco.names
var cocoNames string

// Labels maps class ids to human readable names.
type Labels []string

// Name returns the label for a class id, or a synthetic one when unknown.
func (l Labels) Name(classID int) string {
	if classID >= 0 && classID < len(l) {
		return l[classID]
	}
	return fmt.Sprintf("class%d", classID)
}

func parseLabels(s string) Labels {
	var out Labels
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// DefaultLabels returns the 80 COCO class names.
func DefaultLabels() Labels {
	return parseLabels(cocoNames)
}

// LoadLabels reads "<model stem>.names" next to the model, falling back to COCO.
func LoadLabels(modelPath string) (Labels, error) {
	sidecar := strings.TrimSuffix(modelPath, filepath.Ext(modelPath)) + ".names"
	data, err := os.ReadFile(sidecar)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultLabels(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read labels %s: %w", sidecar, err)
	}
	labels := parseLabels(string(data))
	if len(labels) == 0 {
		return nil, fmt.Errorf("labels file %s is empty", sidecar)
	}
	return labels, nil
}
