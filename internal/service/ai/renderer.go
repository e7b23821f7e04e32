package ai

import (
	"fmt"
	"image"

	"detectserver/internal/model"

	"gocv.io/x/gocv"
)

// Renderer draws detections onto frames in place.
type Renderer struct {
	Thickness int
	FontScale float64
}

func NewRenderer() *Renderer {
	return &Renderer{Thickness: 2, FontScale: 0.5}
}

// Render draws a box and "<label> <confidence>" for every detection, using the
// run's palette for colors.
func (r *Renderer) Render(frame *gocv.Mat, detections []model.Detection, palette *Palette) error {
	for _, d := range detections {
		c := palette.Color(d.ClassID)
		if err := gocv.Rectangle(frame, d.Box, c, r.Thickness); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}
		if err := gocv.PutText(frame, labelText(d), labelOrigin(d.Box), gocv.FontHersheySimplex,
			r.FontScale, c, r.Thickness); err != nil {
			return fmt.Errorf("failed to draw text: %w", err)
		}
	}
	return nil
}

func labelText(d model.Detection) string {
	return fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
}

func labelOrigin(box image.Rectangle) image.Point {
	return image.Pt(box.Min.X, box.Min.Y-10)
}
