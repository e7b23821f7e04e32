package ai

import (
	"image"
	"testing"

	"detectserver/internal/model"

	"gocv.io/x/gocv"
)

// ========================================
// Palette Tests
// ========================================

func TestPalette_StablePerClass(t *testing.T) {
	p := NewSeededPalette(7)

	first := p.Color(3)
	p.Color(1)
	p.Color(9)
	if again := p.Color(3); again != first {
		t.Errorf("Class 3 changed color within a run: %v -> %v", first, again)
	}
	if p.Len() != 3 {
		t.Errorf("Expected 3 assigned classes, got %d", p.Len())
	}
}

func TestPalette_SeededIsDeterministic(t *testing.T) {
	a, b := NewSeededPalette(42), NewSeededPalette(42)
	for _, id := range []int{0, 5, 2} {
		if a.Color(id) != b.Color(id) {
			t.Errorf("Same seed produced different colors for class %d", id)
		}
	}
}

func TestPalette_RunsAreIndependent(t *testing.T) {
	a, b := NewSeededPalette(1), NewSeededPalette(2)
	a.Color(0)
	if b.Len() != 0 {
		t.Error("Assigning in one palette must not affect another")
	}
}

// ========================================
// Renderer Tests
// ========================================

func TestLabelText(t *testing.T) {
	got := labelText(model.Detection{Label: "dog", Confidence: 0.876})
	if got != "dog 0.88" {
		t.Errorf("labelText = %q, expected %q", got, "dog 0.88")
	}
}

func TestLabelOrigin(t *testing.T) {
	if got := labelOrigin(image.Rect(10, 40, 50, 80)); got != image.Pt(10, 30) {
		t.Errorf("labelOrigin = %v, expected (10,30)", got)
	}
}

func TestRenderer_DrawsInPlace(t *testing.T) {
	frame := blankFrame(100, 100)
	defer frame.Close()

	dets := []model.Detection{{Box: image.Rect(20, 30, 60, 80), Confidence: 0.9, ClassID: 0, Label: "person"}}
	palette := NewSeededPalette(3)

	if err := NewRenderer().Render(&frame, dets, palette); err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	c := palette.Color(0)
	px := frame.GetVecbAt(30, 20) // top-left corner of the box, BGR order
	if px[0] != c.B || px[1] != c.G || px[2] != c.R {
		t.Errorf("Box corner pixel = %v, expected BGR of %v", px, c)
	}
	if inside := frame.GetVecbAt(55, 40); inside[0] != 0 || inside[1] != 0 || inside[2] != 0 {
		t.Errorf("Box interior should stay untouched, got %v", inside)
	}
}

func TestRenderer_NoDetectionsLeavesFrame(t *testing.T) {
	frame := blankFrame(10, 10)
	defer frame.Close()

	if err := NewRenderer().Render(&frame, nil, NewPalette()); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if px := frame.GetVecbAt(5, 5); px[0] != 0 || px[1] != 0 || px[2] != 0 {
		t.Errorf("Frame changed without detections: %v", px)
	}
}

func blankFrame(rows, cols int) gocv.Mat {
	return gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), rows, cols, gocv.MatTypeCV8UC3)
}
