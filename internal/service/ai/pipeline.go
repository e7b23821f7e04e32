package ai

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"detectserver/internal/config"
	"detectserver/internal/logger"
	"detectserver/internal/model"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// videoProgressEvery is how many frames pass between progress reports.
const videoProgressEvery = 100

// Detector is the slice of Engine the pipeline needs.
type Detector interface {
	Infer(frame gocv.Mat, threshold float64) ([]model.Detection, error)
	ModelName() string
}

// PipelineOption customizes a Pipeline.
type PipelineOption func(*Pipeline)

func WithVideoIO(v VideoIO) PipelineOption {
	return func(p *Pipeline) { p.video = v }
}

func WithClock(c clock.Clock) PipelineOption {
	return func(p *Pipeline) { p.clock = c }
}

// WithPaletteFactory replaces how a fresh per-run palette is made.
func WithPaletteFactory(f func() *Palette) PipelineOption {
	return func(p *Pipeline) { p.newPalette = f }
}

// Pipeline runs image batches and videos through a Detector and a Renderer and
// writes the annotated results under run-scoped output directories. It never
// persists anything.
type Pipeline struct {
	detector   Detector
	renderer   *Renderer
	video      VideoIO
	clock      clock.Clock
	newPalette func() *Palette
	cfg        config.Detector
	imageDir   string
	videoDir   string
	logger     *logger.Logger
}

// NewPipeline writes image runs under imageDir/<run> and video runs under videoDir/<run>.
func NewPipeline(detector Detector, cfg config.Detector, imageDir, videoDir string,
	logger *logger.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		detector:   detector,
		renderer:   NewRenderer(),
		video:      GocvVideoIO{},
		clock:      clock.New(),
		newPalette: NewPalette,
		cfg:        cfg,
		imageDir:   imageDir,
		videoDir:   videoDir,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunDir is where a run's artifacts are written.
func (p *Pipeline) RunDir(kind model.MediaKind, runID string) string {
	if kind == model.KindVideo {
		return filepath.Join(p.videoDir, runID)
	}
	return filepath.Join(p.imageDir, runID)
}

func report(req model.DetectionRequest, stage model.Stage, done, total int, err error) {
	if req.OnProgress == nil {
		return
	}
	ev := model.Progress{RunID: req.RunID, Kind: req.Kind, Stage: stage, Done: done, Total: total}
	if err != nil {
		ev.Error = err.Error()
	}
	req.OnProgress(ev)
}

// DetectImages annotates every image of the request and writes detected_<i>.jpg
// in input order. Any unreadable image fails the whole batch and removes
// everything already written for the run.
func (p *Pipeline) DetectImages(ctx context.Context, req model.DetectionRequest) (summary model.DetectionSummary, err error) {
	req.Kind = model.KindImage
	if err := req.Validate(); err != nil {
		return model.DetectionSummary{}, err
	}

	start := p.clock.Now()
	total := len(req.Items)
	outDir := p.RunDir(model.KindImage, req.RunID)

	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(outDir); rmErr != nil {
				p.logger.Warning("Failed to remove partial output %s: %v", outDir, rmErr)
			}
			report(req, model.StageFailed, 0, total, err)
			summary = model.DetectionSummary{}
			return
		}
		report(req, model.StageCompleted, total, total, nil)
	}()

	report(req, model.StageIdle, 0, total, nil)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return summary, fmt.Errorf("%w: failed to create output directory: %v", model.ErrEncode, err)
	}

	palette := p.newPalette()
	outputs := make([]string, 0, total)
	objects := 0

	for i, path := range req.Items {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		step := func(stage model.Stage) { report(req, stage, i, total, nil) }
		count, name, err := p.detectImage(i, path, outDir, req.ConfidenceThreshold, palette, step)
		if err != nil {
			return summary, err
		}
		objects += count
		outputs = append(outputs, name)
	}

	summary = model.DetectionSummary{
		RunID:                 req.RunID,
		ItemCount:             total,
		DetectedObjectCount:   objects,
		ProcessingTimeSeconds: p.clock.Since(start).Seconds(),
		OutputArtifactNames:   outputs,
	}
	p.logger.Info("Run %s: %d image(s), %d object(s) in %.2fs", req.RunID, total, objects, summary.ProcessingTimeSeconds)
	return summary, nil
}

// detectImage decodes, annotates and writes one image, calling step as it
// enters each stage.
func (p *Pipeline) detectImage(i int, path, outDir string, threshold float64, palette *Palette, step func(model.Stage)) (int, string, error) {
	step(model.StageDecoding)
	if _, err := os.Stat(path); err != nil {
		return 0, "", fmt.Errorf("%w: %s: %v", model.ErrDecode, filepath.Base(path), err)
	}
	img := gocv.IMRead(path, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return 0, "", fmt.Errorf("%w: %s is not a readable image", model.ErrDecode, filepath.Base(path))
	}

	step(model.StageInferring)
	dets, err := p.detector.Infer(img, threshold)
	if err != nil {
		return 0, "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	step(model.StageRendering)
	if err := p.renderer.Render(&img, dets, palette); err != nil {
		return 0, "", fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	step(model.StageWriting)
	name := fmt.Sprintf("detected_%d.jpg", i)
	if !gocv.IMWrite(filepath.Join(outDir, name), img) {
		return 0, "", fmt.Errorf("%w: failed to write %s", model.ErrEncode, name)
	}
	return len(dets), name, nil
}

// VideoOutputName is "<input stem>_<model stem>_detected<ext>".
func VideoOutputName(input, modelName, ext string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	modelStem := strings.TrimSuffix(modelName, filepath.Ext(modelName))
	return fmt.Sprintf("%s_%s_detected%s", stem, modelStem, ext)
}

// DetectVideo annotates every frame of one video and encodes the result with
// the source's frame rate and dimensions. Decoder and encoder are released on
// every exit path.
func (p *Pipeline) DetectVideo(ctx context.Context, req model.DetectionRequest) (summary model.DetectionSummary, err error) {
	req.Kind = model.KindVideo
	if err := req.Validate(); err != nil {
		return model.DetectionSummary{}, err
	}

	start := p.clock.Now()
	input := req.Items[0]
	outDir := p.RunDir(model.KindVideo, req.RunID)
	total := 0

	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(outDir); rmErr != nil {
				p.logger.Warning("Failed to remove partial output %s: %v", outDir, rmErr)
			}
			report(req, model.StageFailed, 0, total, err)
			summary = model.DetectionSummary{}
			return
		}
		report(req, model.StageCompleted, summary.FramesProcessed, summary.FramesProcessed, nil)
	}()

	report(req, model.StageIdle, 0, 0, nil)
	report(req, model.StageDecoding, 0, 0, nil)
	src, err := p.video.OpenSource(input)
	if err != nil {
		return summary, fmt.Errorf("%w: cannot open video %s: %v", model.ErrDecode, filepath.Base(input), err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(src))

	fps := src.FPS()
	width, height := src.Size()
	total = src.FrameCount()
	if width <= 0 || height <= 0 {
		return summary, fmt.Errorf("%w: video %s reports size %dx%d", model.ErrDecode, filepath.Base(input), width, height)
	}
	if fps <= 0 {
		p.logger.Warning("Video %s reports fps %v, assuming 25", filepath.Base(input), fps)
		fps = 25
	}
	p.logger.Info("Run %s: video %s %dx%d @ %.2f fps, %d frame(s)", req.RunID, filepath.Base(input), width, height, fps, total)

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return summary, fmt.Errorf("%w: failed to create output directory: %v", model.ErrEncode, err)
	}
	name := VideoOutputName(input, p.detector.ModelName(), p.cfg.VideoExt)
	sink, err := p.video.CreateSink(filepath.Join(outDir, name), p.cfg.VideoCodec, fps, width, height)
	if err != nil {
		return summary, fmt.Errorf("%w: cannot create %s: %v", model.ErrEncode, name, err)
	}
	defer multierr.AppendInvoke(&err, multierr.Close(sink))

	palette := p.newPalette()
	frame := gocv.NewMat()
	defer frame.Close()

	frames, objects := 0, 0
	for src.Read(&frame) {
		if frame.Empty() {
			break
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		dets, err := p.detector.Infer(frame, req.ConfidenceThreshold)
		if err != nil {
			return summary, fmt.Errorf("frame %d: %w", frames, err)
		}
		if err := p.renderer.Render(&frame, dets, palette); err != nil {
			return summary, fmt.Errorf("frame %d: %w", frames, err)
		}
		if err := sink.Write(frame); err != nil {
			return summary, fmt.Errorf("%w: frame %d: %v", model.ErrEncode, frames, err)
		}

		frames++
		objects += len(dets)
		if frames%videoProgressEvery == 0 {
			p.logger.Info("Run %s: processed %d/%d frames", req.RunID, frames, total)
			report(req, model.StageInferring, frames, total, nil)
		}
	}
	if frames == 0 {
		return summary, fmt.Errorf("%w: no frames decoded from %s", model.ErrDecode, filepath.Base(input))
	}
	report(req, model.StageWriting, frames, total, nil)

	summary = model.DetectionSummary{
		RunID:                 req.RunID,
		ItemCount:             1,
		DetectedObjectCount:   objects,
		FramesProcessed:       frames,
		ProcessingTimeSeconds: p.clock.Since(start).Seconds(),
		OutputArtifactNames:   []string{name},
	}
	p.logger.Info("Run %s: video done, %d frame(s), %d object(s) in %.2fs", req.RunID, frames, objects, summary.ProcessingTimeSeconds)
	return summary, nil
}
