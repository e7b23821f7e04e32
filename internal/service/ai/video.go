package ai

import (
	"fmt"

	"gocv.io/x/gocv"
)

// FrameSource yields decoded frames of one video.
type FrameSource interface {
	Read(frame *gocv.Mat) bool
	FPS() float64
	Size() (width, height int)
	FrameCount() int
	Close() error
}

// FrameSink encodes frames into one output video.
type FrameSink interface {
	Write(frame gocv.Mat) error
	Close() error
}

// VideoIO opens decoders and encoders.
type VideoIO interface {
	OpenSource(path string) (FrameSource, error)
	CreateSink(path, codec string, fps float64, width, height int) (FrameSink, error)
}

// GocvVideoIO backs VideoIO with OpenCV's VideoCapture and VideoWriter.
type GocvVideoIO struct{}

func (GocvVideoIO) OpenSource(path string) (FrameSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, err
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("cannot open %s", path)
	}
	return &captureSource{capture: capture}, nil
}

func (GocvVideoIO) CreateSink(path, codec string, fps float64, width, height int) (FrameSink, error) {
	writer, err := gocv.VideoWriterFile(path, codec, fps, width, height, true)
	if err != nil {
		return nil, err
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, fmt.Errorf("cannot open encoder %s for %s", codec, path)
	}
	return writer, nil
}

type captureSource struct {
	capture *gocv.VideoCapture
}

func (c *captureSource) Read(frame *gocv.Mat) bool {
	return c.capture.Read(frame)
}

func (c *captureSource) FPS() float64 {
	return c.capture.Get(gocv.VideoCaptureFPS)
}

func (c *captureSource) Size() (int, int) {
	return int(c.capture.Get(gocv.VideoCaptureFrameWidth)), int(c.capture.Get(gocv.VideoCaptureFrameHeight))
}

func (c *captureSource) FrameCount() int {
	return int(c.capture.Get(gocv.VideoCaptureFrameCount))
}

func (c *captureSource) Close() error {
	return c.capture.Close()
}
