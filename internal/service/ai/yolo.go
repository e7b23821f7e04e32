package ai

import (
	"fmt"
	"image"

	"detectserver/internal/model"

	"gocv.io/x/gocv"
)

// yoloNet runs an ONNX YOLO export through the OpenCV DNN module.
type yoloNet struct {
	net          gocv.Net
	labels       Labels
	inputSize    int
	nmsThreshold float64
}

// LoadYOLO is the default Loader: it reads an ONNX model with gocv and binds it to a device.
func LoadYOLO(path string, opts LoadOptions) (Model, error) {
	net := gocv.ReadNet(path, "")
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", path)
	}

	backend, target := gocv.NetBackendDefault, gocv.NetTargetCPU
	if opts.Device == DeviceCUDA {
		backend, target = gocv.NetBackendCUDA, gocv.NetTargetCUDA
	}
	errBackend := net.SetPreferableBackend(backend)
	errTarget := net.SetPreferableTarget(target)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target for %s", opts.Device)
	}

	return &yoloNet{
		net:          net,
		labels:       opts.Labels,
		inputSize:    opts.ImageSize,
		nmsThreshold: opts.NMSThreshold,
	}, nil
}

// Predict runs one forward pass. Callers must serialize access.
func (y *yoloNet) Predict(frame gocv.Mat, threshold float64) ([]model.Detection, error) {
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(y.inputSize, y.inputSize),
		gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	y.net.SetInput(blob, "")
	output := y.net.Forward("")
	defer output.Close()

	// [1, 4+nc, N]
	dims := output.Size()
	if len(dims) != 3 {
		return nil, fmt.Errorf("unexpected model output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read model output: %w", err)
	}

	scaleX := float64(frame.Cols()) / float64(y.inputSize)
	scaleY := float64(frame.Rows()) / float64(y.inputSize)
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	dets := decodeYOLO(data, dims[1], dims[2], scaleX, scaleY, threshold, bounds, y.labels)
	return nonMaxSuppression(dets, y.nmsThreshold), nil
}

func (y *yoloNet) Close() error {
	return y.net.Close()
}
