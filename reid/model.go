package reid

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyFrame is returned when extraction is attempted on an empty frame
var ErrEmptyFrame = errors.New("frame is empty")

// ModelParams defines the network input and pre processing of a ReID model
type ModelParams struct {
	// ModelFile is the network weights file (ONNX, Caffe, TF, ...)
	ModelFile string
	// ConfigFile is the optional network configuration file
	ConfigFile string
	// InputSize is the network input width and height that patches are
	// resized to
	InputSize image.Point
	// Scale is multiplied with each pixel value
	Scale float64
	// Mean is subtracted from each channel before scaling
	Mean gocv.Scalar
	// SwapRB converts BGR frames to RGB network input
	SwapRB bool
	// FP16 runs inference with half precision
	FP16 bool
	// PoolSize is the number of network instances used in parallel
	PoolSize int
	// BatchSize is the number of patches each worker processes in turn
	BatchSize int
	// OutputName is the network output layer, empty for the default output
	OutputName string
}

// DefaultModelParams returns parameters for the common 128x256 person ReID
// networks exported to ONNX
func DefaultModelParams(modelFile string) ModelParams {
	return ModelParams{
		ModelFile: modelFile,
		InputSize: image.Pt(128, 256),
		Scale:     1.0 / 255,
		Mean:      gocv.NewScalar(0, 0, 0, 0),
		SwapRB:    true,
		PoolSize:  2,
		BatchSize: 8,
	}
}

// Model runs a ReID network over object patches to produce L2 normalised
// appearance embeddings
type Model struct {
	params ModelParams
	pool   *NetPool
}

// NewModel loads the ReID network
func NewModel(params ModelParams) (*Model, error) {

	if params.BatchSize < 1 {
		params.BatchSize = 1
	}

	pool, err := NewNetPool(params.PoolSize, params.ModelFile, params.ConfigFile, params.FP16)

	if err != nil {
		return nil, err
	}

	return &Model{
		params: params,
		pool:   pool,
	}, nil
}

// Close frees the network pool
func (m *Model) Close() error {
	m.pool.Close()
	return nil
}

// Extract returns one embedding per box, in the order given.  Boxes that do
// not overlap the frame yield a nil embedding.
func (m *Model) Extract(frame gocv.Mat, boxes []image.Rectangle) ([][]float32, error) {

	if frame.Empty() {
		return nil, ErrEmptyFrame
	}

	total := len(boxes)
	embeddings := make([][]float32, total)
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())

	g := errgroup.Group{}
	g.SetLimit(m.pool.Size())

	for offset := 0; offset < total; offset += m.params.BatchSize {

		end := min(offset+m.params.BatchSize, total)
		off := offset

		g.Go(func() error {
			net := m.pool.Get()

			if net == nil {
				return ErrPoolClosed
			}

			defer m.pool.Return(net)

			for i := off; i < end; i++ {
				rect := boxes[i].Intersect(bounds)

				if rect.Empty() {
					continue
				}

				feat, err := m.infer(net, frame, rect)

				if err != nil {
					return fmt.Errorf("patch %d: %w", i, err)
				}

				// each index is written by exactly one goroutine
				embeddings[i] = feat
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("reid inference failed: %w", err)
	}

	return embeddings, nil
}

// infer runs the network over a single patch of frame
func (m *Model) infer(net *gocv.Net, frame gocv.Mat, rect image.Rectangle) ([]float32, error) {

	patch := frame.Region(rect)
	defer patch.Close()

	blob := gocv.BlobFromImage(patch, m.params.Scale, m.params.InputSize,
		m.params.Mean, m.params.SwapRB, false)
	defer blob.Close()

	net.SetInput(blob, "")

	out := net.Forward(m.params.OutputName)
	defer out.Close()

	if out.Empty() {
		return nil, errors.New("network produced no output")
	}

	feat, err := decodeOutput(out)

	if err != nil {
		return nil, err
	}

	return NormalizeVec(feat), nil
}

// decodeOutput reads the output tensor as float32, decoding half precision
// output when the network was run with an FP16 target
func decodeOutput(out gocv.Mat) ([]float32, error) {

	raw := out.ToBytes()
	total := out.Total()

	if total == 0 {
		return nil, errors.New("network output has no elements")
	}

	switch len(raw) / total {
	case 2:
		return DecodeFloat16(raw), nil
	case 4:
		data, err := out.DataPtrFloat32()

		if err != nil {
			return nil, fmt.Errorf("failed to read output: %w", err)
		}

		return append([]float32(nil), data...), nil
	}

	return nil, fmt.Errorf("unsupported output element size %d", len(raw)/total)
}
