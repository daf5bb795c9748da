// Package inference runs an ONNX filler tagger over per-position feature sequences.
package inference

import (
	"context"
	"fmt"
	"math"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortEnvOnce sync.Once
	ortEnvErr  error
)

// initORT initializes ONNX Runtime environment once.
func initORT() error {
	ortEnvOnce.Do(func() {
		ortEnvErr = ort.InitializeEnvironment()
	})
	return ortEnvErr
}

// SetLibraryPath points the runtime at a specific onnxruntime shared library.
// It must be called before the first session is created.
func SetLibraryPath(path string) {
	if path != "" {
		ort.SetSharedLibraryPath(path)
	}
}

// IONames names the model's input and output tensors.
type IONames struct {
	Input  string
	Output string
}

// DefaultIONames matches a tagger exported with a "feats" input of shape
// (batch, T, D) and a "logits" output of shape (batch, T, K).
var DefaultIONames = IONames{Input: "feats", Output: "logits"}

// Session wraps an ONNX Runtime session for filler tagging.
type Session struct {
	session *ort.DynamicAdvancedSession
	mu      sync.Mutex
	closed  bool
}

// NewSession creates a new ONNX session from a model file.
func NewSession(modelPath string, names IONames) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	if names.Input == "" {
		names.Input = DefaultIONames.Input
	}
	if names.Output == "" {
		names.Output = DefaultIONames.Output
	}

	if err := initORT(); err != nil {
		return nil, fmt.Errorf("initializing ONNX runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer func() { _ = options.Destroy() }()

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{names.Input},
		[]string{names.Output},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &Session{session: session}, nil
}

// Infer runs the tagger over one utterance's features, one row per position,
// and returns a class probability vector per position.
func (s *Session) Infer(ctx context.Context, feats [][]float32) ([][]float32, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, dim, err := flatten(feats)
	if err != nil {
		return nil, err
	}
	if len(feats) == 0 {
		return [][]float32{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}

	seqLen := int64(len(feats))
	input, err := ort.NewTensor(ort.NewShape(1, seqLen, int64(dim)), data)
	if err != nil {
		return nil, fmt.Errorf("creating feats tensor: %w", err)
	}
	defer func() { _ = input.Destroy() }()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{input}, outputs); err != nil {
		return nil, fmt.Errorf("running inference: %w", err)
	}
	if outputs[0] == nil {
		return nil, fmt.Errorf("no output produced")
	}
	defer func() { _ = outputs[0].Destroy() }()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}

	shape := logits.GetShape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] != seqLen || shape[2] <= 0 {
		return nil, fmt.Errorf("%w: %v for %d positions", ErrOutputShape, shape, seqLen)
	}

	return probabilities(logits.GetData(), int(seqLen), int(shape[2]))
}

// Close releases ONNX resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}

// flatten packs feature rows into a row-major buffer.
func flatten(feats [][]float32) ([]float32, int, error) {
	if len(feats) == 0 {
		return nil, 0, nil
	}
	dim := len(feats[0])
	if dim == 0 {
		return nil, 0, fmt.Errorf("%w: empty row 0", ErrRaggedInput)
	}
	data := make([]float32, 0, len(feats)*dim)
	for i, row := range feats {
		if len(row) != dim {
			return nil, 0, fmt.Errorf("%w: row %d has %d, want %d", ErrRaggedInput, i, len(row), dim)
		}
		data = append(data, row...)
	}
	return data, dim, nil
}

// probabilities splits row-major logits into rows of k and softmaxes each row.
func probabilities(logits []float32, rows, k int) ([][]float32, error) {
	if len(logits) < rows*k {
		return nil, fmt.Errorf("%w: %d values for %d×%d", ErrOutputShape, len(logits), rows, k)
	}
	out := make([][]float32, rows)
	for i := range out {
		row := make([]float32, k)
		copy(row, logits[i*k:(i+1)*k])
		softmax(row)
		out[i] = row
	}
	return out, nil
}

// softmax normalises v in place.
func softmax(v []float32) {
	if len(v) == 0 {
		return
	}
	maxV := v[0]
	for _, x := range v[1:] {
		if x > maxV {
			maxV = x
		}
	}
	var sum float64
	for i, x := range v {
		e := math.Exp(float64(x - maxV))
		v[i] = float32(e)
		sum += e
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / sum)
	}
}
