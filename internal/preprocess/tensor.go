package preprocess

import "fmt"

// Fixed input geometry of the classifier.
const (
	Channels = 3
	Height   = 224
	Width    = 224

	// TensorSize is the number of float32 values in one image tensor.
	TensorSize = Channels * Height * Width
)

// Per-channel normalization constants (ImageNet statistics, RGB order).
var (
	Mean = [Channels]float32{0.485, 0.456, 0.406}
	Std  = [Channels]float32{0.229, 0.224, 0.225}
)

// Tensor is a single normalized image in NCHW layout with a batch dimension of 1.
type Tensor struct {
	Data []float32
}

// NewTensor wraps already-normalized CHW values. The slice length must equal TensorSize.
func NewTensor(data []float32) (*Tensor, error) {
	if len(data) != TensorSize {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrPreprocess, TensorSize, len(data))
	}
	return &Tensor{Data: data}, nil
}

// Shape is always (1, 3, 224, 224).
func (t *Tensor) Shape() []int64 {
	return []int64{1, Channels, Height, Width}
}

// Valid reports whether the tensor holds exactly one image worth of values.
func (t *Tensor) Valid() bool {
	return t != nil && len(t.Data) == TensorSize
}
