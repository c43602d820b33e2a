package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// Classifier runs the exported network on ONNX Runtime. Tensors are allocated per call,
// so Forward may be called from many goroutines at once.
type Classifier struct {
	session    *ort.DynamicAdvancedSession
	numClasses int
	device     Device
}

// Forward returns the raw logits for one image.
func (c *Classifier) Forward(t *preprocess.Tensor) ([]float32, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("input tensor must hold %d values", preprocess.TensorSize)
	}

	input, err := ort.NewTensor(ort.NewShape(t.Shape()...), t.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(c.numClasses)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := c.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("session run on %s: %w", c.device, err)
	}

	logits := make([]float32, c.numClasses)
	copy(logits, output.GetData())
	return logits, nil
}

// NumClasses is the width of the logits vector.
func (c *Classifier) NumClasses() int {
	return c.numClasses
}

// Device is where the session executes.
func (c *Classifier) Device() Device {
	return c.device
}

func (c *Classifier) close() {
	if c.session != nil {
		c.session.Destroy()
		c.session = nil
	}
}
