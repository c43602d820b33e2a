// Package inference runs the classifier on a preprocessed tensor and decodes the predicted class.
package inference

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// ErrInference marks any failure of the forward pass or of its output.
var ErrInference = errors.New("inference failed")

// Network is a loaded, weight-bound model. Forward must be safe for concurrent use
// and must not mutate the network.
type Network interface {
	Forward(t *preprocess.Tensor) ([]float32, error)
}

// Observer receives the latency of every forward pass.
type Observer interface {
	ObserveInference(d time.Duration, err error)
}

// Engine owns the network and knows how many classes it scores.
type Engine struct {
	net        Network
	numClasses int
	observer   Observer
}

// NewEngine wraps net. numClasses must match the label table the engine serves.
func NewEngine(net Network, numClasses int, observer Observer) (*Engine, error) {
	if net == nil {
		return nil, errors.New("inference: nil network")
	}
	if numClasses <= 0 {
		return nil, fmt.Errorf("inference: numClasses must be positive, got %d", numClasses)
	}
	return &Engine{net: net, numClasses: numClasses, observer: observer}, nil
}

// Logits runs a single forward pass. There are no retries.
func (e *Engine) Logits(t *preprocess.Tensor) ([]float32, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("%w: tensor must have shape (1,%d,%d,%d)", ErrInference,
			preprocess.Channels, preprocess.Height, preprocess.Width)
	}

	start := time.Now()
	logits, err := e.net.Forward(t)
	if err == nil && len(logits) != e.numClasses {
		err = fmt.Errorf("network returned %d logits, expected %d", len(logits), e.numClasses)
	}
	if e.observer != nil {
		e.observer.ObserveInference(time.Since(start), err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return logits, nil
}

// Infer returns the index of the highest logit.
func (e *Engine) Infer(t *preprocess.Tensor) (int, error) {
	logits, err := e.Logits(t)
	if err != nil {
		return 0, err
	}
	idx := Argmax(logits)
	if idx < 0 {
		return 0, fmt.Errorf("%w: all logits are NaN", ErrInference)
	}
	return idx, nil
}

// Argmax returns the index of the largest value, preferring the lowest index on ties.
// NaN values are skipped, unlike torch.argmax which returns the index of a NaN.
// It returns -1 if no value is comparable.
func Argmax(values []float32) int {
	best := -1
	var bestVal float32
	for i, v := range values {
		if math.IsNaN(float64(v)) {
			continue
		}
		if best < 0 || v > bestVal {
			best, bestVal = i, v
		}
	}
	return best
}
