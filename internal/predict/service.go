// Package predict orchestrates decode, preprocessing, inference and label lookup for one upload.
package predict

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// Result is the JSON body of a successful prediction.
type Result struct {
	Index int    `json:"predicted_index"`
	Label string `json:"predicted_label"`
}

// Inferrer maps a tensor to a class index.
type Inferrer interface {
	Infer(t *preprocess.Tensor) (int, error)
}

// LabelTable resolves class indices to names.
type LabelTable interface {
	Name(i int) (string, bool)
	Len() int
}

// Recorder receives pipeline outcomes. Stage is "done" on success.
type Recorder interface {
	ObservePrediction(stage string, err error)
	ObserveCache(hit bool)
}

// Service is the immutable request-time context built once at startup.
type Service struct {
	pipeline *preprocess.Pipeline
	engine   Inferrer
	labels   LabelTable
	cache    Cache
	recorder Recorder
	logger   *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCache enables the result cache.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithRecorder reports outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// NewService wires the pipeline stages together.
func NewService(pipeline *preprocess.Pipeline, engine Inferrer, labels LabelTable, opts ...Option) *Service {
	s := &Service{
		pipeline: pipeline,
		engine:   engine,
		labels:   labels,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NumClasses is the size of the label table.
func (s *Service) NumClasses() int {
	return s.labels.Len()
}

// Predict classifies raw image bytes. Errors are always *Error.
func (s *Service) Predict(raw []byte) (*Result, error) {
	var key string
	if s.cache != nil {
		key = cacheKey(raw)
		if r, ok := s.cache.Get(key); ok {
			s.observeCache(true)
			s.observe("done", nil)
			return r, nil
		}
		s.observeCache(false)
	}

	img, format, err := s.pipeline.Decode(raw)
	if err != nil {
		return nil, s.fail(StageDecode, err)
	}
	bounds := img.Bounds()

	tensor, err := s.pipeline.Transform(img)
	if err != nil {
		return nil, s.fail(StagePreprocess, err)
	}

	result, err := s.resolve(tensor)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(key, result)
	}
	s.logger.Debug("prediction",
		zap.String("format", format),
		zap.Int("width", bounds.Dx()),
		zap.Int("height", bounds.Dy()),
		zap.Int("predicted_index", result.Index),
		zap.String("predicted_label", result.Label),
	)
	return result, nil
}

// PredictTensor runs inference and lookup on an already-normalized tensor.
func (s *Service) PredictTensor(t *preprocess.Tensor) (*Result, error) {
	return s.resolve(t)
}

func (s *Service) resolve(t *preprocess.Tensor) (*Result, error) {
	idx, err := s.engine.Infer(t)
	if err != nil {
		return nil, s.fail(StageInfer, err)
	}

	label, ok := s.labels.Name(idx)
	if !ok {
		return nil, s.fail(StageLookup, fmt.Errorf("%w: index %d outside [0,%d)", ErrLabelLookup, idx, s.labels.Len()))
	}

	s.observe("done", nil)
	return &Result{Index: idx, Label: label}, nil
}

func (s *Service) fail(stage Stage, err error) error {
	perr := &Error{Stage: stage, Err: err}
	s.observe(string(stage), perr)
	s.logger.Warn("prediction failed", zap.String("stage", string(stage)), zap.Error(err))
	return perr
}

func (s *Service) observe(stage string, err error) {
	if s.recorder != nil {
		s.recorder.ObservePrediction(stage, err)
	}
}

func (s *Service) observeCache(hit bool) {
	if s.recorder != nil {
		s.recorder.ObserveCache(hit)
	}
}
