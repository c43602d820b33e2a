package model

import (
	"errors"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

// LoaderConfig names the artifacts and the runtime to load them with.
type LoaderConfig struct {
	ModelPath   string
	LabelPath   string
	LibraryPath string // libonnxruntime shared library; empty uses the runtime default
	Device      Device
}

// Artifacts is everything loaded at startup. It is read-only once Load returns.
type Artifacts struct {
	Classifier   *Classifier
	Labels       *Labels
	Architecture Architecture

	ownsEnv bool
}

// Device is the compute device the classifier was bound to.
func (a *Artifacts) Device() Device {
	return a.Classifier.Device()
}

// Close releases the session and, if Load created it, the runtime environment.
func (a *Artifacts) Close() {
	if a.Classifier != nil {
		a.Classifier.close()
	}
	if a.ownsEnv {
		ort.DestroyEnvironment()
		a.ownsEnv = false
	}
}

// Load reads the label table, verifies the exported network against it and binds an
// inference session to the requested device.
func Load(cfg LoaderConfig, logger *zap.Logger) (*Artifacts, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	labels, err := LoadLabels(cfg.LabelPath)
	if err != nil {
		return nil, err
	}
	arch := ResNet50Head(labels.Len())
	logger.Info("labels loaded", zap.String("path", cfg.LabelPath), zap.Int("classes", labels.Len()))

	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, wrapError("stat weights", cfg.ModelPath, fmt.Errorf("%w: %v", ErrArtifactMissing, err))
	}

	ownsEnv, err := initEnvironment(cfg.LibraryPath)
	if err != nil {
		return nil, wrapError("init runtime", cfg.LibraryPath, err)
	}
	release := func() {
		if ownsEnv {
			ort.DestroyEnvironment()
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		release()
		return nil, wrapError("read graph", cfg.ModelPath, fmt.Errorf("%w: %v", ErrArtifactCorrupt, err))
	}
	inputName, outputName, err := checkIO(inputs, outputs, labels.Len())
	if err != nil {
		release()
		return nil, wrapError("verify topology", cfg.ModelPath, err)
	}

	session, device, err := openSession(cfg, inputName, outputName, logger)
	if err != nil {
		release()
		return nil, wrapError("open session", cfg.ModelPath, err)
	}

	logger.Info("model loaded",
		zap.String("path", cfg.ModelPath),
		zap.String("device", device.String()),
		zap.String("backbone", arch.Backbone),
		zap.Int("hidden_units", arch.HiddenUnits),
		zap.String("input", inputName),
		zap.String("output", outputName),
	)

	return &Artifacts{
		Classifier: &Classifier{
			session:    session,
			numClasses: labels.Len(),
			device:     device,
		},
		Labels:       labels,
		Architecture: arch,
		ownsEnv:      ownsEnv,
	}, nil
}

func initEnvironment(libraryPath string) (bool, error) {
	if ort.IsInitialized() {
		return false, nil
	}
	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return false, fmt.Errorf("%w: %v", ErrRuntime, err)
	}
	return true, nil
}

// openSession creates the session on the configured device. DeviceAuto tries CUDA first
// and settles on CPU if the provider cannot be attached or the session fails to build there.
func openSession(cfg LoaderConfig, inputName, outputName string, logger *zap.Logger) (*ort.DynamicAdvancedSession, Device, error) {
	candidates := []Device{cfg.Device}
	if cfg.Device == DeviceAuto || cfg.Device == "" {
		candidates = []Device{DeviceCUDA, DeviceCPU}
	}

	var errs []error
	for _, d := range candidates {
		session, err := newSession(cfg.ModelPath, inputName, outputName, d)
		if err == nil {
			return session, d, nil
		}
		logger.Debug("device unavailable", zap.String("device", d.String()), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", d, err))
	}
	// Failing on CPU means the graph itself is unusable; a forced GPU failing is a runtime problem.
	if candidates[len(candidates)-1] == DeviceCPU {
		return nil, "", fmt.Errorf("%w: %v", ErrArtifactCorrupt, errors.Join(errs...))
	}
	return nil, "", fmt.Errorf("%w: %v", ErrRuntime, errors.Join(errs...))
}

func newSession(path, inputName, outputName string, d Device) (*ort.DynamicAdvancedSession, error) {
	opts, err := sessionOptions(d)
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	return ort.NewDynamicAdvancedSession(path, []string{inputName}, []string{outputName}, opts)
}
