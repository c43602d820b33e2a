package model

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// Labels is the ordered class name table. Index i is the name of logit i.
// It has no mutators, so a loaded table can be shared freely.
type Labels struct {
	names []string
}

// NewLabels copies names into an immutable table.
func NewLabels(names []string) *Labels {
	return &Labels{names: append([]string(nil), names...)}
}

// Len is numClasses.
func (l *Labels) Len() int {
	return len(l.names)
}

// Name returns the label at index i, or false if i is out of range.
func (l *Labels) Name(i int) (string, bool) {
	if i < 0 || i >= len(l.names) {
		return "", false
	}
	return l.names[i], true
}

// Names returns a copy of the table.
func (l *Labels) Names() []string {
	return append([]string(nil), l.names...)
}

// LoadLabels reads a label artifact. The format follows the file extension:
// .json (array or metadata object with "classes"), .yaml/.yml (list or "classes:" mapping),
// anything else is plain text with one label per line.
func LoadLabels(path string) (*Labels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrapError("read labels", path, fmt.Errorf("%w: %v", ErrArtifactMissing, err))
	}

	var names []string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		names, err = parseJSONLabels(data)
	case ".yaml", ".yml":
		names, err = parseYAMLLabels(data)
	default:
		names, err = parseTextLabels(data)
	}
	if err != nil {
		return nil, wrapError("decode labels", path, fmt.Errorf("%w: %v", ErrArtifactCorrupt, err))
	}
	if len(names) == 0 {
		return nil, wrapError("decode labels", path, fmt.Errorf("%w: no labels found", ErrArtifactCorrupt))
	}

	return NewLabels(names), nil
}

func parseJSONLabels(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var names []string
		if err := json.Unmarshal(trimmed, &names); err != nil {
			return nil, err
		}
		return names, nil
	}

	var meta Metadata
	if err := json.Unmarshal(trimmed, &meta); err != nil {
		return nil, err
	}
	if err := meta.check(); err != nil {
		return nil, err
	}
	return meta.Classes, nil
}

func parseYAMLLabels(data []byte) ([]string, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, err
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		var names []string
		if err := root.Decode(&names); err != nil {
			return nil, err
		}
		return names, nil
	}

	var meta Metadata
	if err := root.Decode(&meta); err != nil {
		return nil, err
	}
	if err := meta.check(); err != nil {
		return nil, err
	}
	return meta.Classes, nil
}

func parseTextLabels(data []byte) ([]string, error) {
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		names = append(names, line)
	}
	return names, scanner.Err()
}

// check validates the optional shape hints against the class list and the preprocessing geometry.
func (m *Metadata) check() error {
	for i, name := range m.Classes {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("class %d is blank", i)
		}
	}
	if m.ImageSize != 0 && m.ImageSize != preprocess.Width {
		return fmt.Errorf("image_size %d does not match preprocessing size %d", m.ImageSize, preprocess.Width)
	}
	if len(m.InputShape) > 0 {
		want := []int64{1, preprocess.Channels, preprocess.Height, preprocess.Width}
		if len(m.InputShape) != len(want) {
			return fmt.Errorf("input_shape %v does not match %v", m.InputShape, want)
		}
		for i := range want {
			// The batch axis may be exported as dynamic.
			if i == 0 && m.InputShape[i] <= 0 {
				continue
			}
			if m.InputShape[i] != want[i] {
				return fmt.Errorf("input_shape %v does not match %v", m.InputShape, want)
			}
		}
	}
	if n := len(m.OutputShape); n > 0 && m.OutputShape[n-1] != int64(len(m.Classes)) {
		return fmt.Errorf("output_shape %v does not match %d classes", m.OutputShape, len(m.Classes))
	}
	return nil
}

// IsStartupError reports whether err is one of the loader's fatal errors.
func IsStartupError(err error) bool {
	return errors.Is(err, ErrArtifactMissing) ||
		errors.Is(err, ErrArtifactCorrupt) ||
		errors.Is(err, ErrWeightShapeMismatch) ||
		errors.Is(err, ErrRuntime)
}
