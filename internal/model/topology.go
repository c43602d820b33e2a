package model

import (
	"fmt"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/imgclass-api/internal/preprocess"
)

// checkIO verifies that the exported graph takes one float image tensor shaped
// [N,3,224,224] and produces one float logits tensor shaped [N,numClasses].
// A negative dimension is dynamic and accepted for the batch axis only.
// It returns the names to bind the session to.
func checkIO(inputs, outputs []ort.InputOutputInfo, numClasses int) (string, string, error) {
	if len(inputs) != 1 {
		return "", "", fmt.Errorf("%w: expected 1 input, graph has %d", ErrWeightShapeMismatch, len(inputs))
	}
	if len(outputs) != 1 {
		return "", "", fmt.Errorf("%w: expected 1 output, graph has %d", ErrWeightShapeMismatch, len(outputs))
	}

	in, out := inputs[0], outputs[0]
	if err := checkFloatTensor(in); err != nil {
		return "", "", err
	}
	if err := checkFloatTensor(out); err != nil {
		return "", "", err
	}

	want := []int64{1, preprocess.Channels, preprocess.Height, preprocess.Width}
	if err := checkDims(in.Name, in.Dimensions, want); err != nil {
		return "", "", err
	}
	if err := checkDims(out.Name, out.Dimensions, []int64{1, int64(numClasses)}); err != nil {
		return "", "", err
	}

	return in.Name, out.Name, nil
}

func checkFloatTensor(info ort.InputOutputInfo) error {
	if info.OrtValueType != ort.ONNXTypeTensor {
		return fmt.Errorf("%w: %q is %v, not a tensor", ErrWeightShapeMismatch, info.Name, info.OrtValueType)
	}
	if info.DataType != ort.TensorElementDataTypeFloat {
		return fmt.Errorf("%w: %q has element type %v, want float32", ErrWeightShapeMismatch, info.Name, info.DataType)
	}
	return nil
}

func checkDims(name string, got ort.Shape, want []int64) error {
	if len(got) != len(want) {
		return fmt.Errorf("%w: %q has shape %v, want %v", ErrWeightShapeMismatch, name, got, want)
	}
	for i := range want {
		if i == 0 && got[i] < 0 {
			continue
		}
		if got[i] != want[i] {
			return fmt.Errorf("%w: %q has shape %v, want %v", ErrWeightShapeMismatch, name, got, want)
		}
	}
	return nil
}
