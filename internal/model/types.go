package model

// Metadata is the JSON sidecar exported next to the model. Only Classes is required;
// the shape fields are cross-checked when present.
type Metadata struct {
	InputShape  []int64  `json:"input_shape,omitempty" yaml:"input_shape,omitempty"`
	OutputShape []int64  `json:"output_shape,omitempty" yaml:"output_shape,omitempty"`
	Classes     []string `json:"classes" yaml:"classes"`
	ImageSize   int      `json:"image_size,omitempty" yaml:"image_size,omitempty"`
}

// Architecture describes the network the persisted weights were trained on: a ResNet-50
// backbone whose fc layer is replaced by Linear -> ReLU -> Dropout -> Linear.
// Only the final width (NumClasses) is verified against the exported graph; the hidden
// layer is folded into the ONNX export and is recorded here for reporting only.
type Architecture struct {
	Backbone         string
	BackboneFeatures int
	HiddenUnits      int
	Dropout          float64
	NumClasses       int
}

// ResNet50Head returns the topology for a label table of numClasses entries.
func ResNet50Head(numClasses int) Architecture {
	return Architecture{
		Backbone:         "resnet50",
		BackboneFeatures: 2048,
		HiddenUnits:      512,
		Dropout:          0.3,
		NumClasses:       numClasses,
	}
}
