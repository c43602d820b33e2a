package model

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadLabelsFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "json array", file: "labels.json", content: `["cat", "dog", "bird"]`},
		{name: "json dynamic batch", file: "model_metadata.json", content: `{"input_shape":[-1,3,224,224],"classes":["cat","dog","bird"]}`},
		{name: "json metadata", file: "model_metadata.json", content: `{"input_shape":[1,3,224,224],"output_shape":[1,3],"classes":["cat","dog","bird"],"image_size":224}`},
		{name: "yaml list", file: "labels.yaml", content: "- cat\n- dog\n- bird\n"},
		{name: "yaml mapping", file: "labels.yml", content: "classes:\n  - cat\n  - dog\n  - bird\n"},
		{name: "text", file: "class_labels.txt", content: "cat\n\n dog \r\nbird\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			labels, err := LoadLabels(writeFile(t, tt.file, tt.content))
			require.NoError(t, err)
			assert.Equal(t, []string{"cat", "dog", "bird"}, labels.Names())
			assert.Equal(t, 3, labels.Len())
		})
	}
}

func TestLoadLabelsMissing(t *testing.T) {
	_, err := LoadLabels(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrArtifactMissing)
	assert.True(t, IsStartupError(err))

	var merr *Error
	require.ErrorAs(t, err, &merr)
	assert.Equal(t, "read labels", merr.Op)
}

func TestLoadLabelsCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{name: "bad json", file: "labels.json", content: `["cat", `},
		{name: "json wrong type", file: "labels.json", content: `[1, 2, 3]`},
		{name: "empty json array", file: "labels.json", content: `[]`},
		{name: "bad yaml", file: "labels.yaml", content: "classes: [cat, dog\n"},
		{name: "empty text", file: "labels.txt", content: "\n\n"},
		{name: "image size mismatch", file: "meta.json", content: `{"classes":["a"],"image_size":48}`},
		{name: "input shape channels", file: "meta.json", content: `{"classes":["a"],"input_shape":[1,1,224,224]}`},
		{name: "input shape size", file: "meta.json", content: `{"classes":["a"],"input_shape":[1,3,48,48]}`},
		{name: "input shape rank", file: "meta.json", content: `{"classes":["a"],"input_shape":[3,224,224]}`},
		{name: "output shape mismatch", file: "meta.json", content: `{"classes":["a","b"],"output_shape":[1,7]}`},
		{name: "blank class", file: "meta.yaml", content: "classes: [a, '  ']\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadLabels(writeFile(t, tt.file, tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrArtifactCorrupt)
		})
	}
}

func TestLabelsLookup(t *testing.T) {
	labels := NewLabels([]string{"cat", "dog", "bird"})

	name, ok := labels.Name(1)
	assert.True(t, ok)
	assert.Equal(t, "dog", name)

	_, ok = labels.Name(3)
	assert.False(t, ok)
	_, ok = labels.Name(-1)
	assert.False(t, ok)
}

func TestLabelsImmutable(t *testing.T) {
	src := []string{"cat", "dog"}
	labels := NewLabels(src)
	src[0] = "changed"

	names := labels.Names()
	names[1] = "changed"

	assert.Equal(t, []string{"cat", "dog"}, labels.Names())
}
