package preprocess

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gradientImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / max(width-1, 1)),
				G: uint8(y * 255 / max(height-1, 1)),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

func uniformImage(width, height int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestPreprocessSmallImageShape(t *testing.T) {
	p := New(Bilinear)
	raw := encodePNG(t, gradientImage(50, 50))

	tensor, err := p.Preprocess(raw)
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 3, 224, 224}, tensor.Shape())
	assert.Len(t, tensor.Data, TensorSize)
	assert.True(t, tensor.Valid())
}

func TestPreprocessShapeIgnoresAspectRatio(t *testing.T) {
	sizes := [][2]int{{1, 1}, {640, 480}, {37, 500}, {224, 224}, {1000, 3}}

	for _, filter := range []Filter{Bilinear, Lanczos} {
		p := New(filter)
		for _, sz := range sizes {
			tensor, err := p.Preprocess(encodePNG(t, gradientImage(sz[0], sz[1])))
			require.NoError(t, err, "filter=%s size=%v", filter, sz)
			assert.Len(t, tensor.Data, TensorSize, "filter=%s size=%v", filter, sz)
		}
	}
}

func TestPreprocessDeterministic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradientImage(313, 171), &jpeg.Options{Quality: 90}))
	raw := buf.Bytes()

	for _, filter := range []Filter{Bilinear, Lanczos} {
		p := New(filter)
		first, err := p.Preprocess(raw)
		require.NoError(t, err)

		for i := 0; i < 5; i++ {
			again, err := p.Preprocess(raw)
			require.NoError(t, err)
			require.Equal(t, first.Data, again.Data, "filter=%s run=%d", filter, i)
		}
	}
}

func TestPreprocessNormalization(t *testing.T) {
	p := New(Bilinear)
	raw := encodePNG(t, uniformImage(64, 32, color.NRGBA{R: 255, G: 0, B: 128, A: 255}))

	tensor, err := p.Preprocess(raw)
	require.NoError(t, err)

	plane := Height * Width
	want := [Channels]float32{
		(1 - Mean[0]) / Std[0],
		(0 - Mean[1]) / Std[1],
		(float32(128)/255 - Mean[2]) / Std[2],
	}
	for c := 0; c < Channels; c++ {
		for _, i := range []int{0, plane / 2, plane - 1} {
			assert.InDelta(t, want[c], tensor.Data[c*plane+i], 1e-6, "channel %d index %d", c, i)
		}
	}
}

func TestPreprocessDropsAlpha(t *testing.T) {
	p := New(Bilinear)
	translucent := encodePNG(t, uniformImage(20, 20, color.NRGBA{R: 10, G: 200, B: 90, A: 40}))
	opaque := encodePNG(t, uniformImage(20, 20, color.NRGBA{R: 10, G: 200, B: 90, A: 255}))

	a, err := p.Preprocess(translucent)
	require.NoError(t, err)
	b, err := p.Preprocess(opaque)
	require.NoError(t, err)

	assert.Equal(t, b.Data, a.Data)
}

func TestPreprocessGrayscaleExpandsToThreeChannels(t *testing.T) {
	gray := image.NewGray(image.Rect(0, 0, 30, 30))
	for i := range gray.Pix {
		gray.Pix[i] = 100
	}

	tensor, err := New(Bilinear).Preprocess(encodePNG(t, gray))
	require.NoError(t, err)

	plane := Height * Width
	v := float32(100) / 255
	for c := 0; c < Channels; c++ {
		assert.InDelta(t, (v-Mean[c])/Std[c], tensor.Data[c*plane+plane/3], 1e-6)
	}
}

func TestDecodeErrors(t *testing.T) {
	p := New(Bilinear)

	_, _, err := p.Decode(nil)
	assert.ErrorIs(t, err, ErrDecode)

	_, _, err = p.Decode([]byte{})
	assert.ErrorIs(t, err, ErrDecode)

	_, err = p.Preprocess([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrDecode)

	raw := encodePNG(t, gradientImage(10, 10))
	_, err = p.Preprocess(raw[:len(raw)/2])
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeReportsFormat(t *testing.T) {
	_, format, err := New(Bilinear).Decode(encodePNG(t, gradientImage(4, 4)))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
}

// pngWithDimensions encodes a 1x1 PNG and rewrites its IHDR to declare width x height.
// The pixel data is never valid for the new size; only the header matters.
func pngWithDimensions(t *testing.T, width, height uint32) []byte {
	t.Helper()
	raw := encodePNG(t, image.NewGray(image.Rect(0, 0, 1, 1)))
	require.Equal(t, "IHDR", string(raw[12:16]))

	binary.BigEndian.PutUint32(raw[16:20], width)
	binary.BigEndian.PutUint32(raw[20:24], height)
	binary.BigEndian.PutUint32(raw[29:33], crc32.ChecksumIEEE(raw[12:29]))
	return raw
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	raw := pngWithDimensions(t, 12000, 12000)

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 12000, cfg.Width)

	_, _, err = New(Bilinear).Decode(raw)
	require.ErrorIs(t, err, ErrDecode)
	assert.Contains(t, err.Error(), "12000x12000")

	_, err = New(Lanczos).Preprocess(pngWithDimensions(t, 1<<31-1, 1<<31-1))
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeMaxPixelsBoundary(t *testing.T) {
	raw := encodePNG(t, gradientImage(10, 10))

	_, _, err := New(Bilinear, WithMaxPixels(100)).Decode(raw)
	assert.NoError(t, err)

	_, _, err = New(Bilinear, WithMaxPixels(99)).Decode(raw)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestWithMaxPixelsKeepsDefault(t *testing.T) {
	assert.Equal(t, int64(DefaultMaxPixels), New(Bilinear).maxPixels)
	assert.Equal(t, int64(DefaultMaxPixels), New(Bilinear, WithMaxPixels(0)).maxPixels)
	assert.Equal(t, int64(5), New(Bilinear, WithMaxPixels(5)).maxPixels)
}

func TestTransformRejectsEmptyImage(t *testing.T) {
	p := New(Bilinear)

	_, err := p.Transform(image.NewRGBA(image.Rect(0, 0, 0, 10)))
	assert.ErrorIs(t, err, ErrPreprocess)

	_, err = p.Transform(nil)
	assert.ErrorIs(t, err, ErrPreprocess)
}

func TestTransformHandlesOffsetBounds(t *testing.T) {
	src := gradientImage(80, 80)
	sub := src.SubImage(image.Rect(20, 20, 60, 70))

	tensor, err := New(Bilinear).Transform(sub)
	require.NoError(t, err)
	assert.Len(t, tensor.Data, TensorSize)
}

func TestNewTensor(t *testing.T) {
	_, err := NewTensor(make([]float32, 10))
	assert.ErrorIs(t, err, ErrPreprocess)

	tensor, err := NewTensor(make([]float32, TensorSize))
	require.NoError(t, err)
	assert.True(t, tensor.Valid())

	var nilTensor *Tensor
	assert.False(t, nilTensor.Valid())
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		in      string
		want    Filter
		wantErr bool
	}{
		{in: "", want: Bilinear},
		{in: "bilinear", want: Bilinear},
		{in: " Lanczos ", want: Lanczos},
		{in: "nearest", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFilter(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
