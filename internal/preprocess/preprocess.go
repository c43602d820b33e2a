// Package preprocess turns uploaded image bytes into the fixed-shape tensor the classifier consumes.
//
// The transform mirrors the training pipeline: decode, force RGB, resize to 224x224 without
// preserving aspect ratio, scale to [0,1] and normalize each channel with the ImageNet
// mean/std. Every step is deterministic, so identical bytes always produce bit-identical tensors.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	// ErrDecode means the bytes are empty or not a supported image container.
	ErrDecode = errors.New("image decode failed")
	// ErrPreprocess means a decoded image could not be turned into a tensor.
	ErrPreprocess = errors.New("image preprocessing failed")
)

// Filter selects the resampling kernel used for the 224x224 resize.
type Filter string

const (
	// Bilinear is a triangle kernel whose support widens when downsampling
	// (antialiased bilinear, the torchvision Resize default).
	Bilinear Filter = "bilinear"
	// Lanczos is a 3-lobe Lanczos kernel.
	Lanczos Filter = "lanczos"
)

// ParseFilter maps a config string to a Filter. Empty selects Bilinear.
func ParseFilter(s string) (Filter, error) {
	switch Filter(strings.ToLower(strings.TrimSpace(s))) {
	case "", Bilinear:
		return Bilinear, nil
	case Lanczos:
		return Lanczos, nil
	default:
		return "", fmt.Errorf("unknown resize filter %q (want bilinear or lanczos)", s)
	}
}

// DefaultMaxPixels caps the declared width*height of an upload. Images above it are
// rejected from their header, before any pixel buffer is allocated.
const DefaultMaxPixels = 89_478_485

// Pipeline holds the resize policy. It has no mutable state and is safe for concurrent use.
type Pipeline struct {
	filter    Filter
	maxPixels int64
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxPixels overrides DefaultMaxPixels. Non-positive values keep the default.
func WithMaxPixels(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxPixels = int64(n)
		}
	}
}

// New creates a pipeline using the given filter.
func New(filter Filter, opts ...Option) *Pipeline {
	if filter == "" {
		filter = Bilinear
	}
	p := &Pipeline{filter: filter, maxPixels: DefaultMaxPixels}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Filter returns the resampling kernel in use.
func (p *Pipeline) Filter() Filter {
	return p.filter
}

// Preprocess decodes raw and transforms it into a (1,3,224,224) tensor.
func (p *Pipeline) Preprocess(raw []byte) (*Tensor, error) {
	img, _, err := p.Decode(raw)
	if err != nil {
		return nil, err
	}
	return p.Transform(img)
}

// Decode parses raw image bytes and returns the image with its container format.
// The declared dimensions are checked against the pixel cap first.
func (p *Pipeline) Decode(raw []byte) (image.Image, string, error) {
	if len(raw) == 0 {
		return nil, "", fmt.Errorf("%w: empty image data", ErrDecode)
	}
	if err := p.checkDimensions(raw); err != nil {
		return nil, "", err
	}

	img, format, err := image.Decode(bytes.NewReader(raw))
	if err == nil {
		return img, format, nil
	}

	// Some WebP variants are only handled by libwebp.
	if wimg, werr := webp.Decode(bytes.NewReader(raw)); werr == nil {
		return wimg, "webp", nil
	}

	return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
}

func (p *Pipeline) checkDimensions(raw []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		wcfg, werr := webp.DecodeConfig(bytes.NewReader(raw))
		if werr != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
		cfg = wcfg
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: image declares %dx%d pixels", ErrDecode, cfg.Width, cfg.Height)
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > p.maxPixels {
		return fmt.Errorf("%w: image declares %dx%d pixels, limit is %d",
			ErrDecode, cfg.Width, cfg.Height, p.maxPixels)
	}
	return nil
}

// Transform converts a decoded image into a normalized tensor.
func (p *Pipeline) Transform(img image.Image) (*Tensor, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: nil image", ErrPreprocess)
	}
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: image has no pixels (%dx%d)", ErrPreprocess, b.Dx(), b.Dy())
	}

	resized := p.resize(toRGB(img))
	if rb := resized.Bounds(); rb.Dx() != Width || rb.Dy() != Height {
		return nil, fmt.Errorf("%w: resize produced %dx%d", ErrPreprocess, rb.Dx(), rb.Dy())
	}

	return &Tensor{Data: normalize(resized)}, nil
}

func (p *Pipeline) resize(img *image.NRGBA) *image.NRGBA {
	switch p.filter {
	case Lanczos:
		return imaging.Clone(resize.Resize(Width, Height, img, resize.Lanczos3))
	default:
		return imaging.Resize(img, Width, Height, imaging.Linear)
	}
}

// toRGB drops alpha without compositing and expands gray/paletted images to three channels.
func toRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// normalize packs an NRGBA image into CHW float32, scaled to [0,1] then standardized per channel.
func normalize(img *image.NRGBA) []float32 {
	data := make([]float32, TensorSize)
	plane := Height * Width

	for y := 0; y < Height; y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+Width*4]
		for x := 0; x < Width; x++ {
			px := row[x*4 : x*4+3]
			idx := y*Width + x
			for c := 0; c < Channels; c++ {
				v := float32(px[c]) / 255
				data[c*plane+idx] = (v - Mean[c]) / Std[c]
			}
		}
	}

	return data
}
