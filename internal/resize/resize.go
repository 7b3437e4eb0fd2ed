// Package resize plans and applies dimension changes, baking EXIF
// orientation into the pixels so output images always display upright.
package resize

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/amirzhanov/pixpack/internal/model"
)

var (
	// ErrInvalidSpec marks a resize request that can never be satisfied.
	ErrInvalidSpec = errors.New("resize: invalid spec")

	// ErrUpscaleLimit marks a request that would enlarge beyond the ceiling.
	ErrUpscaleLimit = errors.New("resize: upscale limit exceeded")
)

// DefaultMaxUpscale is the enlargement ceiling applied when none is configured.
const DefaultMaxUpscale = 10.0

const maxPercent = 1000

type Resizer struct {
	maxUpscale float64
}

// New returns a resizer. maxUpscale <= 0 selects DefaultMaxUpscale.
func New(maxUpscale float64) *Resizer {
	if maxUpscale <= 0 {
		maxUpscale = DefaultMaxUpscale
	}
	return &Resizer{maxUpscale: maxUpscale}
}

// Plan computes the target dimensions for a source of srcW x srcH under the
// given spec. Derived dimensions are rounded to the nearest pixel with a
// floor of 1 so extreme aspect ratios never collapse to zero.
func (r *Resizer) Plan(srcW, srcH int, spec model.ResizeSpec) (int, int, error) {
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, fmt.Errorf("%w: source %dx%d", ErrInvalidSpec, srcW, srcH)
	}

	var w, h int
	switch spec.Mode {
	case model.ResizeNone:
		return srcW, srcH, nil
	case model.ResizeWidth:
		if spec.Value <= 0 {
			return 0, 0, fmt.Errorf("%w: width must be positive", ErrInvalidSpec)
		}
		w = spec.Value
		h = scaleDim(srcH, float64(w)/float64(srcW))
	case model.ResizeHeight:
		if spec.Value <= 0 {
			return 0, 0, fmt.Errorf("%w: height must be positive", ErrInvalidSpec)
		}
		h = spec.Value
		w = scaleDim(srcW, float64(h)/float64(srcH))
	case model.ResizePercent:
		if spec.Value <= 0 || spec.Value > maxPercent {
			return 0, 0, fmt.Errorf("%w: percent must be in 1..%d", ErrInvalidSpec, maxPercent)
		}
		ratio := float64(spec.Value) / 100
		w = scaleDim(srcW, ratio)
		h = scaleDim(srcH, ratio)
	case model.ResizeFit:
		if spec.Width <= 0 || spec.Height <= 0 {
			return 0, 0, fmt.Errorf("%w: fit bounds must be positive", ErrInvalidSpec)
		}
		ratio := math.Min(float64(spec.Width)/float64(srcW), float64(spec.Height)/float64(srcH))
		w = scaleDim(srcW, ratio)
		h = scaleDim(srcH, ratio)
	default:
		return 0, 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidSpec, spec.Mode)
	}

	if f := float64(w) / float64(srcW); f > r.maxUpscale {
		return 0, 0, fmt.Errorf("%w: %.1fx > %.1fx", ErrUpscaleLimit, f, r.maxUpscale)
	}
	if f := float64(h) / float64(srcH); f > r.maxUpscale {
		return 0, 0, fmt.Errorf("%w: %.1fx > %.1fx", ErrUpscaleLimit, f, r.maxUpscale)
	}
	return w, h, nil
}

// Apply orients the image upright and resamples it to the target size.
// Box is used for strong downscales, Lanczos otherwise.
func (r *Resizer) Apply(img image.Image, orientation, width, height int) image.Image {
	img = Orient(img, orientation)
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	filter := imaging.Lanczos
	if width < b.Dx()/2 && height < b.Dy()/2 {
		filter = imaging.Box
	}
	return imaging.Resize(img, width, height, filter)
}

// Orient bakes an EXIF orientation value (1-8) into the pixels.
func Orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// SwapsDimensions reports whether the orientation rotates by 90 degrees,
// exchanging width and height.
func SwapsDimensions(orientation int) bool {
	return orientation >= 5 && orientation <= 8
}

func scaleDim(dim int, ratio float64) int {
	v := int(math.Round(float64(dim) * ratio))
	if v < 1 {
		return 1
	}
	return v
}
