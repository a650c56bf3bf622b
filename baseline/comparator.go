package baseline

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"math/bits"
	"strings"

	"golang.org/x/image/draw"
)

// Comparator scores a capture against its baseline.
type Comparator interface {
	Name() string
	// RequiresPixels reports whether Compare needs the image bytes.
	RequiresPixels() bool
	// Compare returns nil when the comparator does not compute a score.
	Compare(ctx context.Context, current, baseline []byte) (*Result, error)
}

// Result is the outcome of a pixel-level comparison.
type Result struct {
	Difference float64 // 0 identical, 1 entirely different
	Matched    bool
}

const (
	ComparatorPresence = "presence"
	ComparatorPixel    = "pixel"
	ComparatorHash     = "phash"
)

// NewComparator returns the comparator registered under name.
func NewComparator(name string, threshold float64, tolerance int) (Comparator, error) {
	switch strings.ToLower(name) {
	case "", ComparatorPresence:
		return PresenceComparator{}, nil
	case ComparatorPixel:
		return &PixelComparator{Threshold: threshold, Tolerance: tolerance}, nil
	case ComparatorHash:
		return &HashComparator{Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("unsupported comparator: %s", name)
	}
}

// PresenceComparator only records that a baseline exists.
type PresenceComparator struct{}

func (PresenceComparator) Name() string         { return ComparatorPresence }
func (PresenceComparator) RequiresPixels() bool { return false }

func (PresenceComparator) Compare(ctx context.Context, current, baseline []byte) (*Result, error) {
	return nil, nil
}

// PixelComparator reports the fraction of pixels whose channels differ by more
// than Tolerance. The capture is scaled to the baseline's bounds first.
type PixelComparator struct {
	Threshold float64
	Tolerance int // per channel, 0-255
}

func (c *PixelComparator) Name() string         { return ComparatorPixel }
func (c *PixelComparator) RequiresPixels() bool { return true }

func (c *PixelComparator) Compare(ctx context.Context, current, baseline []byte) (*Result, error) {
	cur, err := decodePNG(current)
	if err != nil {
		return nil, fmt.Errorf("decode current: %w", err)
	}
	base, err := decodePNG(baseline)
	if err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}

	bounds := base.Bounds()
	if bounds.Empty() {
		return nil, fmt.Errorf("baseline image is empty")
	}
	a := toRGBA(cur, bounds.Dx(), bounds.Dy())
	b := toRGBA(base, bounds.Dx(), bounds.Dy())

	tol := uint8(clamp(c.Tolerance, 0, 255))
	var differing int
	for i := 0; i < len(a.Pix); i += 4 {
		if channelDiff(a.Pix[i], b.Pix[i]) > tol ||
			channelDiff(a.Pix[i+1], b.Pix[i+1]) > tol ||
			channelDiff(a.Pix[i+2], b.Pix[i+2]) > tol ||
			channelDiff(a.Pix[i+3], b.Pix[i+3]) > tol {
			differing++
		}
	}

	diff := float64(differing) / float64(len(a.Pix)/4)
	return &Result{Difference: diff, Matched: diff <= c.Threshold}, nil
}

// HashComparator compares 64-bit average hashes; Difference is the Hamming
// distance divided by 64.
type HashComparator struct {
	Threshold float64
}

func (c *HashComparator) Name() string         { return ComparatorHash }
func (c *HashComparator) RequiresPixels() bool { return true }

func (c *HashComparator) Compare(ctx context.Context, current, baseline []byte) (*Result, error) {
	cur, err := decodePNG(current)
	if err != nil {
		return nil, fmt.Errorf("decode current: %w", err)
	}
	base, err := decodePNG(baseline)
	if err != nil {
		return nil, fmt.Errorf("decode baseline: %w", err)
	}

	distance := bits.OnesCount64(AverageHash(cur) ^ AverageHash(base))
	diff := float64(distance) / 64
	return &Result{Difference: diff, Matched: diff <= c.Threshold}, nil
}

// AverageHash shrinks img to 8x8 grayscale and sets one bit per pixel brighter
// than the mean.
func AverageHash(img image.Image) uint64 {
	small := image.NewGray(image.Rect(0, 0, 8, 8))
	draw.ApproxBiLinear.Scale(small, small.Bounds(), img, img.Bounds(), draw.Src, nil)

	var sum int
	for _, p := range small.Pix {
		sum += int(p)
	}
	mean := sum / len(small.Pix)

	var hash uint64
	for i, p := range small.Pix {
		if int(p) > mean {
			hash |= 1 << uint(i)
		}
	}
	return hash
}

func decodePNG(data []byte) (image.Image, error) {
	return png.Decode(bytes.NewReader(data))
}

func toRGBA(img image.Image, w, h int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	if img.Bounds().Dx() == w && img.Bounds().Dy() == h {
		draw.Draw(dst, dst.Bounds(), img, img.Bounds().Min, draw.Src)
		return dst
	}
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)
	return dst
}

func channelDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

