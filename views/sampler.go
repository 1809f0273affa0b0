// Package views builds the set of square test-time views classified for one image.
package views

import (
	"image"

	"github.com/disintegration/imaging"
)

const DefaultSize = 224

type Kind string

const (
	KindFit    Kind = "fit"
	KindCrop   Kind = "crop"
	KindMirror Kind = "mirror"
	KindScaled Kind = "scaled"
)

// Centre crops taken inside every square crop, as a fraction of its side.
var cropScales = []float64{0.95, 0.85}

// View is one square RGB image derived from the input.
type View struct {
	Image  *image.NRGBA
	Kind   Kind
	Origin image.Point
	Scale  float64
}

type Sampler struct {
	size int
}

func NewSampler(size int) *Sampler {
	if size <= 0 {
		size = DefaultSize
	}
	return &Sampler{size: size}
}

func (s *Sampler) Size() int {
	return s.size
}

// Sample returns the deduplicated views of img. The first view is always the
// centre-anchored fit of the whole image.
func (s *Sampler) Sample(img image.Image) []View {
	rgb := ToRGB(img)
	w, h := rgb.Bounds().Dx(), rgb.Bounds().Dy()
	side := min(w, h)

	candidates := []View{{
		Image: imaging.Fill(rgb, s.size, s.size, imaging.Center, imaging.Linear),
		Kind:  KindFit,
		Scale: 1,
	}}

	for _, pos := range CropPositions(w, h) {
		square := imaging.Crop(rgb, image.Rect(pos.X, pos.Y, pos.X+side, pos.Y+side))
		base := imaging.Resize(square, s.size, s.size, imaging.Linear)

		candidates = append(candidates,
			View{Image: base, Kind: KindCrop, Origin: pos, Scale: 1},
			View{Image: imaging.FlipH(base), Kind: KindMirror, Origin: pos, Scale: 1},
		)

		for _, scale := range cropScales {
			inner := max(1, int(float64(side)*scale))
			off := (side - inner) / 2
			scaled := imaging.Crop(square, image.Rect(off, off, off+inner, off+inner))
			candidates = append(candidates, View{
				Image:  imaging.Resize(scaled, s.size, s.size, imaging.Linear),
				Kind:   KindScaled,
				Origin: pos,
				Scale:  scale,
			})
		}
	}

	return Deduplicate(candidates)
}

// CropPositions returns the top-left offsets of the min(w,h) square crops at the four
// corners and the centre. Coinciding offsets collapse to one, keeping first-seen order.
func CropPositions(w, h int) []image.Point {
	side := min(w, h)
	cx, cy := (w-side)/2, (h-side)/2

	all := []image.Point{
		{0, 0},
		{w - side, 0},
		{0, h - side},
		{w - side, h - side},
		{cx, cy},
	}

	seen := make(map[image.Point]struct{}, len(all))
	positions := make([]image.Point, 0, len(all))
	for _, p := range all {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		positions = append(positions, p)
	}
	return positions
}

// ToRGB copies img into an opaque NRGBA image anchored at the origin.
func ToRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}

// CenterSquare returns the largest centred square of img.
func CenterSquare(img *image.NRGBA) *image.NRGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	side := min(w, h)
	x, y := (w-side)/2, (h-side)/2
	return imaging.Crop(img, image.Rect(x, y, x+side, y+side))
}
