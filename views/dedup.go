package views

import (
	"hash/crc32"
	"image"

	"github.com/disintegration/imaging"
)

const ThumbnailSize = 32

// Checksum hashes the RGB bytes of a ThumbnailSize×ThumbnailSize downscale of img.
func Checksum(img image.Image) uint32 {
	thumb := imaging.Resize(img, ThumbnailSize, ThumbnailSize, imaging.Linear)

	rgb := make([]byte, 0, ThumbnailSize*ThumbnailSize*3)
	for i := 0; i < len(thumb.Pix); i += 4 {
		rgb = append(rgb, thumb.Pix[i], thumb.Pix[i+1], thumb.Pix[i+2])
	}
	return crc32.ChecksumIEEE(rgb)
}

// Deduplicate keeps the first view for every thumbnail checksum.
func Deduplicate(views []View) []View {
	seen := make(map[uint32]struct{}, len(views))
	out := make([]View, 0, len(views))
	for _, v := range views {
		sum := Checksum(v.Image)
		if _, ok := seen[sum]; ok {
			continue
		}
		seen[sum] = struct{}{}
		out = append(out, v)
	}
	return out
}
