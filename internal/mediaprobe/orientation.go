package mediaprobe

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/nlfiedler/tanuki/internal/asset"
)

// CorrectOrientation rewrites pixels to canonical (top-left) orientation for
// the eight EXIF orientation values and re-encodes as JPEG, per spec.md
// §4.E step 7. It returns the corrected bytes and the new dimensions.
func CorrectOrientation(data []byte, orientation int) ([]byte, asset.Dimensions, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, asset.Dimensions{}, err
	}

	rotated := applyOrientation(img, orientation)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rotated, &jpeg.Options{Quality: 92}); err != nil {
		return nil, asset.Dimensions{}, err
	}

	b := rotated.Bounds()
	return buf.Bytes(), asset.Dimensions{Width: b.Dx(), Height: b.Dy()}, nil
}

// applyOrientation maps EXIF orientation 2-8 onto a flip/rotate transform.
// 1 (and any unrecognized value) is the identity and is returned unchanged.
func applyOrientation(src image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return flipH(src)
	case 3:
		return rotate180(src)
	case 4:
		return rotate180(flipH(src))
	case 5:
		return flipH(rotate90(src))
	case 6:
		return rotate90(src)
	case 7:
		return flipH(rotate270(src))
	case 8:
		return rotate270(src)
	default:
		return src
	}
}

func flipH(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-(x-b.Min.X), y, src.At(x, y))
		}
	}
	return dst
}

func rotate180(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.X-1-(x-b.Min.X), b.Max.Y-1-(y-b.Min.Y), src.At(x, y))
		}
	}
	return dst
}

func rotate90(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(b.Max.Y-1-(y-b.Min.Y), x-b.Min.X, src.At(x, y))
		}
	}
	return dst
}

func rotate270(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dy(), b.Dx()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.Set(y-b.Min.Y, b.Max.X-1-(x-b.Min.X), src.At(x, y))
		}
	}
	return dst
}
