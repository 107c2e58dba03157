// Package mediaprobe extracts original datetime, dimensions, duration, and
// GPS from image/video/audio containers (spec.md §4.D). Every probe
// operation returns a best-effort Result and no error: a missing field or a
// container that cannot be parsed is recovered locally by leaving the
// affected fields absent (spec.md §7).
package mediaprobe

import (
	"bytes"
	"io"
	"time"

	"github.com/nlfiedler/tanuki/internal/asset"
)

// Result carries everything MediaProbe could determine about one asset.
type Result struct {
	MediaType    string
	OriginalDate *time.Time
	Dimensions   *asset.Dimensions
	Duration     *float64
	GPSLat       *float64
	GPSLong      *float64
	Orientation  int // EXIF orientation tag value; 0/1 means identity
}

const sniffWindow = 512

// Probe reads data (the whole asset, already in memory from the ingest
// pipeline's hashing pass; container parsers also receive the whole data)
// and returns a best-effort Result. filename supplies the extension fallback
// for media-type detection.
func Probe(data []byte, filename string) Result {
	head := data
	if len(head) > sniffWindow {
		head = head[:sniffWindow]
	}
	mediaType := DetectMediaType(head, filename)

	res := Result{MediaType: mediaType}

	switch Category(mediaType) {
	case "image":
		probeImage(data, &res)
	case "video":
		probeVideoContainer(data, mediaType, &res)
	case "audio":
		probeRIFF(data, &res)
	}

	return res
}

func probeImage(data []byte, res *Result) {
	d, err := decodeEXIF(bytes.NewReader(data))
	if err != nil {
		// DecodeFailed is recovered locally: optional fields stay absent.
		return
	}
	if d.dateTime != nil {
		res.OriginalDate = d.dateTime
	}
	if d.width > 0 && d.height > 0 {
		res.Dimensions = &asset.Dimensions{Width: d.width, Height: d.height}
	}
	res.Orientation = d.orientation
	res.GPSLat = d.lat
	res.GPSLong = d.long
}

// NeedsOrientationFix reports whether an EXIF orientation value is
// non-identity (spec.md §4.E step 7): values 2 through 8 require a pixel
// rewrite.
func NeedsOrientationFix(orientation int) bool {
	return orientation >= 2 && orientation <= 8
}

// drainHeader reads up to n bytes from r for container-header parsing
// without requiring the whole file in memory.
func drainHeader(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}
