package mediaprobe

import (
	"io"
	"time"

	goexif "github.com/rwcarlsen/goexif/exif"
)

type exifData struct {
	dateTime    *time.Time
	width       int
	height      int
	orientation int
	lat, long   *float64
}

// decodeEXIF parses EXIF tags out of an image stream. EXIF 2.30 datetimes
// carry no timezone; per spec.md §9's open question, the probe stores
// whatever instant is reported as a naive UTC instant without guessing a
// zone — callers needing local-time display own that decision.
func decodeEXIF(r io.Reader) (exifData, error) {
	x, err := goexif.Decode(r)
	if err != nil {
		return exifData{}, err
	}

	var out exifData

	if dt, err := x.DateTime(); err == nil {
		utc := dt.UTC()
		out.dateTime = &utc
	}

	if tag, err := x.Get(goexif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			out.orientation = v
		}
	} else {
		out.orientation = 1
	}

	if tag, err := x.Get(goexif.PixelXDimension); err == nil {
		if v, err := tag.Int(0); err == nil {
			out.width = v
		}
	}
	if tag, err := x.Get(goexif.PixelYDimension); err == nil {
		if v, err := tag.Int(0); err == nil {
			out.height = v
		}
	}

	if lat, long, err := x.LatLong(); err == nil {
		out.lat = &lat
		out.long = &long
	}

	return out, nil
}
