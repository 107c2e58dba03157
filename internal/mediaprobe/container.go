package mediaprobe

import (
	"bytes"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/go-audio/riff"

	"github.com/nlfiedler/tanuki/internal/asset"
)

// mp4Epoch is the MP4/QuickTime movie-header epoch, 1904-01-01 UTC; mvhd
// creation times are seconds since this instant.
var mp4Epoch = time.Date(1904, 1, 1, 0, 0, 0, 0, time.UTC)

// probeVideoContainer reads the MP4/MOV movie header for creation time,
// track dimensions, and duration (spec.md §4.D).
func probeVideoContainer(data []byte, mediaType string, res *Result) {
	f, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil || f.Moov == nil {
		return
	}

	mvhd := f.Moov.Mvhd
	if mvhd.Timescale > 0 {
		seconds := float64(mvhd.DurationV0) / float64(mvhd.Timescale)
		res.Duration = &seconds
	}
	if mvhd.CreationTime > 0 {
		created := mp4Epoch.Add(time.Duration(mvhd.CreationTime) * time.Second)
		res.OriginalDate = &created
	}

	for _, trak := range f.Moov.Traks {
		if trak.Tkhd == nil {
			continue
		}
		w := int(trak.Tkhd.Width >> 16)
		h := int(trak.Tkhd.Height >> 16)
		if w > 0 && h > 0 {
			res.Dimensions = &asset.Dimensions{Width: w, Height: h}
			break
		}
	}
}

// probeRIFF reads an AVI/WAV RIFF header for duration (spec.md §4.D). The
// WAV "fmt " chunk's byte rate combined with the "data" chunk's size gives
// duration without decoding any samples; a container lacking either chunk
// simply leaves Duration unset.
func probeRIFF(data []byte, res *Result) {
	p := riff.New(bytes.NewReader(data))
	if err := p.ParseHeaders(); err != nil {
		return
	}

	for {
		chunk, err := p.NextChunk()
		if err != nil || chunk == nil {
			return
		}
		switch chunk.ID {
		case riff.FmtID:
			if err := chunk.DecodeWAVHeader(p); err == nil && p.WavAudioFormat != nil {
				rate := p.WavAudioFormat.AvgBytesPerSec
				if dataChunk, err := p.NextChunk(); err == nil && dataChunk != nil && rate > 0 {
					seconds := float64(dataChunk.Size) / float64(rate)
					res.Duration = &seconds
				}
				return
			}
		default:
			chunk.Drain()
		}
	}
}
