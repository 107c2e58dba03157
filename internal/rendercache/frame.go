package rendercache

import (
	"bytes"
	"image"
	"image/jpeg"

	"github.com/Eyevinn/mp4ff/mp4"
)

// extractVideoFrame locates a keyframe-adjacent sample in an MP4/MOV
// container and decodes it, per spec.md §4.G. Only Motion-JPEG sample data
// decodes directly with the standard library; other codecs (H.264, HEVC)
// would need a dedicated decoder that is out of scope (full transcoding is
// an explicit Non-goal), so those tracks simply yield no frame and the
// caller caches the sentinel.
func extractVideoFrame(data []byte) (image.Image, error) {
	f, err := mp4.DecodeFile(bytes.NewReader(data))
	if err != nil || f.Moov == nil {
		return nil, nil
	}

	for _, trak := range f.Moov.Traks {
		sample := firstSampleBytes(data, trak)
		if sample == nil {
			continue
		}
		if img, err := jpeg.Decode(bytes.NewReader(sample)); err == nil {
			return img, nil
		}
	}
	return nil, nil
}

// firstSampleBytes slices the first sample of trak directly out of the
// in-memory file using its sample table, the minimum needed to attempt a
// single-frame decode without a streaming demuxer.
func firstSampleBytes(data []byte, trak *mp4.TrakBox) []byte {
	if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return nil
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stco == nil || len(stbl.Stco.ChunkOffset) == 0 {
		return nil
	}

	size := int64(stbl.Stsz.GetSampleSize(1))
	offset := int64(stbl.Stco.ChunkOffset[0])
	if size <= 0 || offset < 0 || offset+size > int64(len(data)) {
		return nil
	}
	return data[offset : offset+size]
}
