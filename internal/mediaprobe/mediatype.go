package mediaprobe

import (
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DetectMediaType prefers magic-byte sniffing and falls back to the file
// extension, normalizing quicktime to video/quicktime per spec.md §4.D.
func DetectMediaType(head []byte, filename string) string {
	if len(head) > 0 {
		mt := mimetype.Detect(head)
		if t := normalize(mt.String()); t != "" && t != "application/octet-stream" {
			return t
		}
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if t := mime.TypeByExtension(ext); t != "" {
		if semicolon := strings.IndexByte(t, ';'); semicolon >= 0 {
			t = t[:semicolon]
		}
		return normalize(t)
	}

	return "application/octet-stream"
}

func normalize(mediaType string) string {
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))
	if mediaType == "video/quicktime" || mediaType == "application/quicktime" {
		return "video/quicktime"
	}
	return mediaType
}

// Category returns the top-level media category used by the advanced
// query's is:<type> predicate (spec.md §4.F.2): image, video, audio, pdf,
// text, or "" when unrecognized.
func Category(mediaType string) string {
	switch {
	case strings.HasPrefix(mediaType, "image/"):
		return "image"
	case strings.HasPrefix(mediaType, "video/"):
		return "video"
	case strings.HasPrefix(mediaType, "audio/"):
		return "audio"
	case mediaType == "application/pdf":
		return "pdf"
	case strings.HasPrefix(mediaType, "text/"):
		return "text"
	default:
		return ""
	}
}

// Subtype returns the media subtype used by format:<subtype> (e.g. "jpeg"
// from "image/jpeg").
func Subtype(mediaType string) string {
	_, sub, ok := strings.Cut(mediaType, "/")
	if !ok {
		return ""
	}
	return sub
}

// sniffHead reads up to n bytes for magic-byte detection without consuming
// more of the underlying reader than necessary.
func sniffHead(data []byte, n int) []byte {
	if len(data) <= n {
		return data
	}
	return data[:n]
}
