package blobstore

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// RelPath derives the date-partitioned relative path for a blob, per
// spec.md §4.A: YYYY/MM/DD/HHMM/<ulid>.<ext>, with minutes floored to the
// nearest quarter hour.
func RelPath(importDate time.Time, id ulid.ULID, ext string) string {
	importDate = importDate.UTC()
	slot := importDate.Minute() / 15 * 15
	ext = strings.TrimPrefix(ext, ".")
	return fmt.Sprintf("%04d/%02d/%02d/%02d%02d/%s.%s",
		importDate.Year(), importDate.Month(), importDate.Day(),
		importDate.Hour(), slot, strings.ToLower(id.String()), ext)
}

// NewULID generates a ULID whose timestamp component is importDate, so that
// insertion order and time order agree (spec.md §4.E step 5).
func NewULID(importDate time.Time) (ulid.ULID, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(importDate.UTC()), entropy)
	if err != nil {
		return ulid.ULID{}, fmt.Errorf("blobstore: generate ulid: %w", err)
	}
	return id, nil
}

// EncodeID maps a relative path to the opaque id stored on the document
// (spec.md §3.1, invariant I3): unpadded, URL-safe base64 of the UTF-8 path.
func EncodeID(relPath string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(relPath))
}

// DecodeID inverts EncodeID, returning a ValidationFailed-flavored error on
// malformed input (invalid base64, or a path escaping the store root).
func DecodeID(id string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return "", fmt.Errorf("blobstore: decode id: %w", err)
	}
	relPath := string(raw)
	if strings.Contains(relPath, "..") || strings.HasPrefix(relPath, "/") {
		return "", fmt.Errorf("blobstore: id decodes to an unsafe path %q", relPath)
	}
	return relPath, nil
}
