// Package asset defines the core document and location data model shared by
// MetadataStore, the Indexer, QueryEngine, and RepositoryFacade.
package asset

import (
	"sort"
	"strings"
	"time"
)

// Location is a deduplicated place reference. At least one field is non-empty
// whenever a Location is attached to a document (spec.md §3.2).
type Location struct {
	Label  string `cbor:"label,omitempty"`
	City   string `cbor:"city,omitempty"`
	Region string `cbor:"region,omitempty"`
}

// IsZero reports whether every component of the location is empty.
func (l Location) IsZero() bool {
	return l.Label == "" && l.City == "" && l.Region == ""
}

// Description renders "label; city, region" with absent components and their
// separators omitted, per spec.md §3.2.
func (l Location) Description() string {
	var b strings.Builder
	b.WriteString(l.Label)
	if l.City != "" || l.Region != "" {
		if b.Len() > 0 {
			b.WriteString("; ")
		}
		b.WriteString(l.City)
		if l.Region != "" {
			if l.City != "" {
				b.WriteString(", ")
			}
			b.WriteString(l.Region)
		}
	}
	return b.String()
}

// ParseLocation inverts Description: split once on ';', then split the tail
// once on ','. Fewer or excess separators degrade to a label-only location,
// per spec.md §4.F.3.
func ParseLocation(text string) Location {
	text = strings.TrimSpace(text)
	if text == "" {
		return Location{}
	}

	parts := strings.SplitN(text, ";", 2)
	if len(parts) == 1 || strings.Contains(parts[1], ";") || strings.Count(parts[1], ",") > 1 {
		return Location{Label: text}
	}

	label := strings.TrimSpace(parts[0])
	tail := strings.SplitN(parts[1], ",", 2)
	city := strings.TrimSpace(tail[0])
	region := ""
	if len(tail) == 2 {
		region = strings.TrimSpace(tail[1])
	}
	return Location{Label: label, City: city, Region: region}
}

// Dimensions is a non-negative pixel size.
type Dimensions struct {
	Width  int `cbor:"width"`
	Height int `cbor:"height"`
}

// Document is the metadata record for one asset, keyed by its opaque id.
type Document struct {
	ID          string     `cbor:"id"`
	Checksum    string     `cbor:"checksum"`
	Filename    string     `cbor:"filename"`
	Filesize    uint64     `cbor:"filesize"`
	MediaType   string     `cbor:"media_type"`
	Tags        []string   `cbor:"tags"`
	Caption     string     `cbor:"caption,omitempty"`
	Location    *Location  `cbor:"location,omitempty"`
	UserDate    *time.Time `cbor:"user_date,omitempty"`
	OriginalDate *time.Time `cbor:"original_date,omitempty"`
	ImportDate  time.Time  `cbor:"import_date"`
	Dimensions  *Dimensions `cbor:"dimensions,omitempty"`
	Duration    *float64   `cbor:"duration,omitempty"`
	PreviousIDs []string   `cbor:"previous_ids,omitempty"`
}

// BestDate returns the first non-nil of UserDate, OriginalDate, ImportDate
// (spec.md §3.1, property P6).
func (d *Document) BestDate() time.Time {
	if d.UserDate != nil {
		return *d.UserDate
	}
	if d.OriginalDate != nil {
		return *d.OriginalDate
	}
	return d.ImportDate
}

// Newborn reports whether the document lacks tags, caption, and a location
// label — the "pending" state indexed by by_newborn (spec.md §4.C, GLOSSARY).
func (d *Document) Newborn() bool {
	if len(d.Tags) > 0 || d.Caption != "" {
		return false
	}
	if d.Location != nil && d.Location.Label != "" {
		return false
	}
	return true
}

// NormalizeTags deduplicates tags case-insensitively (first-seen case wins),
// drops empties, and returns them sorted — the invariant I4 representation.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MergeTags combines two tag sets, preserving first-seen case and
// deduplicating case-insensitively, then sorts the result.
func MergeTags(existing, additional []string) []string {
	return NormalizeTags(append(append([]string{}, existing...), additional...))
}

// HasTag reports whether tags contains name under case-insensitive comparison.
func HasTag(tags []string, name string) bool {
	name = strings.ToLower(name)
	for _, t := range tags {
		if strings.ToLower(t) == name {
			return true
		}
	}
	return false
}
