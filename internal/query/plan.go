package query

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/nlfiedler/tanuki/internal/indexer"
)

// Selection is the attribute-selection UI's input (spec.md §4.F.1): zero or
// more tags, years, and locations, plus an optional media-type filter. Tags
// are AND, years are OR, locations are OR, and the categories combine with
// AND. An entirely empty selection matches nothing — the explicit safety
// rule that keeps an unconfigured browse view from returning the whole
// library.
type Selection struct {
	Tags      []string
	Years     []int
	Locations []string
	MediaType string
}

// Empty reports whether the selection has no criteria at all.
func (s Selection) Empty() bool {
	return len(s.Tags) == 0 && len(s.Years) == 0 && len(s.Locations) == 0 && s.MediaType == ""
}

// Resolve runs the attribute-selection planner: narrowest index first
// (by_tag intersection, then by_year range, then by_location, then
// by_media_type), filtering in memory for whatever the chosen index
// doesn't directly narrow (spec.md §4.F.1).
func Resolve(ctx context.Context, ix *indexer.Indexer, sel Selection) ([]string, error) {
	if sel.Empty() {
		return nil, nil
	}

	var candidates map[string]struct{}
	haveCandidates := false

	intersect := func(ids []string) {
		next := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			if !haveCandidates {
				next[id] = struct{}{}
				continue
			}
			if _, ok := candidates[id]; ok {
				next[id] = struct{}{}
			}
		}
		candidates = next
		haveCandidates = true
	}

	if len(sel.Tags) > 0 {
		ids, err := intersectTags(ctx, ix, sel.Tags)
		if err != nil {
			return nil, err
		}
		intersect(ids)
	}

	if len(sel.Years) > 0 {
		ids, err := unionKeys(ctx, ix, indexer.ViewYear, yearKeys(sel.Years))
		if err != nil {
			return nil, err
		}
		intersect(ids)
	}

	if len(sel.Locations) > 0 {
		locs := lowerAll(sel.Locations)
		ids, err := unionKeys(ctx, ix, indexer.ViewLocationLbl, locs)
		if err != nil {
			return nil, err
		}
		cityIDs, err := unionKeys(ctx, ix, indexer.ViewLocationCity, locs)
		if err != nil {
			return nil, err
		}
		regionIDs, err := unionKeys(ctx, ix, indexer.ViewLocationRgn, locs)
		if err != nil {
			return nil, err
		}
		ids = append(ids, cityIDs...)
		ids = append(ids, regionIDs...)
		intersect(dedupeIDs(ids))
	}

	if sel.MediaType != "" {
		ids, err := ix.IDsForKey(ctx, indexer.ViewMediaType, strings.ToLower(sel.MediaType))
		if err != nil {
			return nil, err
		}
		intersect(ids)
	}

	out := make([]string, 0, len(candidates))
	for id := range candidates {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// intersectTags ANDs membership across every selected tag, since tags is the
// narrowest and most selective category (spec.md §4.F.1).
func intersectTags(ctx context.Context, ix *indexer.Indexer, tags []string) ([]string, error) {
	var result map[string]struct{}
	for i, tag := range tags {
		ids, err := ix.IDsForKey(ctx, indexer.ViewTag, strings.ToLower(tag))
		if err != nil {
			return nil, err
		}
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		if i == 0 {
			result = set
			continue
		}
		for id := range result {
			if _, ok := set[id]; !ok {
				delete(result, id)
			}
		}
	}
	out := make([]string, 0, len(result))
	for id := range result {
		out = append(out, id)
	}
	return out, nil
}

func unionKeys(ctx context.Context, ix *indexer.Indexer, view string, keys []string) ([]string, error) {
	var out []string
	for _, key := range keys {
		ids, err := ix.IDsForKey(ctx, view, key)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
	}
	return out, nil
}

func yearKeys(years []int) []string {
	out := make([]string, len(years))
	for i, y := range years {
		out[i] = strconv.Itoa(y)
	}
	return out
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}

func dedupeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
