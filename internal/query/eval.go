package query

import (
	"strings"

	"github.com/nlfiedler/tanuki/internal/asset"
	"github.com/nlfiedler/tanuki/internal/mediaprobe"
)

// Matches reports whether doc satisfies the query rooted at n.
func Matches(n *Node, doc *asset.Document) bool {
	switch n.Kind {
	case NodeAnd:
		for _, c := range n.Children {
			if !Matches(c, doc) {
				return false
			}
		}
		return true
	case NodeOr:
		for _, c := range n.Children {
			if Matches(c, doc) {
				return true
			}
		}
		return false
	case NodeNot:
		return !Matches(n.Children[0], doc)
	case NodePredicate:
		return matchPredicate(n, doc)
	default:
		return false
	}
}

func matchPredicate(n *Node, doc *asset.Document) bool {
	switch n.PredKind {
	case PredIs:
		return strings.EqualFold(mediaprobe.Category(doc.MediaType), n.Arg)
	case PredFormat:
		return strings.EqualFold(mediaprobe.Subtype(doc.MediaType), n.Arg)
	case PredTag:
		return asset.HasTag(doc.Tags, n.Arg)
	case PredLocAny:
		return locationContains(doc.Location, n.Arg)
	case PredLocLabel:
		return doc.Location != nil && strings.EqualFold(doc.Location.Label, n.Arg)
	case PredLocCity:
		return doc.Location != nil && strings.EqualFold(doc.Location.City, n.Arg)
	case PredLocRegion:
		return doc.Location != nil && strings.EqualFold(doc.Location.Region, n.Arg)
	case PredBefore:
		return doc.BestDate().Before(n.ArgDate)
	case PredAfter:
		return doc.BestDate().After(n.ArgDate)
	default:
		return false
	}
}

// locationContains is the loc:any match: case-insensitive substring test
// against whichever location fields are populated (spec.md §4.F.2).
func locationContains(loc *asset.Location, needle string) bool {
	if loc == nil {
		return false
	}
	needle = strings.ToLower(needle)
	for _, field := range []string{loc.Label, loc.City, loc.Region} {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
