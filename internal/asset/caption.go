package asset

import "strings"

// ApplyCaption derives tags and, when the document has no location yet, a
// location label from whitespace-separated #tag and @location tokens in the
// caption (spec.md §4.F.4, property P7). It mutates doc.Tags and, if eligible,
// doc.Location in place; doc.Caption is left untouched.
func ApplyCaption(doc *Document, caption string) {
	tokens := strings.Fields(caption)

	var derivedTags []string
	var locationLabel string
	haveLocation := doc.Location != nil && !doc.Location.IsZero()

	i := 0
	for i < len(tokens) {
		tok := tokens[i]

		switch {
		case strings.HasPrefix(tok, "#"):
			derivedTags = append(derivedTags, splitHashTags(tok)...)
			i++

		case strings.HasPrefix(tok, `@"`):
			phrase, consumed := readQuotedPhrase(tokens, i, `@"`, `"`)
			if !haveLocation && phrase != "" {
				locationLabel = phrase
				haveLocation = true
			}
			i += consumed

		case strings.HasPrefix(tok, "@"):
			label := strings.TrimPrefix(tok, "@")
			if !haveLocation && label != "" {
				locationLabel = label
				haveLocation = true
			}
			i++

		default:
			i++
		}
	}

	if len(derivedTags) > 0 {
		doc.Tags = MergeTags(doc.Tags, derivedTags)
	}
	if locationLabel != "" {
		doc.Location = &Location{Label: locationLabel}
	}
}

// splitHashTags turns a single "#a#b" token into ["a", "b"], dropping empties.
func splitHashTags(tok string) []string {
	parts := strings.Split(tok, "#")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// readQuotedPhrase reassembles a "@\"some phrase\"" span that strings.Fields
// has split on whitespace, returning the inner phrase and the token count
// consumed (at least 1, even on an unterminated quote).
func readQuotedPhrase(tokens []string, start int, openPrefix, closeSuffix string) (string, int) {
	first := strings.TrimPrefix(tokens[start], openPrefix)
	if strings.HasSuffix(first, closeSuffix) && len(first) > 0 {
		return strings.TrimSuffix(first, closeSuffix), 1
	}

	var b strings.Builder
	b.WriteString(first)
	for j := start + 1; j < len(tokens); j++ {
		b.WriteString(" ")
		tok := tokens[j]
		if strings.HasSuffix(tok, closeSuffix) {
			b.WriteString(strings.TrimSuffix(tok, closeSuffix))
			return b.String(), j - start + 1
		}
		b.WriteString(tok)
	}
	// Unterminated quote: treat the rest of the caption as the phrase.
	return b.String(), len(tokens) - start
}
