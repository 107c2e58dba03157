package asset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocationDescriptionRoundTrip(t *testing.T) {
	cases := []struct {
		loc    Location
		want   string
		parsed Location
	}{
		{Location{Label: "Home"}, "Home", Location{Label: "Home"}},
		// Without a label there is no ';', so parsing degrades to label-only.
		{Location{City: "Paris", Region: "IDF"}, "Paris, IDF", Location{Label: "Paris, IDF"}},
		{Location{Label: "Office", City: "Paris"}, "Office; Paris", Location{Label: "Office", City: "Paris"}},
		{Location{Label: "Office", City: "Paris", Region: "IDF"}, "Office; Paris, IDF", Location{Label: "Office", City: "Paris", Region: "IDF"}},
		{Location{}, "", Location{}},
	}

	for _, c := range cases {
		got := c.loc.Description()
		assert.Equal(t, c.want, got)

		parsed := ParseLocation(got)
		require.Equal(t, c.parsed, parsed, "round trip for %q", got)
	}
}

func TestParseLocationDegradesOnSeparatorMismatch(t *testing.T) {
	assert.Equal(t, Location{Label: "just a label"}, ParseLocation("just a label"))
	assert.Equal(t, Location{Label: "a", City: "b"}, ParseLocation("a;b"))
	assert.Equal(t, Location{Label: "a;b,c, d"}, ParseLocation("a;b,c, d"))
	assert.Equal(t, Location{}, ParseLocation(""))
}

func TestNormalizeTagsDedupesCaseInsensitive(t *testing.T) {
	got := NormalizeTags([]string{"Cat", "dog", "cat", "", "  ", "Dog"})
	assert.Equal(t, []string{"Cat", "dog"}, got)
}

func TestApplyCaptionDerivesTagsAndLocation(t *testing.T) {
	doc := &Document{}
	ApplyCaption(doc, "#cat @outdoors #mouse")

	assert.Equal(t, []string{"cat", "mouse"}, doc.Tags)
	require.NotNil(t, doc.Location)
	assert.Equal(t, "outdoors", doc.Location.Label)
}

func TestApplyCaptionLeavesExistingLocationAlone(t *testing.T) {
	doc := &Document{Location: &Location{Label: "Paris"}}
	ApplyCaption(doc, "#cat @somewhereElse")

	assert.Equal(t, []string{"cat"}, doc.Tags)
	assert.Equal(t, "Paris", doc.Location.Label)
}

func TestApplyCaptionQuotedLocationPhrase(t *testing.T) {
	doc := &Document{}
	ApplyCaption(doc, `#trip @"New York City" #fun`)

	assert.Equal(t, []string{"fun", "trip"}, doc.Tags)
	require.NotNil(t, doc.Location)
	assert.Equal(t, "New York City", doc.Location.Label)
}

func TestDocumentBestDate(t *testing.T) {
	doc := &Document{}
	doc.ImportDate = mustTime("2020-01-01T00:00:00Z")
	assert.Equal(t, doc.ImportDate, doc.BestDate())

	orig := mustTime("2019-01-01T00:00:00Z")
	doc.OriginalDate = &orig
	assert.Equal(t, orig, doc.BestDate())

	user := mustTime("2018-01-01T00:00:00Z")
	doc.UserDate = &user
	assert.Equal(t, user, doc.BestDate())
}

func TestDocumentNewborn(t *testing.T) {
	doc := &Document{}
	assert.True(t, doc.Newborn())

	doc.Tags = []string{"x"}
	assert.False(t, doc.Newborn())

	doc = &Document{Caption: "hi"}
	assert.False(t, doc.Newborn())

	doc = &Document{Location: &Location{City: "Paris"}}
	assert.True(t, doc.Newborn(), "location without a label does not disqualify newborn")

	doc.Location.Label = "Office"
	assert.False(t, doc.Newborn())
}
