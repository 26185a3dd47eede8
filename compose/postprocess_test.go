package compose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutorflow/tutorflow/core"
	"github.com/tutorflow/tutorflow/internal/testutil"
)

func testBundle() core.ContextBundle {
	return testutil.NewBundleBuilder().
		Item("cs101/w1", "first", 0.9).
		Item("cs101/w2", "second", 0.4).
		Build()
}

func TestResolveCitations_InRangeMarkersKept(t *testing.T) {
	text, citations := ResolveCitations("See [1] and also [2].", testBundle())
	assert.Equal(t, "See [1] and also [2].", text)
	require.Len(t, citations, 2)
	assert.Equal(t, core.Citation{Marker: 1, SourceRef: "cs101/w1"}, citations[0])
	assert.Equal(t, core.Citation{Marker: 2, SourceRef: "cs101/w2"}, citations[1])
}

func TestResolveCitations_OutOfRangeMarkersDropped(t *testing.T) {
	text, citations := ResolveCitations("Valid [1], bogus [7], zero [0].", testBundle())
	assert.Equal(t, "Valid [1], bogus , zero .", text)
	require.Len(t, citations, 1)
	assert.Equal(t, 1, citations[0].Marker)
}

func TestResolveCitations_RepeatedMarkerReportedOnce(t *testing.T) {
	_, citations := ResolveCitations("[1] then [1] again", testBundle())
	assert.Len(t, citations, 1)
}

func TestResolveCitations_NoMarkersNoCitations(t *testing.T) {
	text, citations := ResolveCitations("plain answer", testBundle())
	assert.Equal(t, "plain answer", text)
	assert.Empty(t, citations, "citations are never fabricated")
}

func TestStripMalformedBlocks_WellFormedUntouched(t *testing.T) {
	in := "intro <reasoning>step by step</reasoning> then <quiz>q?</quiz> done"
	assert.Equal(t, in, StripMalformedBlocks(in))
}

func TestStripMalformedBlocks_StrayOpenTagRemoved(t *testing.T) {
	got := StripMalformedBlocks("before <reasoning>dangling text")
	assert.Equal(t, "before dangling text", got)
}

func TestStripMalformedBlocks_StrayCloseTagRemoved(t *testing.T) {
	got := StripMalformedBlocks("orphan</quiz> tail")
	assert.Equal(t, "orphan tail", got)
}

func TestStripMalformedBlocks_MixedTypes(t *testing.T) {
	got := StripMalformedBlocks("<code>x := 1</code> and <quiz>unclosed")
	assert.Equal(t, "<code>x := 1</code> and unclosed", got)
}

func TestFinalize_StripsThenResolves(t *testing.T) {
	raw := "Look at [1] <reasoning>unclosed and bogus [9]"
	text, citations, err := Finalize(raw, testBundle())
	require.NoError(t, err)
	assert.Equal(t, "Look at [1] unclosed and bogus ", text)
	require.Len(t, citations, 1)
	assert.Equal(t, "cs101/w1", citations[0].SourceRef)
}
