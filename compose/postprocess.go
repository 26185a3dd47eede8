package compose

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tutorflow/tutorflow/core"
)

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

// ResolveCitations maps [n] markers to context bundle sources. Markers that
// resolve are kept in the text and reported once per source; markers that
// point outside the bundle are removed. Citations are never fabricated for
// text the model did not mark.
func ResolveCitations(text string, bundle core.ContextBundle) (string, []core.Citation) {
	var citations []core.Citation
	seen := make(map[int]bool)

	resolved := citationMarker.ReplaceAllStringFunc(text, func(marker string) string {
		n, err := strconv.Atoi(marker[1 : len(marker)-1])
		if err != nil || n < 1 || n > len(bundle.Items) {
			return ""
		}
		if !seen[n] {
			seen[n] = true
			citations = append(citations, core.Citation{Marker: n, SourceRef: bundle.Items[n-1].SourceRef})
		}
		return marker
	})

	return resolved, citations
}

// blockTypes are the structured sub-block labels the composer recognizes.
var blockTypes = []string{"reasoning", "quiz", "code"}

// StripMalformedBlocks removes unmatched open/close tags for the known block
// types. Well-formed pairs pass through untouched; a stray tag is deleted
// while its surrounding text is kept, so no malformed segment ever reaches
// the caller.
func StripMalformedBlocks(text string) string {
	for _, bt := range blockTypes {
		text = stripUnpaired(text, bt)
	}
	return text
}

// stripUnpaired pairs each open tag with the next close tag; leftover tags of
// either kind are removed.
func stripUnpaired(text, blockType string) string {
	openTag := fmt.Sprintf("<%s>", blockType)
	closeTag := fmt.Sprintf("</%s>", blockType)

	type tag struct {
		pos   int
		isEnd bool
	}
	var tags []tag
	for i := 0; i+len(openTag) <= len(text); {
		if strings.HasPrefix(text[i:], openTag) {
			tags = append(tags, tag{pos: i})
			i += len(openTag)
			continue
		}
		if strings.HasPrefix(text[i:], closeTag) {
			tags = append(tags, tag{pos: i, isEnd: true})
			i += len(closeTag)
			continue
		}
		i++
	}

	// Match opens to the next close; everything unmatched gets dropped.
	drop := make(map[int]bool)
	var openStack []int
	for idx, t := range tags {
		if !t.isEnd {
			openStack = append(openStack, idx)
			continue
		}
		if len(openStack) == 0 {
			drop[idx] = true
			continue
		}
		openStack = openStack[:len(openStack)-1]
	}
	for _, idx := range openStack {
		drop[idx] = true
	}
	if len(drop) == 0 {
		return text
	}

	var b strings.Builder
	prev := 0
	for idx, t := range tags {
		if !drop[idx] {
			continue
		}
		b.WriteString(text[prev:t.pos])
		if t.isEnd {
			prev = t.pos + len(closeTag)
		} else {
			prev = t.pos + len(openTag)
		}
	}
	b.WriteString(text[prev:])
	return b.String()
}
