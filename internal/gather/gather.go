// Package gather fans sub-queries out across source adapters, collects
// their documents concurrently, and normalizes the combined result:
// deduplicated by URL and sorted newest first. Individual adapter
// failures are soft; they are recorded as strings and never abort the
// rest of the fan-out.
package gather

import (
	"sort"

	"clipbrief/internal/core"
)

// Result is the outcome of one coordinator run.
type Result struct {
	Documents   []core.Document
	SourcesUsed []string
	Errors      []string
}

// dedupeByURL keeps the first occurrence of each URL, preserving order.
func dedupeByURL(docs []core.Document) []core.Document {
	seen := make(map[string]bool, len(docs))
	out := docs[:0:0]
	for _, d := range docs {
		if seen[d.URL] {
			continue
		}
		seen[d.URL] = true
		out = append(out, d)
	}
	return out
}

// sortNewestFirst orders documents by publication time descending.
// Documents without a publication time sink to the end.
func sortNewestFirst(docs []core.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].PublishedOrZero().After(docs[j].PublishedOrZero())
	})
}

// distinct returns the unique values in order of first appearance.
func distinct(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
