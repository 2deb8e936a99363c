// Package search holds the pure ranking core: tokenization, filter
// predicates, the relevance formula, and sorting/pagination. Nothing in this
// package blocks or mutates shared state, so rankings for concurrent requests
// need no coordination.
package search

import "strings"

// Tokenize splits a raw query into lowercase non-empty terms. An empty or
// whitespace-only query yields no terms, which the orchestrator treats as
// filter-only browsing.
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return nil
	}
	return fields
}
