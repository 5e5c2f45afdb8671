package openfda

import (
	"fmt"
	"strings"
)

// MaxStrategies caps the number of query formulations tried per source.
const MaxStrategies = 3

// BuildQueries generates the ordered list of search expressions to try for a
// free-text query against one source. The API only supports literal and
// prefix token matching per field, so no single formulation has acceptable
// recall; the retriever runs each in turn and merges results.
//
// Priority order:
//  1. conjunctive: every word must match within one field, any field may win
//  2. per-word disjunctive: each meaningful word across all fields
//  3. exact phrase: the verbatim query against every field
func BuildQueries(query string, kind SourceKind) []string {
	fields := SearchFields(kind)
	if len(fields) == 0 {
		return nil
	}
	words := strings.Fields(strings.ToLower(strings.TrimSpace(query)))
	if len(words) == 0 {
		return nil
	}

	var queries []string

	if len(words) > 1 {
		perField := make([]string, 0, len(fields))
		for _, field := range fields {
			conds := make([]string, 0, len(words))
			for _, word := range words {
				conds = append(conds, fmt.Sprintf("%s:%s", field, word))
			}
			perField = append(perField, "("+strings.Join(conds, " AND ")+")")
		}
		queries = append(queries, "("+strings.Join(perField, " OR ")+")")
	}

	for _, word := range words {
		if len(word) <= 2 {
			continue
		}
		conds := make([]string, 0, len(fields))
		for _, field := range fields {
			conds = append(conds, fmt.Sprintf("%s:%s", field, word))
		}
		queries = append(queries, "("+strings.Join(conds, " OR ")+")")
	}

	if len(words) == 1 {
		phrase := words[0]
		conds := make([]string, 0, len(fields))
		for _, field := range fields {
			conds = append(conds, fmt.Sprintf("%s:%s", field, phrase))
		}
		queries = append(queries, "("+strings.Join(conds, " OR ")+")")
	}

	if len(queries) > MaxStrategies {
		queries = queries[:MaxStrategies]
	}
	return queries
}
