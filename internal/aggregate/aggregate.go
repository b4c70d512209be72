// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package aggregate merges the per-source paper streams into one candidate
// set. It applies the citation threshold to preprints, removes duplicate
// titles, and groups the survivors by venue. Aggregate is pure: it never
// mutates its input and the same input always yields the same output.
package aggregate

import (
	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// Options controls aggregation.
type Options struct {
	// MinCitations is the inclusive threshold for preprints. Preprints with
	// an unknown count never pass.
	MinCitations int
}

// Result is the aggregated candidate set.
type Result struct {
	Papers []types.Paper

	// DupsRemoved counts papers dropped because a retained paper shares
	// their normalized title.
	DupsRemoved int

	// BelowThreshold counts preprints dropped by the citation threshold.
	BelowThreshold int
}

// PassesThreshold reports whether p may be retained under the citation rule.
// Venue papers always pass; preprints need a known count of at least threshold.
func PassesThreshold(p types.Paper, threshold int) bool {
	if p.Source.IsVenue() {
		return true
	}
	return p.HasCitations() && *p.CitationCount >= threshold
}

// Aggregate merges streams given in adapter order.
//
// Duplicates are resolved by normalized title. A venue paper always beats a
// preprint with the same title, even when the preprint came first: the
// preprint is dropped and the venue paper keeps its own position. Between
// two papers of the same kind the first one encountered wins.
//
// The output is grouped by Venue label in the order labels were first seen,
// keeping discovery order within each group.
func Aggregate(streams [][]types.Paper, opts Options) Result {
	var res Result

	type slot struct {
		paper   types.Paper
		dropped bool
	}
	var slots []slot
	byTitle := make(map[string]int)

	for _, stream := range streams {
		for _, p := range stream {
			if !PassesThreshold(p, opts.MinCitations) {
				res.BelowThreshold++
				continue
			}

			key := p.NormalizedTitle()
			prev, seen := byTitle[key]
			if !seen {
				byTitle[key] = len(slots)
				slots = append(slots, slot{paper: p})
				continue
			}

			res.DupsRemoved++
			if p.Source.IsVenue() && !slots[prev].paper.Source.IsVenue() {
				slots[prev].dropped = true
				byTitle[key] = len(slots)
				slots = append(slots, slot{paper: p})
			}
		}
	}

	var (
		order  []string
		groups = make(map[string][]types.Paper)
	)
	for _, s := range slots {
		if s.dropped {
			continue
		}
		v := s.paper.Venue
		if _, ok := groups[v]; !ok {
			order = append(order, v)
		}
		groups[v] = append(groups[v], s.paper.Clone())
	}

	res.Papers = make([]types.Paper, 0, len(slots))
	for _, v := range order {
		res.Papers = append(res.Papers, groups[v]...)
	}
	return res
}
