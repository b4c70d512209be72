// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-pipeline stages:
// the Paper record that flows from crawl to report, and the configuration
// structs for each stage.
package types

import (
	"fmt"
	"strings"
)

// Source identifies the catalog a Paper was crawled from.
type Source string

const (
	SourceOpenReview Source = "openreview"
	SourceArxiv      Source = "arxiv"
)

// IsVenue reports whether papers from this source come from a refereed venue.
func (s Source) IsVenue() bool {
	return s == SourceOpenReview
}

// Verdict is the outcome of the relevance filter for one paper.
type Verdict string

const (
	VerdictUnset    Verdict = ""
	VerdictAccepted Verdict = "accepted"
	VerdictRejected Verdict = "rejected"
	// VerdictError marks a paper whose classification call failed.
	VerdictError Verdict = "error"
)

// Paper is a single candidate paper. Adapters create it, the citation
// enricher annotates arXiv papers, and the relevance filter sets the verdict.
type Paper struct {
	// Title is the paper title as returned by the source.
	Title string `json:"title" yaml:"title"`

	// Abstract is the paper abstract with newlines folded.
	Abstract string `json:"abstract" yaml:"abstract"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors" yaml:"authors"`

	// Affiliations lists institution hints (e.g. email domains) when the source has them.
	Affiliations []string `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`

	// Keywords is the catalog's own keyword or category field.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// Venue is a display tag such as "ICLR 2025" or "arXiv".
	Venue string `json:"venue" yaml:"venue"`

	// Year is the conference year or the preprint publication year.
	Year int `json:"year" yaml:"year"`

	// URL links to the paper's landing page.
	URL string `json:"url" yaml:"url"`

	// ArxivID is the version-less arXiv identifier, when known.
	ArxivID string `json:"arxiv_id,omitempty" yaml:"arxiv_id,omitempty"`

	// CitationCount is nil when the count is unknown.
	CitationCount *int `json:"citation_count,omitempty" yaml:"citation_count,omitempty"`

	// Source identifies which adapter produced this paper.
	Source Source `json:"source" yaml:"source"`

	// Verdict is set once by the relevance filter.
	Verdict Verdict `json:"verdict,omitempty" yaml:"verdict,omitempty"`

	// Reason is the classifier's justification, or the error text for VerdictError.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	// TranslatedSummary is an optional translated abstract from the classifier.
	TranslatedSummary string `json:"translated_summary,omitempty" yaml:"translated_summary,omitempty"`
}

// NormalizedTitle returns the dedup key: the title lowercased with runs of
// whitespace collapsed to one space.
func (p Paper) NormalizedTitle() string {
	return NormalizeTitle(p.Title)
}

// NormalizeTitle lowercases title and collapses whitespace.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// HasCitations reports whether the citation count is known.
func (p Paper) HasCitations() bool {
	return p.CitationCount != nil
}

// SetCitations records a known citation count.
func (p *Paper) SetCitations(n int) {
	p.CitationCount = &n
}

// Clone returns a deep copy so callers never share slices or the citation
// pointer with the original.
func (p Paper) Clone() Paper {
	c := p
	c.Authors = cloneStrings(p.Authors)
	c.Affiliations = cloneStrings(p.Affiliations)
	c.Keywords = cloneStrings(p.Keywords)
	if p.CitationCount != nil {
		n := *p.CitationCount
		c.CitationCount = &n
	}
	return c
}

// ClonePapers deep-copies a slice of papers.
func ClonePapers(papers []Paper) []Paper {
	if papers == nil {
		return nil
	}
	out := make([]Paper, len(papers))
	for i, p := range papers {
		out[i] = p.Clone()
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

// Venue is a supported OpenReview conference.
type Venue string

const (
	VenueICLR    Venue = "ICLR"
	VenueICML    Venue = "ICML"
	VenueNeurIPS Venue = "NEURIPS"
	VenueACL     Venue = "ACL"
)

// AllVenues lists the supported venues in default crawl order.
var AllVenues = []Venue{VenueICLR, VenueICML, VenueNeurIPS, VenueACL}

// ParseVenue maps a user-supplied tag to a Venue. Matching is
// case-insensitive and "NIPS" is accepted as an alias for NeurIPS.
func ParseVenue(s string) (Venue, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ICLR":
		return VenueICLR, nil
	case "ICML":
		return VenueICML, nil
	case "NEURIPS", "NIPS":
		return VenueNeurIPS, nil
	case "ACL":
		return VenueACL, nil
	}
	return "", fmt.Errorf("unsupported venue %q (supported: ICLR, ICML, NEURIPS, ACL)", s)
}

// ParseVenues parses a list of venue tags, dropping duplicates while keeping order.
func ParseVenues(tags []string) ([]Venue, error) {
	var venues []Venue
	seen := make(map[Venue]bool)
	for _, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			continue
		}
		v, err := ParseVenue(tag)
		if err != nil {
			return nil, err
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		venues = append(venues, v)
	}
	return venues, nil
}
