// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/pdiddy/paper-pipeline/pkg/types"
)

// ErrNoVerdict is returned when a reply has no usable <is_relevant> tag.
var ErrNoVerdict = errors.New("reply has no relevance verdict")

// Decision is a parsed classifier reply.
type Decision struct {
	Verdict types.Verdict
	Reason  string
	Summary string
}

var tagPatterns = map[string]*regexp.Regexp{}

func tagPattern(tag string) *regexp.Regexp {
	if re, ok := tagPatterns[tag]; ok {
		return re
	}
	return regexp.MustCompile(`(?is)<` + regexp.QuoteMeta(tag) + `>\s*(.*?)\s*</` + regexp.QuoteMeta(tag) + `>`)
}

func init() {
	for _, tag := range []string{"is_relevant", "reason_zh", "reason", "abstract_zh", "translation", "keywords", "prompt"} {
		tagPatterns[tag] = tagPattern(tag)
	}
}

// ExtractTag returns the trimmed content of the first <tag>...</tag> pair in
// text, matching the tag name case-insensitively. It returns "" when absent.
func ExtractTag(text, tag string) string {
	m := tagPattern(tag).FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ParseResponse reads the verdict, reason and translated summary from a
// classifier reply. The reason falls back from <reason_zh> to <reason> and
// the summary from <abstract_zh> to <translation>. Reasons longer than 200
// characters are cut with an ellipsis.
func ParseResponse(text string) (Decision, error) {
	raw := ExtractTag(text, "is_relevant")
	if raw == "" {
		return Decision{}, ErrNoVerdict
	}
	v, ok := parseVerdict(raw)
	if !ok {
		return Decision{}, fmt.Errorf("%w: unrecognized value %q", ErrNoVerdict, truncate(raw, 40))
	}

	reason := ExtractTag(text, "reason_zh")
	if reason == "" {
		reason = ExtractTag(text, "reason")
	}
	summary := ExtractTag(text, "abstract_zh")
	if summary == "" {
		summary = ExtractTag(text, "translation")
	}

	return Decision{Verdict: v, Reason: truncate(reason, maxReasonRunes), Summary: summary}, nil
}

// parseVerdict reads the first word of the tag content.
func parseVerdict(s string) (types.Verdict, bool) {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if len(words) == 0 {
		return types.VerdictUnset, false
	}
	w := words[0]
	switch {
	case w == "true" || w == "yes" || strings.HasPrefix(w, "是"):
		return types.VerdictAccepted, true
	case w == "false" || w == "no" || strings.HasPrefix(w, "否") || strings.HasPrefix(w, "不"):
		return types.VerdictRejected, true
	}
	return types.VerdictUnset, false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
