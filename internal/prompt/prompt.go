// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prompt turns a free-text research description into search
// keywords and a relevance prompt by asking an LLM.
package prompt

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/pdiddy/paper-pipeline/internal/logger"
	"github.com/pdiddy/paper-pipeline/internal/relevance"
)

// MaxKeywords caps the number of generated keywords.
const MaxKeywords = 8

// ErrEmptyDescription is returned when there is nothing to generate from.
var ErrEmptyDescription = errors.New("research description is empty")

// Completer runs one system+user chat completion.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Generated is the generator's output.
type Generated struct {
	Keywords []string
	// Prompt is the relevance template. It falls back to
	// relevance.DefaultTemplate when the model produced none.
	Prompt string
	// DefaultPrompt reports whether the fallback template is in use.
	DefaultPrompt bool
}

// Generator asks a model for keywords and a relevance prompt.
type Generator struct {
	Completer Completer
}

const systemPrompt = "You are a research assistant who turns a description of a research interest into precise paper search keywords and a screening prompt."

const generatorTemplate = `A user describes the research direction they care about. You must:

1. Produce 4-6 precise paper search keywords.
2. Produce a prompt that screens papers for relevance.

User description:
{description}

## Task 1: search keywords

- Keywords must be specific enough to target the user's direction.
- Avoid broad terms such as "large language model", "AI" or "machine learning" that match too many unrelated papers.
- Cover different aspects of the user's interest.
- Use English keywords of 2-3 words each.
- If the user names keywords, use them as given.

## Task 2: screening prompt

- Include the placeholders {{title}} and {{abstract}} (double braces).
- Spell out the relevance criteria, including a list of concrete research questions.
- Require the model to answer in XML with the tags <is_relevant>, <reason> and <translation>.
- When relevant, the model gives a short reason and a translated abstract.

## Output format

Answer strictly in this XML format:

<keywords>
keyword 1, keyword 2, keyword 3, keyword 4, keyword 5
</keywords>

<prompt>
(the screening prompt)
</prompt>
`

// Generate asks the model for keywords and a prompt. A completion failure is
// returned as an error; a reply missing the prompt falls back to the default
// template, and a reply missing keywords yields none so the caller can ask
// for them.
func (g *Generator) Generate(ctx context.Context, description string) (Generated, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return Generated{}, ErrEmptyDescription
	}

	user := strings.ReplaceAll(generatorTemplate, "{description}", description)
	reply, err := g.Completer.Complete(ctx, systemPrompt, user)
	if err != nil {
		return Generated{}, err
	}

	out := Parse(reply)
	if len(out.Keywords) == 0 {
		logger.Log.Warn("model returned no keywords; specify them manually")
	}
	if out.DefaultPrompt {
		logger.Log.Warn("model returned no prompt; using the default template")
	}
	return out, nil
}

var keywordSeparators = regexp.MustCompile(`[,，、\n]+`)

// Parse reads the <keywords> and <prompt> tags of a generator reply.
func Parse(reply string) Generated {
	out := Generated{
		Keywords: SplitKeywords(relevance.ExtractTag(reply, "keywords")),
		Prompt:   relevance.ExtractTag(reply, "prompt"),
	}
	if out.Prompt == "" {
		out.Prompt = relevance.DefaultTemplate
		out.DefaultPrompt = true
	}
	return out
}

// SplitKeywords splits a keyword list on ASCII and CJK commas, the
// enumeration comma and newlines, trimming blanks and keeping at most
// MaxKeywords.
func SplitKeywords(s string) []string {
	var out []string
	for _, k := range keywordSeparators.Split(s, -1) {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
		if len(out) == MaxKeywords {
			break
		}
	}
	return out
}
