// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package prompt

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-pipeline/internal/relevance"
)

type fakeCompleter struct {
	reply  string
	err    error
	system string
	user   string
}

func (f *fakeCompleter) Complete(_ context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.reply, f.err
}

func TestGenerate(t *testing.T) {
	fc := &fakeCompleter{reply: `Sure.
<keywords>
uncertainty quantification, LLM calibration，conformal prediction、selective prediction
</keywords>
<prompt>
Decide if {{title}} with {{abstract}} is about calibration.
</prompt>`}
	g := &Generator{Completer: fc}

	got, err := g.Generate(context.Background(), "  LLM uncertainty and calibration  ")
	require.NoError(t, err)

	assert.Equal(t, []string{"uncertainty quantification", "LLM calibration", "conformal prediction", "selective prediction"}, got.Keywords)
	assert.Equal(t, "Decide if {{title}} with {{abstract}} is about calibration.", got.Prompt)
	assert.False(t, got.DefaultPrompt)

	assert.Contains(t, fc.user, "User description:\nLLM uncertainty and calibration\n")
	assert.Contains(t, fc.user, "{{title}}")
	assert.Equal(t, systemPrompt, fc.system)
}

func TestGenerateFallsBackToDefaultPrompt(t *testing.T) {
	g := &Generator{Completer: &fakeCompleter{reply: "<keywords>a, b</keywords>"}}

	got, err := g.Generate(context.Background(), "topic")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got.Keywords)
	assert.Equal(t, relevance.DefaultTemplate, got.Prompt)
	assert.True(t, got.DefaultPrompt)
}

func TestGenerateErrors(t *testing.T) {
	g := &Generator{Completer: &fakeCompleter{err: errors.New("endpoint down")}}

	_, err := g.Generate(context.Background(), "topic")
	assert.EqualError(t, err, "endpoint down")

	_, err = g.Generate(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyDescription)
}

func TestSplitKeywords(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"ascii commas", "a, b ,c", []string{"a", "b", "c"}},
		{"mixed separators", "a，b、c\nd", []string{"a", "b", "c", "d"}},
		{"blanks dropped", ",, a ,\n\n", []string{"a"}},
		{"capped", "1,2,3,4,5,6,7,8,9,10", []string{"1", "2", "3", "4", "5", "6", "7", "8"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitKeywords(tt.in))
		})
	}
}

type echoModel struct{ reply string }

func (m echoModel) Generate(context.Context, []*schema.Message, ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage(m.reply, nil), nil
}

func (m echoModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

func TestEinoCompleter(t *testing.T) {
	c := &EinoCompleter{Model: echoModel{reply: "<keywords>x</keywords>"}}
	got, err := (&Generator{Completer: c}).Generate(context.Background(), "topic")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, got.Keywords)
}
