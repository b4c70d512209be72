// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package relevance

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-pipeline/pkg/types"
)

func TestParseResponseVerdicts(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    types.Verdict
		wantErr bool
	}{
		{"true", "<is_relevant>true</is_relevant>", types.VerdictAccepted, false},
		{"yes uppercase tag", "<IS_RELEVANT>\n Yes \n</IS_RELEVANT>", types.VerdictAccepted, false},
		{"chinese yes", "<is_relevant>是</is_relevant>", types.VerdictAccepted, false},
		{"false", "<is_relevant>false</is_relevant>", types.VerdictRejected, false},
		{"no with punctuation", "<is_relevant>No.</is_relevant>", types.VerdictRejected, false},
		{"chinese no", "<is_relevant>否</is_relevant>", types.VerdictRejected, false},
		{"chinese not", "<is_relevant>不是</is_relevant>", types.VerdictRejected, false},
		{"unknown word", "<is_relevant>maybe</is_relevant>", "", true},
		{"empty tag", "<is_relevant> </is_relevant>", "", true},
		{"missing tag", "true, this is relevant", "", true},
		{"unclosed tag", "<is_relevant>true", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := ParseResponse(tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoVerdict)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Verdict)
		})
	}
}

func TestParseResponseFieldFallbacks(t *testing.T) {
	d, err := ParseResponse(`<is_relevant>true</is_relevant>
<reason_zh>相关</reason_zh><reason>ignored</reason>
<translation>translated abstract</translation>`)
	require.NoError(t, err)
	assert.Equal(t, "相关", d.Reason)
	assert.Equal(t, "translated abstract", d.Summary)

	d, err = ParseResponse(`<is_relevant>true</is_relevant><reason> why </reason><abstract_zh>摘要</abstract_zh>`)
	require.NoError(t, err)
	assert.Equal(t, "why", d.Reason)
	assert.Equal(t, "摘要", d.Summary)
}

func TestParseResponseTruncatesReason(t *testing.T) {
	long := strings.Repeat("理", 250)
	d, err := ParseResponse("<is_relevant>yes</is_relevant><reason>" + long + "</reason>")
	require.NoError(t, err)
	assert.Equal(t, 200, len([]rune(d.Reason)))
	assert.True(t, strings.HasSuffix(d.Reason, "..."))
}

func TestExtractTag(t *testing.T) {
	text := "<keywords>\n a, b \n</keywords>\n<prompt>first</prompt><prompt>second</prompt>"
	assert.Equal(t, "a, b", ExtractTag(text, "keywords"))
	assert.Equal(t, "first", ExtractTag(text, "prompt"))
	assert.Equal(t, "", ExtractTag(text, "missing"))
}
