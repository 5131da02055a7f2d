package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeModelName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"claude-opus-4-1-20250805", "opus"},
		{"Claude-3-5-Sonnet-20241022", "sonnet"},
		{"claude-3-haiku-20240307", "haiku"},
		{"claude-2.1", "claude"},
		{"claude-sonnet-opus-hybrid", "opus"},
		{"gpt-5-codex", "gpt-5"},
		{"gpt-4o-mini", "gpt-4o"},
		{"GPT-4-turbo", "gpt-4"},
		{"gpt-3.5-turbo-0125", "gpt-3.5"},
		{"moonshot/kimi-k2", "kimi"},
		{"deepseek-chat", "deepseek"},
		{"gemini-2.5-pro", "gemini"},
		{"qwen2.5-coder:32b", "qwen"},
		{"yi-large", "yi"},
		{"meta-llama-3-70b", "llama"},
		{"mistral-large-latest", "mistral"},
		{"o3-mini-high", "o3-mini"},
		{"phi-3-medium:latest", "phi-3"},
		{"Command-R-Plus", "command-r"},
		{"codex", "codex"},
		{"", UnknownModel},
		{"   ", UnknownModel},
		{":tag-only", UnknownModel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeModelName(tt.input))
		})
	}
}

func TestNormalizeModelName_Idempotent(t *testing.T) {
	inputs := []string{
		"claude-opus-4", "gpt-4o-2024-08-06", "o3-mini-high", "phi-3-medium:latest",
		"a--b-c", "-x", "unknown", "UPPER-case-Name", "gpt-3.5", "model:with:colons",
		"foo-bar :latest", "mymodel :v1", "  spaced-name  :tag", "a-b -c-d", " :x",
	}
	inputs = append(inputs, KnownSeries()...)

	for _, in := range inputs {
		once := NormalizeModelName(in)
		assert.Equal(t, once, NormalizeModelName(once), "input %q", in)
	}
}

func TestNormalizeModelName_TrimsBeforeTag(t *testing.T) {
	assert.Equal(t, "foo-bar", NormalizeModelName("foo-bar :latest"))
	assert.Equal(t, "mymodel", NormalizeModelName("mymodel :v1"))
	assert.Equal(t, UnknownModel, NormalizeModelName(" :x"))
}

func TestNormalizeModelValue_NonString(t *testing.T) {
	assert.Equal(t, UnknownModel, normalizeModelValue(nil))
	assert.Equal(t, UnknownModel, normalizeModelValue(3.5))
	assert.Equal(t, UnknownModel, normalizeModelValue(map[string]any{"name": "opus"}))
	assert.Equal(t, "opus", normalizeModelValue("claude-opus-4"))
}
