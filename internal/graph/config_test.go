package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAgentConfigParamsFlattensGenerationParams(t *testing.T) {
	t.Parallel()
	cfg := &AgentConfig{
		Model:        "default-model",
		Prompt:       "Summarize {{fetch.body}}",
		SystemPrompt: "You are terse.",
		GenParams:    map[string]any{"temperature": 0.2, "maxTokens": 256},
	}

	params := cfg.Params()
	assert.Equal(t, "default-model", params["model"])
	assert.Equal(t, "Summarize {{fetch.body}}", params["prompt"])
	assert.Equal(t, "You are terse.", params["systemPrompt"])
	assert.Equal(t, map[string]any{"temperature": 0.2, "maxTokens": 256}, params["params"])
}
