package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModerationJSON(t *testing.T) {
	result, ok := parseModerationJSON(`{"flagged": true, "categories": {"violence": true}, "scores": {"violence": 0.9}}`)
	require.True(t, ok)
	assert.True(t, result.Flagged)
	assert.True(t, result.Categories["violence"])
	assert.Equal(t, 0.9, result.Scores["violence"])
}

func TestParseModerationJSONWrapped(t *testing.T) {
	reply := "Here is the classification:\n```json\n{\"flagged\": false, \"categories\": {}, \"scores\": {}}\n```\nLet me know if you need more."
	result, ok := parseModerationJSON(reply)
	require.True(t, ok)
	assert.False(t, result.Flagged)
	assert.NotNil(t, result.Categories)
	assert.NotNil(t, result.Scores)
}

func TestParseModerationJSONGarbage(t *testing.T) {
	for _, text := range []string{"", "no json here", "{broken", "{]}"} {
		_, ok := parseModerationJSON(text)
		assert.False(t, ok, "text %q", text)
	}
}

func TestParseModerationJSONMissingMaps(t *testing.T) {
	result, ok := parseModerationJSON(`{"flagged": false}`)
	require.True(t, ok)
	assert.NotNil(t, result.Categories)
	assert.NotNil(t, result.Scores)
}
