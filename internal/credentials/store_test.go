package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExplicitWins(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "from-env")

	s := NewStore(map[string]string{"openai": "from-explicit"}, "")
	key, ok := s.Resolve("openai")
	require.True(t, ok)
	assert.Equal(t, "from-explicit", key)
}

func TestResolveEnvironment(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	s := NewStore(nil, "")
	key, ok := s.Resolve("anthropic")
	require.True(t, ok)
	assert.Equal(t, "sk-ant-test", key)

	// Kind lookup is case-insensitive.
	key, ok = s.Resolve("Anthropic")
	require.True(t, ok)
	assert.Equal(t, "sk-ant-test", key)
}

func TestResolveFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Gemini": "key-from-file"}`), 0o600))

	s := NewStore(nil, path)
	key, ok := s.Resolve("gemini")
	require.True(t, ok)
	assert.Equal(t, "key-from-file", key)
	assert.NoError(t, s.FileError())
}

func TestResolveEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"openai": "file-key"}`), 0o600))
	t.Setenv("OPENAI_API_KEY", "env-key")

	s := NewStore(nil, path)
	key, ok := s.Resolve("openai")
	require.True(t, ok)
	assert.Equal(t, "env-key", key)
}

func TestResolveMissing(t *testing.T) {
	s := NewStore(nil, "")
	_, ok := s.Resolve("perplexity")
	assert.False(t, ok)

	_, err := s.MustResolve("perplexity")
	assert.Error(t, err)
}

func TestMissingFileIsNotAnError(t *testing.T) {
	s := NewStore(nil, filepath.Join(t.TempDir(), "does-not-exist.json"))
	_, ok := s.Resolve("openai")
	assert.False(t, ok)
	assert.NoError(t, s.FileError())
}

func TestMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

	s := NewStore(nil, path)
	_, ok := s.Resolve("openai")
	assert.False(t, ok)
	assert.Error(t, s.FileError())
}
