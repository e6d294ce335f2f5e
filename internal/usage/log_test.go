package usage

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLogEmptyPath(t *testing.T) {
	l, err := OpenLog("")
	require.NoError(t, err)
	assert.Nil(t, l)
	assert.NoError(t, l.Append(Entry{}), "nil log discards entries")
	assert.NoError(t, l.Close())
}

func TestAppendWritesJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.jsonl")
	l, err := OpenLog(path)
	require.NoError(t, err)

	entries := []Entry{
		{
			Timestamp:   time.Now().UTC(),
			QueryDigest: Digest("what is the capital of France"),
			ModelID:     "gpt-small",
			TokensUsed:  30,
			Cost:        0.002,
			Status:      "success",
			RiskScore:   0.1,
			Confidence:  0.55,
		},
		{
			Timestamp:   time.Now().UTC(),
			QueryDigest: Digest("another query"),
			Status:      "rejected",
			ErrorKind:   "ethical_rejection",
			RiskScore:   1.0,
		},
	}
	for _, e := range entries {
		require.NoError(t, l.Append(e))
	}
	require.NoError(t, l.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []Entry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Entry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, entries[0].QueryDigest, got[0].QueryDigest)
	assert.Equal(t, "rejected", got[1].Status)
}

func TestAppendIsAppendOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.jsonl")

	l, err := OpenLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Entry{QueryDigest: "first"}))
	require.NoError(t, l.Close())

	l, err = OpenLog(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(Entry{QueryDigest: "second"}))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "first")
	assert.Contains(t, string(data), "second")
}

func TestDigestNeverExposesText(t *testing.T) {
	const query = "a very identifiable user query"
	digest := Digest(query)

	assert.Len(t, digest, 64)
	assert.NotContains(t, digest, "identifiable")
	assert.Equal(t, digest, Digest(query), "digest is stable")
	assert.NotEqual(t, digest, Digest(query+" "))
}
