// Package credentials resolves provider API keys. Resolution order,
// first hit wins: explicit values handed to the store at construction,
// the <PROVIDER>_API_KEY environment variable, then the configured key
// file (a JSON object mapping provider kind to key). A missing key is
// not an error until a provider is actually used.
package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Store resolves API keys for provider kinds.
type Store struct {
	explicit map[string]string
	filePath string

	once     sync.Once
	fileKeys map[string]string
	fileErr  error
}

// NewStore creates a store. explicit may be nil; filePath may point at
// a file that does not exist, in which case only the other sources are
// consulted.
func NewStore(explicit map[string]string, filePath string) *Store {
	return &Store{
		explicit: explicit,
		filePath: filePath,
	}
}

// Resolve returns the key for the named provider kind and whether one
// was found. The lookup itself never fails; callers that require a key
// turn a miss into a config error at the point of use.
func (s *Store) Resolve(kind string) (string, bool) {
	kind = strings.ToLower(kind)

	if key, ok := s.explicit[kind]; ok && key != "" {
		return key, true
	}

	envVar := strings.ToUpper(kind) + "_API_KEY"
	if key := os.Getenv(envVar); key != "" {
		return key, true
	}

	s.once.Do(s.loadFile)
	if key, ok := s.fileKeys[kind]; ok && key != "" {
		return key, true
	}
	return "", false
}

// MustResolve returns the key or an error suitable for a provider
// that is about to be used.
func (s *Store) MustResolve(kind string) (string, error) {
	key, ok := s.Resolve(kind)
	if !ok {
		return "", fmt.Errorf("no API key configured for provider kind %q", kind)
	}
	return key, nil
}

func (s *Store) loadFile() {
	s.fileKeys = map[string]string{}
	if s.filePath == "" {
		return
	}

	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if !os.IsNotExist(err) {
			s.fileErr = fmt.Errorf("failed to read credential file: %w", err)
		}
		return
	}

	var keys map[string]string
	if err := json.Unmarshal(data, &keys); err != nil {
		s.fileErr = fmt.Errorf("failed to parse credential file: %w", err)
		return
	}
	for k, v := range keys {
		s.fileKeys[strings.ToLower(k)] = v
	}
}

// FileError reports a malformed or unreadable key file. Absence of the
// file is not an error.
func (s *Store) FileError() error {
	s.once.Do(s.loadFile)
	return s.fileErr
}
