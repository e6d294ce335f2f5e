package usage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Entry is one line of the append-only usage log. The query itself is
// never written; only its digest is, so the log can be correlated
// without retaining user text.
type Entry struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryDigest string    `json:"query_digest"`
	ModelID     string    `json:"model_id,omitempty"`
	TokensUsed  int       `json:"tokens_used"`
	Cost        float64   `json:"cost"`
	Status      string    `json:"status"`
	ErrorKind   string    `json:"error_kind,omitempty"`
	RiskScore   float64   `json:"risk_score"`
	Confidence  float64   `json:"confidence"`
	Cached      bool      `json:"cached,omitempty"`
}

// Log appends JSONL entries to a file. A nil *Log is a valid no-op
// logger, used when no usage log path is configured.
type Log struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// OpenLog opens (creating if needed) the usage log for appending. An
// empty path returns a nil log, which discards entries.
func OpenLog(path string) (*Log, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening usage log: %w", err)
	}
	return &Log{file: f, enc: json.NewEncoder(f)}, nil
}

// Append writes one entry. Write failures are returned but callers
// generally log and continue; an unavailable usage log should not
// fail the query.
func (l *Log) Append(e Entry) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(e); err != nil {
		return fmt.Errorf("appending usage entry: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// Digest returns the hex SHA-256 of the query text.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
