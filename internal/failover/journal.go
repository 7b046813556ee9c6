package failover

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Reason explains why the active circuit changed.
type Reason string

const (
	ReasonEscalation Reason = "escalation"
	ReasonRecovery   Reason = "recovery"
)

// Transition is one active-circuit change. The journal is append-only and
// rotated externally.
type Transition struct {
	Timestamp time.Time `json:"timestamp"`
	FromTier  string    `json:"from_tier"`
	FromRank  int       `json:"from_rank"`
	ToTier    string    `json:"to_tier"`
	ToRank    int       `json:"to_rank"`
	Reason    Reason    `json:"reason"`
}

// Journal records transitions as JSON lines.
type Journal struct {
	mu sync.Mutex
	f  *os.File
}

// OpenJournal opens (or creates) the append-only transition log.
func OpenJournal(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transition journal: %w", err)
	}
	return &Journal{f: f}, nil
}

// Record appends one transition.
func (j *Journal) Record(tr Transition) error {
	line, err := json.Marshal(tr)
	if err != nil {
		return fmt.Errorf("marshal transition: %w", err)
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
