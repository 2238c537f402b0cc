// Package history records load attempts and validation reports.
package history

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Outcomes recorded for an attempt.
const (
	OutcomeDisplayed  = "displayed"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// Attempt is one load attempt.
type Attempt struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Source     string          `json:"source"`
	Root       string          `json:"root,omitempty"`
	Outcome    string          `json:"outcome"`
	Kind       string          `json:"kind,omitempty"`
	Message    string          `json:"message,omitempty"`
	SceneID    string          `json:"scene_id,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs int64           `json:"duration_ms"`
	Report     json.RawMessage `json:"report,omitempty"`
}

// Recorder persists attempts.
type Recorder interface {
	RecordAttempt(ctx context.Context, a Attempt) error
	// RecordReport attaches a validation report to the attempt that
	// displayed sceneID.
	RecordReport(ctx context.Context, sceneID string, report json.RawMessage) error
	// Recent returns up to limit attempts, newest first.
	Recent(ctx context.Context, limit int) ([]Attempt, error)
	Close() error
}

// DefaultMemoryLimit is the number of attempts Memory keeps.
const DefaultMemoryLimit = 200

// Memory keeps the most recent attempts in process.
type Memory struct {
	mu       sync.RWMutex
	limit    int
	attempts []Attempt
}

// NewMemory creates an in-memory recorder keeping at most limit attempts.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{limit: limit}
}

func (m *Memory) RecordAttempt(_ context.Context, a Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, a)
	if over := len(m.attempts) - m.limit; over > 0 {
		m.attempts = append([]Attempt(nil), m.attempts[over:]...)
	}
	return nil
}

func (m *Memory) RecordReport(_ context.Context, sceneID string, report json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.attempts) - 1; i >= 0; i-- {
		if m.attempts[i].SceneID == sceneID {
			m.attempts[i].Report = report
			return nil
		}
	}
	return nil
}

func (m *Memory) Recent(_ context.Context, limit int) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.attempts) {
		limit = len(m.attempts)
	}
	out := make([]Attempt, 0, limit)
	for i := len(m.attempts) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.attempts[i])
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
