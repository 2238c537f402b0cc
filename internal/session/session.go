// Package session holds the single viewer session and its load lifecycle.
package session

import (
	"sync"
	"time"

	"github.com/kamkard/gltfview/internal/classify"
	"github.com/kamkard/gltfview/internal/viewer"
)

// State is the lifecycle state of the session.
type State string

const (
	Empty     State = "empty"
	Loading   State = "loading"
	Displayed State = "displayed"
	Error     State = "error"
)

// Snapshot is a read-only copy of the session.
type Snapshot struct {
	State     State           `json:"state"`
	Seq       uint64          `json:"seq"`
	ActiveURL string          `json:"active_url,omitempty"`
	Scene     *viewer.Scene   `json:"scene,omitempty"`
	Err       *classify.Error `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Observer receives a snapshot after every transition. It is called with the
// session lock held and must not call back into the session.
type Observer func(Snapshot)

// Session is the one "what is shown" slot. Every mutation carries the
// attempt's sequence number; only the latest attempt may change state.
type Session struct {
	mu        sync.Mutex
	state     State
	seq       uint64
	activeURL string
	scene     *viewer.Scene
	err       *classify.Error
	updatedAt time.Time
	observer  Observer
}

// New creates a session in the Empty state.
func New(observer Observer) *Session {
	return &Session{state: Empty, updatedAt: time.Now(), observer: observer}
}

// Begin starts a new attempt from any state and returns its sequence number
// together with the state it replaced. Any in-flight attempt is superseded.
func (s *Session) Begin() (uint64, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.snapshotLocked()
	s.seq++
	s.state = Loading
	s.activeURL = ""
	s.scene = nil
	s.err = nil
	s.notifyLocked()
	return s.seq, prev
}

// SetActiveURL records the display URL owned by attempt seq and publishes it
// so the URL can be fetched while the attempt is still loading.
func (s *Session) SetActiveURL(seq uint64, url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq || s.state != Loading {
		return false
	}
	s.activeURL = url
	s.notifyLocked()
	return true
}

// ReleaseURL forgets url if it is still the active URL.
func (s *Session) ReleaseURL(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeURL == url {
		s.activeURL = ""
	}
}

// Display moves attempt seq from Loading to Displayed.
func (s *Session) Display(seq uint64, scene *viewer.Scene) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq || s.state != Loading {
		return false
	}
	s.state = Displayed
	s.scene = scene
	s.notifyLocked()
	return true
}

// Fail moves attempt seq from Loading to Error.
func (s *Session) Fail(seq uint64, err *classify.Error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.seq || s.state != Loading {
		return false
	}
	s.state = Error
	s.scene = nil
	s.err = err
	s.notifyLocked()
	return true
}

// Current reports whether seq is still the latest attempt.
func (s *Session) Current(seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return seq == s.seq
}

// Snapshot returns a copy of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:     s.state,
		Seq:       s.seq,
		ActiveURL: s.activeURL,
		Scene:     s.scene,
		Err:       s.err,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) notifyLocked() {
	s.updatedAt = time.Now()
	if s.observer != nil {
		s.observer(s.snapshotLocked())
	}
}
