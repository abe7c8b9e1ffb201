// Package session tracks in-flight searches started through the HTTP API.
package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rendis/mapsift/internal/events"
	"github.com/rendis/mapsift/internal/model"
)

var ErrNotFound = errors.New("session not found")

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// subscriberBuffer is how many events a slow subscriber may lag behind
// before further events are dropped for it.
const subscriberBuffer = 256

// Session is one search. It records every event it is sent and relays them
// to live subscribers until the search ends.
type Session struct {
	ID        string
	Request   model.SearchRequest
	StartedAt time.Time

	mu         sync.Mutex
	status     Status
	results    []model.BusinessRecord
	err        string
	finishedAt time.Time
	log        []events.Event
	subs       map[chan events.Event]struct{}
	cancel     context.CancelFunc
	done       chan struct{}
}

func newSession(req model.SearchRequest) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Request:   req,
		StartedAt: time.Now(),
		status:    StatusRunning,
		results:   []model.BusinessRecord{},
		subs:      make(map[chan events.Event]struct{}),
		done:      make(chan struct{}),
	}
}

// Emit implements events.Emitter.
func (s *Session) Emit(ev events.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, ev)
	for ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns the events so far and a channel of the ones to come. The
// channel is closed when the session finishes or unsubscribe is called.
func (s *Session) Subscribe() (replay []events.Event, ch <-chan events.Event, unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	replay = append([]events.Event(nil), s.log...)
	c := make(chan events.Event, subscriberBuffer)
	if s.status != StatusRunning {
		close(c)
		return replay, c, func() {}
	}
	s.subs[c] = struct{}{}

	return replay, c, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[c]; ok {
			delete(s.subs, c)
			close(c)
		}
	}
}

// SetCancel registers the function that stops the running search.
func (s *Session) SetCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
}

// Complete stores the results and ends the session.
func (s *Session) Complete(results []model.BusinessRecord) {
	if results == nil {
		results = []model.BusinessRecord{}
	}
	s.finish(StatusCompleted, results, "")
}

// Fail ends the session with an error, emitting it first.
func (s *Session) Fail(err error) {
	s.Emit(events.Event{Kind: events.KindError, Message: err.Error()})
	s.finish(StatusError, nil, err.Error())
}

func (s *Session) finish(status Status, results []model.BusinessRecord, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusRunning {
		return
	}
	s.status = status
	if results != nil {
		s.results = results
	}
	s.err = errMsg
	s.finishedAt = time.Now()
	for ch := range s.subs {
		close(ch)
	}
	clear(s.subs)
	close(s.done)
}

// Done is closed once the session completed or failed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Snapshot is a consistent copy of the session state.
type Snapshot struct {
	ID         string                 `json:"sessionId"`
	Status     Status                 `json:"status"`
	Results    []model.BusinessRecord `json:"results"`
	Count      int                    `json:"count"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt *time.Time             `json:"finishedAt,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:        s.ID,
		Status:    s.status,
		Results:   s.results,
		Count:     len(s.results),
		Error:     s.err,
		StartedAt: s.StartedAt,
	}
	if !s.finishedAt.IsZero() {
		t := s.finishedAt
		snap.FinishedAt = &t
	}
	return snap
}

// Store holds sessions by id.
type Store interface {
	Create(req model.SearchRequest) *Session
	Get(id string) (*Session, bool)
	Update(id string, fn func(*Session)) error
	// Delete removes the session and stops its search if still running.
	Delete(id string) bool
	List() []*Session
}

// MemoryStore is a Store for a single process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*Session)}
}

func (m *MemoryStore) Create(req model.SearchRequest) *Session {
	s := newSession(req)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *MemoryStore) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

func (m *MemoryStore) Update(id string, fn func(*Session)) error {
	s, ok := m.Get(id)
	if !ok {
		return ErrNotFound
	}
	fn(s)
	return nil
}

func (m *MemoryStore) Delete(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.stop()
	}
	return ok
}

// List returns sessions, oldest first.
func (m *MemoryStore) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
