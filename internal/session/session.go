// Package session holds the display state of one client session: the job
// being tracked, its latest status, and its result reference or failure.
//
// At most one job is active per session. A submission takes a Reservation
// before it is sent; Begin turns it into a Ticket for the accepted job and
// cancels the previous one, unless a later submission or a reset came first.
// Apply ignores updates carrying a ticket that is no longer current, so late
// responses for an abandoned job cannot overwrite what the user sees.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/imgjobs/pkg/models"
)

// ErrSuperseded is returned by Begin when the reservation was overtaken by a
// newer submission or a reset.
var ErrSuperseded = errors.New("superseded by a newer submission")

// Snapshot is the externally visible display state.
type Snapshot struct {
	SessionID   uuid.UUID        `json:"session_id"`
	Generation  uint64           `json:"generation"`
	JobID       string           `json:"job_id,omitempty"`
	Operation   models.Operation `json:"operation,omitempty"`
	Status      models.JobStatus `json:"status,omitempty"`
	Message     string           `json:"message,omitempty"`
	ResultURL   string           `json:"result_url,omitempty"`
	ErrorDetail string           `json:"error_detail,omitempty"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// Ticket identifies one job's claim on the session.
type Ticket struct {
	Generation uint64
	JobID      string

	ctx    context.Context
	cancel context.CancelFunc
}

// Reservation is a submission's place in line, taken before the request is
// sent.
type Reservation struct {
	seq uint64
}

// Context is cancelled when the ticket is superseded or the session is reset.
func (t *Ticket) Context() context.Context {
	return t.ctx
}

// Session is safe for concurrent use.
type Session struct {
	id uuid.UUID

	mu     sync.Mutex
	gen    uint64
	seq    uint64
	active *Ticket
	snap   Snapshot
	subs   map[int]chan Snapshot
	nextID int
}

// New creates an empty session with a fresh id.
func New() *Session {
	id := uuid.New()
	return &Session{
		id:   id,
		snap: Snapshot{SessionID: id, UpdatedAt: time.Now().UTC()},
		subs: make(map[int]chan Snapshot),
	}
}

// ID returns the session identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// Reserve claims the next submission slot. Any earlier reservation that has
// not reached Begin yet is invalidated.
func (s *Session) Reserve() Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return Reservation{seq: s.seq}
}

// Begin makes job the active job if r is still the latest reservation. The
// previous ticket, if any, is cancelled. The returned ticket's context
// derives from parent.
func (s *Session) Begin(parent context.Context, r Reservation, job *models.Job) (*Ticket, error) {
	s.mu.Lock()
	if r.seq != s.seq {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}

	ctx, cancel := context.WithCancel(parent)
	if s.active != nil {
		s.active.cancel()
	}
	s.gen++
	t := &Ticket{Generation: s.gen, JobID: job.ID, ctx: ctx, cancel: cancel}
	s.active = t
	s.snap = Snapshot{
		SessionID:  s.id,
		Generation: s.gen,
		JobID:      job.ID,
		Operation:  job.Operation,
		Status:     models.JobStatusPending,
		Message:    "queued",
		UpdatedAt:  time.Now().UTC(),
	}
	s.publishLocked()
	s.mu.Unlock()

	return t, nil
}

// Apply runs mutate against the display state if t is still the active
// ticket. It reports whether the update was applied.
func (s *Session) Apply(t *Ticket, mutate func(*Snapshot)) bool {
	s.mu.Lock()
	if t == nil || t.Generation != s.gen || s.active != t {
		s.mu.Unlock()
		return false
	}
	mutate(&s.snap)
	s.snap.SessionID = s.id
	s.snap.Generation = s.gen
	s.snap.JobID = t.JobID
	s.snap.UpdatedAt = time.Now().UTC()
	s.publishLocked()
	s.mu.Unlock()

	return true
}

// Current reports whether t is the active ticket.
func (s *Session) Current(t *Ticket) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return t != nil && s.active == t
}

// Release cancels t's context once its job has finished. The display state
// is kept so the terminal outcome stays visible.
func (s *Session) Release(t *Ticket) {
	t.cancel()
}

// Reset clears the display state. The active job and any outstanding
// reservation are abandoned.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.active != nil {
		s.active.cancel()
		s.active = nil
	}
	s.gen++
	s.seq++
	s.snap = Snapshot{SessionID: s.id, Generation: s.gen, UpdatedAt: time.Now().UTC()}
	s.publishLocked()
	s.mu.Unlock()
}

// Snapshot returns a copy of the current display state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe returns a channel receiving every accepted change, starting with
// the current state. A subscriber that falls behind misses intermediate
// snapshots but always receives the latest one. Call the returned func to
// unsubscribe.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	ch <- s.snap
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
}

// publishLocked fans the current snapshot out without blocking.
// s.mu must be held.
func (s *Session) publishLocked() {
	snap := s.snap
	for _, ch := range s.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale pending snapshot and replace it.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
