// Package waitroom implements an in-memory admission queue that gates
// access to the gateway when it is at capacity. Users wait in join order,
// get promoted to a draft slot when capacity frees up, and must confirm
// the draft within a deadline to hold a connected session.
package waitroom

import (
	"errors"
	"sync"
	"time"
)

type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusDraft     Status = "draft"
	StatusConnected Status = "connected"
)

var (
	ErrNotFound = errors.New("user is not in the waiting room")
	ErrNotDraft = errors.New("user has no draft slot to confirm")
)

type entry struct {
	userID      string
	status      Status
	joinedAt    time.Time
	promotedAt  time.Time
	connectedAt time.Time
}

// Room is a mutex-guarded admission queue. All deadlines are enforced by
// the periodic Idle sweep, not by timers per user.
type Room struct {
	mu           sync.Mutex
	entries      []*entry
	index        map[string]*entry
	maxConnected int
	draftTime    time.Duration
	sessionTime  time.Duration

	// OnPromote is called outside critical paths for each waiting user
	// promoted to draft. Optional.
	OnPromote func(userID string)
}

func New(maxConnected int, draftTime, sessionTime time.Duration) *Room {
	return &Room{
		index:        make(map[string]*entry),
		maxConnected: maxConnected,
		draftTime:    draftTime,
		sessionTime:  sessionTime,
	}
}

// SessionTime returns the configured connected-session lifetime.
func (r *Room) SessionTime() time.Duration {
	return r.sessionTime
}

// Join adds the user to the waiting line, or reports their current status
// if they are already present. Promotion happens immediately when there
// is capacity.
func (r *Room) Join(userID string) (Status, int) {
	r.mu.Lock()
	promoted := r.joinLocked(userID)
	e := r.index[userID]
	status := e.status
	position := r.positionLocked(e)
	r.mu.Unlock()

	r.notify(promoted)
	return status, position
}

func (r *Room) joinLocked(userID string) []string {
	if _, ok := r.index[userID]; ok {
		return r.promoteLocked()
	}

	e := &entry{
		userID:   userID,
		status:   StatusWaiting,
		joinedAt: time.Now(),
	}
	r.entries = append(r.entries, e)
	r.index[userID] = e
	return r.promoteLocked()
}

// Status reports the user's state and their 1-based position among users
// in the same state, ordered by join time.
func (r *Room) Status(userID string) (Status, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.index[userID]
	if !ok {
		return "", 0, ErrNotFound
	}
	return e.status, r.positionLocked(e), nil
}

// Confirm upgrades a draft slot to a connected session and returns the
// session lifetime the caller should encode into the session token.
func (r *Room) Confirm(userID string) (time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.index[userID]
	if !ok {
		return 0, ErrNotFound
	}
	if e.status != StatusDraft {
		return 0, ErrNotDraft
	}

	e.status = StatusConnected
	e.connectedAt = time.Now()
	return r.sessionTime, nil
}

// Leave removes the user and promotes waiting users into the freed
// capacity.
func (r *Room) Leave(userID string) {
	r.mu.Lock()
	var promoted []string
	if _, ok := r.index[userID]; ok {
		r.removeLocked(userID)
		promoted = r.promoteLocked()
	}
	r.mu.Unlock()

	r.notify(promoted)
}

// Idle sweeps expired entries: drafts that missed their confirmation
// deadline and connected sessions past their lifetime. It returns how
// many entries were removed.
func (r *Room) Idle() int {
	r.mu.Lock()
	now := time.Now()

	var expired []string
	for _, e := range r.entries {
		switch e.status {
		case StatusDraft:
			if now.Sub(e.promotedAt) > r.draftTime {
				expired = append(expired, e.userID)
			}
		case StatusConnected:
			if now.Sub(e.connectedAt) > r.sessionTime {
				expired = append(expired, e.userID)
			}
		}
	}
	for _, userID := range expired {
		r.removeLocked(userID)
	}
	promoted := r.promoteLocked()
	r.mu.Unlock()

	r.notify(promoted)
	return len(expired)
}

// Metrics describes the room's occupancy. EstimatedWait is a coarse
// projection of how long a new arrival would wait for a slot.
type Metrics struct {
	Waiting       int           `json:"waiting"`
	Draft         int           `json:"draft"`
	Connected     int           `json:"connected"`
	MaxConnected  int           `json:"max_connected"`
	EstimatedWait time.Duration `json:"estimated_wait_seconds"`
}

func (r *Room) Metrics() Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := Metrics{MaxConnected: r.maxConnected}
	for _, e := range r.entries {
		switch e.status {
		case StatusWaiting:
			m.Waiting++
		case StatusDraft:
			m.Draft++
		case StatusConnected:
			m.Connected++
		}
	}
	if r.maxConnected > 0 {
		m.EstimatedWait = time.Duration(m.Waiting) * r.sessionTime / time.Duration(r.maxConnected)
	}
	return m
}

// promoteLocked moves waiting users into draft slots while active
// occupancy (draft plus connected) is below capacity. Returns the
// promoted user ids.
func (r *Room) promoteLocked() []string {
	active := 0
	for _, e := range r.entries {
		if e.status == StatusDraft || e.status == StatusConnected {
			active++
		}
	}

	var promoted []string
	for _, e := range r.entries {
		if active >= r.maxConnected {
			break
		}
		if e.status != StatusWaiting {
			continue
		}
		e.status = StatusDraft
		e.promotedAt = time.Now()
		active++
		promoted = append(promoted, e.userID)
	}
	return promoted
}

func (r *Room) positionLocked(target *entry) int {
	position := 0
	for _, e := range r.entries {
		if e.status != target.status {
			continue
		}
		position++
		if e == target {
			return position
		}
	}
	return position
}

func (r *Room) removeLocked(userID string) {
	delete(r.index, userID)
	for i, e := range r.entries {
		if e.userID == userID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

func (r *Room) notify(promoted []string) {
	if r.OnPromote == nil {
		return
	}
	for _, userID := range promoted {
		r.OnPromote(userID)
	}
}
