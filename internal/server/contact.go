package server

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wisq/autocrew/internal/scenario"
	"github.com/wisq/autocrew/internal/store"
	"github.com/wisq/autocrew/internal/tma"
)

// ContactState is where a contact is in its solve cycle.
type ContactState string

const (
	// StateWaiting means the contact has too few observations to solve.
	StateWaiting ContactState = "waiting"
	// StatePending means new observations are queued for the next solve.
	StatePending ContactState = "pending"
	StateSolving ContactState = "solving"
	StateSolved  ContactState = "solved"
	// StateSettled means successive solutions stopped moving.
	StateSettled ContactState = "settled"
	StateFailed  ContactState = "failed"
)

// Contact is a tracked target and its latest solution.
type Contact struct {
	ID       string             `json:"id"`
	State    ContactState       `json:"state"`
	Scenario *scenario.Scenario `json:"scenario"`
	Solution *tma.Solution      `json:"solution,omitempty"`
	Solves   int                `json:"solves"`
	// Dirty is set when observations arrived after the last solve.
	Dirty     bool       `json:"dirty"`
	Created   time.Time  `json:"created"`
	LastSolve *time.Time `json:"lastSolve,omitempty"`
	Error     string     `json:"error,omitempty"`

	tracker  *tma.SettleTracker
	inFlight bool
}

// snapshot returns a copy that shares nothing mutable with c.
func (c *Contact) snapshot() Contact {
	out := *c
	out.tracker = nil
	if c.Scenario != nil {
		sc := *c.Scenario
		sc.Observer.Legs = slices.Clone(c.Scenario.Observer.Legs)
		sc.Observations = slices.Clone(c.Scenario.Observations)
		out.Scenario = &sc
	}
	if c.Solution != nil {
		sol := *c.Solution
		out.Solution = &sol
	}
	if c.LastSolve != nil {
		t := *c.LastSolve
		out.LastSolve = &t
	}
	return out
}

func waitingOrPending(sc *scenario.Scenario) ContactState {
	if len(sc.Observations) < 2 {
		return StateWaiting
	}
	return StatePending
}

// ContactManager holds every contact the server tracks.
type ContactManager struct {
	mu          sync.RWMutex
	contacts    map[string]*Contact
	settle      tma.SettleConfig
	broadcaster *EventBroadcaster
}

func NewContactManager(settle tma.SettleConfig) *ContactManager {
	return &ContactManager{
		contacts:    make(map[string]*Contact),
		settle:      settle,
		broadcaster: NewEventBroadcaster(),
	}
}

// CreateContact starts tracking sc under a new ID.
func (cm *ContactManager) CreateContact(sc *scenario.Scenario) Contact {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c := &Contact{
		ID:       uuid.New().String(),
		State:    waitingOrPending(sc),
		Scenario: sc,
		Dirty:    len(sc.Observations) >= 2,
		Created:  time.Now(),
		tracker:  tma.NewSettleTracker(cm.settle),
	}
	cm.contacts[c.ID] = c
	contactsTracked.Set(float64(len(cm.contacts)))
	return c.snapshot()
}

// RestoreContact tracks a checkpointed contact under its saved ID. The
// contact is re-solved if the scenario has observations the solution
// doesn't cover.
func (cm *ContactManager) RestoreContact(cp *store.Checkpoint) Contact {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	sol := cp.Solution
	last := cp.Timestamp
	c := &Contact{
		ID:        cp.ContactID,
		State:     StateSolved,
		Scenario:  cp.Scenario,
		Solution:  &sol,
		Created:   cp.Timestamp,
		LastSolve: &last,
		tracker:   tma.NewSettleTracker(cm.settle),
	}
	c.tracker.Update(sol)
	if cp.Settled {
		c.State = StateSettled
	}
	if sol.Observations < len(cp.Scenario.Observations) {
		c.Dirty = true
		c.State = StatePending
	}
	cm.contacts[c.ID] = c
	contactsTracked.Set(float64(len(cm.contacts)))
	return c.snapshot()
}

func (cm *ContactManager) GetContact(id string) (Contact, bool) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	c, exists := cm.contacts[id]
	if !exists {
		return Contact{}, false
	}
	return c.snapshot(), true
}

// ListContacts returns every contact, oldest first.
func (cm *ContactManager) ListContacts() []Contact {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	out := make([]Contact, 0, len(cm.contacts))
	for _, c := range cm.contacts {
		out = append(out, c.snapshot())
	}
	slices.SortFunc(out, func(a, b Contact) int { return a.Created.Compare(b.Created) })
	return out
}

// AddObservations appends observations to a contact and queues it for
// solving. The observations are validated against the contact's scenario
// before any is added.
func (cm *ContactManager) AddObservations(id string, obs []scenario.Observation) (Contact, error) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, exists := cm.contacts[id]
	if !exists {
		return Contact{}, fmt.Errorf("contact not found: %s", id)
	}

	next := *c.Scenario
	next.Observations = append(slices.Clone(c.Scenario.Observations), obs...)
	slices.SortStableFunc(next.Observations, func(a, b scenario.Observation) int {
		return int(a.At - b.At)
	})
	if err := next.Validate(); err != nil {
		return Contact{}, err
	}

	c.Scenario = &next
	c.Dirty = len(next.Observations) >= 2
	if !c.inFlight {
		c.State = waitingOrPending(&next)
	}
	return c.snapshot(), nil
}

// UpdateContact applies updateFn to a contact under the manager's lock.
func (cm *ContactManager) UpdateContact(id string, updateFn func(*Contact)) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	c, exists := cm.contacts[id]
	if !exists {
		return fmt.Errorf("contact not found: %s", id)
	}
	updateFn(c)
	return nil
}

// DeleteContact stops tracking a contact and disconnects its streams.
func (cm *ContactManager) DeleteContact(id string) bool {
	cm.mu.Lock()
	_, exists := cm.contacts[id]
	delete(cm.contacts, id)
	contactsTracked.Set(float64(len(cm.contacts)))
	cm.mu.Unlock()

	if exists {
		cm.broadcaster.CleanupContact(id)
	}
	return exists
}

// ClaimDirty marks every dirty contact that isn't already being solved as
// solving and returns their IDs.
func (cm *ContactManager) ClaimDirty() []string {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	var ids []string
	for id, c := range cm.contacts {
		if c.Dirty && !c.inFlight {
			c.Dirty = false
			c.inFlight = true
			c.State = StateSolving
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}
