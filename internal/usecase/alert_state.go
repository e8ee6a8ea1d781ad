package usecase

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type AlertStatus string

const (
	StatusArmed      AlertStatus = "armed"
	StatusTriggered  AlertStatus = "triggered"
	StatusSuppressed AlertStatus = "suppressed"
)

type AlertRuntimeState struct {
	AlertID            uint
	Status             AlertStatus
	LastEvaluatedValue decimal.Decimal
	LastEvaluatedAt    time.Time
	LastTransitionAt   time.Time
	TriggerCount       int
	// TriggerID identifies the crossing that moved the alert into triggered.
	TriggerID string
}

type Transition struct {
	AlertID   uint
	From      AlertStatus
	To        AlertStatus
	TriggerID string
	At        time.Time
}

// Triggered reports a fresh crossing, the only transition that dispatches.
func (t Transition) Triggered() bool {
	return t.From == StatusArmed && t.To == StatusTriggered
}

func (t Transition) Rearmed() bool {
	return t.From == StatusTriggered && t.To == StatusArmed
}

type stateEntry struct {
	mu      sync.Mutex
	state   AlertRuntimeState
	dropped bool
}

// AlertStateStore owns the runtime state of every active alert. Mutations of
// one alert are serialized by its entry lock; distinct alerts never contend
// beyond the short map lookup.
type AlertStateStore struct {
	now   func() time.Time
	newID func() string

	mu      sync.Mutex
	entries map[uint]*stateEntry
}

func NewAlertStateStore() *AlertStateStore {
	return &AlertStateStore{
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		entries: make(map[uint]*stateEntry),
	}
}

// Apply records an evaluation result for the alert and returns the resulting
// transition. An alert seen for the first time starts armed.
func (s *AlertStateStore) Apply(alertID uint, satisfied bool, value decimal.Decimal) Transition {
	for {
		entry := s.entry(alertID)
		entry.mu.Lock()
		if entry.dropped {
			// Lost a race with Sync; the next lookup creates a fresh record.
			entry.mu.Unlock()
			continue
		}
		transition := s.applyLocked(entry, satisfied, value)
		entry.mu.Unlock()
		return transition
	}
}

func (s *AlertStateStore) applyLocked(entry *stateEntry, satisfied bool, value decimal.Decimal) Transition {
	now := s.now()
	state := &entry.state
	transition := Transition{AlertID: state.AlertID, From: state.Status, To: state.Status, At: now}

	state.LastEvaluatedValue = value
	state.LastEvaluatedAt = now

	switch {
	case state.Status == StatusArmed && satisfied:
		state.Status = StatusTriggered
		state.TriggerCount++
		state.TriggerID = s.newID()
		state.LastTransitionAt = now
	case state.Status == StatusTriggered && !satisfied:
		state.Status = StatusArmed
		state.TriggerID = ""
		state.LastTransitionAt = now
	}

	transition.To = state.Status
	transition.TriggerID = state.TriggerID
	return transition
}

func (s *AlertStateStore) entry(alertID uint) *stateEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[alertID]
	if !ok {
		entry = s.armLocked(alertID)
	}
	return entry
}

// armLocked creates an armed record for alertID. The caller holds s.mu.
func (s *AlertStateStore) armLocked(alertID uint) *stateEntry {
	entry := &stateEntry{state: AlertRuntimeState{
		AlertID:          alertID,
		Status:           StatusArmed,
		LastTransitionAt: s.now(),
	}}
	s.entries[alertID] = entry
	return entry
}

// Sync makes the tracked set equal to activeIDs: alerts not yet tracked start
// armed and the runtime state of every other alert is dropped. It returns the
// dropped identifiers. Dropped records are never resurrected: an alert that
// shows up again starts armed with no memory of earlier crossings.
func (s *AlertStateStore) Sync(activeIDs []uint) []uint {
	active := make(map[uint]struct{}, len(activeIDs))
	for _, id := range activeIDs {
		active[id] = struct{}{}
	}

	s.mu.Lock()
	var stale []*stateEntry
	for id, entry := range s.entries {
		if _, ok := active[id]; ok {
			continue
		}
		stale = append(stale, entry)
		delete(s.entries, id)
	}
	for id := range active {
		if _, ok := s.entries[id]; !ok {
			s.armLocked(id)
		}
	}
	s.mu.Unlock()

	dropped := make([]uint, 0, len(stale))
	for _, entry := range stale {
		entry.mu.Lock()
		entry.dropped = true
		entry.state.Status = StatusSuppressed
		entry.state.LastTransitionAt = s.now()
		dropped = append(dropped, entry.state.AlertID)
		entry.mu.Unlock()
	}
	sort.Slice(dropped, func(i, j int) bool { return dropped[i] < dropped[j] })
	return dropped
}

// Remove suppresses a single alert, e.g. when it is deleted between cycles.
func (s *AlertStateStore) Remove(alertID uint) bool {
	s.mu.Lock()
	entry, ok := s.entries[alertID]
	if ok {
		delete(s.entries, alertID)
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	entry.mu.Lock()
	entry.dropped = true
	entry.state.Status = StatusSuppressed
	entry.mu.Unlock()
	return true
}

func (s *AlertStateStore) Get(alertID uint) (AlertRuntimeState, bool) {
	s.mu.Lock()
	entry, ok := s.entries[alertID]
	s.mu.Unlock()
	if !ok {
		return AlertRuntimeState{}, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.state, true
}

// Snapshot returns copies of all runtime states ordered by alert id.
func (s *AlertStateStore) Snapshot() []AlertRuntimeState {
	s.mu.Lock()
	entries := make([]*stateEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.Unlock()

	states := make([]AlertRuntimeState, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		states = append(states, entry.state)
		entry.mu.Unlock()
	}
	sort.Slice(states, func(i, j int) bool { return states[i].AlertID < states[j].AlertID })
	return states
}

func (s *AlertStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
