// Package settlementstore implements spec.md §4.I's durable settlement
// store: the settlement.Store capability interface, backed first by an
// in-memory reference implementation and then by a disk-backed pebble.DB
// implementation for production use.
//
// Grounded on Jason-chen-taiwan-arcSignv2's chainadapter/storage package:
// MemoryTxStore's copy-on-read/copy-on-write sync.RWMutex pattern for
// MemStore, and the teacher's pkg/storage.PebbleStore (key-prefix scheme,
// gob encoding, pebble.Sync writes, prefix iteration with keyUpperBound)
// for PebbleStore.
package settlementstore

import (
	"sort"
	"sync"

	"github.com/atomintents/intentcore/pkg/settlement"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// MemStore is an in-memory settlement.Store, suitable for tests and
// local development — grounded on MemoryTxStore's defensive-copy
// discipline (never hand out or accept a shared pointer into the store).
type MemStore struct {
	mu          sync.RWMutex
	settlements map[string]*settlement.Settlement
	byIntent    map[string]string
	history     map[string][]settlement.TransitionRecord
}

// NewMemStore constructs an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{
		settlements: make(map[string]*settlement.Settlement),
		byIntent:    make(map[string]string),
		history:     make(map[string][]settlement.TransitionRecord),
	}
}

func copySettlement(s *settlement.Settlement) *settlement.Settlement {
	cp := *s
	return &cp
}

// Create inserts a new settlement record, rejecting a duplicate id.
func (m *MemStore) Create(s *settlement.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.settlements[s.ID]; exists {
		return xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "settlement already exists")
	}
	m.settlements[s.ID] = copySettlement(s)
	m.byIntent[s.IntentID] = s.ID
	return nil
}

// Get returns a defensive copy of a settlement by id.
func (m *MemStore) Get(id string) (*settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.settlements[id]
	if !ok {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "settlement not found")
	}
	return copySettlement(s), nil
}

// GetByIntent returns a defensive copy of the settlement bound to intentID,
// if any non-failed settlement currently exists for it.
func (m *MemStore) GetByIntent(intentID string) (*settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byIntent[intentID]
	if !ok || m.settlements[id].Status == settlement.Failed {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "no settlement bound to intent")
	}
	return copySettlement(m.settlements[id]), nil
}

// Update overwrites the stored copy of a settlement.
func (m *MemStore) Update(s *settlement.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.settlements[s.ID]; !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "settlement not found")
	}
	m.settlements[s.ID] = copySettlement(s)
	return nil
}

// RecordTransition appends a transition audit record.
func (m *MemStore) RecordTransition(tr settlement.TransitionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[tr.SettlementID] = append(m.history[tr.SettlementID], tr)
	return nil
}

// ListByStatus returns every settlement currently in the given status.
func (m *MemStore) ListByStatus(status settlement.StatusKind) ([]*settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*settlement.Settlement
	for _, s := range m.settlements {
		if s.Status == status {
			out = append(out, copySettlement(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListStuck returns every non-terminal settlement whose expiry has passed
// — the recovery manager's primary query (spec.md §4.H).
func (m *MemStore) ListStuck(now int64) ([]*settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*settlement.Settlement
	for _, s := range m.settlements {
		if !s.Status.IsTerminal() && now >= s.ExpiresAt {
			out = append(out, copySettlement(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListBySolver returns every settlement attributed to solverID.
func (m *MemStore) ListBySolver(solverID string) ([]*settlement.Settlement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*settlement.Settlement
	for _, s := range m.settlements {
		if s.SolverID == solverID {
			out = append(out, copySettlement(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// History returns the ordered transition log for a settlement.
func (m *MemStore) History(settlementID string) ([]settlement.TransitionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	recs := m.history[settlementID]
	out := make([]settlement.TransitionRecord, len(recs))
	copy(out, recs)
	return out, nil
}

var _ settlement.Store = (*MemStore)(nil)
