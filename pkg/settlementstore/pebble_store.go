package settlementstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/atomintents/intentcore/pkg/settlement"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// PebbleStore is a disk-backed settlement.Store, grounded on the
// teacher's pkg/storage.PebbleStore — same key-prefix scheme, gob
// encoding, and pebble.Sync-on-write discipline, adapted from block/
// account/order keys to settlement/transition/intent-index keys.
//
// Key scheme:
//
//	s:<settlement_id>            settlement record (gob)
//	si:<intent_id>                -> settlement_id (index)
//	t:<settlement_id>:<seq uint64 BE>  transition record (gob), ordered
type PebbleStore struct {
	db  *pebble.DB
	seq map[string]uint64 // settlement_id -> next transition sequence
}

// NewPebbleStore opens (or creates) a pebble database at path.
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("settlementstore: open pebble db: %w", err)
	}
	return &PebbleStore{db: db, seq: make(map[string]uint64)}, nil
}

// Close releases the underlying pebble database.
func (s *PebbleStore) Close() error { return s.db.Close() }

func kSettlement(id string) []byte  { return append([]byte("s:"), []byte(id)...) }
func kIntentIndex(id string) []byte { return append([]byte("si:"), []byte(id)...) }

func kTransition(settlementID string, seq uint64) []byte {
	var b bytes.Buffer
	b.WriteString("t:")
	b.WriteString(settlementID)
	b.WriteByte(':')
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	b.Write(seqBytes[:])
	return b.Bytes()
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix was all 0xff
}

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (s *PebbleStore) getSettlement(id string) (*settlement.Settlement, error) {
	val, closer, err := s.db.Get(kSettlement(id))
	if err == pebble.ErrNotFound {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "settlement not found")
	}
	if err != nil {
		return nil, fmt.Errorf("settlementstore: get settlement: %w", err)
	}
	defer closer.Close()

	var out settlement.Settlement
	if err := decodeGob(val, &out); err != nil {
		return nil, fmt.Errorf("settlementstore: decode settlement: %w", err)
	}
	return &out, nil
}

// Create inserts a new settlement record and its intent index atomically.
func (s *PebbleStore) Create(rec *settlement.Settlement) error {
	if _, err := s.getSettlement(rec.ID); err == nil {
		return xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "settlement already exists")
	}

	val, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("settlementstore: encode settlement: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(kSettlement(rec.ID), val, nil); err != nil {
		return err
	}
	if err := batch.Set(kIntentIndex(rec.IntentID), []byte(rec.ID), nil); err != nil {
		return err
	}
	return batch.Commit(pebble.Sync)
}

// Get returns the settlement record by id.
func (s *PebbleStore) Get(id string) (*settlement.Settlement, error) {
	return s.getSettlement(id)
}

// GetByIntent resolves the intent index then loads the settlement.
func (s *PebbleStore) GetByIntent(intentID string) (*settlement.Settlement, error) {
	val, closer, err := s.db.Get(kIntentIndex(intentID))
	if err == pebble.ErrNotFound {
		return nil, xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "no settlement bound to intent")
	}
	if err != nil {
		return nil, fmt.Errorf("settlementstore: get intent index: %w", err)
	}
	id := string(val)
	closer.Close()
	return s.getSettlement(id)
}

// Update overwrites the stored settlement record.
func (s *PebbleStore) Update(rec *settlement.Settlement) error {
	val, err := encodeGob(rec)
	if err != nil {
		return fmt.Errorf("settlementstore: encode settlement: %w", err)
	}
	return s.db.Set(kSettlement(rec.ID), val, pebble.Sync)
}

// RecordTransition appends a transition record keyed by a per-settlement
// monotonic sequence, so History iterates in chronological order.
func (s *PebbleStore) RecordTransition(tr settlement.TransitionRecord) error {
	seq := s.seq[tr.SettlementID]
	s.seq[tr.SettlementID] = seq + 1

	val, err := encodeGob(tr)
	if err != nil {
		return fmt.Errorf("settlementstore: encode transition: %w", err)
	}
	return s.db.Set(kTransition(tr.SettlementID, seq), val, pebble.Sync)
}

func (s *PebbleStore) scanSettlements(match func(*settlement.Settlement) bool) ([]*settlement.Settlement, error) {
	prefix := []byte("s:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*settlement.Settlement
	for iter.First(); iter.Valid(); iter.Next() {
		var rec settlement.Settlement
		if err := decodeGob(iter.Value(), &rec); err != nil {
			continue
		}
		if match(&rec) {
			out = append(out, &rec)
		}
	}
	return out, nil
}

// ListByStatus scans every settlement record and filters by status.
func (s *PebbleStore) ListByStatus(status settlement.StatusKind) ([]*settlement.Settlement, error) {
	return s.scanSettlements(func(r *settlement.Settlement) bool { return r.Status == status })
}

// ListStuck scans every settlement record for non-terminal, expired entries.
func (s *PebbleStore) ListStuck(now int64) ([]*settlement.Settlement, error) {
	return s.scanSettlements(func(r *settlement.Settlement) bool {
		return !r.Status.IsTerminal() && now >= r.ExpiresAt
	})
}

// ListBySolver scans every settlement record attributed to solverID.
func (s *PebbleStore) ListBySolver(solverID string) ([]*settlement.Settlement, error) {
	return s.scanSettlements(func(r *settlement.Settlement) bool { return r.SolverID == solverID })
}

// History replays the per-settlement transition log in sequence order.
func (s *PebbleStore) History(settlementID string) ([]settlement.TransitionRecord, error) {
	prefix := []byte("t:" + settlementID + ":")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []settlement.TransitionRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var tr settlement.TransitionRecord
		if err := decodeGob(iter.Value(), &tr); err != nil {
			continue
		}
		out = append(out, tr)
	}
	return out, nil
}

var _ settlement.Store = (*PebbleStore)(nil)
