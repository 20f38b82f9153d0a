// Package relayer specifies the callback contract a relayer must honor
// (spec.md §6's "Relayer → Core" interface) and the outbound submission
// capability pkg/orchestrator's Core uses to hand off an inter-chain
// transfer. Light-client verification itself is out of scope (spec.md's
// Non-goals) — only the contract appears here, plus an in-memory double
// for tests.
//
// Grounded on original_source/crates/relayer/src/chain.rs's ChainClient
// trait (is_connected/submit_tx/get_latest_height collapsed to transfer
// submission plus a connectivity check) and
// ChainClientPool's per-chain connection bookkeeping, and on the
// teacher's pkg/abci/bridge.go capability-interface-plus-mock pairing.
package relayer

import (
	"sync"

	"github.com/atomintents/intentcore/pkg/routing"
	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// Transfer describes one outbound inter-chain transfer submission.
type Transfer struct {
	SettlementID   string
	Route          routing.Route
	Memo           string
	Denom          string
	Amount         xdecimal.Amount
	Recipient      string
	TimeoutSeconds int64
}

// AckSink narrows settlement.Controller to the two callbacks a relayer
// delivers — spec.md §6: "must be idempotent; second call on same id
// returns InvalidStateTransition". Declared here rather than imported so
// this package has no dependency on pkg/settlement.
type AckSink interface {
	HandleAck(caller, settlementID string, success bool, now int64) error
	HandleTimeout(caller, settlementID string, now int64) error
}

// Relayer is the capability interface pkg/orchestrator's Core uses to
// hand off an inter-chain transfer once both legs are locked. Production
// implementations submit a signed transaction over the chain's RPC
// transport; tests use MemRelayer.
type Relayer interface {
	// SubmitTransfer submits the transfer and returns the packet
	// sequence number the controller records against the settlement.
	SubmitTransfer(t Transfer) (packetSequence uint64, err error)

	// IsConnected reports whether the relayer currently has a live
	// connection to chainID.
	IsConnected(chainID string) bool
}

// MemRelayer is an in-memory Relayer for tests: it records every
// submitted transfer and lets a test simulate a disconnected chain
// without a real RPC endpoint.
type MemRelayer struct {
	mu          sync.Mutex
	nextSeq     uint64
	submissions map[uint64]Transfer
	disconnects map[string]bool
}

var _ Relayer = (*MemRelayer)(nil)

// NewMemRelayer constructs a MemRelayer with every chain connected.
func NewMemRelayer() *MemRelayer {
	return &MemRelayer{
		submissions: make(map[uint64]Transfer),
		disconnects: make(map[string]bool),
	}
}

// SetConnected marks chainID connected or disconnected for subsequent
// SubmitTransfer calls.
func (m *MemRelayer) SetConnected(chainID string, connected bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects[chainID] = !connected
}

// IsConnected implements Relayer.
func (m *MemRelayer) IsConnected(chainID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.disconnects[chainID]
}

// SubmitTransfer implements Relayer. It fails with a CodeRelayerFailure
// External error if either leg of the route is currently disconnected,
// mirroring the original's ConnectionFailed handling; otherwise it
// assigns the next sequence number and records the transfer.
func (m *MemRelayer) SubmitTransfer(t Transfer) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disconnects[t.Route.SourceChain] || m.disconnects[t.Route.DestChain] {
		return 0, xerrors.New(xerrors.External, xerrors.CodeRelayerFailure,
			"relayer has no live connection to the route's source or destination chain")
	}

	m.nextSeq++
	seq := m.nextSeq
	t.Route.Hops = append([]routing.Hop(nil), t.Route.Hops...)
	m.submissions[seq] = t
	return seq, nil
}

// Submission returns the transfer recorded under sequence, for test
// assertions on what the controller actually submitted.
func (m *MemRelayer) Submission(sequence uint64) (Transfer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.submissions[sequence]
	return t, ok
}

// Count returns the number of transfers submitted so far.
func (m *MemRelayer) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.submissions)
}
