// Package orchestrator wires the submission façade, the solver-facing
// operations, the relayer callbacks, and the admin operations (spec.md
// §6) into one coordinator driving the collaborators built by the rest
// of this module: matching, escrow, vault, the settlement state
// machine, the solver registry, reputation, the relayer, and the
// recovery/drain manager.
//
// Grounded on original_source/crates/orchestrator/src/orchestrator.rs's
// IntentOrchestrator — process_intent/process_batch/cancel_intent/
// run_recovery collapsed from that crate's generic
// IntentOrchestrator<E, V, R> (parameterized over Escrow/Vault/Relayer
// trait objects via a builder) to a single Core type holding each
// collaborator as a field, since this module already expresses those
// same substitution points as capability interfaces per-package rather
// than through one cross-cutting generic orchestrator type.
package orchestrator

import (
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atomintents/intentcore/pkg/config"
	"github.com/atomintents/intentcore/pkg/escrow"
	"github.com/atomintents/intentcore/pkg/intent"
	"github.com/atomintents/intentcore/pkg/matching"
	"github.com/atomintents/intentcore/pkg/oracle"
	"github.com/atomintents/intentcore/pkg/orderbook"
	"github.com/atomintents/intentcore/pkg/recovery"
	"github.com/atomintents/intentcore/pkg/relayer"
	"github.com/atomintents/intentcore/pkg/reputation"
	"github.com/atomintents/intentcore/pkg/routing"
	"github.com/atomintents/intentcore/pkg/settlement"
	"github.com/atomintents/intentcore/pkg/solver"
	"github.com/atomintents/intentcore/pkg/telemetry"
	"github.com/atomintents/intentcore/pkg/vault"
	"github.com/atomintents/intentcore/pkg/xdecimal"
	"github.com/atomintents/intentcore/pkg/xerrors"
)

// IntentStatus tracks an accepted intent through to its resolution,
// independent of settlement.StatusKind — an intent may resolve via an
// internal book/auction cross without ever creating a settlement.
type IntentStatus int

const (
	IntentOpen IntentStatus = iota
	IntentMatched
	IntentCancelled
)

type intentRecord struct {
	Intent       intent.Intent
	EscrowID     string
	Status       IntentStatus
	FilledAmount xdecimal.Amount
}

// Core is the coordinator every external interface in spec.md §6 calls
// into. It owns no state of its own beyond intent bookkeeping and the
// transient per-pair quote buffer; every durable record lives in the
// collaborator it delegates to.
type Core struct {
	mu sync.Mutex

	cfg config.Config

	intents map[string]*intentRecord
	nonces  map[string]map[uint64]bool
	pending map[intent.TradingPair][]string
	quotes  map[intent.TradingPair][]intent.SolverQuote

	matching   *matching.Engine
	feed       oracle.Feed
	escrow     escrow.Escrow
	vault      vault.Vault
	solvers    *solver.Registry
	settlement *settlement.Controller
	store      settlement.Store
	reputation *reputation.Engine
	relayer    relayer.Relayer
	routes     *routing.Registry
	drain      *recovery.Manager
	metrics    *telemetry.Recorder
	log        *zap.SugaredLogger
}

// NewCore wires a Core to every collaborator it coordinates. metrics and
// log may both be nil, in which case Core records and logs nothing —
// telemetry and logging are ambient concerns, not functional dependencies
// any operation's correctness rests on.
func NewCore(
	cfg config.Config,
	matchingEngine *matching.Engine,
	feed oracle.Feed,
	esc escrow.Escrow,
	v vault.Vault,
	solvers *solver.Registry,
	settlementCtrl *settlement.Controller,
	store settlement.Store,
	repEngine *reputation.Engine,
	rly relayer.Relayer,
	routes *routing.Registry,
	drain *recovery.Manager,
	metrics *telemetry.Recorder,
	log *zap.SugaredLogger,
) *Core {
	return &Core{
		cfg:        cfg,
		intents:    make(map[string]*intentRecord),
		nonces:     make(map[string]map[uint64]bool),
		pending:    make(map[intent.TradingPair][]string),
		quotes:     make(map[intent.TradingPair][]intent.SolverQuote),
		matching:   matchingEngine,
		feed:       feed,
		escrow:     esc,
		vault:      v,
		solvers:    solvers,
		settlement: settlementCtrl,
		store:      store,
		reputation: repEngine,
		relayer:    rly,
		routes:     routes,
		drain:      drain,
		metrics:    metrics,
		log:        log,
	}
}

// recordTransition mirrors a settlement transition to telemetry, if a
// Recorder was wired.
func (c *Core) recordTransition(kind settlement.StatusKind) {
	if c.metrics != nil {
		c.metrics.RecordTransition(kind)
	}
}

// logEvent mirrors one structured event to the wired zap logger, if any —
// same Infow(event, key, val, ...) shape the teacher's consensus engine
// uses for its own event logging.
func (c *Core) logEvent(event string, kv ...interface{}) {
	if c.log != nil {
		c.log.Infow(event, kv...)
	}
}

// SubmitIntent implements the submission façade's submit_intent
// (spec.md §6): rejects BadSignature, ReplayedNonce, Expired,
// MalformedFields, or InDrainMode, then locks the user's input into
// escrow and attempts an immediate-mode match against the intent's
// pair (spec.md §4.C). An unmatched remainder that rests in the book
// (FillPatient) stays there and is not queued; any other unmatched
// remainder is queued for the next RunBatchAuction call on that pair.
func (c *Core) SubmitIntent(in intent.Intent, now int64) (string, error) {
	if !c.drain.IsAccepting() {
		return "", xerrors.New(xerrors.Validation, xerrors.CodeInDrainMode, "not accepting new intents while draining")
	}
	if err := in.Verify(); err != nil {
		return "", err
	}
	if err := in.Validate(); err != nil {
		return "", err
	}
	if in.IsExpired(now) {
		return "", xerrors.New(xerrors.Validation, xerrors.CodeExpired, "intent "+in.ID+" already expired")
	}

	c.mu.Lock()
	if _, exists := c.intents[in.ID]; exists {
		c.mu.Unlock()
		return "", xerrors.New(xerrors.Validation, xerrors.CodeDuplicateID, "intent id already submitted")
	}
	seen := c.nonces[in.User]
	if seen == nil {
		seen = make(map[uint64]bool)
		c.nonces[in.User] = seen
	}
	if seen[in.Nonce] {
		c.mu.Unlock()
		return "", xerrors.New(xerrors.Validation, xerrors.CodeReplayedNonce, "nonce already used by this user")
	}
	seen[in.Nonce] = true
	c.mu.Unlock()

	escrowID := "esc_" + in.ID
	if _, err := c.escrow.Lock(in.User, in.Input.Amount, in.Input.Denom, escrowID, in.ID, in.ExpiresAt); err != nil {
		return "", err
	}

	rec := &intentRecord{Intent: in, EscrowID: escrowID, Status: IntentOpen, FilledAmount: xdecimal.Zero}
	c.mu.Lock()
	c.intents[in.ID] = rec
	c.mu.Unlock()

	result, err := c.matching.ProcessIntent(in, now)
	if err != nil {
		return "", err
	}
	c.settleBookFills(result.Fills, now)

	if !result.Remaining.IsZero() && !result.Rested {
		pair := in.Pair()
		c.mu.Lock()
		c.pending[pair] = append(c.pending[pair], in.ID)
		c.mu.Unlock()
	}

	c.logEvent("intent_submitted", "intent_id", in.ID, "user", in.User, "pair", in.Pair().String())
	return in.ID, nil
}

// settleBookFills releases escrow for both legs of every resting-order
// fill once the owning intent's cumulative filled amount reaches its
// original input (spec.md §9's "arena vs references" aside notes
// settlement never owns funds directly; this mirrors that by settling
// through escrow.Release rather than any side ledger). Partial fills
// accumulate in FilledAmount and do not release until fully consumed —
// this logical escrow's Release is whole-lock, not partial.
func (c *Core) settleBookFills(fills []orderbook.Fill, now int64) {
	for _, f := range fills {
		c.creditFill(f.TakerIntentID, f.MakerIntentID, f.Amount, now)
		c.creditFill(f.MakerIntentID, f.TakerIntentID, f.Amount, now)
	}
}

func (c *Core) recordBatchAuctionFills(result matching.AuctionResult) {
	if c.metrics == nil {
		return
	}
	for range result.InternalFills {
		c.metrics.RecordBatchAuctionFill("internal")
	}
	for range result.SolverFills {
		c.metrics.RecordBatchAuctionFill("solver")
	}
}

func (c *Core) creditFill(ownerID, counterpartyID string, delta xdecimal.Amount, now int64) {
	c.mu.Lock()
	rec, ok := c.intents[ownerID]
	counterparty, cok := c.intents[counterpartyID]
	c.mu.Unlock()
	if !ok || !cok || rec.Status != IntentOpen {
		return
	}

	sum, err := rec.FilledAmount.Add(delta)
	if err != nil {
		return
	}
	rec.FilledAmount = sum
	if rec.FilledAmount.Cmp(rec.Intent.Input.Amount) < 0 {
		return
	}

	if err := c.escrow.Release(rec.EscrowID, c.cfg.SelfIdentity, counterparty.Intent.Output.Recipient, now); err != nil {
		return
	}
	c.mu.Lock()
	rec.Status = IntentMatched
	c.mu.Unlock()
}

// CancelIntent implements cancel_intent (spec.md §6): only the
// submitting user may cancel, and only before the intent has matched.
func (c *Core) CancelIntent(intentID, caller string, now int64) error {
	c.mu.Lock()
	rec, ok := c.intents[intentID]
	c.mu.Unlock()
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "intent not found")
	}
	if caller != rec.Intent.User {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only the submitting user may cancel this intent")
	}
	if rec.Status != IntentOpen {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeAlreadyMatched, "intent already matched")
	}
	if _, err := c.store.GetByIntent(intentID); err == nil {
		return xerrors.New(xerrors.StateTransition, xerrors.CodeAlreadyMatched, "intent already has a settlement")
	}

	if err := c.escrow.Refund(rec.EscrowID, rec.Intent.User, now); err != nil {
		return err
	}

	c.mu.Lock()
	rec.Status = IntentCancelled
	pair := rec.Intent.Pair()
	c.pending[pair] = removeID(c.pending[pair], intentID)
	c.mu.Unlock()
	c.logEvent("intent_cancelled", "intent_id", intentID, "caller", caller)
	return nil
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// RegisterSolver implements the solver façade's register (spec.md §6).
func (c *Core) RegisterSolver(id, operator string, bond xdecimal.Amount, now int64) (*solver.Solver, error) {
	return c.solvers.Register(id, operator, bond, now)
}

// SubmitQuote implements the solver façade's quote submission: a
// stateless, advisory proposal buffered only until the next
// RunBatchAuction call consumes it for the quote's intent's pair
// (spec.md §6 "quote(intent_ids) -> [SolverQuote] (stateless
// advisory)" — this module resolves that surface as solvers pushing
// quotes in, rather than callers pulling a live quote out, since
// nothing here simulates a solver's own pricing logic to answer a
// pull). nowMs is a millisecond timestamp, matching SolverQuote's own
// ReceivedAtMs/ValidForMs fields — the one place in this package where
// time is measured finer than the rest of the module's second
// granularity.
func (c *Core) SubmitQuote(q intent.SolverQuote, nowMs int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.intents[q.IntentID]
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "quote references an unknown intent")
	}
	if q.IsExpired(nowMs) {
		return xerrors.New(xerrors.Validation, xerrors.CodeExpired, "quote already expired")
	}
	pair := rec.Intent.Pair()
	c.quotes[pair] = append(c.quotes[pair], q)
	return nil
}

// RunBatchAuction implements the batch-auction trigger (spec.md §4.C):
// it drains the pending-intent queue and quote buffer for pair, runs
// one auction epoch, settles internal fills directly through escrow,
// and opens a two-phase settlement for every solver fill.
func (c *Core) RunBatchAuction(pair intent.TradingPair, now int64) (matching.AuctionResult, []error, error) {
	c.mu.Lock()
	ids := c.pending[pair]
	delete(c.pending, pair)
	quotes := c.quotes[pair]
	delete(c.quotes, pair)

	intents := make([]intent.Intent, 0, len(ids))
	for _, id := range ids {
		if rec, ok := c.intents[id]; ok && rec.Status == IntentOpen {
			intents = append(intents, rec.Intent)
		}
	}
	c.mu.Unlock()

	result, rejections := c.matching.RunBatchAuction(pair, intents, quotes, c.feed, now)
	c.recordBatchAuctionFills(result)

	for _, f := range result.InternalFills {
		c.creditFill(f.IntentID, f.Counterparty, f.InputAmount, now)
	}

	var firstErr error
	for _, f := range result.SolverFills {
		if err := c.openSolverSettlement(f, now); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	c.logEvent("batch_auction_run", "pair", pair.String(), "internal_fills", len(result.InternalFills), "solver_fills", len(result.SolverFills), "rejections", len(rejections))
	return result, rejections, firstErr
}

// openSolverSettlement creates a settlement for one batch-auction
// solver fill and immediately drives it through UserLocked (phase 1 of
// the two-phase protocol already happened at submission time — the
// user's input sits in escrow since SubmitIntent).
func (c *Core) openSolverSettlement(f matching.AuctionFill, now int64) error {
	c.mu.Lock()
	rec, ok := c.intents[f.IntentID]
	c.mu.Unlock()
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "solver fill references an unknown intent")
	}

	sv, err := c.solvers.Get(f.Counterparty)
	if err != nil {
		return err
	}

	expiresAt := rec.Intent.ExpiresAt - c.cfg.SettlementSafetyMarginSecs
	s, err := c.settlement.Create(sv.Operator, uuid.NewString(), rec.Intent.ID, f.Counterparty, rec.Intent.User,
		settlement.Asset{Denom: rec.Intent.Input.Denom, Amount: f.InputAmount},
		settlement.Asset{Denom: rec.Intent.Output.Denom, Amount: f.OutputAmount},
		now, expiresAt)
	if err != nil {
		return err
	}

	if err := c.drain.Register(s.ID, rec.Intent.ID, f.InputAmount, now); err != nil {
		return err
	}
	if err := c.settlement.MarkUserLocked(c.cfg.EscrowContract, s.ID, rec.EscrowID, now); err != nil {
		return err
	}
	c.recordTransition(settlement.UserLocked)
	if c.metrics != nil {
		c.metrics.SetInflightSettlements(c.drain.Count())
	}
	return c.drain.MarkUserLocked(s.ID)
}

// Commit implements the solver façade's commit(settlement_id) (spec.md
// §6): moves UserLocked -> SolverLocked by locking the solver's vault
// collateral, then immediately submits the inter-chain transfer and
// advances to Executing — there is no further external touchpoint
// between SolverLocked and transfer submission in spec.md §6's
// interface list, so both steps happen within this one call. The route
// is looked up from the original intent's chain pair (settlement
// records only carry denom/amount legs, not chain ids — spec.md §9
// "Arena vs references": settlement -> intent is a foreign key, so
// Core re-reads the intent it already holds rather than denormalizing
// chain ids onto the settlement).
func (c *Core) Commit(caller, settlementID string, now int64) error {
	s, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}

	c.mu.Lock()
	rec, ok := c.intents[s.IntentID]
	c.mu.Unlock()
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNotFound, "settlement's originating intent is no longer tracked")
	}
	route, ok := c.routes.FindRoute(rec.Intent.Input.ChainID, rec.Intent.Output.ChainID)
	if !ok {
		return xerrors.New(xerrors.Resource, xerrors.CodeNoRoute, "no route to the solver's destination chain")
	}

	vaultLockID := "vault_" + settlementID
	expiresAt := s.ExpiresAt + c.cfg.BridgeTimeoutMultiplier*int64(route.EstimatedSeconds)
	if _, err := c.vault.Lock(vaultLockID, s.SolverID, s.SolverOutput.Amount, s.SolverOutput.Denom, expiresAt); err != nil {
		return err
	}
	if err := c.settlement.MarkSolverLocked(caller, settlementID, vaultLockID, now); err != nil {
		return err
	}
	c.recordTransition(settlement.SolverLocked)
	if err := c.drain.MarkSolverLocked(settlementID, s.SolverID); err != nil {
		return err
	}

	seq, err := c.relayer.SubmitTransfer(relayer.Transfer{
		SettlementID:   settlementID,
		Route:          route,
		Denom:          s.SolverOutput.Denom,
		Amount:         s.SolverOutput.Amount,
		Recipient:      s.User,
		TimeoutSeconds: expiresAt - now,
	})
	if err != nil {
		return err
	}
	if err := c.settlement.MarkExecuting(caller, settlementID, now, &seq); err != nil {
		return err
	}
	c.recordTransition(settlement.Executing)
	c.logEvent("settlement_executing", "settlement_id", settlementID, "solver_id", s.SolverID, "sequence", seq)
	return c.drain.MarkIBCInFlight(settlementID)
}

// HandleAck implements the relayer façade's handle_ack (spec.md §6),
// then recomputes the solver's reputation record now that one of its
// settlements reached a terminal status.
func (c *Core) HandleAck(caller, settlementID string, success bool, now int64) error {
	s, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}
	if err := c.settlement.HandleAck(caller, settlementID, success, now); err != nil {
		return err
	}
	if success {
		c.recordTransition(settlement.Completed)
		c.logEvent("settlement_completed", "settlement_id", settlementID, "solver_id", s.SolverID)
	} else {
		c.recordTransition(settlement.Failed)
		c.logEvent("settlement_failed", "settlement_id", settlementID, "solver_id", s.SolverID)
	}
	c.drain.Complete(settlementID)
	if c.metrics != nil {
		c.metrics.SetInflightSettlements(c.drain.Count())
	}
	rec, err := c.reputation.Update(s.SolverID, now)
	if err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordReputationScore(rec.SolverID, rec.Score)
	}
	return nil
}

// HandleTimeout implements the relayer façade's handle_timeout.
func (c *Core) HandleTimeout(caller, settlementID string, now int64) error {
	s, err := c.store.Get(settlementID)
	if err != nil {
		return err
	}
	if err := c.settlement.HandleTimeout(caller, settlementID, now); err != nil {
		return err
	}
	c.recordTransition(settlement.TimedOut)
	c.logEvent("settlement_timed_out", "settlement_id", settlementID, "solver_id", s.SolverID)
	c.drain.Complete(settlementID)
	if c.metrics != nil {
		c.metrics.SetInflightSettlements(c.drain.Count())
	}
	rec, err := c.reputation.Update(s.SolverID, now)
	if err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.RecordReputationScore(rec.SolverID, rec.Score)
	}
	return nil
}

// Slash implements the admin façade's slash(solver_id, settlement_id).
func (c *Core) Slash(caller, settlementID string, now int64) (xdecimal.Amount, error) {
	s, err := c.store.Get(settlementID)
	if err != nil {
		return xdecimal.Zero, err
	}
	amount, err := c.settlement.Slash(caller, settlementID, now)
	if err != nil {
		return xdecimal.Zero, err
	}
	if c.metrics != nil {
		slashed, _ := new(big.Float).SetInt(amount.BigInt()).Float64()
		c.metrics.RecordSlash(slashed)
	}
	c.logEvent("settlement_slashed", "settlement_id", settlementID, "solver_id", s.SolverID, "amount", amount.String(), "caller", caller)
	c.drain.Complete(settlementID)
	if c.metrics != nil {
		c.metrics.SetInflightSettlements(c.drain.Count())
	}
	rec, rerr := c.reputation.Update(s.SolverID, now)
	if rerr != nil {
		return amount, rerr
	}
	if c.metrics != nil {
		c.metrics.RecordReputationScore(rec.SolverID, rec.Score)
	}
	return amount, nil
}

// UpdateConfig implements the admin façade's update_config(...),
// propagating the new tunables to this Core and to the settlement
// controller it drives.
func (c *Core) UpdateConfig(caller string, cfg config.Config) error {
	if caller != c.cfg.Admin {
		return xerrors.New(xerrors.Authorization, xerrors.CodeUnauthorized, "only admin may update config")
	}
	if err := c.settlement.UpdateConfig(caller, settlement.Config{
		Admin:          cfg.Admin,
		EscrowContract: cfg.EscrowContract,
		AckAuthority:   cfg.AckAuthority,
		SelfIdentity:   cfg.SelfIdentity,
		BaseSlashBps:   cfg.BaseSlashBps,
		MinSlashAmount: cfg.MinSlashAmount,
	}); err != nil {
		return err
	}
	c.mu.Lock()
	c.cfg = cfg
	c.mu.Unlock()
	return nil
}

// DecayReputation implements the admin façade's decay_reputation
// (spec.md §6), returning the pagination cursor so a caller can drive
// the sweep across every solver without a single unbounded pass.
func (c *Core) DecayReputation(startAfter string, limit int, now int64) (updatedCount int, lastProcessedID string, err error) {
	return c.reputation.Decay(startAfter, limit, now)
}

// StartDrain implements the admin façade's start_drain(reason,
// deadline_secs).
func (c *Core) StartDrain(reason string, deadlineSecs, now int64) error {
	if err := c.drain.StartDrain(reason, deadlineSecs, now); err != nil {
		return err
	}
	c.logEvent("drain_started", "reason", reason, "deadline_secs", deadlineSecs)
	return nil
}

// WaitForDrain implements the admin façade's wait_for_drain(timeout).
func (c *Core) WaitForDrain(timeout, pollInterval time.Duration, now int64) recovery.DrainResult {
	return c.drain.WaitForDrain(timeout, pollInterval, now)
}

// Resume implements the admin façade's resume().
func (c *Core) Resume() error {
	if err := c.drain.Resume(); err != nil {
		return err
	}
	c.logEvent("drain_resumed")
	return nil
}

// ScanRecovery recommends an action for every stuck settlement (spec.md
// §4.H); the caller, not Core, decides whether to actually invoke the
// admin-authorized handler a recommendation points at.
func (c *Core) ScanRecovery(now int64) ([]recovery.Recommendation, error) {
	return recovery.ScanStuck(c.store, now)
}
