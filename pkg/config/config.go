// Package config collects the protocol's tunable constants — the
// identities authorized to drive each capability, the slashing
// parameters, the oracle tolerance band, and the inter-chain safety
// multipliers spec.md §4.F/§6 name — behind one env-overridable defaults
// struct. Reputation decay (spec.md §4.G) is fixed by the spec rather
// than admin-tunable, so its constants live unexported in pkg/reputation
// instead of here.
//
// Grounded on the teacher's params/config.go: the same
// Default()-then-LoadFromEnv(envPath) shape, using godotenv to load an
// optional .env file before environment variables override it.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/atomintents/intentcore/pkg/xdecimal"
)

// Config holds every cross-package tunable this module's orchestrator
// wires into its collaborators' Config structs at startup.
type Config struct {
	// Identities authorized to drive settlement transitions (spec.md
	// §4.F's Config) and escrow releases/refunds.
	Admin          string
	AckAuthority   string
	SelfIdentity   string
	EscrowContract string

	// Slashing (spec.md §4.F "Slashing").
	BaseSlashBps   uint64
	MinSlashAmount xdecimal.Amount

	// Solver registry (spec.md §4.E).
	MinSolverBond xdecimal.Amount

	// Matching/oracle (spec.md §4.C step 1): how far an intent's limit
	// price may deviate from the oracle price before rejection.
	OracleToleranceBps uint64

	// Timeout discipline (spec.md §4.F "Timeout discipline"): the
	// safety margin subtracted from an intent's deadline to derive a
	// settlement's expires_at, and the multiplier applied to a route's
	// estimated transfer time to derive the inter-chain transfer's own
	// timeout.
	SettlementSafetyMarginSecs int64
	BridgeTimeoutMultiplier    int64
}

// Default returns the protocol's baseline tunables. Identity fields are
// left blank — a deployment must set them explicitly, since shipping a
// default admin/ack-authority address would be a standing vulnerability.
func Default() Config {
	return Config{
		BaseSlashBps:               500, // 5%
		MinSlashAmount:             xdecimal.NewAmount(1_000_000),
		MinSolverBond:              xdecimal.NewAmount(10_000_000),
		OracleToleranceBps:         200, // 2%
		SettlementSafetyMarginSecs: 60,
		BridgeTimeoutMultiplier:    2,
	}
}

// LoadFromEnv loads Config from an optional .env file (silently ignored
// if absent) and then environment variables, in that priority order over
// the defaults — mirroring the teacher's LoadFromEnv(envPath).
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("INTENTCORE_ADMIN"); v != "" {
		cfg.Admin = v
	}
	if v := os.Getenv("INTENTCORE_ACK_AUTHORITY"); v != "" {
		cfg.AckAuthority = v
	}
	if v := os.Getenv("INTENTCORE_SELF_IDENTITY"); v != "" {
		cfg.SelfIdentity = v
	}
	if v := os.Getenv("INTENTCORE_ESCROW_CONTRACT"); v != "" {
		cfg.EscrowContract = v
	}
	if v := os.Getenv("INTENTCORE_BASE_SLASH_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.BaseSlashBps = n
		}
	}
	if v := os.Getenv("INTENTCORE_MIN_SLASH_AMOUNT"); v != "" {
		if amt, err := xdecimal.ParseAmount(v); err == nil {
			cfg.MinSlashAmount = amt
		}
	}
	if v := os.Getenv("INTENTCORE_MIN_SOLVER_BOND"); v != "" {
		if amt, err := xdecimal.ParseAmount(v); err == nil {
			cfg.MinSolverBond = amt
		}
	}
	if v := os.Getenv("INTENTCORE_ORACLE_TOLERANCE_BPS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.OracleToleranceBps = n
		}
	}
	if v := os.Getenv("INTENTCORE_SETTLEMENT_SAFETY_MARGIN_SECS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.SettlementSafetyMarginSecs = n
		}
	}
	if v := os.Getenv("INTENTCORE_BRIDGE_TIMEOUT_MULTIPLIER"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.BridgeTimeoutMultiplier = n
		}
	}
	return cfg
}
