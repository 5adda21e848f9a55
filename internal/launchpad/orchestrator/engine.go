// Package orchestrator implements the etching orchestrator: the
// per-process state machine that drives a create_rune request from
// Pending through to Completed or a terminal Failed, with idempotence
// on (owner, rune_name) and bounded, class-aware retry.
package orchestrator

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/wire"

	"github.com/runeforge/launchpad/internal/launchpad/bitcoin"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
	"github.com/runeforge/launchpad/internal/launchpad/fee"
	"github.com/runeforge/launchpad/internal/launchpad/rbac"
	"github.com/runeforge/launchpad/internal/launchpad/registry"
	"github.com/runeforge/launchpad/internal/launchpad/runestone"
)

// Config mirrors the orchestrator's administrative configuration
// surface (update_etching_config).
type Config struct {
	Network                domain.Network
	DefaultFeeRate          uint64
	RequiredConfirmations   uint32
	EnableRetries           bool
	MaxRetries              int
	ConfirmationPollInterval time.Duration
	FeeRefreshInterval      time.Duration
	LostTimeout             time.Duration
	RateLimitPerMinute      int
	Whitelist               map[domain.Principal]bool
}

// DefaultMaxRetries is the default retry budget for a failed process.
const DefaultMaxRetries = 3

// Store is the persistence seam for etching processes, separate from
// the registry's Rune index.
type Store interface {
	SaveProcess(domain.EtchingProcess) error
	GetProcess(processID string) (domain.EtchingProcess, bool, error)
	FindActiveByOwnerAndName(owner domain.Principal, runeName string) (string, bool, error)
	ProcessesByOwner(owner domain.Principal) ([]domain.EtchingProcess, error)
	SavePendingConfirmation(domain.PendingConfirmation) error
	CountByState(domain.EtchingState) (uint64, error)
}

// Engine is the orchestrator. All of its exported methods are safe for
// concurrent use; transitions of a single process are serialized via a
// per-process_id mutex, while unrelated processes proceed concurrently.
type Engine struct {
	mu           sync.RWMutex
	config       Config
	store        Store
	registry     *registry.Store
	roles        *rbac.Store
	feeManager   *fee.Manager
	utxoFetcher  *bitcoin.UTXOFetcher
	signer       bitcoin.ThresholdSigner
	broadcaster  bitcoin.Broadcaster
	runeKeys     *bitcoin.RuneKeyResolver
	netParams    *chaincfg.Params
	masterKey    addressDeriver

	processLocks sync.Map // process_id -> *sync.Mutex
	txStash      sync.Map // process_id -> *stashedTx
}

// stashedTx holds the in-flight transaction a process is building,
// between the BuildingTransaction, SigningTransaction, and
// Broadcasting steps. It lives only in memory: if it is missing when
// SigningTransaction or Broadcasting runs (for example after a
// restart), that step fails with an Internal error, which is not
// retried, so the process ends in Failed rather than rebuilding.
type stashedTx struct {
	tx       *wire.MsgTx
	prevOuts []*wire.TxOut
	signed   bool
}

func (e *Engine) stashUnsignedTx(processID string, tx *wire.MsgTx, prevOuts []*wire.TxOut) {
	e.txStash.Store(processID, &stashedTx{tx: tx, prevOuts: prevOuts})
}

func (e *Engine) loadUnsignedTx(processID string) (*wire.MsgTx, []*wire.TxOut, bool) {
	v, ok := e.txStash.Load(processID)
	if !ok {
		return nil, nil, false
	}
	s := v.(*stashedTx)
	return s.tx, s.prevOuts, true
}

func (e *Engine) stashSignedTx(processID string, tx *wire.MsgTx) {
	v, ok := e.txStash.Load(processID)
	if !ok {
		e.txStash.Store(processID, &stashedTx{tx: tx, signed: true})
		return
	}
	s := v.(*stashedTx)
	s.signed = true
}

func (e *Engine) loadSignedTxHex(processID string) (string, bool) {
	v, ok := e.txStash.Load(processID)
	if !ok {
		return "", false
	}
	s := v.(*stashedTx)
	if !s.signed {
		return "", false
	}
	var buf bytes.Buffer
	if err := s.tx.Serialize(&buf); err != nil {
		slog.Error("orchestrator: failed to serialize signed transaction", "process_id", processID, "error", err)
		return "", false
	}
	e.txStash.Delete(processID)
	return hex.EncodeToString(buf.Bytes()), true
}

// addressDeriver is the subset of the Bitcoin service's address
// derivation the orchestrator needs; isolated as an interface so tests
// can supply a deterministic stand-in without an HD master key.
type addressDeriver interface {
	DeriveAddress(principal domain.Principal) (string, error)
}

// NewEngine builds an orchestrator Engine.
func NewEngine(
	config Config,
	store Store,
	reg *registry.Store,
	roles *rbac.Store,
	feeManager *fee.Manager,
	utxoFetcher *bitcoin.UTXOFetcher,
	signer bitcoin.ThresholdSigner,
	broadcaster bitcoin.Broadcaster,
	runeKeys *bitcoin.RuneKeyResolver,
	netParams *chaincfg.Params,
	deriver addressDeriver,
) *Engine {
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultMaxRetries
	}
	return &Engine{
		config:      config,
		store:       store,
		registry:    reg,
		roles:       roles,
		feeManager:  feeManager,
		utxoFetcher: utxoFetcher,
		signer:      signer,
		broadcaster: broadcaster,
		runeKeys:    runeKeys,
		netParams:   netParams,
		masterKey:   deriver,
	}
}

func (e *Engine) lockFor(processID string) *sync.Mutex {
	actual, _ := e.processLocks.LoadOrStore(processID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

// CreateRune starts (or resumes) an etching attempt. Re-invoking with a
// spec that already has an active or completed process for the same
// (owner, rune_name) returns the existing process_id rather than
// starting a new attempt.
func (e *Engine) CreateRune(ctx context.Context, owner domain.Principal, spec domain.EtchingSpec) (string, error) {
	if existing, ok, err := e.store.FindActiveByOwnerAndName(owner, spec.RuneName); err != nil {
		return "", errs.New(errs.KindInternal, err)
	} else if ok {
		return existing, nil
	}

	if err := runestone.ValidateSpec(spec); err != nil {
		return "", errs.New(errs.KindInvalidArgument, err)
	}

	processID, err := newProcessID()
	if err != nil {
		return "", errs.New(errs.KindInternal, err)
	}

	now := time.Now().Unix()
	process := domain.EtchingProcess{
		ProcessID:      processID,
		OwnerPrincipal: owner,
		RuneName:       spec.RuneName,
		Spec:           spec,
		State:          domain.StatePending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := e.store.SaveProcess(process); err != nil {
		return "", errs.New(errs.KindInternal, err)
	}

	go e.drive(context.WithoutCancel(ctx), processID)

	return processID, nil
}

// GetEtchingStatus returns the current view of a process.
func (e *Engine) GetEtchingStatus(processID string) (domain.EtchingProcess, error) {
	p, ok, err := e.store.GetProcess(processID)
	if err != nil {
		return domain.EtchingProcess{}, errs.New(errs.KindInternal, err)
	}
	if !ok {
		return domain.EtchingProcess{}, errs.New(errs.KindInvalidArgument, errs.ErrProcessNotFound)
	}
	return p, nil
}

// GetMyEtchings returns every process owned by caller.
func (e *Engine) GetMyEtchings(caller domain.Principal) ([]domain.EtchingProcess, error) {
	procs, err := e.store.ProcessesByOwner(caller)
	if err != nil {
		return nil, errs.New(errs.KindInternal, err)
	}
	return procs, nil
}

// PendingConfirmationCount reports how many processes currently await
// confirmation.
func (e *Engine) PendingConfirmationCount() (uint64, error) {
	n, err := e.store.CountByState(domain.StateAwaitingConfirmation)
	if err != nil {
		return 0, errs.New(errs.KindInternal, err)
	}
	return n, nil
}

func newProcessID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate process id: %w", err)
	}
	return "proc_" + hex.EncodeToString(buf), nil
}
