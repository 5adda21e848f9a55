package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/btcsuite/btcd/wire"

	"github.com/runeforge/launchpad/internal/launchpad/bitcoin"
	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
	"github.com/runeforge/launchpad/internal/launchpad/runestone"
)

// drive runs process through as many transitions as it can complete
// without external help, suspending at AwaitingConfirmation (the
// confirmation tracker resumes it from there via AdvanceToIndexing) or
// at a terminal state. At most one drive call per process_id is ever
// active at once, enforced by the per-process mutex.
func (e *Engine) drive(ctx context.Context, processID string) {
	lock := e.lockFor(processID)
	lock.Lock()
	defer lock.Unlock()

	process, ok, err := e.store.GetProcess(processID)
	if err != nil || !ok {
		slog.Error("orchestrator: cannot load process to drive", "process_id", processID, "error", err)
		return
	}

	for {
		if process.State.Terminal() {
			return
		}

		next, stepErr := e.step(ctx, process)
		if stepErr != nil {
			process = e.fail(process, stepErr)
			e.persist(process)
			if process.State != domain.StateFailed {
				continue // retried back into BuildingTransaction
			}
			return
		}

		process = next
		e.persist(process)

		if process.State == domain.StateAwaitingConfirmation {
			return
		}
		if process.State == domain.StateIndexing {
			// Indexing runs inline: it only waits on a single registry
			// write, not an external confirmation.
			continue
		}
	}
}

func (e *Engine) persist(process domain.EtchingProcess) {
	process.UpdatedAt = time.Now().Unix()
	if err := e.store.SaveProcess(process); err != nil {
		slog.Error("orchestrator: failed to persist process", "process_id", process.ProcessID, "error", err)
	}
}

// step executes exactly one state's work and returns the process with
// its new state, or an error describing why the step failed.
func (e *Engine) step(ctx context.Context, process domain.EtchingProcess) (domain.EtchingProcess, error) {
	switch process.State {
	case domain.StatePending:
		process.State = domain.StateValidating
		return process, nil

	case domain.StateValidating:
		return e.stepValidating(ctx, process)

	case domain.StateCheckingBalance:
		return e.stepCheckingBalance(ctx, process)

	case domain.StateSelectingUtxos, domain.StateBuildingTransaction:
		return e.stepBuildTransaction(ctx, process)

	case domain.StateSigningTransaction:
		return e.stepSign(ctx, process)

	case domain.StateBroadcasting:
		return e.stepBroadcast(ctx, process)

	case domain.StateIndexing:
		return e.stepIndex(ctx, process)

	default:
		return process, errs.New(errs.KindInternal, errs.ErrProcessNotFound)
	}
}

func (e *Engine) stepValidating(ctx context.Context, process domain.EtchingProcess) (domain.EtchingProcess, error) {
	tip, err := e.runeKeys.ChainTip(ctx)
	if err != nil {
		return process, err // already an errs.Error (NetworkError), retriable upstream
	}

	if err := runestone.ValidateSpecAtHeight(process.Spec, uint64(tip)); err != nil {
		return process, errs.New(errs.KindInvalidArgument, err)
	}
	process.State = domain.StateCheckingBalance
	return process, nil
}

func (e *Engine) stepCheckingBalance(ctx context.Context, process domain.EtchingProcess) (domain.EtchingProcess, error) {
	address, err := e.masterKey.DeriveAddress(process.OwnerPrincipal)
	if err != nil {
		return process, errs.New(errs.KindInternal, err)
	}

	balance, err := e.utxoFetcher.Balance(ctx, address)
	if err != nil {
		return process, err // already an errs.Error (NetworkError), retriable upstream
	}

	feeRate := e.feeManager.RecommendedFee(domain.FeeTierFast)
	budget := estimatedBudget(process.Spec, feeRate)

	if balance < budget {
		return process, errs.New(errs.KindInsufficientBalance, errs.ErrInsufficientFunds)
	}

	process.State = domain.StateSelectingUtxos
	return process, nil
}

// estimatedBudget is a conservative pre-selection estimate in sats: the
// vsize of a two-input transaction with one change output and a
// Runestone output, at the fast fee rate. The premine is a Rune amount
// and adds no satoshi cost.
// The real fee is recomputed precisely once UTXOs are actually chosen
// in stepBuildTransaction.
func estimatedBudget(spec domain.EtchingSpec, feeRateSatVByte uint64) uint64 {
	const assumedInputs = 2
	const runestonePayloadEstimate = 60
	vsize := bitcoin.EstimateVsize(assumedInputs, 1, runestonePayloadEstimate)
	return uint64(vsize) * feeRateSatVByte
}

func (e *Engine) stepBuildTransaction(ctx context.Context, process domain.EtchingProcess) (domain.EtchingProcess, error) {
	address, err := e.masterKey.DeriveAddress(process.OwnerPrincipal)
	if err != nil {
		return process, errs.New(errs.KindInternal, err)
	}

	utxos, err := e.utxoFetcher.GetUTXOs(ctx, address)
	if err != nil {
		return process, err
	}

	feeRate := e.feeManager.RecommendedFee(domain.FeeTierFast)

	tx, _, chosen, _, err := bitcoin.BuildEtchingTx(process.Spec, utxos, address, feeRate, e.netParams)
	if err != nil {
		return process, err
	}

	prevOuts := make([]*wire.TxOut, len(chosen))
	for i, u := range chosen {
		prevOuts[i] = wire.NewTxOut(int64(u.ValueSats), u.ScriptPubKey)
	}

	e.stashUnsignedTx(process.ProcessID, tx, prevOuts)

	process.State = domain.StateSigningTransaction
	return process, nil
}

func (e *Engine) stepSign(ctx context.Context, process domain.EtchingProcess) (domain.EtchingProcess, error) {
	tx, prevOuts, ok := e.loadUnsignedTx(process.ProcessID)
	if !ok {
		return process, errs.New(errs.KindInternal, errs.ErrProcessNotFound)
	}

	signCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	if err := e.signer.SignTaprootTx(signCtx, tx, prevOuts, process.OwnerPrincipal); err != nil {
		return process, err
	}

	e.stashSignedTx(process.ProcessID, tx)
	process.State = domain.StateBroadcasting
	return process, nil
}

func (e *Engine) stepBroadcast(ctx context.Context, process domain.EtchingProcess) (domain.EtchingProcess, error) {
	rawHex, ok := e.loadSignedTxHex(process.ProcessID)
	if !ok {
		return process, errs.New(errs.KindInternal, errs.ErrProcessNotFound)
	}

	txid, err := e.broadcaster.Broadcast(ctx, rawHex)
	if err != nil {
		return process, err
	}

	process.Txid = txid
	process.State = domain.StateAwaitingConfirmation

	required := e.config.RequiredConfirmations
	if required == 0 {
		required = requiredConfirmationsForNetwork(e.config.Network)
	}

	if err := e.store.SavePendingConfirmation(domain.PendingConfirmation{
		Txid:                  txid,
		ProcessID:             process.ProcessID,
		RequiredConfirmations: required,
		BroadcastAt:           time.Now().Unix(),
	}); err != nil {
		slog.Error("orchestrator: failed to record pending confirmation", "process_id", process.ProcessID, "error", err)
	}

	return process, nil
}

func requiredConfirmationsForNetwork(net domain.Network) uint32 {
	if net == domain.NetworkMainnet {
		return 6
	}
	return 1
}

func (e *Engine) stepIndex(ctx context.Context, process domain.EtchingProcess) (domain.EtchingProcess, error) {
	key, err := e.runeKeys.Resolve(ctx, process.Txid)
	if err != nil {
		return process, err
	}

	entry := domain.RegistryEntry{
		Metadata: domain.RuneMetadata{
			Key:             key,
			Name:            process.Spec.RuneName,
			Symbol:          process.Spec.Symbol,
			Divisibility:    process.Spec.Divisibility,
			Premine:         process.Spec.Premine,
			TotalSupply:     process.Spec.Premine,
			EtcherPrincipal: process.OwnerPrincipal,
			CreatedAt:       time.Now().Unix(),
		},
		IndexedAt: time.Now().Unix(),
	}
	if process.Spec.Terms != nil {
		entry.Metadata.Terms = process.Spec.Terms
	}

	if err := e.registry.RegisterRune(e.roles.Owner(), entry); err != nil {
		return process, err
	}

	process.State = domain.StateCompleted
	return process, nil
}

// fail applies a failed step's error to process: a retriable error
// within budget routes back to BuildingTransaction with retry_count
// incremented; anything else (or retries exhausted) terminates in
// Failed.
func (e *Engine) fail(process domain.EtchingProcess, stepErr error) domain.EtchingProcess {
	kind := errs.KindOf(stepErr)
	process.LastErrorKind = string(kind)
	process.LastError = stepErr.Error()

	if e.config.EnableRetries && kind.Retriable() && process.RetryCount < e.config.MaxRetries {
		process.RetryCount++
		process.State = domain.StateBuildingTransaction
		return process
	}

	process.State = domain.StateFailed
	return process
}

// AdvanceToIndexing implements confirmation.ProcessAdvancer: the
// tracker calls this once a pending transaction reaches the required
// confirmation count.
func (e *Engine) AdvanceToIndexing(processID string) error {
	lock := e.lockFor(processID)
	lock.Lock()
	process, ok, err := e.store.GetProcess(processID)
	if err != nil || !ok {
		lock.Unlock()
		return errs.New(errs.KindInvalidArgument, errs.ErrProcessNotFound)
	}
	if process.State != domain.StateAwaitingConfirmation {
		// Already advanced by a previous, since-restarted tick:
		// idempotent no-op.
		lock.Unlock()
		return nil
	}
	process.State = domain.StateIndexing
	e.persist(process)
	lock.Unlock()

	go e.drive(context.Background(), processID)
	return nil
}

// FailWithRetry implements confirmation.ProcessAdvancer for the
// BroadcastLost path: it routes through the same retry-or-fail policy
// every other step error uses.
func (e *Engine) FailWithRetry(processID string, kind errs.Kind) error {
	lock := e.lockFor(processID)
	lock.Lock()
	defer lock.Unlock()

	process, ok, err := e.store.GetProcess(processID)
	if err != nil || !ok {
		return errs.New(errs.KindInvalidArgument, errs.ErrProcessNotFound)
	}
	if process.State.Terminal() {
		return nil
	}

	process = e.fail(process, errs.New(kind, errs.ErrAlreadyBroadcast))
	e.persist(process)

	if process.State == domain.StateBuildingTransaction {
		go e.drive(context.Background(), processID)
	}
	return nil
}
