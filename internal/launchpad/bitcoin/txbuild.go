package bitcoin

import (
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
	"github.com/runeforge/launchpad/internal/launchpad/runestone"
)

// Vsize weight constants for a P2TR key-spend transaction. There is no
// teacher constant to inherit here: the weight-unit constants the
// teacher's own estimator references are undefined anywhere in its
// config package, so these are derived directly from BIP-341/BIP-342
// field sizes (witness: 1-byte stack count + 1-byte push length + 64
// bytes Schnorr signature, discounted 1/4 under segwit weight rules).
const (
	txOverheadVBytes   = 11 // version(4) + segwit marker/flag(2 discounted) + locktime(4) + varint counts(~1)
	p2trInputBaseVBytes = 41 // outpoint(36) + scriptSig length(1) + sequence(4), non-witness
	p2trInputWitVBytes  = 17 // (1 stack item count + 1 push len + 64 sig) / 4, rounded up
	p2trOutputVBytes    = 43 // value(8) + scriptPubKey length(1) + P2TR script(34)
	opReturnOverheadVBytes = 11 // OP_RETURN(1) + OP_13(1) + push opcode(1) + up to ~80 byte payload accounted separately
)

// DustThresholdSats is the minimum value a P2TR output may carry.
// Change below this is dropped into the fee rather than created as an
// uneconomical output.
const DustThresholdSats = 330

// EstimateVsize returns the estimated transaction vsize in vbytes for
// a P2TR-only transaction with the given number of spent inputs,
// change/receive outputs, and an OP_RETURN runestone output of
// runestoneLen bytes.
func EstimateVsize(numInputs, numOutputs, runestoneLen int) int {
	inputVBytes := numInputs * (p2trInputBaseVBytes + p2trInputWitVBytes)
	outputVBytes := numOutputs * p2trOutputVBytes
	opReturnVBytes := opReturnOverheadVBytes + runestoneLen
	return txOverheadVBytes + inputVBytes + outputVBytes + opReturnVBytes
}

// selectUtxos runs branch-and-bound selection over confirmed UTXOs,
// minimizing leftover change while covering target (the sum of output
// amounts plus the estimated fee). Ties are broken by largest-input-
// first, matching the fallback greedy pass below.
func selectUtxos(utxos []domain.Utxo, target uint64) ([]domain.Utxo, uint64, error) {
	sorted := make([]domain.Utxo, len(utxos))
	copy(sorted, utxos)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ValueSats > sorted[j].ValueSats })

	best, bestSum, found := branchAndBound(sorted, target)
	if found {
		return best, bestSum - target, nil
	}

	// Branch-and-bound found no covering subset within its visit limit;
	// fall back to largest-input-first greedy accumulation.
	var sum uint64
	var chosen []domain.Utxo
	for _, u := range sorted {
		if sum >= target {
			break
		}
		chosen = append(chosen, u)
		sum += u.ValueSats
	}
	if sum < target {
		return nil, 0, errs.New(errs.KindInsufficientBalance, fmt.Errorf("have %d sats, need %d sats", sum, target))
	}
	return chosen, sum - target, nil
}

// branchAndBoundDepthLimit bounds how many subsets the search below
// will visit.
const branchAndBoundDepthLimit = 1_000_000

// branchAndBound performs a depth-first search over the sorted input
// set, looking for a subset whose sum is >= target with the smallest
// possible excess. It is bounded by branchAndBoundDepthLimit node
// visits so a very large UTXO set cannot make etching unresponsive;
// when the limit is hit, the best covering subset found so far is
// returned, and only if none was found does the caller fall through to
// its greedy fallback.
func branchAndBound(sorted []domain.Utxo, target uint64) ([]domain.Utxo, uint64, bool) {
	var bestSet []domain.Utxo
	var bestSum uint64
	found := false
	visits := 0

	var remaining uint64
	for _, u := range sorted {
		remaining += u.ValueSats
	}

	var walk func(idx int, sum uint64, chosen []domain.Utxo)
	walk = func(idx int, sum uint64, chosen []domain.Utxo) {
		visits++
		if visits > branchAndBoundDepthLimit {
			return
		}
		if sum >= target {
			if !found || sum < bestSum {
				bestSum = sum
				found = true
				bestSet = append([]domain.Utxo(nil), chosen...)
			}
			return
		}
		if idx >= len(sorted) {
			return
		}
		if sum+remaining-sumFrom(sorted, idx) < target {
			return
		}

		// Include sorted[idx].
		walk(idx+1, sum+sorted[idx].ValueSats, append(chosen, sorted[idx]))
		// Exclude sorted[idx].
		walk(idx+1, sum, chosen)
	}

	walk(0, 0, nil)
	return bestSet, bestSum, found
}

func sumFrom(utxos []domain.Utxo, idx int) uint64 {
	var s uint64
	for i := 0; i < idx && i < len(utxos); i++ {
		s += utxos[i].ValueSats
	}
	return s
}

// BuildEtchingTx assembles an unsigned transaction whose output 0
// carries the Runestone OP_RETURN payload and whose output 1 returns
// change to changeAddress; output 1 is omitted when the change is below
// DustThresholdSats. feeRateSatVByte is the chosen tier's
// sat/vbyte rate from the fee manager.
func BuildEtchingTx(spec domain.EtchingSpec, utxos []domain.Utxo, changeAddress string, feeRateSatVByte uint64, net *chaincfg.Params) (*wire.MsgTx, *runestone.Runestone, []domain.Utxo, uint64, error) {
	rs, err := runestone.FromSpec(spec, 1)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	runeScript, err := rs.IntoScript()
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("render runestone script: %w", err)
	}

	changeAddr, err := btcutil.DecodeAddress(changeAddress, net)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("decode change address %q: %w", changeAddress, err)
	}
	changeScript, err := txscript.PayToAddrScript(changeAddr)
	if err != nil {
		return nil, nil, nil, 0, fmt.Errorf("build change script: %w", err)
	}

	// Select once against a one-input estimate, then re-estimate for
	// the number of inputs actually chosen and select again only if
	// they no longer cover it. Both estimates count one change output;
	// change below dust is later dropped into the fee, not re-estimated.
	estVsize := EstimateVsize(1, 1, len(runeScript))
	target := uint64(estVsize) * feeRateSatVByte

	chosen, change, err := selectUtxos(utxos, target)
	if err != nil {
		return nil, nil, nil, 0, err
	}

	estVsize = EstimateVsize(len(chosen), 1, len(runeScript))
	target = uint64(estVsize) * feeRateSatVByte
	if sumValues(chosen) < target {
		chosen, change, err = selectUtxos(utxos, target)
		if err != nil {
			return nil, nil, nil, 0, err
		}
	} else {
		change = sumValues(chosen) - target
	}

	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range chosen {
		hash, err := chainhash.NewHashFromStr(u.Txid)
		if err != nil {
			return nil, nil, nil, 0, fmt.Errorf("parse utxo txid %q: %w", u.Txid, err)
		}
		in := wire.NewTxIn(wire.NewOutPoint(hash, u.Vout), nil, nil)
		in.Sequence = wire.MaxTxInSequenceNum
		tx.AddTxIn(in)
	}

	tx.AddTxOut(wire.NewTxOut(0, runeScript))

	feeSats := target
	if change >= DustThresholdSats {
		tx.AddTxOut(wire.NewTxOut(int64(change), changeScript))
	} else {
		// Change below dust is dropped into the fee.
		feeSats += change
	}

	return tx, rs, chosen, feeSats, nil
}

func sumValues(utxos []domain.Utxo) uint64 {
	var s uint64
	for _, u := range utxos {
		s += u.ValueSats
	}
	return s
}
