package runestone

import (
	"math/big"
	"slices"
)

// RuneID identifies a rune by the (block, tx_index) pair it was
// etched at. It mirrors domain.RuneKey but stays local to this
// package's wire encoding so the codec has no import-cycle dependency
// on the domain package.
type RuneID struct {
	Block uint64
	TxID  uint32
}

// Next resolves a delta-encoded RuneID relative to id, per the
// protocol's edict delta scheme: a zero block delta means only the
// tx index advances.
func (id RuneID) Next(delta RuneID) RuneID {
	if delta.Block == 0 {
		return RuneID{Block: id.Block, TxID: id.TxID + delta.TxID}
	}
	return RuneID{Block: id.Block + delta.Block, TxID: delta.TxID}
}

func (id RuneID) toIntSeq() []*big.Int {
	return []*big.Int{new(big.Int).SetUint64(id.Block), new(big.Int).SetUint64(uint64(id.TxID))}
}

// Edict transfers Amount units of RuneID to the transaction's Output
// index. This repository never emits edicts for an etching itself
// (premine goes to the pointer output) but parses them when decoding
// an arbitrary runestone for audit display.
type Edict struct {
	RuneID RuneID
	Amount *big.Int
	Output uint32
}

func parseEdicts(sr *sequenceReader) ([]Edict, error) {
	if sr.remaining()%4 != 0 {
		return nil, ErrCenotaph
	}

	var prev RuneID
	edicts := make([]Edict, 0, sr.remaining()/4)
	for sr.hasNext() {
		block, _ := sr.next()
		tx, _ := sr.next()
		amount, _ := sr.next()
		output, _ := sr.next()

		id := prev.Next(RuneID{Block: block.Uint64(), TxID: uint32(tx.Uint64())})
		edicts = append(edicts, Edict{RuneID: id, Amount: amount, Output: uint32(output.Uint64())})
		prev = id
	}
	return edicts, nil
}

func sortEdicts(edicts []Edict) {
	slices.SortFunc(edicts, func(a, b Edict) int {
		if a.RuneID.Block != b.RuneID.Block {
			if a.RuneID.Block < b.RuneID.Block {
				return -1
			}
			return 1
		}
		return int(a.RuneID.TxID) - int(b.RuneID.TxID)
	})
}

// edictsToIntSeq sorts edicts and delta-encodes them into the flat
// integer sequence the wire format carries after the TagBody marker.
func edictsToIntSeq(edicts []Edict) []*big.Int {
	sorted := make([]Edict, len(edicts))
	copy(sorted, edicts)
	sortEdicts(sorted)

	sequence := make([]*big.Int, 0, len(sorted)*4)
	var prevBlock uint64
	var prevTx uint32
	for _, e := range sorted {
		blockDelta := e.RuneID.Block - prevBlock
		var txDelta uint32
		if blockDelta == 0 {
			txDelta = e.RuneID.TxID - prevTx
		} else {
			txDelta = e.RuneID.TxID
		}
		sequence = append(sequence,
			new(big.Int).SetUint64(blockDelta),
			new(big.Int).SetUint64(uint64(txDelta)),
			new(big.Int).Set(e.Amount),
			new(big.Int).SetUint64(uint64(e.Output)),
		)
		prevBlock, prevTx = e.RuneID.Block, e.RuneID.TxID
	}
	return sequence
}
