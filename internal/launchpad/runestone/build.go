package runestone

import (
	"fmt"
	"math/big"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

// MaxNameLength is the longest a Rune name (bare letters, no spacers)
// may be.
const MaxNameLength = 26

// ValidateSpec checks a caller's etching spec against the protocol's
// static rules, independent of chain state (balance, name uniqueness).
func ValidateSpec(spec domain.EtchingSpec) error {
	bare, _, err := ParseSpacedName(spec.RuneName)
	if err != nil {
		return fmt.Errorf("rune_name: %w", err)
	}
	if len(bare) == 0 || len(bare) > MaxNameLength {
		return fmt.Errorf("rune_name: must be 1-%d letters", MaxNameLength)
	}
	if len(spec.Symbol) == 0 || len(spec.Symbol) > 4 {
		return fmt.Errorf("symbol: must be 1-4 characters")
	}
	if spec.Divisibility > MaxDivisibility {
		return fmt.Errorf("divisibility: must be 0-%d", MaxDivisibility)
	}
	if spec.Terms != nil {
		if spec.Terms.HeightEnd != 0 && spec.Terms.HeightStart > spec.Terms.HeightEnd {
			return fmt.Errorf("terms: height_start must be <= height_end")
		}
	}
	return nil
}

// ValidateSpecAtHeight applies ValidateSpec's static rules plus the
// protocol's progressive name-length unlock: a rune_name shorter than
// MinNameLength(currentBlock) is rejected, since it has not yet
// become mintable at the given chain height.
func ValidateSpecAtHeight(spec domain.EtchingSpec, currentBlock uint64) error {
	if err := ValidateSpec(spec); err != nil {
		return err
	}

	bare, _, err := ParseSpacedName(spec.RuneName)
	if err != nil {
		return fmt.Errorf("rune_name: %w", err)
	}

	if min := MinNameLength(currentBlock); len(bare) < min {
		return fmt.Errorf("rune_name: must be at least %d letters at block %d, got %d", min, currentBlock, len(bare))
	}
	return nil
}

// FromSpec builds the Etching fields of a Runestone from a validated
// EtchingSpec. pointer is the index of the output that receives the
// premine (the caller's own change/receive output).
func FromSpec(spec domain.EtchingSpec, pointer uint32) (*Runestone, error) {
	if err := ValidateSpec(spec); err != nil {
		return nil, err
	}

	bare, spacers, err := ParseSpacedName(spec.RuneName)
	if err != nil {
		return nil, err
	}
	r, err := NewRuneFromString(bare)
	if err != nil {
		return nil, err
	}

	divisibility := spec.Divisibility
	spacersVal := spacers
	symbolRunes := []rune(spec.Symbol)
	symbol := symbolRunes[0]
	premine := new(big.Int).SetUint64(spec.Premine)

	etching := &Etching{
		Rune:         r,
		Symbol:       &symbol,
		Divisibility: &divisibility,
		Spacers:      &spacersVal,
		Premine:      premine,
	}

	if spec.Terms != nil {
		amount := new(big.Int).SetUint64(spec.Terms.Amount)
		cap_ := new(big.Int).SetUint64(spec.Terms.Cap)
		terms := &Terms{Amount: amount, Cap: cap_}
		if spec.Terms.HeightStart != 0 {
			h := spec.Terms.HeightStart
			terms.HeightStart = &h
		}
		if spec.Terms.HeightEnd != 0 {
			h := spec.Terms.HeightEnd
			terms.HeightEnd = &h
		}
		etching.Terms = terms
	}

	return &Runestone{Etching: etching, Pointer: &pointer}, nil
}
