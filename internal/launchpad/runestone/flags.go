package runestone

import "math/big"

var (
	// FlagEtching marks that the runestone contains an etching.
	FlagEtching = big.NewInt(1)
	// FlagTerms marks that the etching carries an open-mint schedule.
	FlagTerms = new(big.Int).Lsh(big.NewInt(1), 1)
)

// hasFlag reports whether flag is set in value.
func hasFlag(value, flag *big.Int) bool {
	return new(big.Int).And(value, flag).Cmp(flag) == 0
}

// addFlag sets flag in value, mutating and returning value.
func addFlag(value, flag *big.Int) *big.Int {
	return value.Or(value, flag)
}
