// Package runestone encodes the OP_RETURN payload that carries a Rune
// etching: Rune-name <-> base-26 integer conversion, tag/value message
// framing, and LEB128 varint encoding of the resulting integer
// sequence, per the Runes protocol.
package runestone

import (
	"errors"
	"math/big"
	"strings"
)

// DefaultSpacer is the '•' character used to render spaced Rune names.
const DefaultSpacer = '•'

const (
	// ProtocolBlockStart is the block height the Runes protocol went live.
	ProtocolBlockStart uint64 = 840_000
	// UnlockNamePeriod is the block interval over which shorter names unlock.
	UnlockNamePeriod uint64 = 17_500
	// StartNameLength is the minimum name length before
	// ProtocolBlockStart; MinNameLength returns one less during the
	// first UnlockNamePeriod and one less again each period after.
	StartNameLength = 13
)

var base26 = big.NewInt(26)
var oneBigInt = big.NewInt(1)

// maxUInt128Value is the largest value a Rune name may encode to.
var maxUInt128Value = new(big.Int).Sub(new(big.Int).Lsh(oneBigInt, 128), oneBigInt)

var intToChar = [26]byte{
	'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M',
	'N', 'O', 'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z',
}

// Rune is a Rune name, internally represented as a modified base-26
// integer over A-Z.
type Rune struct {
	value *big.Int
}

// NewRuneFromString encodes a Rune name, which must consist solely of
// the letters A-Z.
func NewRuneFromString(name string) (*Rune, error) {
	if name == "" {
		return nil, errors.New("rune name must not be empty")
	}

	value := big.NewInt(0)
	for i, c := range name {
		if i > 0 {
			value.Add(value, oneBigInt)
		}
		value.Mul(value, base26)
		if c < 'A' || c > 'Z' {
			return nil, errors.New("rune name must contain only A-Z")
		}
		value.Add(value, big.NewInt(int64(c-'A')))
	}

	if value.Cmp(maxUInt128Value) > 0 {
		return nil, errors.New("rune name overflows the protocol's uint128 name space")
	}

	return &Rune{value: value}, nil
}

// NewRuneFromNumber builds a Rune directly from its integer encoding,
// as read back off the chain or out of storage.
func NewRuneFromNumber(n *big.Int) (*Rune, error) {
	if n.Sign() < 0 || n.Cmp(maxUInt128Value) > 0 {
		return nil, errors.New("rune number out of range")
	}
	return &Rune{value: new(big.Int).Set(n)}, nil
}

// Value returns the Rune's integer encoding.
func (r *Rune) Value() *big.Int {
	return r.value
}

// String decodes the Rune back to its A-Z name.
func (r *Rune) String() string {
	value := new(big.Int).Add(r.value, oneBigInt)
	var sb strings.Builder
	letters := make([]byte, 0, 32)
	for value.Sign() > 0 {
		valueSubOne := new(big.Int).Sub(value, oneBigInt)
		idx := new(big.Int).Mod(valueSubOne, base26)
		letters = append(letters, intToChar[idx.Int64()])
		value = valueSubOne.Div(valueSubOne, base26)
	}
	for i := len(letters) - 1; i >= 0; i-- {
		sb.WriteByte(letters[i])
	}
	return sb.String()
}

// ParseSpacedName splits a user-entered name like "RUNE•STONE" into
// its bare letters and a spacer bitmask recording where '•' appeared.
func ParseSpacedName(name string) (bare string, spacers uint32, err error) {
	var sb strings.Builder
	idx := uint(0)
	for _, c := range name {
		if c == DefaultSpacer || c == '.' {
			if idx == 0 {
				return "", 0, errors.New("rune name cannot start with a spacer")
			}
			spacers |= 1 << (idx - 1)
			continue
		}
		if c < 'A' || c > 'Z' {
			return "", 0, errors.New("rune name must contain only A-Z and spacers")
		}
		sb.WriteRune(c)
		idx++
	}
	return sb.String(), spacers, nil
}

// WithSeparator renders a Rune's name with '•' spacers reinserted at
// the bit positions recorded in spacers.
func (r *Rune) WithSeparator(spacers uint32) string {
	name := r.String()
	var sb strings.Builder
	for i, c := range name {
		sb.WriteRune(c)
		if i < len(name)-1 && spacers&(1<<uint(i)) != 0 {
			sb.WriteRune(DefaultSpacer)
		}
	}
	return sb.String()
}

// MinNameLength returns the shortest Rune name length unlocked at the
// given block height, per the protocol's progressive name release.
func MinNameLength(currentBlock uint64) int {
	if currentBlock < ProtocolBlockStart {
		return StartNameLength
	}
	for i := uint64(1); i < StartNameLength; i++ {
		if ProtocolBlockStart+UnlockNamePeriod*(i-1) <= currentBlock && currentBlock < ProtocolBlockStart+UnlockNamePeriod*i {
			return StartNameLength - int(i)
		}
	}
	return 0
}
