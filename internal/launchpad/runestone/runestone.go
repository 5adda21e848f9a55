package runestone

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/aviate-labs/leb128"
	"github.com/btcsuite/btcd/txscript"
)

// MaxDivisibility is the highest divisibility a Rune may etch with.
const MaxDivisibility byte = 18

// MaxSpacers bounds the spacer bitmask to its low 27 bits.
const MaxSpacers uint32 = 0b00000111_11111111_11111111_11111111

// ErrCenotaph marks a runestone whose payload is malformed under the
// protocol rules and therefore mints/etches nothing.
var ErrCenotaph = errors.New("runestone: cenotaph (malformed payload)")

// ErrTruncated marks a payload that ends mid tag/value pair.
var ErrTruncated = errors.New("runestone: truncated payload")

// Terms describes an open-mint schedule attached to an Etching.
type Terms struct {
	Amount      *big.Int
	Cap         *big.Int
	HeightStart *uint64
	HeightEnd   *uint64
}

// Etching carries the fields of a new Rune being created by this
// transaction.
type Etching struct {
	Rune         *Rune
	Symbol       *rune
	Divisibility *byte
	Spacers      *uint32
	Premine      *big.Int
	Terms        *Terms
}

// Runestone is the decoded contents of an OP_RETURN Runes payload.
// This repository only ever etches (it never mints against an
// existing rune or edicts value between outputs), so Mint and Edicts
// are carried for completeness and for decoding third-party
// runestones, not exercised by build_etching_tx.
type Runestone struct {
	Etching *Etching
	Edicts  []Edict
	Mint    *RuneID
	Pointer *uint32
}

// IntoScript renders the runestone as the OP_RETURN script it will
// occupy as transaction output 0: OP_RETURN, OP_13 (the Runes magic
// number), a single PUSH_DATA opcode, then the LEB128 payload.
func (rs *Runestone) IntoScript() ([]byte, error) {
	payload, err := rs.Serialize()
	if err != nil {
		return nil, err
	}

	size := len(payload)
	if size < txscript.OP_DATA_1 || size > txscript.OP_DATA_75 {
		return nil, errors.New("runestone: payload exceeds a single PUSH_DATA opcode")
	}

	script := make([]byte, 0, 3+size)
	script = append(script, txscript.OP_RETURN, txscript.OP_13, byte(size))
	return append(script, payload...), nil
}

// Serialize encodes the runestone's fields into a message, then the
// message into its flat LEB128 payload.
func (rs *Runestone) Serialize() ([]byte, error) {
	m := &message{Edicts: rs.Edicts, Fields: map[Tag][]*big.Int{}}

	flags := big.NewInt(0)
	if rs.Etching != nil {
		e := rs.Etching
		addFlag(flags, FlagEtching)

		if e.Divisibility != nil {
			m.Fields[TagDivisibility] = []*big.Int{big.NewInt(int64(*e.Divisibility))}
		}
		if e.Premine != nil {
			m.Fields[TagPremine] = []*big.Int{e.Premine}
		}
		if e.Rune != nil {
			m.Fields[TagRune] = []*big.Int{e.Rune.Value()}
		}
		if e.Spacers != nil {
			m.Fields[TagSpacers] = []*big.Int{big.NewInt(int64(*e.Spacers))}
		}
		if e.Symbol != nil {
			m.Fields[TagSymbol] = []*big.Int{big.NewInt(int64(*e.Symbol))}
		}
		if e.Terms != nil {
			addFlag(flags, FlagTerms)
			if e.Terms.Amount != nil {
				m.Fields[TagAmount] = []*big.Int{e.Terms.Amount}
			}
			if e.Terms.Cap != nil {
				m.Fields[TagCap] = []*big.Int{e.Terms.Cap}
			}
			if e.Terms.HeightStart != nil {
				m.Fields[TagHeightStart] = []*big.Int{new(big.Int).SetUint64(*e.Terms.HeightStart)}
			}
			if e.Terms.HeightEnd != nil {
				m.Fields[TagHeightEnd] = []*big.Int{new(big.Int).SetUint64(*e.Terms.HeightEnd)}
			}
		}

		m.Fields[TagFlags] = []*big.Int{flags}
	}

	if rs.Mint != nil {
		m.Fields[TagMint] = rs.Mint.toIntSeq()
	}

	if rs.Pointer != nil {
		m.Fields[TagPointer] = []*big.Int{big.NewInt(int64(*rs.Pointer))}
	}

	return intSeqIntoPayload(m.toIntSeq())
}

// ParseRunestone decodes a runestone from a transaction output's
// script, validating the OP_RETURN/OP_13 prefix and the LEB128
// payload. It is used to render audit entries for etchings this
// service produced and to inspect third-party payloads.
func ParseRunestone(script []byte) (*Runestone, error) {
	payload, err := preparePayload(script)
	if err != nil {
		return nil, err
	}

	sequence, err := payloadIntoIntSeq(payload)
	if err != nil {
		return nil, err
	}

	rs := new(Runestone)
	return rs, rs.parse(newSequenceReader(sequence))
}

func (rs *Runestone) parse(sr *sequenceReader) error {
	m, err := parseMessage(sr)
	if err != nil {
		return err
	}

	var etching, terms bool
	if flags, ok := m.Fields[TagFlags]; ok {
		if len(flags) != 1 {
			return ErrCenotaph
		}
		v := flags[0]
		etching = hasFlag(v, FlagEtching)
		if etching {
			v.Sub(v, FlagEtching)
		}
		terms = hasFlag(v, FlagTerms)
		if terms {
			v.Sub(v, FlagTerms)
		}
		if v.Sign() != 0 {
			return ErrCenotaph
		}
		delete(m.Fields, TagFlags)
	}

	for tag, ints := range m.Fields {
		switch tag {
		case TagMint:
			if len(ints) != 2 {
				return ErrCenotaph
			}
			rs.mint().Block = ints[0].Uint64()
			rs.mint().TxID = uint32(ints[1].Uint64())
		case TagPointer:
			if len(ints) != 1 {
				return ErrCenotaph
			}
			p := uint32(ints[0].Uint64())
			rs.Pointer = &p
		case TagDivisibility:
			if !etching || len(ints) != 1 {
				return ErrCenotaph
			}
			d := byte(ints[0].Uint64())
			if d > MaxDivisibility {
				return errors.New("runestone: divisibility exceeds maximum")
			}
			rs.etching().Divisibility = &d
		case TagPremine:
			if !etching || len(ints) != 1 {
				return ErrCenotaph
			}
			rs.etching().Premine = ints[0]
		case TagRune:
			if !etching || len(ints) != 1 {
				return ErrCenotaph
			}
			r, err := NewRuneFromNumber(ints[0])
			if err != nil {
				return err
			}
			rs.etching().Rune = r
		case TagSpacers:
			if !etching || len(ints) != 1 {
				return ErrCenotaph
			}
			s := uint32(ints[0].Uint64())
			if s > MaxSpacers {
				return errors.New("runestone: spacers exceed maximum")
			}
			rs.etching().Spacers = &s
		case TagSymbol:
			if !etching || len(ints) != 1 {
				return ErrCenotaph
			}
			sym := rune(ints[0].Int64())
			rs.etching().Symbol = &sym
		case TagAmount:
			if !terms || len(ints) != 1 {
				return ErrCenotaph
			}
			rs.termsField().Amount = ints[0]
		case TagCap:
			if !terms || len(ints) != 1 {
				return ErrCenotaph
			}
			rs.termsField().Cap = ints[0]
		case TagHeightStart:
			if !terms || len(ints) != 1 {
				return ErrCenotaph
			}
			h := ints[0].Uint64()
			rs.termsField().HeightStart = &h
		case TagHeightEnd:
			if !terms || len(ints) != 1 {
				return ErrCenotaph
			}
			h := ints[0].Uint64()
			rs.termsField().HeightEnd = &h
		}
	}

	rs.Edicts = m.Edicts
	rs.fillDefaults()
	return nil
}

func (rs *Runestone) etching() *Etching {
	if rs.Etching == nil {
		rs.Etching = new(Etching)
	}
	return rs.Etching
}

func (rs *Runestone) mint() *RuneID {
	if rs.Mint == nil {
		rs.Mint = new(RuneID)
	}
	return rs.Mint
}

func (rs *Runestone) termsField() *Terms {
	if rs.etching().Terms == nil {
		rs.Etching.Terms = new(Terms)
	}
	return rs.Etching.Terms
}

func (rs *Runestone) fillDefaults() {
	if rs.Etching == nil {
		return
	}
	if rs.Etching.Premine == nil {
		rs.Etching.Premine = big.NewInt(0)
	}
	if rs.Etching.Divisibility == nil {
		var zero byte
		rs.Etching.Divisibility = &zero
	}
	if rs.Etching.Spacers == nil {
		var zero uint32
		rs.Etching.Spacers = &zero
	}
}

// preparePayload strips the OP_RETURN/OP_13/PUSH_DATA framing and
// returns the concatenated pushed bytes.
func preparePayload(script []byte) ([]byte, error) {
	if len(script) < 4 {
		return nil, errors.New("runestone: payload too short")
	}
	if script[0] != txscript.OP_RETURN {
		return nil, errors.New("runestone: missing OP_RETURN")
	}
	if script[1] != txscript.OP_13 {
		return nil, errors.New("runestone: missing OP_13 magic number")
	}

	payload := make([]byte, 0, len(script)-3)
	r := bytes.NewReader(script[2:])
	for r.Len() > 0 {
		op, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if op < txscript.OP_DATA_1 || op > txscript.OP_DATA_75 {
			return nil, errors.New("runestone: expected a PUSH_DATA opcode")
		}
		data := make([]byte, op)
		if _, err := r.Read(data); err != nil {
			return nil, err
		}
		payload = append(payload, data...)
	}
	return payload, nil
}

// IsPossibleRunestone reports whether script begins with the
// OP_RETURN/OP_13/PUSH_DATA prefix, without fully decoding it.
func IsPossibleRunestone(script []byte) bool {
	switch {
	case len(script) < 4:
		return false
	case script[0] != txscript.OP_RETURN:
		return false
	case script[1] != txscript.OP_13:
		return false
	case script[2] < txscript.OP_DATA_1 || script[2] > txscript.OP_DATA_75:
		return false
	}
	return true
}

func payloadIntoIntSeq(payload []byte) ([]*big.Int, error) {
	sequence := make([]*big.Int, 0)
	r := bytes.NewReader(payload)
	for r.Len() > 0 {
		n, err := leb128.DecodeUnsigned(r)
		if err != nil {
			return nil, err
		}
		sequence = append(sequence, n)
	}
	return sequence, nil
}

func intSeqIntoPayload(sequence []*big.Int) ([]byte, error) {
	payload := make([]byte, 0, len(sequence)*2)
	for _, n := range sequence {
		b, err := leb128.EncodeUnsigned(n)
		if err != nil {
			return nil, err
		}
		payload = append(payload, b...)
	}
	return payload, nil
}
