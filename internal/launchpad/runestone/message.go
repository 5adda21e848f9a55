package runestone

import (
	"math/big"
	"slices"
)

// message is the tag/value framing layer between the Runestone's
// typed fields and the flat LEB128 integer sequence.
type message struct {
	Edicts []Edict
	Fields map[Tag][]*big.Int
}

func parseMessage(sr *sequenceReader) (*message, error) {
	m := &message{Fields: make(map[Tag][]*big.Int)}

	for sr.hasNext() {
		tagInt, _ := sr.next()
		tag := Tag(tagInt.Uint64())
		if tag == TagBody {
			edicts, err := parseEdicts(sr)
			if err != nil {
				return nil, err
			}
			m.Edicts = edicts
			break
		}

		value, err := sr.next()
		if err != nil {
			return nil, ErrTruncated
		}
		m.Fields[tag] = append(m.Fields[tag], value)
	}

	return m, nil
}

type taggedField struct {
	tag  Tag
	nums []*big.Int
}

// toIntSeq flattens the message's fields (sorted by tag for
// determinism) followed by the body marker and delta-encoded edicts.
func (m *message) toIntSeq() []*big.Int {
	ordered := make([]taggedField, 0, len(m.Fields))
	for tag, nums := range m.Fields {
		ordered = append(ordered, taggedField{tag, nums})
	}
	slices.SortFunc(ordered, func(a, b taggedField) int {
		return int(a.tag) - int(b.tag)
	})

	sequence := make([]*big.Int, 0, len(m.Fields)*2+len(m.Edicts)*4+2)
	for _, field := range ordered {
		for _, v := range field.nums {
			sequence = append(sequence, field.tag.BigInt(), v)
		}
	}

	if m.Edicts != nil {
		sequence = append(sequence, TagBody.BigInt())
		sequence = append(sequence, edictsToIntSeq(m.Edicts)...)
	}

	return sequence
}
