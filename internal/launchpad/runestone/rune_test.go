package runestone

import (
	"testing"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

func TestRune_StringRoundTrip(t *testing.T) {
	for _, name := range []string{"A", "Z", "AA", "QUANTUMLEAP", "ZZZZZZZZZZZZZZ"} {
		r, err := NewRuneFromString(name)
		if err != nil {
			t.Fatalf("NewRuneFromString(%s) failed: %v", name, err)
		}
		if got := r.String(); got != name {
			t.Errorf("round trip %s -> %s, want %s", name, got, name)
		}
	}
}

func TestNewRuneFromString_RejectsNonAZ(t *testing.T) {
	if _, err := NewRuneFromString("QUANTUM•LEAP"); err == nil {
		t.Fatal("expected error for spacer character")
	}
	if _, err := NewRuneFromString(""); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestParseSpacedName(t *testing.T) {
	bare, spacers, err := ParseSpacedName("QUANTUM•LEAP")
	if err != nil {
		t.Fatalf("ParseSpacedName failed: %v", err)
	}
	if bare != "QUANTUMLEAP" {
		t.Fatalf("bare = %s, want QUANTUMLEAP", bare)
	}

	r, err := NewRuneFromString(bare)
	if err != nil {
		t.Fatalf("NewRuneFromString failed: %v", err)
	}
	if got := r.WithSeparator(spacers); got != "QUANTUM•LEAP" {
		t.Fatalf("WithSeparator = %s, want QUANTUM•LEAP", got)
	}
}

func TestMinNameLength(t *testing.T) {
	tests := []struct {
		name  string
		block uint64
		want  int
	}{
		{"before protocol start", 0, StartNameLength},
		{"at protocol start", ProtocolBlockStart, StartNameLength - 1},
		{"one period in", ProtocolBlockStart + UnlockNamePeriod, StartNameLength - 2},
		{"fully unlocked", ProtocolBlockStart + UnlockNamePeriod*12, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MinNameLength(tt.block); got != tt.want {
				t.Errorf("MinNameLength(%d) = %d, want %d", tt.block, got, tt.want)
			}
		})
	}
}

func TestValidateSpecAtHeight_RejectsNameBelowCurrentUnlock(t *testing.T) {
	spec := domain.EtchingSpec{RuneName: "AB", Symbol: "X", Divisibility: 0, Premine: 1}

	// "AB" is 2 letters, nowhere near the 12 unlocked at protocol start.
	if err := ValidateSpecAtHeight(spec, ProtocolBlockStart); err == nil {
		t.Fatal("expected rejection for a too-short name at protocol start")
	}

	// Once fully unlocked, the same name is fine.
	if err := ValidateSpecAtHeight(spec, ProtocolBlockStart+UnlockNamePeriod*12); err != nil {
		t.Fatalf("ValidateSpecAtHeight at full unlock: %v", err)
	}
}

func TestValidateSpecAtHeight_StillEnforcesStaticRules(t *testing.T) {
	spec := domain.EtchingSpec{RuneName: "", Symbol: "X"}
	if err := ValidateSpecAtHeight(spec, ProtocolBlockStart+UnlockNamePeriod*12); err == nil {
		t.Fatal("expected static validation (empty name) to still fail")
	}
}
