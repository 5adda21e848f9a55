package config

import "testing"

func TestValidate_ValidNetworks(t *testing.T) {
	for _, network := range []string{"mainnet", "testnet", "regtest"} {
		cfg := &Config{Network: network, Port: 8080, OwnerPrincipal: "owner-1"}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v for network=%q, want nil", err, network)
		}
	}
}

func TestValidate_InvalidNetwork(t *testing.T) {
	tests := []struct {
		name    string
		network string
	}{
		{"empty", ""},
		{"foobar", "foobar"},
		{"Mainnet case sensitive", "Mainnet"},
		{"devnet", "devnet"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Network: tt.network, Port: 8080, OwnerPrincipal: "owner-1"}
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() expected error for network=%q, got nil", tt.network)
			}
		})
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"zero", 0},
		{"negative", -1},
		{"too high", 65536},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Network: "testnet", Port: tt.port, OwnerPrincipal: "owner-1"}
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate() expected error for port=%d, got nil", tt.port)
			}
		})
	}
}

func TestValidate_MissingOwnerPrincipal(t *testing.T) {
	cfg := &Config{Network: "testnet", Port: 8080}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for missing OwnerPrincipal, got nil")
	}
}

func TestValidate_ValidPortBoundaries(t *testing.T) {
	tests := []struct {
		name string
		port int
	}{
		{"minimum valid", 1},
		{"maximum valid", 65535},
		{"common port", 8080},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Network: "testnet", Port: tt.port, OwnerPrincipal: "owner-1"}
			if err := cfg.Validate(); err != nil {
				t.Fatalf("Validate() error = %v for port=%d, want nil", err, tt.port)
			}
		})
	}
}
