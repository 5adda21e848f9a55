package bitcoin

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/tyler-smith/go-bip39"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

// ErrInvalidMnemonic is returned when a configured mnemonic file does
// not hold a valid 24-word BIP-39 phrase.
var ErrInvalidMnemonic = errors.New("invalid mnemonic")

// ValidateMnemonic validates a BIP-39 mnemonic phrase (must be 24 words).
func ValidateMnemonic(mnemonic string) error {
	if !bip39.IsMnemonicValid(mnemonic) {
		return fmt.Errorf("validate mnemonic: %w", ErrInvalidMnemonic)
	}

	words := strings.Fields(mnemonic)
	if len(words) != 24 {
		return fmt.Errorf("expected 24-word mnemonic, got %d words: %w", len(words), ErrInvalidMnemonic)
	}
	return nil
}

// MnemonicToSeed converts a BIP-39 mnemonic to a 64-byte seed (empty passphrase).
func MnemonicToSeed(mnemonic string) ([]byte, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("mnemonic to seed: %w", err)
	}
	return seed, nil
}

// ReadMnemonicFromFile reads a mnemonic from a file, trims whitespace,
// and validates it. The file holds the master key's only root of
// trust in this development signer path; production deployments
// replace LocalSigner and this file entirely with the external
// threshold signing facility.
func ReadMnemonicFromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read mnemonic file %q: %w", path, err)
	}

	mnemonic := strings.TrimSpace(string(data))
	if mnemonic == "" {
		return "", fmt.Errorf("mnemonic file %q is empty: %w", path, ErrInvalidMnemonic)
	}

	if err := ValidateMnemonic(mnemonic); err != nil {
		return "", fmt.Errorf("mnemonic file %q: %w", path, err)
	}

	slog.Info("mnemonic read and validated from file", "path", path)
	return mnemonic, nil
}

// DeriveMasterKey derives a BIP-32 master extended key from a seed.
func DeriveMasterKey(seed []byte, net *chaincfg.Params) (*hdkeychain.ExtendedKey, error) {
	masterKey, err := hdkeychain.NewMaster(seed, net)
	if err != nil {
		return nil, fmt.Errorf("derive master key: %w", err)
	}
	return masterKey, nil
}

// NetworkParams returns the chaincfg.Params and domain.Network for the
// given network mode string, as loaded from configuration.
func NetworkParams(network string) (*chaincfg.Params, domain.Network) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, domain.NetworkMainnet
	case "regtest":
		return &chaincfg.RegressionNetParams, domain.NetworkRegtest
	default:
		return &chaincfg.TestNet3Params, domain.NetworkTestnet
	}
}
