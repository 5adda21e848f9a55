// Package bitcoin implements the Bitcoin service: Taproot address
// derivation, UTXO view, fee view, transaction assembly, threshold
// Schnorr signing, and broadcast.
package bitcoin

import (
	"fmt"
	"hash/fnv"
	"log/slog"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
)

// BIP86Purpose is the BIP-86 purpose field for Taproot key-spend
// single-sig wallets.
const BIP86Purpose = 86

// CoinType returns the BIP-44 coin type for the configured network.
func CoinType(net domain.Network) uint32 {
	if net == domain.NetworkMainnet {
		return 0
	}
	return 1
}

// PrincipalIndex derives a deterministic, non-negative BIP-32 child
// index from a caller principal, so that two distinct callers are
// given disjoint derivation paths and therefore disjoint addresses.
// HardenedKeyStart is never exceeded: the result is reduced modulo
// 2^31 so the same index always maps to a non-hardened child.
func PrincipalIndex(principal domain.Principal) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(principal))
	return h.Sum32() & 0x7fffffff
}

// DeriveP2TRAddress derives the caller's Taproot (P2TR) address at
// m/86'/{0,1}'/0'/0/N, N = PrincipalIndex(principal), following
// BIP-86. The derived key is tweaked with the empty script-tree merkle
// root (key-spend-only commitment) via ComputeTaprootKeyNoScript,
// matching a wallet that never uses a script-spend path.
func DeriveP2TRAddress(masterKey *hdkeychain.ExtendedKey, principal domain.Principal, net *chaincfg.Params, network domain.Network) (string, error) {
	index := PrincipalIndex(principal)

	purpose, err := masterKey.Derive(hdkeychain.HardenedKeyStart + BIP86Purpose)
	if err != nil {
		return "", fmt.Errorf("derive purpose key: %w", err)
	}

	coin, err := purpose.Derive(hdkeychain.HardenedKeyStart + CoinType(network))
	if err != nil {
		return "", fmt.Errorf("derive coin key: %w", err)
	}

	account, err := coin.Derive(hdkeychain.HardenedKeyStart + 0)
	if err != nil {
		return "", fmt.Errorf("derive account key: %w", err)
	}

	change, err := account.Derive(0)
	if err != nil {
		return "", fmt.Errorf("derive change key: %w", err)
	}

	child, err := change.Derive(index)
	if err != nil {
		return "", fmt.Errorf("derive child key at index %d: %w", index, err)
	}

	pubKey, err := child.ECPubKey()
	if err != nil {
		return "", fmt.Errorf("get public key at index %d: %w", index, err)
	}

	tweaked := txscript.ComputeTaprootKeyNoScript(pubKey)
	addr, err := btcutil.NewAddressTaproot(tweaked.SerializeCompressed()[1:], net)
	if err != nil {
		return "", fmt.Errorf("create taproot address at index %d: %w", index, err)
	}

	slog.Debug("derived P2TR address",
		"principal", principal,
		"index", index,
		"address", addr.EncodeAddress(),
		"network", net.Name,
	)

	return addr.EncodeAddress(), nil
}

// DerivePrivateKey returns the untweaked BIP-86 child private key for
// a caller's derivation index (the Taproot tweak is applied at signing
// time), for use by the local development ThresholdSigner
// implementation. Production deployments never materialize this key
// outside the external signing facility; see ThresholdSigner.
func DerivePrivateKey(masterKey *hdkeychain.ExtendedKey, principal domain.Principal, network domain.Network) (*btcec.PrivateKey, error) {
	index := PrincipalIndex(principal)

	purpose, err := masterKey.Derive(hdkeychain.HardenedKeyStart + BIP86Purpose)
	if err != nil {
		return nil, fmt.Errorf("derive purpose key: %w", err)
	}
	coin, err := purpose.Derive(hdkeychain.HardenedKeyStart + CoinType(network))
	if err != nil {
		return nil, fmt.Errorf("derive coin key: %w", err)
	}
	account, err := coin.Derive(hdkeychain.HardenedKeyStart + 0)
	if err != nil {
		return nil, fmt.Errorf("derive account key: %w", err)
	}
	change, err := account.Derive(0)
	if err != nil {
		return nil, fmt.Errorf("derive change key: %w", err)
	}
	child, err := change.Derive(index)
	if err != nil {
		return nil, fmt.Errorf("derive child key at index %d: %w", index, err)
	}
	return child.ECPrivKey()
}

// AddressDeriver adapts DeriveP2TRAddress into the single-method
// interface the orchestrator consumes, so it does not need to carry
// an HD master key or network params of its own.
type AddressDeriver struct {
	MasterKey *hdkeychain.ExtendedKey
	NetParams *chaincfg.Params
	Network   domain.Network
}

// DeriveAddress derives principal's Taproot address.
func (d *AddressDeriver) DeriveAddress(principal domain.Principal) (string, error) {
	return DeriveP2TRAddress(d.MasterKey, principal, d.NetParams, d.Network)
}

// scriptForAddress reconstructs a pkScript for address. Esplora's
// UTXO endpoint does not return scriptPubKey, so the caller's address
// (already known, since it is what was queried) is decoded back into
// its locking script.
func scriptForAddress(address string, net *chaincfg.Params) ([]byte, error) {
	addr, err := btcutil.DecodeAddress(address, net)
	if err != nil {
		return nil, fmt.Errorf("decode address %q: %w", address, err)
	}
	return txscript.PayToAddrScript(addr)
}
