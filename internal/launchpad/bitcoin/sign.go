package bitcoin

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"

	"github.com/runeforge/launchpad/internal/launchpad/domain"
	"github.com/runeforge/launchpad/internal/launchpad/errs"
)

// ThresholdSigner is the external threshold Schnorr signing facility's
// interface, as the orchestrator sees it. The signing key itself is
// never materialized inside this service: a production implementation
// forwards digests to an MPC/HSM cluster and returns the resulting
// BIP-340 64-byte signature.
type ThresholdSigner interface {
	// SignSchnorr produces a BIP-340 Schnorr signature over digest
	// using the key derived for principal.
	SignSchnorr(ctx context.Context, digest [32]byte, principal domain.Principal) ([64]byte, error)

	// SignTaprootTx key-spend-signs every input of tx, given the
	// previous outputs it spends, writing each input's witness onto tx
	// in place.
	SignTaprootTx(ctx context.Context, tx *wire.MsgTx, prevOuts []*wire.TxOut, principal domain.Principal) error
}

// LocalSigner is a development ThresholdSigner backed by a single
// locally-held HD master key. It exists so the launchpad can run
// end-to-end without an external signing cluster; production
// deployments replace it with an MPC-backed implementation of the same
// interface. The private key used for each signature is zeroed
// immediately afterward.
type LocalSigner struct {
	masterKey *hdkeychain.ExtendedKey
	net       *chaincfg.Params
	network   domain.Network
}

// NewLocalSigner builds a LocalSigner over masterKey.
func NewLocalSigner(masterKey *hdkeychain.ExtendedKey, net *chaincfg.Params, network domain.Network) *LocalSigner {
	return &LocalSigner{masterKey: masterKey, net: net, network: network}
}

// SignSchnorr implements ThresholdSigner.
func (s *LocalSigner) SignSchnorr(_ context.Context, digest [32]byte, principal domain.Principal) ([64]byte, error) {
	priv, err := DerivePrivateKey(s.masterKey, principal, s.network)
	if err != nil {
		return [64]byte{}, errs.New(errs.KindSigningError, err)
	}
	defer priv.Zero()

	sig, err := schnorrSign(priv, digest)
	if err != nil {
		return [64]byte{}, errs.New(errs.KindSigningError, err)
	}
	return sig, nil
}

// SignTaprootTx implements ThresholdSigner. It builds a PSBT packet
// around tx and prevOuts, key-spend-signs every input through it, and
// copies the finalized witnesses back onto tx. Routing the signature
// through a psbt.Packet rather than writing witnesses onto tx directly
// matches the wire format an external signing facility actually
// receives: a production ThresholdSigner hands the same serialized
// PSBT bytes to an MPC/HSM cluster and never sees a raw private key.
// No script-spend path is ever taken, since every address this service
// derives is a key-spend-only BIP-86 Taproot output.
func (s *LocalSigner) SignTaprootTx(_ context.Context, tx *wire.MsgTx, prevOuts []*wire.TxOut, principal domain.Principal) error {
	if len(tx.TxIn) != len(prevOuts) {
		return errs.New(errs.KindInternal, fmt.Errorf("input count %d does not match prevOuts count %d", len(tx.TxIn), len(prevOuts)))
	}

	priv, err := DerivePrivateKey(s.masterKey, principal, s.network)
	if err != nil {
		return errs.New(errs.KindSigningError, err)
	}
	defer priv.Zero()

	packet, err := psbt.NewFromUnsignedTx(tx)
	if err != nil {
		return errs.New(errs.KindSigningError, fmt.Errorf("build psbt packet: %w", err))
	}

	xOnlyPub := priv.PubKey().SerializeCompressed()[1:]
	for i, prevOut := range prevOuts {
		packet.Inputs[i].WitnessUtxo = prevOut
		packet.Inputs[i].SighashType = txscript.SigHashDefault
		packet.Inputs[i].TaprootInternalKey = xOnlyPub
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, in := range tx.TxIn {
		fetcher.AddPrevOut(in.PreviousOutPoint, prevOuts[i])
	}
	sigHashes := txscript.NewTxSigHashes(packet.UnsignedTx, fetcher)

	for i, prevOut := range prevOuts {
		witness, err := txscript.TaprootWitnessSignature(
			packet.UnsignedTx, sigHashes, i, prevOut.Value, prevOut.PkScript, txscript.SigHashDefault, priv,
		)
		if err != nil {
			return errs.New(errs.KindSigningError, fmt.Errorf("sign input %d: %w", i, err))
		}
		packet.Inputs[i].TaprootKeySpendSig = witness[0]

		if err := psbt.Finalize(packet, i); err != nil {
			return errs.New(errs.KindSigningError, fmt.Errorf("finalize input %d: %w", i, err))
		}
	}

	signed, err := psbt.Extract(packet)
	if err != nil {
		return errs.New(errs.KindSigningError, fmt.Errorf("extract signed tx: %w", err))
	}
	for i := range tx.TxIn {
		tx.TxIn[i].Witness = signed.TxIn[i].Witness
	}

	return nil
}

// schnorrSign produces a raw BIP-340 signature over an arbitrary
// 32-byte digest, for callers that need a signature without a full
// taproot witness (e.g. off-chain attestations).
func schnorrSign(priv *btcec.PrivateKey, digest [32]byte) ([64]byte, error) {
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return [64]byte{}, err
	}
	var out [64]byte
	copy(out[:], sig.Serialize())
	return out, nil
}
