// Package keyring provides the signing keypairs used by the offline signer and signature
// verification for the three Substrate MultiSignature schemes.
package keyring

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/vedhavyas/go-subkey/v2"
	"github.com/vedhavyas/go-subkey/v2/ecdsa"
	"github.com/vedhavyas/go-subkey/v2/ed25519"
	"github.com/vedhavyas/go-subkey/v2/sr25519"
	"golang.org/x/crypto/blake2b"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/config"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
)

// SignatureType is the MultiSignature variant index of a scheme.
type SignatureType uint8

const (
	Ed25519 SignatureType = 0
	Sr25519 SignatureType = 1
	Ecdsa   SignatureType = 2
)

const (
	// EcdsaSignatureLength is r || s || v with v in 0..3.
	EcdsaSignatureLength = 65
	// EcdsaPublicKeyLength is a compressed secp256k1 point.
	EcdsaPublicKeyLength = 33
)

func (t SignatureType) String() string {
	switch t {
	case Ed25519:
		return string(config.SchemeEd25519)
	case Sr25519:
		return string(config.SchemeSr25519)
	case Ecdsa:
		return string(config.SchemeEcdsa)
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// SignatureTypeFromScheme maps a configured scheme to its MultiSignature variant.
func SignatureTypeFromScheme(scheme config.SignatureScheme) (SignatureType, error) {
	switch scheme {
	case config.SchemeEd25519:
		return Ed25519, nil
	case config.SchemeSr25519:
		return Sr25519, nil
	case config.SchemeEcdsa:
		return Ecdsa, nil
	default:
		return 0, txerrors.NewSigningError(fmt.Sprintf("unsupported signature scheme %q", scheme), nil)
	}
}

// Keypair signs messages on behalf of an account. The private key never leaves the
// implementation.
type Keypair interface {
	Type() SignatureType
	PublicKey() []byte
	Sign(message []byte) ([]byte, error)
}

type subkeyKeypair struct {
	sigType SignatureType
	pair    subkey.KeyPair
}

// FromURI derives a keypair from a secret URI: a dev phrase such as //Alice, a BIP39 mnemonic
// or a 0x seed, each optionally followed by a derivation path.
func FromURI(sigType SignatureType, uri string) (Keypair, error) {
	if uri == "" {
		return nil, txerrors.NewSigningError("empty secret uri", nil)
	}
	scheme, err := schemeFor(sigType)
	if err != nil {
		return nil, err
	}
	pair, err := subkey.DeriveKeyPair(scheme, uri)
	if err != nil {
		return nil, txerrors.NewSigningError(fmt.Sprintf("failed to derive %s keypair", sigType), err)
	}
	return &subkeyKeypair{sigType: sigType, pair: pair}, nil
}

func (k *subkeyKeypair) Type() SignatureType {
	return k.sigType
}

func (k *subkeyKeypair) PublicKey() []byte {
	return k.pair.Public()
}

func (k *subkeyKeypair) Sign(message []byte) ([]byte, error) {
	sig, err := k.pair.Sign(message)
	if err != nil {
		return nil, txerrors.NewSigningError(fmt.Sprintf("%s sign failed", k.sigType), err)
	}
	return sig, nil
}

// SS58Address encodes the account of a subkey derived keypair for the given network prefix.
func SS58Address(kp Keypair, network uint16) (string, error) {
	sk, ok := kp.(*subkeyKeypair)
	if !ok {
		return "", fmt.Errorf("keypair of type %T has no ss58 encoding", kp)
	}
	return sk.pair.SS58Address(network), nil
}

func schemeFor(sigType SignatureType) (subkey.Scheme, error) {
	switch sigType {
	case Sr25519:
		return sr25519.Scheme{}, nil
	case Ed25519:
		return ed25519.Scheme{}, nil
	case Ecdsa:
		return ecdsa.Scheme{}, nil
	default:
		return nil, txerrors.NewSigningError(fmt.Sprintf("unsupported signature type %d", uint8(sigType)), nil)
	}
}

// Verify checks signature over message for publicKey.
//
// For ecdsa the signer is recovered from blake2b-256(message), matching what the chain does,
// and compared to the compressed public key.
func Verify(sigType SignatureType, publicKey, message, signature []byte) (bool, error) {
	if sigType == Ecdsa {
		return verifyEcdsa(publicKey, message, signature)
	}
	scheme, err := schemeFor(sigType)
	if err != nil {
		return false, err
	}
	pub, err := scheme.FromPublicKey(publicKey)
	if err != nil {
		return false, txerrors.NewSigningError(fmt.Sprintf("invalid %s public key", sigType), err)
	}
	return pub.Verify(message, signature), nil
}

func verifyEcdsa(publicKey, message, signature []byte) (bool, error) {
	if len(publicKey) != EcdsaPublicKeyLength {
		return false, txerrors.NewSigningError(fmt.Sprintf("ecdsa public key must be %d bytes, got %d", EcdsaPublicKeyLength, len(publicKey)), nil)
	}
	if len(signature) != EcdsaSignatureLength {
		return false, nil
	}
	sig := make([]byte, EcdsaSignatureLength)
	copy(sig, signature)
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	digest := blake2b.Sum256(message)
	recovered, err := crypto.SigToPub(digest[:], sig)
	if err != nil {
		return false, nil
	}
	return bytes.Equal(crypto.CompressPubkey(recovered), publicKey), nil
}

// VerifyMultiSignature verifies a MultiSignature encoded signature: a type byte followed by the
// raw signature.
func VerifyMultiSignature(publicKey, message, multiSig []byte) (bool, error) {
	if len(multiSig) < 2 {
		return false, txerrors.NewSigningError("multisignature too short", nil)
	}
	sigType := SignatureType(multiSig[0])
	if sigType > Ecdsa {
		return false, txerrors.NewSigningError(fmt.Sprintf("unknown multisignature type %d", multiSig[0]), nil)
	}
	return Verify(sigType, publicKey, message, multiSig[1:])
}

// MultiSignature prefixes a raw signature with its type byte.
func MultiSignature(sigType SignatureType, signature []byte) []byte {
	out := make([]byte, 0, len(signature)+1)
	out = append(out, byte(sigType))
	return append(out, signature...)
}
