// Package signer produces signatures over Substrate signing payloads on an offline device.
//
// Every call installs the supplied metadata into the caller's Registry before decoding, so a
// Registry can be reused across chains and runtime upgrades.
package signer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/extrinsic"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/keyring"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadata"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

// Backend turns payload bytes into a typed payload and signs it.
type Backend interface {
	Decode(schema *metadata.Schema, data []byte, version uint8) (*extrinsic.Payload, error)
	// Sign returns the MultiSignature encoded signature of payload.
	Sign(payload *extrinsic.Payload, keypair keyring.Keypair) ([]byte, error)
}

// DefaultBackend decodes with the metadata driven extrinsic decoder and signs the canonical
// signing message.
type DefaultBackend struct{}

// Decode is extrinsic.Decode.
func (DefaultBackend) Decode(schema *metadata.Schema, data []byte, version uint8) (*extrinsic.Payload, error) {
	return extrinsic.Decode(schema, data, version)
}

// Sign signs the payload's signing message and frames it as a MultiSignature.
func (DefaultBackend) Sign(payload *extrinsic.Payload, keypair keyring.Keypair) ([]byte, error) {
	sig, err := keypair.Sign(payload.SigningMessage())
	if err != nil {
		return nil, txerrors.NewSigningError("keypair failed to sign payload", err)
	}
	return keyring.MultiSignature(keypair.Type(), sig), nil
}

// Config configures a Signer. A nil Config gives DefaultBackend and a no-op logger.
type Config struct {
	// Backend defaults to DefaultBackend
	Backend Backend
	Logger  *zap.Logger
}

// Signer signs and verifies payloads against caller-supplied metadata. It holds no key material.
type Signer struct {
	backend Backend
	logger  *zap.Logger
}

// NewSigner creates a Signer from cfg, filling in defaults.
func NewSigner(cfg *Config) *Signer {
	s := &Signer{
		backend: DefaultBackend{},
		logger:  zap.NewNop(),
	}
	if cfg != nil {
		if cfg.Backend != nil {
			s.backend = cfg.Backend
		}
		if cfg.Logger != nil {
			s.logger = cfg.Logger
		}
	}
	return s
}

var defaultSigner = NewSigner(nil)

// errNoRegistry is a DecodeError: without a registry there is no metadata to decode against.
var errNoRegistry = txerrors.NewDecodeErrorf("no type registry supplied")

// Sign signs payloadHex with the default backend. See Signer.Sign.
func Sign(keypair keyring.Keypair, payloadHex string, registry *metadata.Registry, metadataBlob []byte, extrinsicVersion uint8) (string, error) {
	return defaultSigner.Sign(keypair, payloadHex, registry, metadataBlob, extrinsicVersion)
}

// Sign installs metadataBlob into registry, decodes payloadHex under it and returns the 0x hex
// MultiSignature (type byte followed by the signature) produced by keypair.
//
// The registry lock is held for the whole call.
func (s *Signer) Sign(keypair keyring.Keypair, payloadHex string, registry *metadata.Registry, metadataBlob []byte, extrinsicVersion uint8) (string, error) {
	if err := validateKeypair(keypair); err != nil {
		return "", err
	}
	if registry == nil {
		return "", errNoRegistry
	}
	data, err := decodePayloadHex(payloadHex)
	if err != nil {
		return "", err
	}

	var sig []byte
	err = registry.With(metadataBlob, func(schema *metadata.Schema) error {
		payload, err := s.backend.Decode(schema, data, extrinsicVersion)
		if err != nil {
			return err
		}
		s.logger.Sugar().Debugw("Signing payload",
			"pallet", payload.Call.Pallet,
			"call", payload.Call.Name,
			"metadataHash", schema.HashHex(),
			"signatureType", keypair.Type().String(),
		)
		sig, err = s.backend.Sign(payload, keypair)
		return err
	})
	if err != nil {
		return "", err
	}
	return util.EncodePrefixedHex(sig), nil
}

// Inspect decodes payloadHex without signing it.
func (s *Signer) Inspect(payloadHex string, registry *metadata.Registry, metadataBlob []byte, extrinsicVersion uint8) (*extrinsic.Payload, error) {
	if registry == nil {
		return nil, errNoRegistry
	}
	data, err := decodePayloadHex(payloadHex)
	if err != nil {
		return nil, err
	}

	var payload *extrinsic.Payload
	err = registry.With(metadataBlob, func(schema *metadata.Schema) error {
		payload, err = s.backend.Decode(schema, data, extrinsicVersion)
		return err
	})
	if err != nil {
		return nil, err
	}
	return payload, nil
}

// Verify checks a 0x hex MultiSignature over the signing message of payloadHex.
func (s *Signer) Verify(publicKey []byte, payloadHex, signatureHex string, registry *metadata.Registry, metadataBlob []byte, extrinsicVersion uint8) (bool, error) {
	payload, err := s.Inspect(payloadHex, registry, metadataBlob, extrinsicVersion)
	if err != nil {
		return false, err
	}
	sig, err := util.DecodePrefixedHex(signatureHex)
	if err != nil {
		return false, txerrors.NewDecodeError("signature hex", err)
	}
	return keyring.VerifyMultiSignature(publicKey, payload.SigningMessage(), sig)
}

// Inspect decodes payloadHex with the default backend. See Signer.Inspect.
func Inspect(payloadHex string, registry *metadata.Registry, metadataBlob []byte, extrinsicVersion uint8) (*extrinsic.Payload, error) {
	return defaultSigner.Inspect(payloadHex, registry, metadataBlob, extrinsicVersion)
}

// Verify checks a signature with the default backend. See Signer.Verify.
func Verify(publicKey []byte, payloadHex, signatureHex string, registry *metadata.Registry, metadataBlob []byte, extrinsicVersion uint8) (bool, error) {
	return defaultSigner.Verify(publicKey, payloadHex, signatureHex, registry, metadataBlob, extrinsicVersion)
}

func validateKeypair(keypair keyring.Keypair) error {
	if keypair == nil {
		return txerrors.NewSigningError("keypair is nil", nil)
	}
	if len(keypair.PublicKey()) == 0 {
		return txerrors.NewSigningError("keypair has no public key", nil)
	}
	if keypair.Type() > keyring.Ecdsa {
		return txerrors.NewSigningError(fmt.Sprintf("keypair has unsupported signature type %d", uint8(keypair.Type())), nil)
	}
	return nil
}

func decodePayloadHex(payloadHex string) ([]byte, error) {
	data, err := util.DecodePrefixedHex(payloadHex)
	if err != nil {
		return nil, txerrors.NewDecodeError("payload hex", err)
	}
	return data, nil
}
