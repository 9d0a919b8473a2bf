package awsKms

import (
	"bytes"
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/keyring"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
)

const DefaultSignTimeout = 30 * time.Second

// KMSClient is the subset of the KMS API used by the keypair.
type KMSClient interface {
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
}

// KMSKeypair is an ecdsa keypair whose secp256k1 private key lives in AWS KMS
// (ECC_SECG_P256K1, SIGN_VERIFY).
type KMSKeypair struct {
	logger      *zap.Logger
	kmsClient   KMSClient
	keyId       string
	compressed  []byte
	signTimeout time.Duration
}

var _ keyring.Keypair = (*KMSKeypair)(nil)

// NewKMSKeypair creates a KMS client from awsCfg and loads the public key of keyId.
func NewKMSKeypair(ctx context.Context, awsCfg aws.Config, keyId string, logger *zap.Logger) (*KMSKeypair, error) {
	return NewKMSKeypairFromClient(ctx, kms.NewFromConfig(awsCfg), keyId, logger)
}

// NewKMSKeypairFromClient fetches and caches the public key of keyId.
func NewKMSKeypairFromClient(ctx context.Context, client KMSClient, keyId string, logger *zap.Logger) (*KMSKeypair, error) {
	if keyId == "" {
		return nil, txerrors.NewSigningError("kms key id is required", nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	k := &KMSKeypair{
		logger:      logger,
		kmsClient:   client,
		keyId:       keyId,
		signTimeout: DefaultSignTimeout,
	}

	kmsPubKey, err := k.getPublicKey(ctx)
	if err != nil {
		return nil, txerrors.NewSigningError(fmt.Sprintf("failed to get public key for kms key %s", keyId), err)
	}
	if kmsPubKey.KeySpec != "" && kmsPubKey.KeySpec != types.KeySpecEccSecgP256k1 {
		return nil, txerrors.NewSigningError(fmt.Sprintf("kms key %s has spec %s, expected %s", keyId, kmsPubKey.KeySpec, types.KeySpecEccSecgP256k1), nil)
	}
	pub, err := parseECDSAPublicKey(kmsPubKey.PublicKey)
	if err != nil {
		return nil, txerrors.NewSigningError(fmt.Sprintf("failed to parse public key for kms key %s", keyId), err)
	}
	k.compressed = crypto.CompressPubkey(pub)

	k.logger.Sugar().Debugw("Loaded KMS signing key", "keyId", keyId)
	return k, nil
}

// Type is always ecdsa: KMS only holds secp256k1 keys for this keypair.
func (k *KMSKeypair) Type() keyring.SignatureType {
	return keyring.Ecdsa
}

// PublicKey is the 33 byte compressed secp256k1 key.
func (k *KMSKeypair) PublicKey() []byte {
	out := make([]byte, len(k.compressed))
	copy(out, k.compressed)
	return out
}

// Sign is SignContext with a background context bounded by the sign timeout.
func (k *KMSKeypair) Sign(message []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), k.signTimeout)
	defer cancel()
	return k.SignContext(ctx, message)
}

// SignContext signs blake2b-256(message) and returns r || s || v with v in 0..3.
func (k *KMSKeypair) SignContext(ctx context.Context, message []byte) ([]byte, error) {
	digest := blake2b.Sum256(message)
	sig, err := k.getSignatureFromKms(ctx, digest[:])
	if err != nil {
		return nil, txerrors.NewSigningError(fmt.Sprintf("kms sign with key %s failed", k.keyId), err)
	}
	return sig, nil
}

func (k *KMSKeypair) getPublicKey(ctx context.Context) (*kms.GetPublicKeyOutput, error) {
	input := &kms.GetPublicKeyInput{
		KeyId: aws.String(k.keyId),
	}

	result, err := k.kmsClient.GetPublicKey(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to get public key: %w", err)
	}

	return result, nil
}

// parseECDSAPublicKey parses the DER-encoded public key from KMS
func parseECDSAPublicKey(derBytes []byte) (*cryptoEcdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	_, err := asn1.Unmarshal(derBytes, &asn1pubk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}

	return crypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

type asn1EcSig struct {
	R asn1.RawValue
	S asn1.RawValue
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

var (
	secp256k1N, _  = new(big.Int).SetString("FFFFFFFFFFFFFFFFFFFFFFFFFFFFFFFEBAAEDCE6AF48A03BBFD25E8CD0364141", 16)
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

func (k *KMSKeypair) getSignatureFromKms(ctx context.Context, digest []byte) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be exactly 32 bytes, got %d", len(digest))
	}

	signOutput, err := k.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(k.keyId),
		Message:          digest,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, err
	}

	var sigAsn1 asn1EcSig
	if _, err := asn1.Unmarshal(signOutput.Signature, &sigAsn1); err != nil {
		return nil, errors.Wrap(err, "failed to parse DER signature")
	}

	r := new(big.Int).SetBytes(sigAsn1.R.Bytes)
	s := new(big.Int).SetBytes(sigAsn1.S.Bytes)

	// low-S
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	signature := make([]byte, keyring.EcdsaSignatureLength)
	r.FillBytes(signature[0:32])
	s.FillBytes(signature[32:64])

	for recoveryId := 0; recoveryId < 4; recoveryId++ {
		signature[64] = byte(recoveryId)

		recovered, err := crypto.SigToPub(digest, signature)
		if err != nil {
			k.logger.Debug("Ecrecover failed",
				zap.Int("recoveryId", recoveryId),
				zap.Error(err))
			continue
		}
		if bytes.Equal(crypto.CompressPubkey(recovered), k.compressed) {
			return signature, nil
		}
	}

	return nil, fmt.Errorf("could not determine valid recovery ID - signature recovery failed")
}
