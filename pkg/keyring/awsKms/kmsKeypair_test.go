package awsKms

import (
	"context"
	cryptoEcdsa "crypto/ecdsa"
	"encoding/asn1"
	"errors"
	"math/big"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/keyring"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
)

var (
	oidECPublicKey = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1   = asn1.ObjectIdentifier{1, 3, 132, 0, 10}
)

// fakeKMS signs with a local secp256k1 key and answers like KMS does: DER public key, DER
// signature over the supplied digest.
type fakeKMS struct {
	key      *cryptoEcdsa.PrivateKey
	highS    bool
	signErr  error
	lastSign *kms.SignInput
}

func (f *fakeKMS) GetPublicKey(_ context.Context, params *kms.GetPublicKeyInput, _ ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	der, err := asn1.Marshal(asn1EcPublicKey{
		EcPublicKeyInfo: asn1EcPublicKeyInfo{Algorithm: oidECPublicKey, Parameters: oidSecp256k1},
		PublicKey:       asn1.BitString{Bytes: crypto.FromECDSAPub(&f.key.PublicKey), BitLength: 65 * 8},
	})
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{
		KeyId:     params.KeyId,
		KeySpec:   types.KeySpecEccSecgP256k1,
		PublicKey: der,
	}, nil
}

func (f *fakeKMS) Sign(_ context.Context, params *kms.SignInput, _ ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.lastSign = params
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := crypto.Sign(params.Message, f.key)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).SetBytes(sig[0:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if f.highS {
		s = new(big.Int).Sub(secp256k1N, s)
	}
	der, err := asn1.Marshal(struct{ R, S *big.Int }{r, s})
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{KeyId: params.KeyId, Signature: der}, nil
}

func newFakeKMS(t *testing.T) *fakeKMS {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return &fakeKMS{key: key}
}

func TestKMSKeypair_SignVerifies(t *testing.T) {
	for _, highS := range []bool{false, true} {
		fake := newFakeKMS(t)
		fake.highS = highS

		kp, err := NewKMSKeypairFromClient(context.Background(), fake, "alias/txwrapper", zaptest.NewLogger(t))
		require.NoError(t, err)

		assert.Equal(t, keyring.Ecdsa, kp.Type())
		assert.Equal(t, crypto.CompressPubkey(&fake.key.PublicKey), kp.PublicKey())

		message := []byte("signing payload bytes")
		sig, err := kp.Sign(message)
		require.NoError(t, err)
		require.Len(t, sig, keyring.EcdsaSignatureLength)
		assert.LessOrEqual(t, sig[64], byte(3))

		s := new(big.Int).SetBytes(sig[32:64])
		assert.True(t, s.Cmp(secp256k1HalfN) <= 0, "signature must be low-S")

		require.NotNil(t, fake.lastSign)
		assert.Equal(t, types.MessageTypeDigest, fake.lastSign.MessageType)
		assert.Len(t, fake.lastSign.Message, 32)

		ok, err := keyring.Verify(keyring.Ecdsa, kp.PublicKey(), message, sig)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestKMSKeypair_SignError(t *testing.T) {
	fake := newFakeKMS(t)
	kp, err := NewKMSKeypairFromClient(context.Background(), fake, "key", zaptest.NewLogger(t))
	require.NoError(t, err)

	fake.signErr = errors.New("access denied")
	_, err = kp.Sign([]byte("msg"))
	require.Error(t, err)
	var signingErr *txerrors.SigningError
	assert.True(t, errors.As(err, &signingErr))
	assert.Contains(t, err.Error(), "access denied")
}

func TestNewKMSKeypairFromClient_Errors(t *testing.T) {
	_, err := NewKMSKeypairFromClient(context.Background(), newFakeKMS(t), "", nil)
	require.Error(t, err)

	_, err = parseECDSAPublicKey([]byte{0x30, 0x00})
	require.Error(t, err)
}
