package keyring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/config"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
)

func TestFromURI_SignAndVerify(t *testing.T) {
	message := []byte("payload to sign")

	tests := []struct {
		name    string
		sigType SignatureType
		pubLen  int
		sigLen  int
	}{
		{name: "sr25519", sigType: Sr25519, pubLen: 32, sigLen: 64},
		{name: "ed25519", sigType: Ed25519, pubLen: 32, sigLen: 64},
		{name: "ecdsa", sigType: Ecdsa, pubLen: EcdsaPublicKeyLength, sigLen: EcdsaSignatureLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kp, err := FromURI(tt.sigType, "//Alice")
			require.NoError(t, err)
			assert.Equal(t, tt.sigType, kp.Type())
			assert.Len(t, kp.PublicKey(), tt.pubLen)

			sig, err := kp.Sign(message)
			require.NoError(t, err)
			assert.Len(t, sig, tt.sigLen)

			ok, err := Verify(tt.sigType, kp.PublicKey(), message, sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = Verify(tt.sigType, kp.PublicKey(), []byte("another payload"), sig)
			require.NoError(t, err)
			assert.False(t, ok)

			ok, err = VerifyMultiSignature(kp.PublicKey(), message, MultiSignature(tt.sigType, sig))
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestFromURI_DerivationIsStable(t *testing.T) {
	alice1, err := FromURI(Sr25519, "//Alice")
	require.NoError(t, err)
	alice2, err := FromURI(Sr25519, "//Alice")
	require.NoError(t, err)
	bob, err := FromURI(Sr25519, "//Bob")
	require.NoError(t, err)

	assert.Equal(t, alice1.PublicKey(), alice2.PublicKey())
	assert.NotEqual(t, alice1.PublicKey(), bob.PublicKey())

	addr, err := SS58Address(alice1, 42)
	require.NoError(t, err)
	assert.Equal(t, "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY", addr)
}

func TestEd25519IsDeterministic(t *testing.T) {
	kp, err := FromURI(Ed25519, "//Alice")
	require.NoError(t, err)

	a, err := kp.Sign([]byte("same"))
	require.NoError(t, err)
	b, err := kp.Sign([]byte("same"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFromURI_Errors(t *testing.T) {
	var signingErr *txerrors.SigningError

	_, err := FromURI(Sr25519, "")
	require.Error(t, err)
	assert.True(t, errors.As(err, &signingErr))

	_, err = FromURI(SignatureType(9), "//Alice")
	require.Error(t, err)
	assert.True(t, errors.As(err, &signingErr))
}

func TestVerify_Errors(t *testing.T) {
	_, err := Verify(Ecdsa, []byte{0x02, 0x03}, []byte("m"), make([]byte, EcdsaSignatureLength))
	require.Error(t, err)

	ok, err := VerifyMultiSignature(make([]byte, 33), []byte("m"), []byte{byte(Ecdsa), 0x01})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = VerifyMultiSignature(make([]byte, 32), []byte("m"), []byte{0x07, 0x01, 0x02})
	require.Error(t, err)

	_, err = VerifyMultiSignature(make([]byte, 32), []byte("m"), []byte{0x01})
	require.Error(t, err)
}

func TestSignatureTypeFromScheme(t *testing.T) {
	for scheme, want := range map[config.SignatureScheme]SignatureType{
		config.SchemeEd25519: Ed25519,
		config.SchemeSr25519: Sr25519,
		config.SchemeEcdsa:   Ecdsa,
	} {
		got, err := SignatureTypeFromScheme(scheme)
		require.NoError(t, err)
		assert.Equal(t, want, got)
		assert.Equal(t, string(scheme), got.String())
	}

	_, err := SignatureTypeFromScheme("bls")
	require.Error(t, err)
}
