package signer

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/blake2b"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/extrinsic"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/keyring"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadata"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/testutil"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

type fixture struct {
	registry *metadata.Registry
	blob     []byte
	payload  string
}

func newFixture(t *testing.T, balancesIndex uint8) *fixture {
	t.Helper()
	registry, err := metadata.NewRegistry(nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	metaOpts := testutil.DefaultMetadataOptions()
	metaOpts.BalancesIndex = balancesIndex
	blob, err := testutil.MetadataBlob(metaOpts)
	require.NoError(t, err)

	payloadOpts := testutil.DefaultPayloadOptions()
	payloadOpts.PalletIndex = balancesIndex
	payload, err := testutil.PayloadHex(payloadOpts)
	require.NoError(t, err)

	return &fixture{registry: registry, blob: blob, payload: payload}
}

func mustKeypair(t *testing.T, sigType keyring.SignatureType) keyring.Keypair {
	t.Helper()
	kp, err := keyring.FromURI(sigType, "//Alice")
	require.NoError(t, err)
	return kp
}

// signingMessage is the message for the default payload: its bytes without the call length
// prefix.
func signingMessage(t *testing.T, opts testutil.PayloadOptions) []byte {
	t.Helper()
	signed, err := testutil.BuildSignedBytes(opts)
	require.NoError(t, err)
	return extrinsic.SigningMessage(signed)
}

func TestSign_Verifies(t *testing.T) {
	for _, sigType := range []keyring.SignatureType{keyring.Sr25519, keyring.Ed25519, keyring.Ecdsa} {
		t.Run(sigType.String(), func(t *testing.T) {
			f := newFixture(t, testutil.DefaultBalancesIdx)
			kp := mustKeypair(t, sigType)

			sigHex, err := Sign(kp, f.payload, f.registry, f.blob, extrinsic.Version4)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(sigHex, "0x"))

			sig, err := util.DecodePrefixedHex(sigHex)
			require.NoError(t, err)
			assert.Equal(t, byte(sigType), sig[0])

			ok, err := keyring.VerifyMultiSignature(kp.PublicKey(), signingMessage(t, testutil.DefaultPayloadOptions()), sig)
			require.NoError(t, err)
			assert.True(t, ok)

			ok, err = Verify(kp.PublicKey(), f.payload, sigHex, f.registry, f.blob, extrinsic.Version4)
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}

func TestSign_InstallsMetadataEveryCall(t *testing.T) {
	first := newFixture(t, 5)
	second := newFixture(t, 6)
	registry := first.registry
	kp := mustKeypair(t, keyring.Sr25519)

	_, err := Sign(kp, first.payload, registry, first.blob, extrinsic.Version4)
	require.NoError(t, err)

	// the second payload only decodes under the second blob
	_, err = Sign(kp, second.payload, registry, first.blob, extrinsic.Version4)
	var decodeErr *txerrors.DecodeError
	require.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %v", err)

	sigHex, err := Sign(kp, second.payload, registry, second.blob, extrinsic.Version4)
	require.NoError(t, err)

	schema := registry.Active()
	require.NotNil(t, schema)
	assert.Equal(t, blake2b.Sum256(second.blob), schema.Hash())

	ok, err := Verify(kp.PublicKey(), second.payload, sigHex, registry, second.blob, extrinsic.Version4)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSign_LargePayloadIsHashed(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)
	opts := testutil.DefaultPayloadOptions()
	opts.Remark = bytes.Repeat([]byte{0xab}, 512)
	payloadHex, err := testutil.PayloadHex(opts)
	require.NoError(t, err)

	kp := mustKeypair(t, keyring.Ed25519)
	sigHex, err := Sign(kp, payloadHex, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)
	sig, err := util.DecodePrefixedHex(sigHex)
	require.NoError(t, err)

	raw, err := testutil.BuildSignedBytes(opts)
	require.NoError(t, err)
	digest := blake2b.Sum256(raw)

	ok, err := keyring.VerifyMultiSignature(kp.PublicKey(), digest[:], sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = keyring.VerifyMultiSignature(kp.PublicKey(), raw, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSign_Ed25519IsDeterministic(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)
	kp := mustKeypair(t, keyring.Ed25519)

	a, err := Sign(kp, f.payload, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)
	b, err := Sign(kp, f.payload, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

type brokenKeypair struct {
	pub []byte
}

func (b *brokenKeypair) Type() keyring.SignatureType { return keyring.Sr25519 }
func (b *brokenKeypair) PublicKey() []byte           { return b.pub }
func (b *brokenKeypair) Sign([]byte) ([]byte, error) { return nil, errors.New("device locked") }

func TestSign_Errors(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)
	kp := mustKeypair(t, keyring.Sr25519)

	t.Run("nil keypair", func(t *testing.T) {
		_, err := Sign(nil, f.payload, f.registry, f.blob, extrinsic.Version4)
		var signingErr *txerrors.SigningError
		assert.True(t, errors.As(err, &signingErr))
	})

	t.Run("keypair without public key", func(t *testing.T) {
		_, err := Sign(&brokenKeypair{}, f.payload, f.registry, f.blob, extrinsic.Version4)
		var signingErr *txerrors.SigningError
		assert.True(t, errors.As(err, &signingErr))
	})

	t.Run("keypair fails to sign", func(t *testing.T) {
		_, err := Sign(&brokenKeypair{pub: make([]byte, 32)}, f.payload, f.registry, f.blob, extrinsic.Version4)
		var signingErr *txerrors.SigningError
		require.True(t, errors.As(err, &signingErr))
		assert.Contains(t, err.Error(), "device locked")
	})

	t.Run("malformed hex", func(t *testing.T) {
		_, err := Sign(kp, "0xabc", f.registry, f.blob, extrinsic.Version4)
		var decodeErr *txerrors.DecodeError
		assert.True(t, errors.As(err, &decodeErr))
	})

	t.Run("undecodable payload", func(t *testing.T) {
		_, err := Sign(kp, f.payload+"00", f.registry, f.blob, extrinsic.Version4)
		var decodeErr *txerrors.DecodeError
		assert.True(t, errors.As(err, &decodeErr))
	})

	t.Run("version mismatch", func(t *testing.T) {
		_, err := Sign(kp, f.payload, f.registry, f.blob, 3)
		var decodeErr *txerrors.DecodeError
		assert.True(t, errors.As(err, &decodeErr))
	})

	t.Run("invalid metadata", func(t *testing.T) {
		_, err := Sign(kp, f.payload, f.registry, []byte{0x01}, extrinsic.Version4)
		var decodeErr *txerrors.DecodeError
		assert.True(t, errors.As(err, &decodeErr))
	})

	t.Run("nil registry", func(t *testing.T) {
		_, err := Sign(kp, f.payload, nil, f.blob, extrinsic.Version4)
		require.Error(t, err)
	})
}

type recordingBackend struct {
	DefaultBackend
	decoded int
	signed  int
}

func (r *recordingBackend) Decode(schema *metadata.Schema, data []byte, version uint8) (*extrinsic.Payload, error) {
	r.decoded++
	return r.DefaultBackend.Decode(schema, data, version)
}

func (r *recordingBackend) Sign(payload *extrinsic.Payload, keypair keyring.Keypair) ([]byte, error) {
	r.signed++
	return r.DefaultBackend.Sign(payload, keypair)
}

func TestNewSigner_CustomBackend(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)
	backend := &recordingBackend{}
	s := NewSigner(&Config{Backend: backend, Logger: zaptest.NewLogger(t)})

	_, err := s.Sign(mustKeypair(t, keyring.Sr25519), f.payload, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.decoded)
	assert.Equal(t, 1, backend.signed)

	payload, err := s.Inspect(f.payload, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)
	assert.Equal(t, "transfer_keep_alive", payload.Call.Name)
	assert.Equal(t, 2, backend.decoded)
	assert.Equal(t, 1, backend.signed)
}

func TestInspect(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)

	payload, err := Inspect(f.payload, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)
	assert.Equal(t, "Balances", payload.Call.Pallet)

	nonce, ok := payload.Nonce()
	require.True(t, ok)
	assert.Equal(t, uint64(testutil.DefaultPayloadOptions().Nonce), nonce)
}

func TestVerify_WrongKey(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)
	alice := mustKeypair(t, keyring.Sr25519)
	bob, err := keyring.FromURI(keyring.Sr25519, "//Bob")
	require.NoError(t, err)

	sigHex, err := Sign(alice, f.payload, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)

	ok, err := Verify(bob.PublicKey(), f.payload, sigHex, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = Verify(bob.PublicKey(), f.payload, "0xzz", f.registry, f.blob, extrinsic.Version4)
	var decodeErr *txerrors.DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

// TestSign_WirePayload signs a payload written out byte for byte in the length prefixed form
// produced by transaction construction tools and checks the signed message has no prefix.
func TestSign_WirePayload(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)
	kp := mustKeypair(t, keyring.Ed25519)

	genesis := strings.Repeat("e1", 32)
	call := "0503" + "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20" + "07007841cb02"
	extensions := "00" + "1c" + "00" + "d6240000" + "16000000" + genesis + genesis
	payloadHex := "0xa0" + call + extensions

	sigHex, err := Sign(kp, payloadHex, f.registry, f.blob, extrinsic.Version4)
	require.NoError(t, err)
	sig, err := util.DecodePrefixedHex(sigHex)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	assert.Equal(t, byte(keyring.Ed25519), sig[0])

	message, err := util.HexToBytes(call + extensions)
	require.NoError(t, err)
	ok, err := keyring.VerifyMultiSignature(kp.PublicKey(), message, sig)
	require.NoError(t, err)
	assert.True(t, ok)

	prefixed, err := util.DecodePrefixedHex(payloadHex)
	require.NoError(t, err)
	ok, err = keyring.VerifyMultiSignature(kp.PublicKey(), prefixed, sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSigner_NilRegistry(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)
	kp := mustKeypair(t, keyring.Sr25519)

	_, err := Sign(kp, f.payload, nil, f.blob, extrinsic.Version4)
	var decodeErr *txerrors.DecodeError
	assert.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T: %v", err, err)

	_, err = Inspect(f.payload, nil, f.blob, extrinsic.Version4)
	assert.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T: %v", err, err)

	_, err = Verify(kp.PublicKey(), f.payload, "0x00", nil, f.blob, extrinsic.Version4)
	assert.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T: %v", err, err)
}

func TestSign_OversizedMetadataLength(t *testing.T) {
	f := newFixture(t, testutil.DefaultBalancesIdx)
	kp := mustKeypair(t, keyring.Ed25519)

	// "meta", v14, then a type registry claiming 0x3fffffff entries
	blob := []byte{0x6d, 0x65, 0x74, 0x61, 0x0e, 0x03, 0xff, 0xff, 0xff, 0x3f}
	_, err := Sign(kp, f.payload, f.registry, blob, extrinsic.Version4)
	var decodeErr *txerrors.DecodeError
	assert.True(t, errors.As(err, &decodeErr), "expected DecodeError, got %T: %v", err, err)
}
