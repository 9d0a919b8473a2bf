package metadata

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/testutil"
)

func newTestRegistry(t *testing.T, cacheSize int) *Registry {
	t.Helper()
	r, err := NewRegistry(&RegistryConfig{CacheSize: cacheSize}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func blobWithBalancesAt(t *testing.T, index uint8) []byte {
	t.Helper()
	opts := testutil.DefaultMetadataOptions()
	opts.BalancesIndex = index
	return mustBlob(t, opts)
}

func TestRegistry_InstallIsIdempotent(t *testing.T) {
	r := newTestRegistry(t, 0)
	assert.Nil(t, r.Active())

	blob := blobWithBalancesAt(t, 5)
	first, err := r.Install(blob)
	require.NoError(t, err)
	second, err := r.Install(blob)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Same(t, first, r.Active())
}

func TestRegistry_SwitchesBetweenBlobs(t *testing.T) {
	r := newTestRegistry(t, 4)

	a, err := r.Install(blobWithBalancesAt(t, 5))
	require.NoError(t, err)
	b, err := r.Install(blobWithBalancesAt(t, 6))
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), b.Hash())
	assert.Same(t, b, r.Active())

	_, ok := r.Active().PalletByIndex(6)
	assert.True(t, ok)
	_, ok = r.Active().PalletByIndex(5)
	assert.False(t, ok)

	// served from the cache
	again, err := r.Install(blobWithBalancesAt(t, 5))
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Same(t, a, r.Active())
}

func TestRegistry_EvictedSchemaIsReparsed(t *testing.T) {
	r := newTestRegistry(t, 1)

	a, err := r.Install(blobWithBalancesAt(t, 5))
	require.NoError(t, err)
	_, err = r.Install(blobWithBalancesAt(t, 6))
	require.NoError(t, err)

	again, err := r.Install(blobWithBalancesAt(t, 5))
	require.NoError(t, err)
	assert.NotSame(t, a, again)
	assert.Equal(t, a.Hash(), again.Hash())
}

func TestRegistry_FailedInstallKeepsActive(t *testing.T) {
	r := newTestRegistry(t, 0)

	good, err := r.Install(blobWithBalancesAt(t, 5))
	require.NoError(t, err)

	_, err = r.Install([]byte{0xde, 0xad})
	requireDecodeError(t, err)
	assert.Same(t, good, r.Active())

	_, err = r.InstallHex("0xnothex")
	require.Error(t, err)
	assert.Same(t, good, r.Active())
}

func TestRegistry_InstallHex(t *testing.T) {
	r := newTestRegistry(t, 0)

	metaHex, err := testutil.MetadataHex(testutil.DefaultMetadataOptions())
	require.NoError(t, err)

	schema, err := r.InstallHex(metaHex)
	require.NoError(t, err)
	assert.Equal(t, uint8(4), schema.ExtrinsicVersion())
}

func TestRegistry_With(t *testing.T) {
	r := newTestRegistry(t, 0)
	blob := blobWithBalancesAt(t, 5)

	called := false
	err := r.With(blob, func(schema *Schema) error {
		called = true
		_, ok := schema.PalletByIndex(5)
		assert.True(t, ok)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)

	err = r.With([]byte{0x00}, func(*Schema) error {
		t.Fatal("callback must not run for an invalid blob")
		return nil
	})
	requireDecodeError(t, err)
}

func TestRegistry_ConcurrentWith(t *testing.T) {
	r := newTestRegistry(t, 0)
	blobs := map[uint8][]byte{
		5: blobWithBalancesAt(t, 5),
		6: blobWithBalancesAt(t, 6),
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 32; i++ {
		index := uint8(5 + i%2)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.With(blobs[index], func(schema *Schema) error {
				if _, ok := schema.PalletByIndex(index); !ok {
					t.Errorf("schema for index %d is not the one requested", index)
				}
				return nil
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
