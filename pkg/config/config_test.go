package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRPCEndpointFromEnv(t *testing.T) {
	t.Setenv(EnvRPCURL, "")
	_, err := RPCEndpointFromEnv()
	require.Error(t, err)

	t.Setenv(EnvRPCURL, "http://127.0.0.1:9933")
	endpoint, err := RPCEndpointFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9933", endpoint)

	// Read on every call, never cached
	t.Setenv(EnvRPCURL, "https://rpc.polkadot.io")
	endpoint, err = RPCEndpointFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "https://rpc.polkadot.io", endpoint)

	t.Setenv(EnvRPCURL, "ws://127.0.0.1:9944")
	_, err = RPCEndpointFromEnv()
	require.Error(t, err)
}

func TestNodeConfig_Validate(t *testing.T) {
	require.NoError(t, (&NodeConfig{}).Validate())
	require.NoError(t, (&NodeConfig{Endpoint: "http://localhost:9933", RequestsPerSecond: 5}).Validate())

	err := (&NodeConfig{Endpoint: "localhost", RequestsPerSecond: -1}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "endpoint")
	assert.Contains(t, err.Error(), "requestsPerSecond")
}

func TestSignerConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     SignerConfig
		wantErr string
	}{
		{name: "uri", cfg: SignerConfig{Scheme: SchemeSr25519, KeyURI: "//Alice"}},
		{name: "kms", cfg: SignerConfig{KMSKeyID: "alias/signer"}},
		{name: "kms explicit ecdsa", cfg: SignerConfig{Scheme: SchemeEcdsa, KMSKeyID: "alias/signer"}},
		{name: "nothing", cfg: SignerConfig{}, wantErr: "keyUri"},
		{name: "both", cfg: SignerConfig{Scheme: SchemeSr25519, KeyURI: "//Alice", KMSKeyID: "k"}, wantErr: "kmsKeyId"},
		{name: "kms non ecdsa", cfg: SignerConfig{Scheme: SchemeEd25519, KMSKeyID: "k"}, wantErr: "scheme"},
		{name: "bad scheme", cfg: SignerConfig{Scheme: "rsa", KeyURI: "//Alice"}, wantErr: "scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestStoreConfig_Validate(t *testing.T) {
	require.NoError(t, (&StoreConfig{Type: StoreTypeMemory}).Validate())
	require.NoError(t, (&StoreConfig{Type: StoreTypeBadger, DataPath: "/tmp/meta"}).Validate())
	require.NoError(t, (&StoreConfig{Type: StoreTypeRedis, Redis: &RedisConfig{Address: "localhost:6379"}}).Validate())

	require.Error(t, (&StoreConfig{Type: StoreTypeBadger}).Validate())
	require.Error(t, (&StoreConfig{Type: StoreTypeRedis}).Validate())
	require.Error(t, (&StoreConfig{Type: StoreTypeRedis, Redis: &RedisConfig{Address: "x:1", DB: 16}}).Validate())
	require.Error(t, (&StoreConfig{Type: "sqlite"}).Validate())
}

func TestParseSignatureScheme(t *testing.T) {
	s, err := ParseSignatureScheme("SR25519")
	require.NoError(t, err)
	assert.Equal(t, SchemeSr25519, s)

	_, err = ParseSignatureScheme("bls")
	require.Error(t, err)
}
