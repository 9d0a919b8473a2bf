package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names
const (
	EnvRPCURL        = "POLKADOT_RPC_API"
	EnvStoreType     = "TXWRAPPER_STORE_TYPE"
	EnvDataPath      = "TXWRAPPER_DATA_PATH"
	EnvRedisAddress  = "TXWRAPPER_REDIS_ADDRESS"
	EnvRedisPassword = "TXWRAPPER_REDIS_PASSWORD"
	EnvDebug         = "TXWRAPPER_DEBUG"
)

// ExtrinsicVersion4 is the only extrinsic format the signer understands.
const ExtrinsicVersion4 uint8 = 4

// SignatureScheme names a keypair scheme on the command line and in config.
type SignatureScheme string

func (s SignatureScheme) String() string {
	return string(s)
}

const (
	SchemeSr25519 SignatureScheme = "sr25519"
	SchemeEd25519 SignatureScheme = "ed25519"
	SchemeEcdsa   SignatureScheme = "ecdsa"
)

// ParseSignatureScheme accepts sr25519, ed25519 or ecdsa in any case.
func ParseSignatureScheme(s string) (SignatureScheme, error) {
	switch SignatureScheme(strings.ToLower(s)) {
	case SchemeSr25519:
		return SchemeSr25519, nil
	case SchemeEd25519:
		return SchemeEd25519, nil
	case SchemeEcdsa:
		return SchemeEcdsa, nil
	default:
		return "", fmt.Errorf("unsupported signature scheme: %s", s)
	}
}

// StoreType selects the metadata store implementation.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeBadger StoreType = "badger"
	StoreTypeRedis  StoreType = "redis"
)

// RPCEndpointFromEnv reads the node endpoint. It is called on every gateway request, so a
// changed environment takes effect immediately.
func RPCEndpointFromEnv() (string, error) {
	endpoint := os.Getenv(EnvRPCURL)
	if endpoint == "" {
		return "", fmt.Errorf("%s is not set", EnvRPCURL)
	}
	if err := ValidateEndpoint(endpoint); err != nil {
		return "", err
	}
	return endpoint, nil
}

// ValidateEndpoint checks that the endpoint is an absolute http(s) URL.
func ValidateEndpoint(endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint %q: scheme must be http or https", endpoint)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint %q: missing host", endpoint)
	}
	return nil
}

// NodeConfig configures the node gateway
type NodeConfig struct {
	// Endpoint overrides POLKADOT_RPC_API when set
	Endpoint          string  `json:"endpoint" yaml:"endpoint"`
	RequestsPerSecond float64 `json:"requestsPerSecond" yaml:"requestsPerSecond"`
}

// Validate checks the endpoint URL and the rate limit.
func (nc *NodeConfig) Validate() error {
	var allErrors field.ErrorList
	if nc.Endpoint != "" {
		if err := ValidateEndpoint(nc.Endpoint); err != nil {
			allErrors = append(allErrors, field.Invalid(field.NewPath("endpoint"), nc.Endpoint, err.Error()))
		}
	}
	if nc.RequestsPerSecond < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("requestsPerSecond"), nc.RequestsPerSecond, "must not be negative"))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// SignerConfig selects the keypair used by the sign command. Exactly one of KeyURI or KMSKeyID
// must be set; KMS keys are always ecdsa.
type SignerConfig struct {
	Scheme    SignatureScheme `json:"scheme" yaml:"scheme"`
	KeyURI    string          `json:"keyUri" yaml:"keyUri"`
	KMSKeyID  string          `json:"kmsKeyId" yaml:"kmsKeyId"`
	KMSRegion string          `json:"kmsRegion" yaml:"kmsRegion"`
}

// Validate checks that exactly one key source is set and that the scheme fits it.
func (sc *SignerConfig) Validate() error {
	var allErrors field.ErrorList
	if sc.KeyURI == "" && sc.KMSKeyID == "" {
		allErrors = append(allErrors, field.Required(field.NewPath("keyUri"), "one of keyUri or kmsKeyId is required"))
	}
	if sc.KeyURI != "" && sc.KMSKeyID != "" {
		allErrors = append(allErrors, field.Forbidden(field.NewPath("kmsKeyId"), "kmsKeyId cannot be combined with keyUri"))
	}
	if sc.KMSKeyID != "" && sc.Scheme != "" && sc.Scheme != SchemeEcdsa {
		allErrors = append(allErrors, field.NotSupported(field.NewPath("scheme"), sc.Scheme, []string{string(SchemeEcdsa)}))
	}
	if sc.KeyURI != "" {
		if _, err := ParseSignatureScheme(string(sc.Scheme)); err != nil {
			allErrors = append(allErrors, field.NotSupported(field.NewPath("scheme"), sc.Scheme,
				[]string{string(SchemeSr25519), string(SchemeEd25519), string(SchemeEcdsa)}))
		}
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

// RedisConfig holds the configuration for connecting to Redis
type RedisConfig struct {
	// Address is the Redis server address (host:port)
	Address string `json:"address" yaml:"address"`
	// Password is the optional Redis password
	Password string `json:"password" yaml:"password"`
	// DB is the Redis database number (0-15)
	DB int `json:"db" yaml:"db"`
	// KeyPrefix is prepended to every key, e.g. "myapp:" gives "myapp:txwrapper:metadata:9430"
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

// StoreConfig selects the metadata store backend
type StoreConfig struct {
	Type     StoreType    `json:"type" yaml:"type"`
	DataPath string       `json:"dataPath" yaml:"dataPath"`
	Redis    *RedisConfig `json:"redis,omitempty" yaml:"redis,omitempty"`
}

// Validate checks the fields the selected store type needs.
func (sc *StoreConfig) Validate() error {
	var allErrors field.ErrorList
	switch sc.Type {
	case StoreTypeMemory:
	case StoreTypeBadger:
		if sc.DataPath == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("dataPath"), "dataPath is required for badger"))
		}
	case StoreTypeRedis:
		if sc.Redis == nil || sc.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(field.NewPath("redis", "address"), "redis address is required"))
		} else if sc.Redis.DB < 0 || sc.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("redis", "db"), sc.Redis.DB, "must be between 0-15"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("type"), sc.Type,
			[]string{string(StoreTypeMemory), string(StoreTypeBadger), string(StoreTypeRedis)}))
	}
	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}
