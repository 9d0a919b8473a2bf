package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	internalAws "github.com/Layr-Labs/substrate-txwrapper-go/internal/aws"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/config"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/keyring"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/keyring/awsKms"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/logger"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadata"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadatastore/factory"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/rpc"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/signer"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func newLogger(c *cli.Context) (*zap.Logger, error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("debug")})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return l, nil
}

func newRPCClient(c *cli.Context, l *zap.Logger) (*rpc.Client, error) {
	return rpc.NewClient(&rpc.ClientConfig{
		Endpoint:          c.String("rpc-url"),
		RequestsPerSecond: c.Float64("requests-per-second"),
	}, l)
}

func storeConfigFromContext(c *cli.Context) *config.StoreConfig {
	cfg := &config.StoreConfig{
		Type:     config.StoreType(c.String("store-type")),
		DataPath: c.String("data-path"),
	}
	if cfg.Type == config.StoreTypeRedis {
		cfg.Redis = &config.RedisConfig{
			Address:   c.String("redis-address"),
			Password:  c.String("redis-password"),
			DB:        c.Int("redis-db"),
			KeyPrefix: c.String("redis-key-prefix"),
		}
	}
	return cfg
}

func openStore(c *cli.Context, l *zap.Logger) (metadatastore.IMetadataStore, error) {
	store, err := factory.NewStore(storeConfigFromContext(c), l)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata store: %w", err)
	}
	return store, nil
}

func printJSON(c *cli.Context, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(c.App.Writer, string(out))
	return err
}

func rpcCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	var params []interface{}
	if err := json.Unmarshal([]byte(c.String("params")), &params); err != nil {
		return fmt.Errorf("--params must be a JSON array: %w", err)
	}

	client, err := newRPCClient(c, l)
	if err != nil {
		return err
	}
	result, err := client.Call(c.Context, c.String("method"), params)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, string(result))
	return err
}

func metadataFetchCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	client, err := newRPCClient(c, l)
	if err != nil {
		return err
	}
	at := c.String("at")

	version, err := client.GetRuntimeVersion(c.Context, at)
	if err != nil {
		return errors.Wrap(err, "failed to fetch runtime version")
	}
	metadataHex, err := client.GetMetadata(c.Context, at)
	if err != nil {
		return errors.Wrap(err, "failed to fetch metadata")
	}

	blob, err := metadata.DecodeMetadataHex(metadataHex)
	if err != nil {
		return err
	}
	schema, err := metadata.ParseMetadata(blob)
	if err != nil {
		return errors.Wrapf(err, "node returned metadata that cannot be used for signing (spec version %d)", version.SpecVersion)
	}

	store, err := openStore(c, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	record := metadatastore.NewMetadataRecord(version.SpecName, version.SpecVersion, version.TransactionVersion, blob, time.Now())
	if err := store.SaveMetadata(record); err != nil {
		return fmt.Errorf("failed to store metadata: %w", err)
	}

	if output := c.String("output"); output != "" {
		if err := os.WriteFile(output, []byte(record.Metadata), 0o644); err != nil {
			return fmt.Errorf("failed to write metadata to %s: %w", output, err)
		}
	}

	l.Sugar().Infow("Stored metadata",
		"specName", record.SpecName,
		"specVersion", record.SpecVersion,
		"transactionVersion", record.TransactionVersion,
		"hash", record.Hash,
		"extrinsicVersion", schema.ExtrinsicVersion(),
	)
	return printJSON(c, metadataSummary(record))
}

type metadataListEntry struct {
	SpecName           string `json:"specName"`
	SpecVersion        uint32 `json:"specVersion"`
	TransactionVersion uint32 `json:"transactionVersion"`
	Hash               string `json:"hash"`
	FetchedAt          string `json:"fetchedAt"`
}

func metadataSummary(r *metadatastore.MetadataRecord) metadataListEntry {
	return metadataListEntry{
		SpecName:           r.SpecName,
		SpecVersion:        r.SpecVersion,
		TransactionVersion: r.TransactionVersion,
		Hash:               r.Hash,
		FetchedAt:          time.Unix(r.FetchedAt, 0).UTC().Format(time.RFC3339),
	}
}

func metadataListCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	store, err := openStore(c, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	records, err := store.ListMetadata()
	if err != nil {
		return err
	}
	entries := make([]metadataListEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, metadataSummary(r))
	}
	return printJSON(c, entries)
}

// loadMetadataBlob reads --metadata-file when given, otherwise the stored record for
// --spec-version, otherwise the latest stored record.
func loadMetadataBlob(c *cli.Context, l *zap.Logger) ([]byte, error) {
	if path := c.String("metadata-file"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read metadata file: %w", err)
		}
		if trimmed := bytes.TrimSpace(content); bytes.HasPrefix(trimmed, []byte("0x")) {
			return metadata.DecodeMetadataHex(string(trimmed))
		}
		return content, nil
	}

	store, err := openStore(c, l)
	if err != nil {
		return nil, err
	}
	defer func() { _ = store.Close() }()

	var record *metadatastore.MetadataRecord
	if c.IsSet("spec-version") {
		record, err = store.LoadMetadata(uint32(c.Uint("spec-version")))
	} else {
		record, err = store.LatestMetadata()
	}
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("no stored metadata found; run 'txwrapper metadata fetch' or pass --metadata-file")
	}
	l.Sugar().Debugw("Using stored metadata", "specName", record.SpecName, "specVersion", record.SpecVersion)
	return record.Blob()
}

func extrinsicVersion(c *cli.Context) (uint8, error) {
	v := c.Uint("extrinsic-version")
	if v > 255 {
		return 0, fmt.Errorf("invalid extrinsic version %d", v)
	}
	return uint8(v), nil
}

type decodeInputs struct {
	logger   *zap.Logger
	registry *metadata.Registry
	blob     []byte
	version  uint8
}

func prepareDecode(c *cli.Context) (*decodeInputs, error) {
	l, err := newLogger(c)
	if err != nil {
		return nil, err
	}
	blob, err := loadMetadataBlob(c, l)
	if err != nil {
		return nil, err
	}
	version, err := extrinsicVersion(c)
	if err != nil {
		return nil, err
	}
	registry, err := metadata.NewRegistry(nil, l)
	if err != nil {
		return nil, err
	}
	return &decodeInputs{logger: l, registry: registry, blob: blob, version: version}, nil
}

func inspectCommand(c *cli.Context) error {
	in, err := prepareDecode(c)
	if err != nil {
		return err
	}
	defer func() { _ = in.logger.Sync() }()

	s := signer.NewSigner(&signer.Config{Logger: in.logger})
	payload, err := s.Inspect(c.String("payload"), in.registry, in.blob, in.version)
	if err != nil {
		return err
	}

	out := struct {
		Payload        interface{} `json:"payload"`
		SigningMessage string      `json:"signingMessage"`
	}{
		Payload:        payload,
		SigningMessage: util.EncodePrefixedHex(payload.SigningMessage()),
	}
	return printJSON(c, out)
}

func newKeypair(c *cli.Context, l *zap.Logger) (keyring.Keypair, error) {
	cfg := &config.SignerConfig{
		Scheme:    config.SignatureScheme(strings.ToLower(c.String("scheme"))),
		KeyURI:    c.String("key-uri"),
		KMSKeyID:  c.String("kms-key-id"),
		KMSRegion: c.String("kms-region"),
	}
	if cfg.KMSKeyID != "" && !c.IsSet("scheme") {
		cfg.Scheme = config.SchemeEcdsa
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid signer configuration: %w", err)
	}

	if cfg.KMSKeyID != "" {
		ctx, cancel := context.WithTimeout(c.Context, 30*time.Second)
		defer cancel()

		awsCfg, err := internalAws.LoadAWSConfig(ctx, cfg.KMSRegion)
		if err != nil {
			return nil, errors.Wrap(err, "failed to load AWS config")
		}
		if identity, err := internalAws.GetCallerIdentity(ctx, awsCfg); err != nil {
			l.Sugar().Warnw("Failed to resolve AWS caller identity", "error", err)
		} else if identity.Arn != nil {
			l.Sugar().Debugw("Signing with AWS identity", "arn", *identity.Arn)
		}
		kp, err := awsKms.NewKMSKeypair(ctx, awsCfg, cfg.KMSKeyID, l)
		if err != nil {
			return nil, err
		}
		return kp, nil
	}

	sigType, err := keyring.SignatureTypeFromScheme(cfg.Scheme)
	if err != nil {
		return nil, err
	}
	return keyring.FromURI(sigType, cfg.KeyURI)
}

func signCommand(c *cli.Context) error {
	in, err := prepareDecode(c)
	if err != nil {
		return err
	}
	defer func() { _ = in.logger.Sync() }()

	kp, err := newKeypair(c, in.logger)
	if err != nil {
		return err
	}

	s := signer.NewSigner(&signer.Config{Logger: in.logger})
	sig, err := s.Sign(kp, c.String("payload"), in.registry, in.blob, in.version)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(c.App.Writer, sig)
	return err
}

func verifyCommand(c *cli.Context) error {
	in, err := prepareDecode(c)
	if err != nil {
		return err
	}
	defer func() { _ = in.logger.Sync() }()

	publicKey, err := util.DecodePrefixedHex(c.String("public-key"))
	if err != nil {
		return fmt.Errorf("invalid --public-key: %w", err)
	}

	s := signer.NewSigner(&signer.Config{Logger: in.logger})
	ok, err := s.Verify(publicKey, c.String("payload"), c.String("signature"), in.registry, in.blob, in.version)
	if err != nil {
		return err
	}
	if !ok {
		return cli.Exit("signature is invalid", 1)
	}
	_, err = fmt.Fprintln(c.App.Writer, "signature is valid")
	return err
}

func toHexCommand(c *cli.Context) error {
	var data []byte
	switch {
	case c.IsSet("file"):
		content, err := os.ReadFile(c.String("file"))
		if err != nil {
			return fmt.Errorf("failed to read file: %w", err)
		}
		data = content
	case c.IsSet("data"):
		data = []byte(c.String("data"))
	default:
		return fmt.Errorf("one of --data or --file is required")
	}
	_, err := fmt.Fprintln(c.App.Writer, util.BytesToHex(data))
	return err
}

func toBytesCommand(c *cli.Context) error {
	data, err := util.HexToBytes(c.String("hex"))
	if err != nil {
		return err
	}
	if output := c.String("output"); output != "" {
		return os.WriteFile(output, data, 0o644)
	}
	_, err = c.App.Writer.Write(data)
	return err
}

func submitCommand(c *cli.Context) error {
	l, err := newLogger(c)
	if err != nil {
		return err
	}
	defer func() { _ = l.Sync() }()

	client, err := newRPCClient(c, l)
	if err != nil {
		return err
	}
	hash, err := client.SubmitExtrinsic(c.Context, c.String("extrinsic"))
	if err != nil {
		return err
	}
	l.Sugar().Infow("Submitted extrinsic", "hash", hash)
	_, err = fmt.Fprintln(c.App.Writer, hash)
	return err
}
