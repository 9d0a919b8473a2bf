package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "txwrapper",
		Usage: "Build, inspect and offline-sign Substrate transactions",
		Description: `Helpers for signing Substrate extrinsics on an air-gapped device.

The online side fetches metadata and chain state over JSON-RPC and stores the metadata;
the offline side decodes a signing payload against that metadata and signs it.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "rpc-url",
				Aliases: []string{"rpc"},
				Usage:   "Substrate node HTTP JSON-RPC endpoint",
				EnvVars: []string{config.EnvRPCURL},
			},
			&cli.Float64Flag{
				Name:  "requests-per-second",
				Usage: "Limit outgoing RPC requests (0 disables the limit)",
			},
			&cli.StringFlag{
				Name:    "store-type",
				Usage:   "Metadata store: memory, badger or redis",
				Value:   string(config.StoreTypeBadger),
				EnvVars: []string{config.EnvStoreType},
			},
			&cli.StringFlag{
				Name:    "data-path",
				Usage:   "Badger data directory",
				Value:   ".txwrapper",
				EnvVars: []string{config.EnvDataPath},
			},
			&cli.StringFlag{
				Name:    "redis-address",
				Usage:   "Redis address (host:port)",
				EnvVars: []string{config.EnvRedisAddress},
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password",
				EnvVars: []string{config.EnvRedisPassword},
			},
			&cli.IntFlag{
				Name:  "redis-db",
				Usage: "Redis database number",
			},
			&cli.StringFlag{
				Name:  "redis-key-prefix",
				Usage: "Prefix for every Redis key",
			},
			&cli.BoolFlag{
				Name:    "debug",
				Aliases: []string{"verbose"},
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvDebug},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "rpc",
				Usage: "Send a raw JSON-RPC request to the node and print the result",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "method",
						Usage:    "JSON-RPC method, e.g. chain_getHeader",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "params",
						Usage: "Positional parameters as a JSON array",
						Value: "[]",
					},
				},
				Action: rpcCommand,
			},
			{
				Name:  "metadata",
				Usage: "Fetch and manage stored runtime metadata",
				Subcommands: []*cli.Command{
					{
						Name:  "fetch",
						Usage: "Fetch the runtime version and metadata from the node and store them",
						Flags: []cli.Flag{
							&cli.StringFlag{
								Name:  "at",
								Usage: "Block hash to fetch at (default: best block)",
							},
							&cli.StringFlag{
								Name:  "output",
								Usage: "Also write the 0x hex metadata to this file",
							},
						},
						Action: metadataFetchCommand,
					},
					{
						Name:   "list",
						Usage:  "List stored metadata",
						Action: metadataListCommand,
					},
				},
			},
			{
				Name:   "inspect",
				Usage:  "Decode a signing payload and print it as JSON",
				Flags:  append([]cli.Flag{payloadFlag()}, metadataSourceFlags()...),
				Action: inspectCommand,
			},
			{
				Name:  "sign",
				Usage: "Sign a payload offline and print the 0x hex MultiSignature",
				Flags: append([]cli.Flag{
					payloadFlag(),
					&cli.StringFlag{
						Name:  "scheme",
						Usage: "Signature scheme: sr25519, ed25519 or ecdsa",
						Value: string(config.SchemeSr25519),
					},
					&cli.StringFlag{
						Name:    "key-uri",
						Usage:   "Secret URI: mnemonic, 0x seed or dev phrase such as //Alice, with optional derivation path",
						EnvVars: []string{"TXWRAPPER_KEY_URI"},
					},
					&cli.StringFlag{
						Name:  "kms-key-id",
						Usage: "AWS KMS key id or alias of an ECC_SECG_P256K1 key (ecdsa only)",
					},
					&cli.StringFlag{
						Name:  "kms-region",
						Usage: "AWS region of the KMS key",
					},
				}, metadataSourceFlags()...),
				Action: signCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify a MultiSignature over a payload",
				Flags: append([]cli.Flag{
					payloadFlag(),
					&cli.StringFlag{
						Name:     "signature",
						Usage:    "0x hex MultiSignature",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "public-key",
						Usage:    "0x hex public key of the signer",
						Required: true,
					},
				}, metadataSourceFlags()...),
				Action: verifyCommand,
			},
			{
				Name:  "hex",
				Usage: "Convert between hex strings and bytes",
				Subcommands: []*cli.Command{
					{
						Name:  "to-hex",
						Usage: "Print the hex encoding of a string or file",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "data", Usage: "Text to encode"},
							&cli.StringFlag{Name: "file", Usage: "File to encode"},
						},
						Action: toHexCommand,
					},
					{
						Name:  "to-bytes",
						Usage: "Decode a hex string and write the bytes",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "hex", Usage: "Hex to decode (no 0x prefix)", Required: true},
							&cli.StringFlag{Name: "output", Usage: "Write bytes to this file instead of stdout"},
						},
						Action: toBytesCommand,
					},
				},
			},
			{
				Name:  "submit",
				Usage: "Submit a signed extrinsic and print its hash",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "extrinsic",
						Usage:    "0x hex signed extrinsic",
						Required: true,
					},
				},
				Action: submitCommand,
			},
		},
	}
}

func payloadFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "payload",
		Usage:    "0x hex signing payload",
		Required: true,
	}
}

// metadataSourceFlags are shared by the commands that decode a payload.
func metadataSourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "metadata-file",
			Usage: "File holding the runtime metadata (0x hex as returned by state_getMetadata, or raw SCALE bytes)",
		},
		&cli.UintFlag{
			Name:  "spec-version",
			Usage: "Load the metadata for this runtime spec version from the store (default: latest stored)",
		},
		&cli.UintFlag{
			Name:  "extrinsic-version",
			Usage: "Extrinsic format version of the payload",
			Value: uint(config.ExtrinsicVersion4),
		},
	}
}
