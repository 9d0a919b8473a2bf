package testutil

import (
	"bytes"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

// PayloadOptions describes a V4 signing payload for the synthetic metadata.
type PayloadOptions struct {
	PalletIndex uint8
	CallIndex   uint8
	Dest        [32]byte
	Value       uint64
	// Remark switches the call to System.remark with these bytes
	Remark []byte

	Era                types.ExtrinsicEra
	Nonce              uint32
	Tip                uint64
	SpecVersion        uint32
	TransactionVersion uint32
	GenesisHash        [32]byte
	BlockHash          [32]byte
}

// DefaultPayloadOptions is an immortal transfer_keep_alive of 12_000_000_000 with nonce 7.
func DefaultPayloadOptions() PayloadOptions {
	var dest, genesis [32]byte
	for i := range dest {
		dest[i] = byte(i + 1)
		genesis[i] = 0xe1
	}
	return PayloadOptions{
		PalletIndex:        DefaultBalancesIdx,
		CallIndex:          TransferKeepAlive,
		Dest:               dest,
		Value:              12_000_000_000,
		Era:                types.ExtrinsicEra{IsImmortalEra: true},
		Nonce:              7,
		Tip:                0,
		SpecVersion:        9430,
		TransactionVersion: 22,
		GenesisHash:        genesis,
		BlockHash:          genesis,
	}
}

// BuildCall encodes the call section of the payload.
func BuildCall(opts PayloadOptions) ([]byte, error) {
	var buf bytes.Buffer
	if opts.Remark != nil {
		buf.WriteByte(SystemPalletIndex)
		buf.WriteByte(RemarkCallIndex)
		remark, err := codec.Encode(types.NewBytes(opts.Remark))
		if err != nil {
			return nil, err
		}
		buf.Write(remark)
		return buf.Bytes(), nil
	}

	buf.WriteByte(opts.PalletIndex)
	buf.WriteByte(opts.CallIndex)
	buf.Write(opts.Dest[:])
	value, err := codec.Encode(types.NewUCompactFromUInt(opts.Value))
	if err != nil {
		return nil, err
	}
	buf.Write(value)
	return buf.Bytes(), nil
}

// BuildPayload encodes the signing payload in the wire form a transaction construction tool
// hands to the signer: compact(len(call)) ++ call ++ extra ++ additional, in the signed
// extension order of the synthetic metadata.
func BuildPayload(opts PayloadOptions) ([]byte, error) {
	call, err := BuildCall(opts)
	if err != nil {
		return nil, err
	}
	prefix, err := codec.Encode(types.NewUCompactFromUInt(uint64(len(call))))
	if err != nil {
		return nil, err
	}
	rest, err := buildExtensions(opts)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(prefix)+len(call)+len(rest))
	out = append(out, prefix...)
	out = append(out, call...)
	return append(out, rest...), nil
}

// BuildSignedBytes is BuildPayload without the call length prefix: the bytes a keypair signs
// (or hashes first when longer than 256 bytes).
func BuildSignedBytes(opts PayloadOptions) ([]byte, error) {
	call, err := BuildCall(opts)
	if err != nil {
		return nil, err
	}
	rest, err := buildExtensions(opts)
	if err != nil {
		return nil, err
	}
	return append(call, rest...), nil
}

func buildExtensions(opts PayloadOptions) ([]byte, error) {
	parts := []interface{}{
		// extra
		opts.Era,
		types.NewUCompactFromUInt(uint64(opts.Nonce)),
		types.NewUCompactFromUInt(opts.Tip),
		// additional
		types.U32(opts.SpecVersion),
		types.U32(opts.TransactionVersion),
		types.Hash(opts.GenesisHash),
		types.Hash(opts.BlockHash),
	}

	var buf bytes.Buffer
	for i, part := range parts {
		enc, err := codec.Encode(part)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload part %d: %w", i, err)
		}
		buf.Write(enc)
	}
	return buf.Bytes(), nil
}

// PayloadHex is BuildPayload as a 0x hex string.
func PayloadHex(opts PayloadOptions) (string, error) {
	b, err := BuildPayload(opts)
	if err != nil {
		return "", err
	}
	return util.EncodePrefixedHex(b), nil
}
