// Package extrinsic decodes a SCALE encoded signing payload into a typed value using the portable
// types of an installed metadata Schema.
package extrinsic

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/metadata"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

const (
	// Version4 is the only extrinsic format version supported.
	Version4 uint8 = 4

	// MaxUnhashedMessageLength is the longest signing message signed as is. Longer messages are
	// replaced by their blake2b-256 hash.
	MaxUnhashedMessageLength = 256
)

// Well-known signed extension identifiers.
const (
	CheckSpecVersion         = "CheckSpecVersion"
	CheckTxVersion           = "CheckTxVersion"
	CheckGenesis             = "CheckGenesis"
	CheckMortality           = "CheckMortality"
	CheckEra                 = "CheckEra"
	CheckNonce               = "CheckNonce"
	ChargeTransactionPayment = "ChargeTransactionPayment"
	ChargeAssetTxPayment     = "ChargeAssetTxPayment"
)

// Arg is one decoded call argument.
type Arg struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Call is the decoded call of a payload. Raw holds its encoding without the length prefix.
type Call struct {
	PalletIndex uint8  `json:"palletIndex"`
	CallIndex   uint8  `json:"callIndex"`
	Pallet      string `json:"pallet"`
	Name        string `json:"name"`
	Args        []Arg  `json:"args"`
	Raw         []byte `json:"-"`
}

// Extension is one signed extension's slice of the payload.
type Extension struct {
	Identifier      string      `json:"identifier"`
	Extra           []byte      `json:"-"`
	ExtraValue      interface{} `json:"extra"`
	Additional      []byte      `json:"-"`
	AdditionalValue interface{} `json:"additional"`
}

// Payload is a decoded ExtrinsicPayload.
type Payload struct {
	Version    uint8       `json:"version"`
	Call       Call        `json:"call"`
	Extensions []Extension `json:"extensions"`
}

// Decode parses data as a signing payload of the given extrinsic version under schema.
//
// The layout is the call as length prefixed bytes (compact length, then pallet index, call index
// and arguments), then every signed extension's extra in metadata order, then every signed
// extension's additional signed data in metadata order. The call must fill its declared length
// exactly and the whole input must be consumed.
func Decode(schema *metadata.Schema, data []byte, version uint8) (*Payload, error) {
	if schema == nil {
		return nil, txerrors.NewDecodeErrorf("no metadata installed")
	}
	if version != Version4 {
		return nil, txerrors.NewDecodeErrorf("unsupported extrinsic version %d", version)
	}
	if v := schema.ExtrinsicVersion(); v != version {
		return nil, txerrors.NewDecodeErrorf("extrinsic version %d does not match metadata extrinsic version %d", version, v)
	}

	d := schema.NewDecoder(data)
	callLen, err := d.ReadCompact()
	if err != nil {
		return nil, txerrors.NewDecodeError("call length", err)
	}
	if !callLen.IsUint64() || callLen.Uint64() > uint64(d.Remaining()) {
		return nil, txerrors.NewDecodeErrorf("call length %s exceeds remaining %d bytes", callLen, d.Remaining())
	}
	callBytes, err := d.ReadBytes(int(callLen.Uint64()))
	if err != nil {
		return nil, txerrors.NewDecodeError("call", err)
	}
	call, err := decodeCall(schema, callBytes)
	if err != nil {
		return nil, err
	}

	exts := schema.SignedExtensions()
	p := &Payload{
		Version:    version,
		Call:       *call,
		Extensions: make([]Extension, len(exts)),
	}
	for i, ext := range exts {
		start := d.Offset()
		v, err := d.Decode(ext.Type)
		if err != nil {
			return nil, txerrors.NewDecodeError(fmt.Sprintf("extra of %s", ext.Identifier), err)
		}
		p.Extensions[i] = Extension{
			Identifier: ext.Identifier,
			Extra:      clone(data[start:d.Offset()]),
			ExtraValue: v,
		}
	}
	for i, ext := range exts {
		start := d.Offset()
		v, err := d.Decode(ext.AdditionalSigned)
		if err != nil {
			return nil, txerrors.NewDecodeError(fmt.Sprintf("additional signed of %s", ext.Identifier), err)
		}
		p.Extensions[i].Additional = clone(data[start:d.Offset()])
		p.Extensions[i].AdditionalValue = v
	}

	if n := d.Remaining(); n != 0 {
		return nil, txerrors.NewDecodeErrorf("%d trailing bytes after payload at offset %d", n, d.Offset())
	}
	return p, nil
}

// DecodeHex is Decode for hex input with or without a 0x prefix.
func DecodeHex(schema *metadata.Schema, payloadHex string, version uint8) (*Payload, error) {
	data, err := util.DecodePrefixedHex(payloadHex)
	if err != nil {
		return nil, txerrors.NewDecodeError("payload hex", err)
	}
	return Decode(schema, data, version)
}

func decodeCall(schema *metadata.Schema, data []byte) (*Call, error) {
	d := schema.NewDecoder(data)
	palletIndex, err := d.ReadByte()
	if err != nil {
		return nil, txerrors.NewDecodeError("call pallet index", err)
	}
	callIndex, err := d.ReadByte()
	if err != nil {
		return nil, txerrors.NewDecodeError("call index", err)
	}
	pallet, variant, err := schema.CallVariant(palletIndex, callIndex)
	if err != nil {
		return nil, err
	}

	call := &Call{
		PalletIndex: palletIndex,
		CallIndex:   callIndex,
		Pallet:      pallet,
		Name:        string(variant.Name),
		Args:        make([]Arg, 0, len(variant.Fields)),
	}
	for i, f := range variant.Fields {
		name := string(f.Name)
		if !f.HasName {
			name = fmt.Sprintf("%d", i)
		}
		v, err := d.Decode(metadata.TypeID(f.Type))
		if err != nil {
			return nil, txerrors.NewDecodeError(fmt.Sprintf("argument %s of %s.%s", name, pallet, call.Name), err)
		}
		call.Args = append(call.Args, Arg{Name: name, Value: v})
	}
	if n := d.Remaining(); n != 0 {
		return nil, txerrors.NewDecodeErrorf("%d trailing bytes after call %s.%s", n, pallet, call.Name)
	}
	call.Raw = data
	return call, nil
}

// Encode returns the canonical payload bytes as signed: the bare call without its length
// prefix, then the extras, then the additional signed data.
func (p *Payload) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(p.Call.Raw)
	for _, ext := range p.Extensions {
		buf.Write(ext.Extra)
	}
	for _, ext := range p.Extensions {
		buf.Write(ext.Additional)
	}
	return buf.Bytes()
}

// SigningMessage returns the bytes a keypair signs: the encoded payload, or its blake2b-256 hash
// when the payload is longer than MaxUnhashedMessageLength.
func (p *Payload) SigningMessage() []byte {
	return SigningMessage(p.Encode())
}

// SigningMessage applies the hashing rule to already encoded payload bytes.
func SigningMessage(encoded []byte) []byte {
	if len(encoded) > MaxUnhashedMessageLength {
		h := blake2b.Sum256(encoded)
		return h[:]
	}
	return encoded
}

// Extension looks up a signed extension by identifier.
func (p *Payload) Extension(identifier string) (*Extension, bool) {
	for i := range p.Extensions {
		if p.Extensions[i].Identifier == identifier {
			return &p.Extensions[i], true
		}
	}
	return nil, false
}

// Era decodes the mortality extra.
func (p *Payload) Era() (types.ExtrinsicEra, bool) {
	ext, ok := p.Extension(CheckMortality)
	if !ok {
		if ext, ok = p.Extension(CheckEra); !ok {
			return types.ExtrinsicEra{}, false
		}
	}
	var era types.ExtrinsicEra
	if err := codec.Decode(ext.Extra, &era); err != nil {
		return types.ExtrinsicEra{}, false
	}
	return era, true
}

// Nonce returns the account nonce from CheckNonce.
func (p *Payload) Nonce() (uint64, bool) {
	ext, ok := p.Extension(CheckNonce)
	if !ok {
		return 0, false
	}
	n, ok := asBigInt(ext.ExtraValue)
	if !ok || !n.IsUint64() {
		return 0, false
	}
	return n.Uint64(), true
}

// Tip returns the tip from ChargeTransactionPayment or ChargeAssetTxPayment.
func (p *Payload) Tip() (*big.Int, bool) {
	if ext, ok := p.Extension(ChargeTransactionPayment); ok {
		return asBigInt(ext.ExtraValue)
	}
	if ext, ok := p.Extension(ChargeAssetTxPayment); ok {
		if fields, ok := ext.ExtraValue.(map[string]interface{}); ok {
			return asBigInt(fields["tip"])
		}
	}
	return nil, false
}

// SpecVersion returns the runtime spec version committed to by CheckSpecVersion.
func (p *Payload) SpecVersion() (uint32, bool) {
	return p.additionalU32(CheckSpecVersion)
}

// TransactionVersion returns the transaction version committed to by CheckTxVersion.
func (p *Payload) TransactionVersion() (uint32, bool) {
	return p.additionalU32(CheckTxVersion)
}

// GenesisHash returns the 0x hex genesis hash committed to by CheckGenesis.
func (p *Payload) GenesisHash() (string, bool) {
	return p.additionalHex(CheckGenesis)
}

// BlockHash returns the 0x hex checkpoint block hash committed to by the mortality extension.
// For immortal transactions it equals the genesis hash.
func (p *Payload) BlockHash() (string, bool) {
	if h, ok := p.additionalHex(CheckMortality); ok {
		return h, true
	}
	return p.additionalHex(CheckEra)
}

func (p *Payload) additionalU32(identifier string) (uint32, bool) {
	ext, ok := p.Extension(identifier)
	if !ok {
		return 0, false
	}
	v, ok := ext.AdditionalValue.(uint32)
	return v, ok
}

func (p *Payload) additionalHex(identifier string) (string, bool) {
	ext, ok := p.Extension(identifier)
	if !ok || len(ext.Additional) == 0 {
		return "", false
	}
	return util.EncodePrefixedHex(ext.Additional), true
}

func asBigInt(v interface{}) (*big.Int, bool) {
	switch n := v.(type) {
	case *big.Int:
		return n, true
	case uint8:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(n)), true
	case uint64:
		return new(big.Int).SetUint64(n), true
	default:
		return nil, false
	}
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
