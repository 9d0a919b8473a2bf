package testutil

import (
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
)

// Type ids of the synthetic metadata built by BuildMetadata.
const (
	TypeU8 int64 = iota
	TypeAccountID
	TypeU128
	TypeCompactU128
	TypeU32
	TypeBalancesCall
	TypeBytes
	TypeSystemCall
	TypeEra
	TypeCompactU32
	TypeH256
	TypeUnit
	TypeCheckMortality
	TypeCheckNonce
	TypeChargeTransactionPayment
	TypeStr
	TypeRuntimeVersion
	TypeBool
	TypeI16
	TypeU64
	TypeTupleU8Bool
	TypeOptionU32
	TypeBitVec
	TypeLsb0
	TypeChar
	TypeI128
	TypeU16
	TypeVecU32
	typeCount
)

const (
	SystemPalletIndex    uint8 = 0
	RemarkCallIndex      uint8 = 0
	TransferAllowDeath   uint8 = 0
	TransferKeepAlive    uint8 = 3
	DefaultBalancesIdx   uint8 = 5
	TestExtrinsicVersion       = 4
)

// MetadataOptions parameterizes BuildMetadata.
type MetadataOptions struct {
	// BalancesIndex is the pallet index of Balances. Two blobs that differ only here accept
	// disjoint sets of transfer payloads.
	BalancesIndex      uint8
	SpecName           string
	SpecVersion        uint32
	TransactionVersion uint32
	// ExtrinsicVersion defaults to 4
	ExtrinsicVersion uint8
	// OmitRuntimeVersion leaves out the System.Version constant
	OmitRuntimeVersion bool
}

// DefaultMetadataOptions describes a westend-like runtime with Balances at index 5.
func DefaultMetadataOptions() MetadataOptions {
	return MetadataOptions{
		BalancesIndex:      DefaultBalancesIdx,
		SpecName:           "westend",
		SpecVersion:        9430,
		TransactionVersion: 22,
		ExtrinsicVersion:   TestExtrinsicVersion,
	}
}

func lookup(id int64) types.Si1LookupTypeID {
	return types.Si1LookupTypeID{UCompact: types.NewUCompactFromUInt(uint64(id))}
}

func primitive(p types.Si0TypeDefPrimitive) types.Si1Type {
	return types.Si1Type{Def: types.Si1TypeDef{
		IsPrimitive: true,
		Primitive:   types.Si1TypeDefPrimitive{Si0TypeDefPrimitive: p},
	}}
}

func named(name string, id int64) types.Si1Field {
	return types.Si1Field{HasName: true, Name: types.Text(name), Type: lookup(id)}
}

func unnamed(id int64) types.Si1Field {
	return types.Si1Field{Type: lookup(id)}
}

func composite(path string, fields ...types.Si1Field) types.Si1Type {
	t := types.Si1Type{Def: types.Si1TypeDef{
		IsComposite: true,
		Composite:   types.Si1TypeDefComposite{Fields: fields},
	}}
	if path != "" {
		t.Path = types.Si1Path{types.Text(path)}
	}
	return t
}

func variant(path string, variants ...types.Si1Variant) types.Si1Type {
	return types.Si1Type{
		Path: types.Si1Path{types.Text(path)},
		Def: types.Si1TypeDef{
			IsVariant: true,
			Variant:   types.Si1TypeDefVariant{Variants: variants},
		},
	}
}

func eraType() types.Si1Type {
	variants := []types.Si1Variant{{Name: "Immortal", Index: 0}}
	for i := 1; i <= 255; i++ {
		variants = append(variants, types.Si1Variant{
			Name:   types.Text(fmt.Sprintf("Mortal%d", i)),
			Index:  types.U8(i),
			Fields: []types.Si1Field{unnamed(TypeU8)},
		})
	}
	return variant("Era", variants...)
}

func buildTypes() []types.Si1Type {
	t := make([]types.Si1Type, typeCount)
	t[TypeU8] = primitive(types.IsU8)
	t[TypeAccountID] = types.Si1Type{Def: types.Si1TypeDef{IsArray: true, Array: types.Si1TypeDefArray{Len: 32, Type: lookup(TypeU8)}}}
	t[TypeU128] = primitive(types.IsU128)
	t[TypeCompactU128] = types.Si1Type{Def: types.Si1TypeDef{IsCompact: true, Compact: types.Si1TypeDefCompact{Type: lookup(TypeU128)}}}
	t[TypeU32] = primitive(types.IsU32)
	t[TypeBalancesCall] = variant("Call",
		types.Si1Variant{Name: "transfer_allow_death", Index: types.U8(TransferAllowDeath), Fields: []types.Si1Field{named("dest", TypeAccountID), named("value", TypeCompactU128)}},
		types.Si1Variant{Name: "transfer_keep_alive", Index: types.U8(TransferKeepAlive), Fields: []types.Si1Field{named("dest", TypeAccountID), named("value", TypeCompactU128)}},
	)
	t[TypeBytes] = types.Si1Type{Def: types.Si1TypeDef{IsSequence: true, Sequence: types.Si1TypeDefSequence{Type: lookup(TypeU8)}}}
	t[TypeSystemCall] = variant("Call",
		types.Si1Variant{Name: "remark", Index: types.U8(RemarkCallIndex), Fields: []types.Si1Field{named("remark", TypeBytes)}},
	)
	t[TypeEra] = eraType()
	t[TypeCompactU32] = types.Si1Type{Def: types.Si1TypeDef{IsCompact: true, Compact: types.Si1TypeDefCompact{Type: lookup(TypeU32)}}}
	t[TypeH256] = composite("H256", unnamed(TypeAccountID))
	t[TypeUnit] = types.Si1Type{Def: types.Si1TypeDef{IsTuple: true, Tuple: types.Si1TypeDefTuple{}}}
	t[TypeCheckMortality] = composite("CheckMortality", unnamed(TypeEra))
	t[TypeCheckNonce] = composite("CheckNonce", unnamed(TypeCompactU32))
	t[TypeChargeTransactionPayment] = composite("ChargeTransactionPayment", unnamed(TypeCompactU128))
	t[TypeStr] = primitive(types.IsStr)
	t[TypeRuntimeVersion] = composite("RuntimeVersion",
		named("spec_name", TypeStr),
		named("impl_name", TypeStr),
		named("authoring_version", TypeU32),
		named("spec_version", TypeU32),
		named("impl_version", TypeU32),
		named("transaction_version", TypeU32),
		named("state_version", TypeU8),
	)
	t[TypeBool] = primitive(types.IsBool)
	t[TypeI16] = primitive(types.IsI16)
	t[TypeU64] = primitive(types.IsU64)
	t[TypeTupleU8Bool] = types.Si1Type{Def: types.Si1TypeDef{IsTuple: true, Tuple: types.Si1TypeDefTuple{lookup(TypeU8), lookup(TypeBool)}}}
	t[TypeOptionU32] = variant("Option",
		types.Si1Variant{Name: "None", Index: 0},
		types.Si1Variant{Name: "Some", Index: 1, Fields: []types.Si1Field{unnamed(TypeU32)}},
	)
	t[TypeBitVec] = types.Si1Type{Def: types.Si1TypeDef{IsBitSequence: true, BitSequence: types.Si1TypeDefBitSequence{
		BitStoreType: lookup(TypeU8),
		BitOrderType: lookup(TypeLsb0),
	}}}
	t[TypeLsb0] = composite("Lsb0")
	t[TypeChar] = primitive(types.IsChar)
	t[TypeI128] = primitive(types.IsI128)
	t[TypeU16] = primitive(types.IsU16)
	t[TypeVecU32] = types.Si1Type{Def: types.Si1TypeDef{IsSequence: true, Sequence: types.Si1TypeDefSequence{Type: lookup(TypeU32)}}}
	return t
}

type runtimeVersionConstant struct {
	SpecName           types.Text
	ImplName           types.Text
	AuthoringVersion   types.U32
	SpecVersion        types.U32
	ImplVersion        types.U32
	TransactionVersion types.U32
	StateVersion       types.U8
}

// signedExtensions mirrors the extension list of a relay chain runtime.
var signedExtensions = []struct {
	identifier string
	extra      int64
	additional int64
}{
	{"CheckNonZeroSender", TypeUnit, TypeUnit},
	{"CheckSpecVersion", TypeUnit, TypeU32},
	{"CheckTxVersion", TypeUnit, TypeU32},
	{"CheckGenesis", TypeUnit, TypeH256},
	{"CheckMortality", TypeCheckMortality, TypeH256},
	{"CheckNonce", TypeCheckNonce, TypeUnit},
	{"CheckWeight", TypeUnit, TypeUnit},
	{"ChargeTransactionPayment", TypeChargeTransactionPayment, TypeUnit},
}

// BuildMetadata assembles a small but complete V14 metadata with a System pallet (remark) and a
// Balances pallet (transfers).
func BuildMetadata(opts MetadataOptions) (*types.Metadata, error) {
	if opts.ExtrinsicVersion == 0 {
		opts.ExtrinsicVersion = TestExtrinsicVersion
	}
	if opts.BalancesIndex == SystemPalletIndex {
		return nil, fmt.Errorf("balances pallet index %d collides with System", opts.BalancesIndex)
	}

	meta := &types.Metadata{
		MagicNumber: types.MagicNumber,
		Version:     14,
	}
	v14 := &meta.AsMetadataV14

	for i, t := range buildTypes() {
		v14.Lookup.Types = append(v14.Lookup.Types, types.PortableTypeV14{ID: lookup(int64(i)), Type: t})
	}

	system := types.PalletMetadataV14{
		Name:     "System",
		HasCalls: true,
		Index:    types.U8(SystemPalletIndex),
	}
	system.Calls.Type = lookup(TypeSystemCall)
	if !opts.OmitRuntimeVersion {
		value, err := codec.Encode(runtimeVersionConstant{
			SpecName:           types.Text(opts.SpecName),
			ImplName:           types.Text(opts.SpecName + "-node"),
			AuthoringVersion:   2,
			SpecVersion:        types.U32(opts.SpecVersion),
			ImplVersion:        0,
			TransactionVersion: types.U32(opts.TransactionVersion),
			StateVersion:       1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to encode runtime version constant: %w", err)
		}
		system.Constants = append(system.Constants, types.ConstantMetadataV14{
			Name:  "Version",
			Type:  lookup(TypeRuntimeVersion),
			Value: value,
		})
	}

	balances := types.PalletMetadataV14{
		Name:     "Balances",
		HasCalls: true,
		Index:    types.U8(opts.BalancesIndex),
	}
	balances.Calls.Type = lookup(TypeBalancesCall)

	v14.Pallets = []types.PalletMetadataV14{system, balances}
	v14.Extrinsic.Type = lookup(TypeBytes)
	v14.Extrinsic.Version = types.U8(opts.ExtrinsicVersion)
	for _, ext := range signedExtensions {
		v14.Extrinsic.SignedExtensions = append(v14.Extrinsic.SignedExtensions, types.SignedExtensionMetadataV14{
			Identifier:       types.Text(ext.identifier),
			Type:             lookup(ext.extra),
			AdditionalSigned: lookup(ext.additional),
		})
	}
	v14.Type = lookup(TypeUnit)
	return meta, nil
}

// MetadataBlob returns the SCALE encoding of BuildMetadata(opts).
func MetadataBlob(opts MetadataOptions) ([]byte, error) {
	meta, err := BuildMetadata(opts)
	if err != nil {
		return nil, err
	}
	return codec.Encode(*meta)
}

// MetadataHex returns the blob in the 0x hex form served by state_getMetadata.
func MetadataHex(opts MetadataOptions) (string, error) {
	meta, err := BuildMetadata(opts)
	if err != nil {
		return "", err
	}
	return codec.EncodeToHex(*meta)
}
