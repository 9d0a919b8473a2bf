// Package metadata turns a chain's SCALE encoded runtime metadata into a Schema that can decode
// runtime values, and keeps the installed Schema in a caller-owned Registry.
//
// Only metadata V14 is supported: earlier versions have no portable type registry, so a signing
// payload cannot be decoded against them.
package metadata

import (
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types/codec"
	"golang.org/x/crypto/blake2b"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

// SignedExtension describes one entry of the extrinsic's signed extension list. Type is decoded
// from the payload's "extra" section, AdditionalSigned from the trailing "additional" section.
type SignedExtension struct {
	Identifier       string
	Type             int64
	AdditionalSigned int64
}

// RuntimeVersion is the subset of System.Version the tooling cares about.
type RuntimeVersion struct {
	SpecName           string
	SpecVersion        uint32
	TransactionVersion uint32
}

// Schema is an immutable, decoded metadata V14 blob.
type Schema struct {
	hash       [32]byte
	metadata   *types.Metadata
	types      map[int64]*types.Si1Type
	pallets    map[uint8]*types.PalletMetadataV14
	extensions []SignedExtension
}

// DecodeMetadataHex decodes the 0x hex string returned by state_getMetadata.
func DecodeMetadataHex(s string) ([]byte, error) {
	b, err := util.DecodePrefixedHex(s)
	if err != nil {
		return nil, txerrors.NewDecodeError("metadata hex", err)
	}
	return b, nil
}

// ParseMetadata decodes a SCALE encoded RuntimeMetadataPrefixed blob.
func ParseMetadata(blob []byte) (*Schema, error) {
	return parseMetadata(blob, blake2b.Sum256(blob))
}

func parseMetadata(blob []byte, hash [32]byte) (*Schema, error) {
	if len(blob) == 0 {
		return nil, txerrors.NewDecodeErrorf("metadata is empty")
	}

	if err := checkMetadataBounds(blob); err != nil {
		return nil, err
	}

	var meta types.Metadata
	if err := codec.Decode(blob, &meta); err != nil {
		return nil, txerrors.NewDecodeError("metadata", err)
	}
	if meta.MagicNumber != types.MagicNumber {
		return nil, txerrors.NewDecodeErrorf("metadata magic number mismatch: got 0x%08x", meta.MagicNumber)
	}
	if meta.Version != metadataV14 {
		return nil, txerrors.NewDecodeErrorf("unsupported metadata version %d, only v14 is supported", meta.Version)
	}

	v14 := &meta.AsMetadataV14
	s := &Schema{
		hash:     hash,
		metadata: &meta,
		types:    make(map[int64]*types.Si1Type, len(v14.Lookup.Types)),
		pallets:  make(map[uint8]*types.PalletMetadataV14, len(v14.Pallets)),
	}
	for i := range v14.Lookup.Types {
		s.types[lookupID(v14.Lookup.Types[i].ID)] = &v14.Lookup.Types[i].Type
	}
	for i := range v14.Pallets {
		p := &v14.Pallets[i]
		if _, dup := s.pallets[uint8(p.Index)]; dup {
			return nil, txerrors.NewDecodeErrorf("duplicate pallet index %d", p.Index)
		}
		s.pallets[uint8(p.Index)] = p
	}
	for _, ext := range v14.Extrinsic.SignedExtensions {
		s.extensions = append(s.extensions, SignedExtension{
			Identifier:       string(ext.Identifier),
			Type:             lookupID(ext.Type),
			AdditionalSigned: lookupID(ext.AdditionalSigned),
		})
	}
	return s, nil
}

// TypeID converts a portable lookup id into the key used by Type and Decoder.Decode.
func TypeID(id types.Si1LookupTypeID) int64 {
	return lookupID(id)
}

func lookupID(id types.Si1LookupTypeID) int64 {
	return (*big.Int)(&id.UCompact).Int64()
}

// Hash is the blake2b-256 hash of the raw metadata blob.
func (s *Schema) Hash() [32]byte {
	return s.hash
}

// HashHex is Hash as a 0x hex string.
func (s *Schema) HashHex() string {
	return util.EncodePrefixedHex(s.hash[:])
}

// Metadata exposes the decoded gsrpc metadata.
func (s *Schema) Metadata() *types.Metadata {
	return s.metadata
}

// ExtrinsicVersion is the extrinsic format version the runtime declares.
func (s *Schema) ExtrinsicVersion() uint8 {
	return uint8(s.metadata.AsMetadataV14.Extrinsic.Version)
}

// SignedExtensions returns the signed extensions in payload order.
func (s *Schema) SignedExtensions() []SignedExtension {
	out := make([]SignedExtension, len(s.extensions))
	copy(out, s.extensions)
	return out
}

// Type looks up a portable type by id.
func (s *Schema) Type(id int64) (*types.Si1Type, bool) {
	t, ok := s.types[id]
	return t, ok
}

// PalletByIndex looks up a pallet by its call index.
func (s *Schema) PalletByIndex(index uint8) (*types.PalletMetadataV14, bool) {
	p, ok := s.pallets[index]
	return p, ok
}

// CallVariant resolves a (pallet index, call index) pair to the pallet name and call variant.
func (s *Schema) CallVariant(palletIndex, callIndex uint8) (string, *types.Si1Variant, error) {
	pallet, ok := s.pallets[palletIndex]
	if !ok {
		return "", nil, txerrors.NewDecodeErrorf("unknown pallet index %d", palletIndex)
	}
	if !pallet.HasCalls {
		return "", nil, txerrors.NewDecodeErrorf("pallet %s (%d) has no calls", pallet.Name, palletIndex)
	}
	callType, ok := s.types[lookupID(pallet.Calls.Type)]
	if !ok {
		return "", nil, txerrors.NewDecodeErrorf("call type of pallet %s not found in lookup", pallet.Name)
	}
	if !callType.Def.IsVariant {
		return "", nil, txerrors.NewDecodeErrorf("call type of pallet %s is not an enum", pallet.Name)
	}
	for i := range callType.Def.Variant.Variants {
		v := &callType.Def.Variant.Variants[i]
		if uint8(v.Index) == callIndex {
			return string(pallet.Name), v, nil
		}
	}
	return "", nil, txerrors.NewDecodeErrorf("unknown call index %d in pallet %s", callIndex, pallet.Name)
}

// RuntimeVersion decodes the System.Version constant. ok is false when the metadata does not
// carry it (or it cannot be decoded).
func (s *Schema) RuntimeVersion() (RuntimeVersion, bool) {
	for _, pallet := range s.pallets {
		if pallet.Name != "System" {
			continue
		}
		for _, constant := range pallet.Constants {
			if constant.Name != "Version" {
				continue
			}
			d := s.NewDecoder(constant.Value)
			v, err := d.Decode(lookupID(constant.Type))
			if err != nil {
				return RuntimeVersion{}, false
			}
			fields, ok := v.(map[string]interface{})
			if !ok {
				return RuntimeVersion{}, false
			}
			var rv RuntimeVersion
			rv.SpecName, _ = fields["spec_name"].(string)
			rv.SpecVersion, _ = fields["spec_version"].(uint32)
			rv.TransactionVersion, _ = fields["transaction_version"].(uint32)
			return rv, rv.SpecVersion != 0
		}
	}
	return RuntimeVersion{}, false
}
