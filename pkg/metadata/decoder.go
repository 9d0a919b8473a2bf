package metadata

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"unicode/utf8"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/util"
)

const maxDecodeDepth = 128

// Decoder walks SCALE encoded data using the portable type registry of a Schema.
//
// Values are returned as plain Go values:
//   - composites with named fields as map[string]interface{}, a single unnamed field as its value,
//     several unnamed fields as []interface{}
//   - enum variants without fields as their name, otherwise map[name]fields
//   - byte sequences and byte arrays as 0x hex strings
//   - u8..u64 / i8..i64 as the matching Go integer type, wider integers and compacts as *big.Int
type Decoder struct {
	schema *Schema
	reader *bytes.Reader
	scale  *scale.Decoder
	size   int
}

// NewDecoder returns a Decoder reading data against the types of s.
func (s *Schema) NewDecoder(data []byte) *Decoder {
	r := bytes.NewReader(data)
	return &Decoder{
		schema: s,
		reader: r,
		scale:  scale.NewDecoder(r),
		size:   len(data),
	}
}

// Offset is the number of bytes consumed so far.
func (d *Decoder) Offset() int {
	return d.size - d.reader.Len()
}

// Remaining is the number of bytes not yet consumed.
func (d *Decoder) Remaining() int {
	return d.reader.Len()
}

// ReadByte consumes a single byte.
func (d *Decoder) ReadByte() (byte, error) {
	b, err := d.reader.ReadByte()
	if err != nil {
		return 0, d.eof("byte")
	}
	return b, nil
}

// ReadBytes consumes exactly n bytes.
func (d *Decoder) ReadBytes(n int) ([]byte, error) {
	if n < 0 || n > d.reader.Len() {
		return nil, d.eof(fmt.Sprintf("%d bytes", n))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(d.reader, buf); err != nil {
		return nil, d.eof(fmt.Sprintf("%d bytes", n))
	}
	return buf, nil
}

// ReadCompact consumes a SCALE compact integer.
func (d *Decoder) ReadCompact() (*big.Int, error) {
	start := d.Offset()
	v, err := d.scale.DecodeUintCompact()
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || d.reader.Len() == 0 {
			return nil, d.eof("compact integer")
		}
		return nil, txerrors.NewDecodeError(fmt.Sprintf("compact integer at offset %d", start), err)
	}
	return v, nil
}

// Decode decodes one value of the given type id.
func (d *Decoder) Decode(typeID int64) (interface{}, error) {
	return d.decode(typeID, 0)
}

func (d *Decoder) eof(what string) error {
	return txerrors.NewDecodeErrorf("unexpected end of data reading %s at offset %d", what, d.Offset())
}

func (d *Decoder) decode(id int64, depth int) (interface{}, error) {
	if depth > maxDecodeDepth {
		return nil, txerrors.NewDecodeErrorf("type nesting deeper than %d at offset %d", maxDecodeDepth, d.Offset())
	}
	t, ok := d.schema.types[id]
	if !ok {
		return nil, txerrors.NewDecodeErrorf("type %d not found in lookup", id)
	}

	def := &t.Def
	switch {
	case def.IsComposite:
		return d.decodeFields(def.Composite.Fields, depth)
	case def.IsVariant:
		return d.decodeVariant(t, depth)
	case def.IsSequence:
		n, err := d.ReadCompact()
		if err != nil {
			return nil, err
		}
		if !n.IsUint64() || n.Uint64() > uint64(d.Remaining()) {
			return nil, txerrors.NewDecodeErrorf("sequence length %s exceeds remaining %d bytes", n, d.Remaining())
		}
		return d.decodeElements(lookupID(def.Sequence.Type), int(n.Uint64()), depth)
	case def.IsArray:
		// every element type a payload carries encodes to at least one byte
		if uint64(def.Array.Len) > uint64(d.Remaining()) {
			return nil, txerrors.NewDecodeErrorf("array length %d exceeds remaining %d bytes", def.Array.Len, d.Remaining())
		}
		return d.decodeElements(lookupID(def.Array.Type), int(def.Array.Len), depth)
	case def.IsTuple:
		if len(def.Tuple) == 0 {
			return nil, nil
		}
		out := make([]interface{}, 0, len(def.Tuple))
		for _, elem := range def.Tuple {
			v, err := d.decode(lookupID(elem), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	case def.IsPrimitive:
		return d.decodePrimitive(def.Primitive.Si0TypeDefPrimitive)
	case def.IsCompact:
		return d.ReadCompact()
	case def.IsBitSequence:
		return d.decodeBitSequence(lookupID(def.BitSequence.BitStoreType))
	default:
		return nil, txerrors.NewDecodeErrorf("type %d has an unsupported definition", id)
	}
}

func (d *Decoder) decodeFields(fields []types.Si1Field, depth int) (interface{}, error) {
	switch {
	case len(fields) == 0:
		return nil, nil
	case len(fields) == 1 && !fields[0].HasName:
		return d.decode(lookupID(fields[0].Type), depth+1)
	case fields[0].HasName:
		out := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			v, err := d.decode(lookupID(f.Type), depth+1)
			if err != nil {
				return nil, err
			}
			out[string(f.Name)] = v
		}
		return out, nil
	default:
		out := make([]interface{}, 0, len(fields))
		for _, f := range fields {
			v, err := d.decode(lookupID(f.Type), depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
}

func (d *Decoder) decodeVariant(t *types.Si1Type, depth int) (interface{}, error) {
	start := d.Offset()
	index, err := d.ReadByte()
	if err != nil {
		return nil, err
	}
	for i := range t.Def.Variant.Variants {
		v := &t.Def.Variant.Variants[i]
		if uint8(v.Index) != index {
			continue
		}
		if len(v.Fields) == 0 {
			return string(v.Name), nil
		}
		value, err := d.decodeFields(v.Fields, depth)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{string(v.Name): value}, nil
	}
	return nil, txerrors.NewDecodeErrorf("invalid variant index %d for %s at offset %d", index, typeName(t), start)
}

func (d *Decoder) decodeElements(elemID int64, n int, depth int) (interface{}, error) {
	if d.isU8(elemID) {
		b, err := d.ReadBytes(n)
		if err != nil {
			return nil, err
		}
		return util.EncodePrefixedHex(b), nil
	}
	out := make([]interface{}, 0, n)
	for i := 0; i < n; i++ {
		v, err := d.decode(elemID, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *Decoder) isU8(id int64) bool {
	t, ok := d.schema.types[id]
	return ok && t.Def.IsPrimitive && t.Def.Primitive.Si0TypeDefPrimitive == types.IsU8
}

func (d *Decoder) decodePrimitive(p types.Si0TypeDefPrimitive) (interface{}, error) {
	switch p {
	case types.IsBool:
		b, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case 0:
			return false, nil
		case 1:
			return true, nil
		default:
			return nil, txerrors.NewDecodeErrorf("invalid bool byte 0x%02x at offset %d", b, d.Offset()-1)
		}
	case types.IsChar:
		b, err := d.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		r := rune(binary.LittleEndian.Uint32(b))
		if !utf8.ValidRune(r) {
			return nil, txerrors.NewDecodeErrorf("invalid char at offset %d", d.Offset()-4)
		}
		return string(r), nil
	case types.IsStr:
		n, err := d.ReadCompact()
		if err != nil {
			return nil, err
		}
		if !n.IsUint64() || n.Uint64() > uint64(d.Remaining()) {
			return nil, d.eof("string")
		}
		b, err := d.ReadBytes(int(n.Uint64()))
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case types.IsU8:
		return d.ReadByte()
	case types.IsU16:
		b, err := d.ReadBytes(2)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint16(b), nil
	case types.IsU32:
		b, err := d.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint32(b), nil
	case types.IsU64:
		b, err := d.ReadBytes(8)
		if err != nil {
			return nil, err
		}
		return binary.LittleEndian.Uint64(b), nil
	case types.IsU128:
		return d.readBigUint(16)
	case types.IsU256:
		return d.readBigUint(32)
	case types.IsI8:
		b, err := d.ReadByte()
		if err != nil {
			return nil, err
		}
		return int8(b), nil
	case types.IsI16:
		b, err := d.ReadBytes(2)
		if err != nil {
			return nil, err
		}
		return int16(binary.LittleEndian.Uint16(b)), nil
	case types.IsI32:
		b, err := d.ReadBytes(4)
		if err != nil {
			return nil, err
		}
		return int32(binary.LittleEndian.Uint32(b)), nil
	case types.IsI64:
		b, err := d.ReadBytes(8)
		if err != nil {
			return nil, err
		}
		return int64(binary.LittleEndian.Uint64(b)), nil
	case types.IsI128:
		return d.readBigInt(16)
	case types.IsI256:
		return d.readBigInt(32)
	default:
		return nil, txerrors.NewDecodeErrorf("unknown primitive %d", p)
	}
}

func (d *Decoder) readBigUint(n int) (*big.Int, error) {
	b, err := d.ReadBytes(n)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(reverse(b)), nil
}

func (d *Decoder) readBigInt(n int) (*big.Int, error) {
	v, err := d.readBigUint(n)
	if err != nil {
		return nil, err
	}
	// two's complement
	if v.Bit(n*8-1) == 1 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), uint(n*8)))
	}
	return v, nil
}

func (d *Decoder) decodeBitSequence(storeID int64) (interface{}, error) {
	storeSize := 1
	if t, ok := d.schema.types[storeID]; ok && t.Def.IsPrimitive {
		switch t.Def.Primitive.Si0TypeDefPrimitive {
		case types.IsU16:
			storeSize = 2
		case types.IsU32:
			storeSize = 4
		case types.IsU64:
			storeSize = 8
		}
	}
	bits, err := d.ReadCompact()
	if err != nil {
		return nil, err
	}
	if !bits.IsUint64() {
		return nil, d.eof("bit sequence")
	}
	storeBits := uint64(storeSize * 8)
	words := (bits.Uint64() + storeBits - 1) / storeBits
	if words*uint64(storeSize) > uint64(d.Remaining()) {
		return nil, d.eof("bit sequence")
	}
	b, err := d.ReadBytes(int(words) * storeSize)
	if err != nil {
		return nil, err
	}
	return util.EncodePrefixedHex(b), nil
}

func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

func typeName(t *types.Si1Type) string {
	if len(t.Path) == 0 {
		return "enum"
	}
	return string(t.Path[len(t.Path)-1])
}
