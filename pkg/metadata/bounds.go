package metadata

import (
	"bytes"
	"fmt"
	"io"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
)

const metadataV14 = 14

// boundsChecker walks the layout of a RuntimeMetadataPrefixed V14 blob without allocating and
// rejects any length prefix larger than the bytes left. The codec allocates a slice as soon as it
// reads a length, so a blob has to pass this walk before it is handed to codec.Decode.
type boundsChecker struct {
	reader *bytes.Reader
	scale  *scale.Decoder
	size   int
}

func checkMetadataBounds(blob []byte) error {
	if len(blob) < 5 {
		return txerrors.NewDecodeErrorf("metadata is %d bytes, too short for a header", len(blob))
	}
	magic := uint32(blob[0]) | uint32(blob[1])<<8 | uint32(blob[2])<<16 | uint32(blob[3])<<24
	if magic != types.MagicNumber {
		return txerrors.NewDecodeErrorf("metadata magic number mismatch: got 0x%08x", magic)
	}
	if blob[4] != metadataV14 {
		return txerrors.NewDecodeErrorf("unsupported metadata version %d, only v14 is supported", blob[4])
	}

	r := bytes.NewReader(blob[5:])
	c := &boundsChecker{reader: r, scale: scale.NewDecoder(r), size: len(blob)}
	if err := c.metadataV14(); err != nil {
		return txerrors.NewDecodeError(fmt.Sprintf("metadata at offset %d", c.offset()), err)
	}
	return nil
}

func (c *boundsChecker) offset() int {
	return c.size - c.reader.Len()
}

func (c *boundsChecker) readByte() (byte, error) {
	b, err := c.reader.ReadByte()
	if err != nil {
		return 0, fmt.Errorf("unexpected end of data")
	}
	return b, nil
}

func (c *boundsChecker) skip(n uint64) error {
	if n > uint64(c.reader.Len()) {
		return fmt.Errorf("%d bytes declared but only %d remain", n, c.reader.Len())
	}
	_, err := c.reader.Seek(int64(n), io.SeekCurrent)
	return err
}

// compact reads a compact integer that is a value (type id), not a length.
func (c *boundsChecker) compact() error {
	if _, err := c.scale.DecodeUintCompact(); err != nil {
		return fmt.Errorf("invalid compact integer: %w", err)
	}
	return nil
}

// length reads a compact length and checks it against the remaining bytes. Every element of
// every sequence in metadata encodes to at least one byte.
func (c *boundsChecker) length() (uint64, error) {
	n, err := c.scale.DecodeUintCompact()
	if err != nil {
		return 0, fmt.Errorf("invalid compact integer: %w", err)
	}
	if !n.IsUint64() || n.Uint64() > uint64(c.reader.Len()) {
		return 0, fmt.Errorf("length %s exceeds remaining %d bytes", n, c.reader.Len())
	}
	return n.Uint64(), nil
}

func (c *boundsChecker) skipBytes() error {
	n, err := c.length()
	if err != nil {
		return err
	}
	return c.skip(n)
}

func (c *boundsChecker) vec(elem func() error) error {
	n, err := c.length()
	if err != nil {
		return err
	}
	for i := uint64(0); i < n; i++ {
		if err := elem(); err != nil {
			return err
		}
	}
	return nil
}

func (c *boundsChecker) option(inner func() error) error {
	flag, err := c.readByte()
	if err != nil {
		return err
	}
	switch flag {
	case 0:
		return nil
	case 1:
		return inner()
	default:
		return fmt.Errorf("invalid option flag %d", flag)
	}
}

func (c *boundsChecker) docs() error {
	return c.vec(c.skipBytes)
}

func (c *boundsChecker) metadataV14() error {
	// lookup: Vec<{id, type}>
	if err := c.vec(func() error {
		if err := c.compact(); err != nil {
			return err
		}
		return c.typeV14()
	}); err != nil {
		return err
	}
	if err := c.vec(c.pallet); err != nil {
		return err
	}
	// extrinsic: type, version, signed extensions
	if err := c.compact(); err != nil {
		return err
	}
	if _, err := c.readByte(); err != nil {
		return err
	}
	if err := c.vec(func() error {
		if err := c.skipBytes(); err != nil {
			return err
		}
		if err := c.compact(); err != nil {
			return err
		}
		return c.compact()
	}); err != nil {
		return err
	}
	// runtime type
	return c.compact()
}

func (c *boundsChecker) typeV14() error {
	// path
	if err := c.vec(c.skipBytes); err != nil {
		return err
	}
	// params: {name, Option<type>}
	if err := c.vec(func() error {
		if err := c.skipBytes(); err != nil {
			return err
		}
		return c.option(c.compact)
	}); err != nil {
		return err
	}
	if err := c.typeDef(); err != nil {
		return err
	}
	return c.docs()
}

func (c *boundsChecker) field() error {
	if err := c.option(c.skipBytes); err != nil {
		return err
	}
	if err := c.compact(); err != nil {
		return err
	}
	if err := c.option(c.skipBytes); err != nil {
		return err
	}
	return c.docs()
}

func (c *boundsChecker) typeDef() error {
	kind, err := c.readByte()
	if err != nil {
		return err
	}
	switch kind {
	case 0: // composite
		return c.vec(c.field)
	case 1: // variant
		return c.vec(func() error {
			if err := c.skipBytes(); err != nil {
				return err
			}
			if err := c.vec(c.field); err != nil {
				return err
			}
			if _, err := c.readByte(); err != nil {
				return err
			}
			return c.docs()
		})
	case 2, 6: // sequence, compact
		return c.compact()
	case 3: // array: u32 length, element type
		if err := c.skip(4); err != nil {
			return err
		}
		return c.compact()
	case 4: // tuple
		return c.vec(c.compact)
	case 5: // primitive
		_, err := c.readByte()
		return err
	case 7: // bit sequence: store, order
		if err := c.compact(); err != nil {
			return err
		}
		return c.compact()
	case 8: // historic compat: type name
		return c.skipBytes()
	default:
		return fmt.Errorf("invalid type definition kind %d", kind)
	}
}

func (c *boundsChecker) pallet() error {
	if err := c.skipBytes(); err != nil {
		return err
	}
	if err := c.option(c.storage); err != nil {
		return err
	}
	// calls, events
	if err := c.option(c.compact); err != nil {
		return err
	}
	if err := c.option(c.compact); err != nil {
		return err
	}
	// constants: {name, type, value, docs}
	if err := c.vec(func() error {
		if err := c.skipBytes(); err != nil {
			return err
		}
		if err := c.compact(); err != nil {
			return err
		}
		if err := c.skipBytes(); err != nil {
			return err
		}
		return c.docs()
	}); err != nil {
		return err
	}
	// errors
	if err := c.option(c.compact); err != nil {
		return err
	}
	// index
	_, err := c.readByte()
	return err
}

func (c *boundsChecker) storage() error {
	if err := c.skipBytes(); err != nil {
		return err
	}
	return c.vec(func() error {
		if err := c.skipBytes(); err != nil {
			return err
		}
		// modifier
		if _, err := c.readByte(); err != nil {
			return err
		}
		kind, err := c.readByte()
		if err != nil {
			return err
		}
		switch kind {
		case 0: // plain
			if err := c.compact(); err != nil {
				return err
			}
		case 1: // map: hashers, key, value
			if err := c.skipBytes(); err != nil {
				return err
			}
			if err := c.compact(); err != nil {
				return err
			}
			if err := c.compact(); err != nil {
				return err
			}
		default:
			return fmt.Errorf("invalid storage entry kind %d", kind)
		}
		// default value, docs
		if err := c.skipBytes(); err != nil {
			return err
		}
		return c.docs()
	})
}
