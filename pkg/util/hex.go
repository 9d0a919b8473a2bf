package util

import (
	"encoding/hex"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/Layr-Labs/substrate-txwrapper-go/pkg/txerrors"
)

// HexToBytes decodes an un-prefixed hex string. Input must have even length and contain only hex
// digits; anything else fails with a *txerrors.FormatError instead of producing partial output.
func HexToBytes(s string) ([]byte, error) {
	if len(s)%2 != 0 {
		return nil, &txerrors.FormatError{Input: s, Offset: -1, Reason: "odd length hex string"}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		var invalid hex.InvalidByteError
		if errors.As(err, &invalid) {
			return nil, &txerrors.FormatError{
				Input:  s,
				Offset: strings.IndexByte(s, byte(invalid)),
				Reason: "invalid hex character " + quoteByte(byte(invalid)),
			}
		}
		return nil, &txerrors.FormatError{Input: s, Offset: -1, Reason: err.Error()}
	}
	return b, nil
}

// BytesToHex encodes bytes as lowercase hex, two digits per byte, without a 0x prefix.
func BytesToHex(b []byte) string {
	return hex.EncodeToString(b)
}

// DecodePrefixedHex accepts hex with or without a leading 0x (as returned by the node) and
// applies the same strict rules as HexToBytes.
func DecodePrefixedHex(s string) ([]byte, error) {
	if has0xPrefix(s) {
		s = s[2:]
	}
	return HexToBytes(s)
}

// EncodePrefixedHex returns 0x followed by the lowercase hex encoding of b.
func EncodePrefixedHex(b []byte) string {
	return hexutil.Encode(b)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func quoteByte(b byte) string {
	if b >= 0x20 && b < 0x7f {
		return "'" + string(rune(b)) + "'"
	}
	return "0x" + hex.EncodeToString([]byte{b})
}
