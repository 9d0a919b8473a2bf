package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func FuzzBytesToHexRoundTrip(f *testing.F) {
	f.Add([]byte{})
	f.Add([]byte{0x00})
	f.Add([]byte{0xde, 0xad, 0xbe, 0xef})

	f.Fuzz(func(t *testing.T, b []byte) {
		s := BytesToHex(b)
		require.Len(t, s, 2*len(b))
		require.Equal(t, strings.ToLower(s), s)

		decoded, err := HexToBytes(s)
		require.NoError(t, err)
		require.Equal(t, len(b), len(decoded))
		if len(b) > 0 {
			require.Equal(t, b, decoded)
		}
	})
}

func FuzzHexToBytesRoundTrip(f *testing.F) {
	f.Add("")
	f.Add("00")
	f.Add("0a1b2c")
	f.Add("abc")
	f.Add("zz")

	f.Fuzz(func(t *testing.T, s string) {
		b, err := HexToBytes(s)
		if err != nil {
			// Only malformed input may fail
			require.True(t, len(s)%2 != 0 || !isHex(s))
			return
		}
		require.Equal(t, strings.ToLower(s), BytesToHex(b))
	})
}

func isHex(s string) bool {
	for _, c := range s {
		if !strings.ContainsRune("0123456789abcdefABCDEF", c) {
			return false
		}
	}
	return true
}
