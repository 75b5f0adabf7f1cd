package common

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHexStrPrefixHandling(t *testing.T) {
	assert.Equal(t, "12ab", Trim0xPrefix("0x12ab"))
	assert.Equal(t, "12ab", Trim0xPrefix("0X12ab"))
	assert.Equal(t, "12ab", Trim0xPrefix("12ab"))

	assert.Equal(t, "0x12ab", Prepend0xPrefix("12ab"))
	assert.Equal(t, "0x12ab", Prepend0xPrefix("0x12ab"))
}

func TestHexStrToBytes32RoundTrip(t *testing.T) {
	b := RandBytes32()
	s := ByteSliceToPureHexStr(b[:])
	assert.Len(t, s, 64)
	assert.Equal(t, b, HexStrToBytes32(s))
	assert.Equal(t, b, HexStrToBytes32(Prepend0xPrefix(s)))
}

func TestBigIntHexRoundTrip(t *testing.T) {
	v := big.NewInt(1000000)
	s := BigIntToHexStr(v)
	assert.Equal(t, "0xf4240", s)
	assert.Equal(t, 0, v.Cmp(HexStrToBigInt(s)))

	assert.Nil(t, HexStrToBigInt("zz"))
}

func TestShorten(t *testing.T) {
	h := "0x1234567890abcdef1234567890abcdef"
	assert.Equal(t, "0x1234...cdef", Shorten(h, 4))

	// short strings pass through
	assert.Equal(t, "0x1234", Shorten("0x1234", 4))
}

func TestBigIntClone(t *testing.T) {
	v := big.NewInt(10)
	clone := BigIntClone(v)
	clone.Add(clone, big.NewInt(1))
	assert.Equal(t, int64(10), v.Int64())
	assert.Equal(t, int64(11), clone.Int64())
}
