package bytesutil_test

import (
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/encoding/bytesutil"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
)

func TestUint64ToBytesBigEndian_RoundTrip(t *testing.T) {
	tests := []uint64{0, 1, 255, 256, 65536, 1<<32 - 1, 1 << 40, 1<<64 - 1}
	for _, v := range tests {
		b := bytesutil.Uint64ToBytesBigEndian(v)
		assert.Equal(t, 8, len(b))
		assert.Equal(t, v, bytesutil.BytesToUint64BigEndian(b))
	}
}

func TestBytesToUint64BigEndian_ShortInput(t *testing.T) {
	assert.Equal(t, uint64(0), bytesutil.BytesToUint64BigEndian([]byte{1, 2, 3}))
}

func TestUint64ToBytesBigEndian_Ordering(t *testing.T) {
	// Keys built from these must sort lexicographically in value order.
	prev := bytesutil.Uint64ToBytesBigEndian(0)
	for _, v := range []uint64{1, 2, 255, 256, 1 << 20, 1 << 40} {
		cur := bytesutil.Uint64ToBytesBigEndian(v)
		less := string(prev) < string(cur)
		assert.Equal(t, true, less, "big endian encoding must preserve order at %d", v)
		prev = cur
	}
}

func TestSafeCopyBytes(t *testing.T) {
	src := []byte{1, 2, 3}
	cp := bytesutil.SafeCopyBytes(src)
	assert.DeepEqual(t, src, cp)
	cp[0] = 9
	assert.Equal(t, byte(1), src[0])
	assert.DeepEqual(t, []byte(nil), bytesutil.SafeCopyBytes(nil))
}
