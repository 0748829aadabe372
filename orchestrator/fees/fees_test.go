package fees

import (
	"testing"

	"github.com/dchisholm125/kestrel-hq-sub001/testing/assert"
	"github.com/dchisholm125/kestrel-hq-sub001/testing/require"
	"github.com/holiman/uint256"
)

func TestSettle_SplitsProfit(t *testing.T) {
	s, err := Settle(uint256.NewInt(1000), uint256.NewInt(200), 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), s.Fee.Uint64())
	assert.Equal(t, uint64(800), s.Net.Uint64())
	assert.Equal(t, uint64(160), s.Protocol.Uint64())
	assert.Equal(t, uint64(640), s.Bot.Uint64())
}

func TestSettle_FeeCappedAtProfit(t *testing.T) {
	s, err := Settle(uint256.NewInt(100), uint256.NewInt(250), 2000)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), s.Fee.Uint64())
	assert.Equal(t, uint64(0), s.Net.Uint64())
	assert.Equal(t, uint64(0), s.Protocol.Uint64())
	assert.Equal(t, uint64(0), s.Bot.Uint64())
}

func TestSettle_ZeroProtocolShare(t *testing.T) {
	s, err := Settle(uint256.NewInt(1000), uint256.NewInt(200), 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), s.Protocol.Uint64())
	assert.Equal(t, uint64(800), s.Bot.Uint64())
}

func TestSettle_FullProtocolShare(t *testing.T) {
	s, err := Settle(uint256.NewInt(1000), uint256.NewInt(200), 10_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(800), s.Protocol.Uint64())
	assert.Equal(t, uint64(0), s.Bot.Uint64())
}

func TestSettle_RejectsOverUnityShare(t *testing.T) {
	_, err := Settle(uint256.NewInt(1000), uint256.NewInt(200), 10_001)
	require.ErrorContains(t, "exceeds", err)
}

func TestSettle_RejectsNilInputs(t *testing.T) {
	_, err := Settle(nil, uint256.NewInt(1), 0)
	require.ErrorContains(t, "required", err)
	_, err = Settle(uint256.NewInt(1), nil, 0)
	require.ErrorContains(t, "required", err)
}
