package main

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockHeight(t *testing.T) {
	tests := []struct {
		scid uint64
		want uint32
	}{
		{0, 0},
		{0x0000010000000000, 1},
		{0x0000010000000001, 1}, // output index does not matter
		{0x00000100ffffffff, 1}, // nor anything else in the low 40 bits
		{0x0000010000010000, 1},
		{754431 << 40, 754431},
		{0xffffff0000000000, 0xffffff},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, blockHeight(tt.scid), "scid %#x", tt.scid)
	}
}

func TestScidHexRoundTrip(t *testing.T) {
	for _, scid := range []uint64{0, 1, 0x0000010000000000, 0xdeadbeefcafe0123, ^uint64(0)} {
		s := scidHex(scid)
		require.Len(t, s, 16)
		assert.Equal(t, strings.ToLower(s), s)

		b, err := hex.DecodeString(s)
		require.NoError(t, err)
		require.Len(t, b, 8)
		var got uint64
		for _, x := range b {
			got = got<<8 | uint64(x)
		}
		assert.Equal(t, scid, got)
	}
}

func TestChannelFlagBits(t *testing.T) {
	for flags := 0; flags < 256; flags++ {
		u := ChannelUpdate{ChannelFlags: uint8(flags)}
		assert.Equal(t, uint8(flags&1), u.Direction(), "flags %#b", flags)
		assert.Equal(t, flags&2 != 0, u.Disabled(), "flags %#b", flags)
	}
}

func TestCompositeIndex(t *testing.T) {
	u := ChannelUpdate{
		ShortChannelID: 0x0000010000000000,
		Timestamp:      100,
		ChannelFlags:   0b01,
	}
	assert.Equal(t, "0000010000000000:100:1", u.CompositeIndex())

	u.ChannelFlags = 0b10 // disabled, direction 0
	assert.Equal(t, "0000010000000000:100:0", u.CompositeIndex())
}

func TestChainHashHex(t *testing.T) {
	var h [32]byte
	h[0] = 0xab
	h[31] = 0x01
	s := chainHashHex(h)
	require.Len(t, s, 64)
	assert.True(t, strings.HasPrefix(s, "ab"))
	assert.True(t, strings.HasSuffix(s, "01"))
}
