package dhcp6hint_test

import (
	"testing"

	"github.com/esix-project/esix/internal/dhcp6hint"
	"github.com/esix-project/esix/internal/wire"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var self = wire.EtherAddr{0x02, 0x11, 0x22, 0x33, 0x44, 0x55}

func TestBuild_NeitherBitSet(t *testing.T) {
	h, err := dhcp6hint.Build(self, false, false)
	require.NoError(t, err)
	assert.Nil(t, h)
}

func TestBuild_ManagedBitSet(t *testing.T) {
	h, err := dhcp6hint.Build(self, true, false)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Managed)
	assert.False(t, h.Other)
	assert.NotNil(t, h.Solicit)
}

func TestBuild_OtherBitSet(t *testing.T) {
	h, err := dhcp6hint.Build(self, false, true)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.False(t, h.Managed)
	assert.True(t, h.Other)
	assert.NotNil(t, h.Solicit)
}

func TestBuild_BothBitsSet(t *testing.T) {
	h, err := dhcp6hint.Build(self, true, true)
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.Managed)
	assert.True(t, h.Other)
}
