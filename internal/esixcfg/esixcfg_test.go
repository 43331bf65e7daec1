package esixcfg_test

import (
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/esix-project/esix/internal/esixcfg"
	"github.com/esix-project/esix/internal/iface"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate_Empty(t *testing.T) {
	c := &esixcfg.Config{}
	err := c.Validate()
	assert.Error(t, err, "tcp_window must be positive")
}

func TestConfig_Validate_BadMTU(t *testing.T) {
	c := &esixcfg.Config{TCPWindow: 1400, MTU: 100}
	err := c.Validate()
	assert.Error(t, err)
}

func TestConfig_Validate_BadStaticAddress(t *testing.T) {
	c := &esixcfg.Config{
		TCPWindow: 1400,
		StaticAddresses: []esixcfg.StaticAddress{{
			Addr:     netip.Addr{},
			MaskLen:  64,
			TypeName: "global",
		}},
	}
	err := c.Validate()
	assert.Error(t, err)
}

func TestConfig_Validate_OK(t *testing.T) {
	c := &esixcfg.Config{
		TCPWindow: 1400,
		MTU:       1280,
		StaticAddresses: []esixcfg.StaticAddress{{
			Addr:     netip.MustParseAddr("2001:db8::1"),
			MaskLen:  64,
			TypeName: "global",
		}},
		StaticRoutes: []esixcfg.StaticRoute{{
			Dest:    netip.MustParseAddr("2001:db8::"),
			MaskLen: 64,
			NextHop: netip.MustParseAddr("fe80::1"),
			TTL:     64,
		}},
	}
	assert.NoError(t, c.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	c, err := esixcfg.Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &esixcfg.Config{}, c)
}

func TestLoad_ResolvesStaticAddressType(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "esix.yaml")

	const doc = `
tcp_window: 1400B
mtu: 1280B
static_addresses:
  - addr: "2001:db8::1"
    mask_len: 64
    type: global
static_routes:
  - dest: "2001:db8::"
    mask_len: 64
    next_hop: "fe80::1"
    ttl: 64
`
	err := os.WriteFile(path, []byte(doc), 0o600)
	require.NoError(t, err)

	c, err := esixcfg.Load(path)
	require.NoError(t, err)
	require.Len(t, c.StaticAddresses, 1)
	assert.Equal(t, iface.AddrGlobal, c.StaticAddresses[0].Type)
	require.Len(t, c.StaticRoutes, 1)
	assert.Equal(t, uint8(64), c.StaticRoutes[0].TTL)
}

func TestLoad_RejectsBadTypeName(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "esix.yaml")

	const doc = `
tcp_window: 1400B
static_addresses:
  - addr: "2001:db8::1"
    mask_len: 64
    type: bogus
`
	err := os.WriteFile(path, []byte(doc), 0o600)
	require.NoError(t, err)

	_, err = esixcfg.Load(path)
	assert.Error(t, err)
}
