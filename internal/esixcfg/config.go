// Package esixcfg implements esix's static configuration: the YAML file a
// host process points esix at for pre-seeded addresses and routes (spec.md
// §6 supplement, SPEC_FULL.md §3 "Static entries from config"). It is
// grounded on the teacher's internal/dhcpsvc.Config/InterfaceConfig pair: a
// plain struct validated via github.com/AdguardTeam/golibs/validate before
// it is ever handed to the worker.
package esixcfg

import (
	"fmt"
	"net/netip"

	"github.com/esix-project/esix/internal/iface"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/validate"
	"github.com/c2h5oh/datasize"
)

// Config is esix's static configuration, loaded once at core.New and
// re-loaded by the fsnotify-driven watcher in [Watcher] (SPEC_FULL.md §0
// "fsnotify watches the config file ... triggers a reload without
// restarting the worker").
type Config struct {
	// StaticAddresses are installed on the interface before the Router
	// Solicitation is sent, letting a test harness pre-seed a global
	// address without waiting for an RA (SPEC_FULL.md §3).
	StaticAddresses []StaticAddress `yaml:"static_addresses"`

	// StaticRoutes are installed alongside StaticAddresses.
	StaticRoutes []StaticRoute `yaml:"static_routes"`

	// MTU is the interface MTU esix assumes for the packets it builds.
	// It must be at least 1280 (spec.md's IPv6 minimum link MTU).
	MTU datasize.ByteSize `yaml:"mtu"`

	// TCPWindow is the fixed receive window esix advertises (spec.md §4.6
	// "a fixed receive window, no congestion control"). It must be
	// positive.
	TCPWindow datasize.ByteSize `yaml:"tcp_window"`

	// MetricsEnabled mirrors the teacher's prometheus.Config.Enabled flag.
	// It is parsed but not consulted: esix records metrics whenever a
	// non-nil Metrics is passed to New.
	MetricsEnabled bool `yaml:"metrics_enabled"`
}

// StaticAddress is one pre-seeded address table entry.
type StaticAddress struct {
	Addr    netip.Addr    `yaml:"addr"`
	MaskLen int           `yaml:"mask_len"`
	Type    iface.AddrType `yaml:"-"`
	// TypeName is the YAML spelling of Type ("link_local", "global",
	// "anycast"); Validate resolves it into Type.
	TypeName string `yaml:"type"`
}

// StaticRoute is one pre-seeded route table entry.
type StaticRoute struct {
	Dest    netip.Addr `yaml:"dest"`
	MaskLen int        `yaml:"mask_len"`
	NextHop netip.Addr `yaml:"next_hop"`
	TTL     uint8      `yaml:"ttl"`
}

const minMTU = 1280

// type check
var _ validate.Interface = (*Config)(nil)

// Validate implements the [validate.Interface] interface for *Config.
func (c *Config) Validate() (err error) {
	if c == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.Positive("c.TCPWindow", uint64(c.TCPWindow)),
	}

	if c.MTU != 0 && c.MTU < minMTU {
		errs = append(errs, fmt.Errorf("c.MTU: %w", errors.ErrOutOfRange))
	}

	for i, a := range c.StaticAddresses {
		errs = validate.Append(errs, fmt.Sprintf("c.StaticAddresses[%d]", i), &a)
	}
	for i, r := range c.StaticRoutes {
		errs = validate.Append(errs, fmt.Sprintf("c.StaticRoutes[%d]", i), &r)
	}

	return errors.Join(errs...)
}

// type check
var _ validate.Interface = (*StaticAddress)(nil)

// Validate implements the [validate.Interface] interface for *StaticAddress.
func (a *StaticAddress) Validate() (err error) {
	if a == nil {
		return errors.ErrNoValue
	}

	errs := []error{
		validate.NotEmpty("a.TypeName", a.TypeName),
	}

	if !a.Addr.IsValid() {
		errs = append(errs, fmt.Errorf("a.Addr: %w", errors.ErrNoValue))
	}
	if a.MaskLen < 0 || a.MaskLen > 128 {
		errs = append(errs, fmt.Errorf("a.MaskLen: %w", errors.ErrOutOfRange))
	}

	return errors.Join(errs...)
}

// type check
var _ validate.Interface = (*StaticRoute)(nil)

// Validate implements the [validate.Interface] interface for *StaticRoute.
func (r *StaticRoute) Validate() (err error) {
	if r == nil {
		return errors.ErrNoValue
	}

	errs := []error{}
	if !r.Dest.IsValid() {
		errs = append(errs, fmt.Errorf("r.Dest: %w", errors.ErrNoValue))
	}
	if r.MaskLen < 0 || r.MaskLen > 128 {
		errs = append(errs, fmt.Errorf("r.MaskLen: %w", errors.ErrOutOfRange))
	}

	return errors.Join(errs...)
}

// resolveType resolves TypeName into Type, called once by [Load] after
// Validate has confirmed TypeName is non-empty.
func (a *StaticAddress) resolveType() (err error) {
	switch a.TypeName {
	case "link_local":
		a.Type = iface.AddrLinkLocal
	case "global":
		a.Type = iface.AddrGlobal
	case "anycast":
		a.Type = iface.AddrAnycast
	default:
		return fmt.Errorf("a.TypeName %q: %w", a.TypeName, errors.ErrBadEnumValue)
	}

	return nil
}
