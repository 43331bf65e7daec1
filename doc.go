// Package esix is an IPv6 protocol engine suitable for embedded hosts and
// user-space test harnesses: it ingests Ethernet frames, runs the Neighbor
// Discovery, ICMPv6, UDP, and TCP sublayers needed to act as a conformant
// IPv6 host, and emits Ethernet frames through a host-supplied [Link].
//
// esix mirrors the split the teacher (AdGuardHome) draws between
// internal/dhcpsvc, which does the work, and the thin agh.Service surface it
// exposes: every sublayer lives under internal/, and this package is the
// only thing an external program imports.
package esix
