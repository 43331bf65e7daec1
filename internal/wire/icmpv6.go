package wire

import (
	"encoding/binary"
	"fmt"
	"net/netip"

	"golang.org/x/net/ipv6"
)

// ICMPv6 message types esix handles (spec.md §4.3), borrowed from
// [ipv6.ICMPType] rather than a hand-rolled enum.
const (
	ICMPv6TypeDestUnreachable       = uint8(ipv6.ICMPTypeDestinationUnreachable)
	ICMPv6TypePacketTooBig          = uint8(ipv6.ICMPTypePacketTooBig)
	ICMPv6TypeTimeExceeded          = uint8(ipv6.ICMPTypeTimeExceeded)
	ICMPv6TypeParamProblem          = uint8(ipv6.ICMPTypeParameterProblem)
	ICMPv6TypeEchoRequest           = uint8(ipv6.ICMPTypeEchoRequest)
	ICMPv6TypeEchoReply             = uint8(ipv6.ICMPTypeEchoReply)
	ICMPv6TypeMLDQuery              = uint8(ipv6.ICMPTypeMulticastListenerQuery)
	ICMPv6TypeMLDReport             = uint8(ipv6.ICMPTypeMulticastListenerReport)
	ICMPv6TypeMLDDone               = uint8(ipv6.ICMPTypeMulticastListenerDone)
	ICMPv6TypeRouterSolicitation    = uint8(ipv6.ICMPTypeRouterSolicitation)
	ICMPv6TypeRouterAdvertisement   = uint8(ipv6.ICMPTypeRouterAdvertisement)
	ICMPv6TypeNeighborSolicitation  = uint8(ipv6.ICMPTypeNeighborSolicitation)
	ICMPv6TypeNeighborAdvertisement = uint8(ipv6.ICMPTypeNeighborAdvertisement)
	ICMPv6TypeRedirect              = uint8(ipv6.ICMPTypeRedirect)
	ICMPv6TypeMLDv2Report           = uint8(ipv6.ICMPTypeVersion2MulticastListenerReport)
)

// Destination-unreachable codes (spec.md §4.3, §4.5).
const (
	CodeNoRoute         uint8 = 0
	CodeAdminProhibited uint8 = 1
	CodeBeyondScope     uint8 = 2
	CodeAddrUnreachable uint8 = 3
	CodePortUnreachable uint8 = 4
	CodeSourcePolicy    uint8 = 5
	CodeRejectRoute     uint8 = 6
)

// NDP option types (RFC 4861 §4.6).
const (
	OptSourceLLA     uint8 = 1
	OptTargetLLA     uint8 = 2
	OptPrefixInfo    uint8 = 3
	OptRedirectedHdr uint8 = 4
	OptMTU           uint8 = 5
)

// NA flag bits, in the high byte of the 32-bit reserved/flags field.
const (
	NAFlagRouter    uint8 = 0x80
	NAFlagSolicited uint8 = 0x40
	NAFlagOverride  uint8 = 0x20
)

// RA flag bits.
const (
	RAFlagManaged uint8 = 0x80
	RAFlagOther   uint8 = 0x40
)

// ICMPv6HeaderLen is the length in bytes of the common ICMPv6 header.
const ICMPv6HeaderLen = 4

// ICMPv6Header is the 4-byte header common to every ICMPv6 message
// (spec.md §6).
type ICMPv6Header struct {
	Type     uint8
	Code     uint8
	Checksum uint16
}

func (h *ICMPv6Header) marshalInto(data []byte) {
	data[0] = h.Type
	data[1] = h.Code
	binary.BigEndian.PutUint16(data[2:4], h.Checksum)
}

func (h *ICMPv6Header) unmarshalFrom(data []byte) error {
	if len(data) < ICMPv6HeaderLen {
		return fmt.Errorf("wire: icmpv6 header: %d bytes is too short", len(data))
	}
	h.Type = data[0]
	h.Code = data[1]
	h.Checksum = binary.BigEndian.Uint16(data[2:4])

	return nil
}

// Option is a single NDP TLV option.  Length is expressed in units of 8
// bytes on the wire (spec.md §4.3 "options are TLVs walked with
// i += length * 8"); [Option.Bytes] returns the option's total encoded
// length including the type/length octets.
type Option struct {
	Type  uint8
	Value []byte // does not include the type/length octets.
}

// Bytes returns the option encoded as type, length-in-8-byte-units, value,
// padded with zeroes to a multiple of 8 bytes.
func (o Option) Bytes() []byte {
	total := 2 + len(o.Value)
	units := (total + 7) / 8
	buf := make([]byte, units*8)
	buf[0] = o.Type
	buf[1] = byte(units)
	copy(buf[2:], o.Value)

	return buf
}

// LLAOption builds a Source/Target Link-Layer Address option.
func LLAOption(optType uint8, addr EtherAddr) Option {
	return Option{Type: optType, Value: append([]byte(nil), addr[:]...)}
}

// LLA extracts a 6-byte link-layer address from an option's value.
func (o Option) LLA() (a EtherAddr, ok bool) {
	if len(o.Value) < EtherAddrLen {
		return a, false
	}
	copy(a[:], o.Value[:EtherAddrLen])

	return a, true
}

// MTUOption builds an MTU option.
func MTUOption(mtu uint32) Option {
	v := make([]byte, 6)
	binary.BigEndian.PutUint32(v[2:], mtu)

	return Option{Type: OptMTU, Value: v}
}

// MTU extracts the MTU value from an MTU option.
func (o Option) MTU() (mtu uint32, ok bool) {
	if len(o.Value) < 6 {
		return 0, false
	}

	return binary.BigEndian.Uint32(o.Value[2:6]), true
}

// PrefixInfo is the decoded form of a Prefix Information option (RFC 4861
// §4.6.2).
type PrefixInfo struct {
	PrefixLength   uint8
	OnLink         bool
	Autonomous     bool
	ValidLifetime  uint32
	PreferredLife  uint32
	Prefix         netip.Addr
}

// PrefixInfoOption builds a Prefix Information option.  Its on-wire length
// is always 4 units (32 bytes), per RFC 4861.
func PrefixInfoOption(p PrefixInfo) Option {
	v := make([]byte, 30)
	v[0] = p.PrefixLength
	var flags uint8
	if p.OnLink {
		flags |= 0x80
	}
	if p.Autonomous {
		flags |= 0x40
	}
	v[1] = flags
	binary.BigEndian.PutUint32(v[2:6], p.ValidLifetime)
	binary.BigEndian.PutUint32(v[6:10], p.PreferredLife)
	// v[10:14] reserved2.
	prefix := p.Prefix.As16()
	copy(v[14:30], prefix[:])

	return Option{Type: OptPrefixInfo, Value: v}
}

// PrefixInfo decodes a Prefix Information option's value.  ok is false
// unless the option is a prefix-info option of exactly 4 units (32 bytes).
// The 64-bit prefix-length check that gates SLAAC (spec.md §4.3) is made by
// the caller.
func (o Option) PrefixInfo() (p PrefixInfo, ok bool) {
	if o.Type != OptPrefixInfo || len(o.Value) != 30 {
		return p, false
	}

	p.PrefixLength = o.Value[0]
	p.OnLink = o.Value[1]&0x80 != 0
	p.Autonomous = o.Value[1]&0x40 != 0
	p.ValidLifetime = binary.BigEndian.Uint32(o.Value[2:6])
	p.PreferredLife = binary.BigEndian.Uint32(o.Value[6:10])
	var prefix [16]byte
	copy(prefix[:], o.Value[14:30])
	p.Prefix = netip.AddrFrom16(prefix)

	return p, true
}

// ParseOptions walks the TLV option stream starting at data, per spec.md
// §4.3: "options are TLVs walked with i += length * 8; a length of 0 is
// treated as a malformed packet and drops."
func ParseOptions(data []byte) (opts []Option, err error) {
	i := 0
	for i < len(data) {
		if i+2 > len(data) {
			return nil, fmt.Errorf("wire: ndp options: truncated option header at byte %d", i)
		}
		optType := data[i]
		units := int(data[i+1])
		if units == 0 {
			return nil, fmt.Errorf("wire: ndp options: zero-length option at byte %d", i)
		}
		length := units * 8
		if i+length > len(data) {
			return nil, fmt.Errorf("wire: ndp options: option at byte %d overruns buffer", i)
		}

		opts = append(opts, Option{
			Type:  optType,
			Value: data[i+2 : i+length],
		})
		i += length
	}

	return opts, nil
}

// EncodeOptions concatenates the wire encoding of every option in opts.
func EncodeOptions(opts []Option) (data []byte) {
	for _, o := range opts {
		data = append(data, o.Bytes()...)
	}

	return data
}

// RouterSolicitation is an ICMPv6 Router Solicitation message (type 133).
type RouterSolicitation struct {
	Header  ICMPv6Header
	Options []Option
}

// MarshalBinary encodes m.  The checksum field is left as set in
// m.Header.Checksum; callers fill it via [UpperLayerChecksum] after marshal.
func (m *RouterSolicitation) MarshalBinary() (data []byte, err error) {
	data = make([]byte, ICMPv6HeaderLen+4)
	m.Header.marshalInto(data)
	data = append(data, EncodeOptions(m.Options)...)

	return data, nil
}

// UnmarshalBinary decodes m from data (spec.md §4.3: "length >= 4").
func (m *RouterSolicitation) UnmarshalBinary(data []byte) (err error) {
	if len(data) < ICMPv6HeaderLen+4 {
		return fmt.Errorf("wire: router solicitation: %d bytes is too short", len(data))
	}
	if err = m.Header.unmarshalFrom(data); err != nil {
		return err
	}
	m.Options, err = ParseOptions(data[ICMPv6HeaderLen+4:])

	return err
}

// RouterAdvertisement is an ICMPv6 Router Advertisement message (type 134).
type RouterAdvertisement struct {
	Header         ICMPv6Header
	CurHopLimit    uint8
	Managed        bool
	Other          bool
	RouterLifetime uint16 // seconds.
	ReachableTime  uint32 // milliseconds.
	RetransTimer   uint32 // milliseconds.
	Options        []Option
}

// RAFixedLen is the length of an RA's type-specific fixed fields, excluding
// the common header and options (spec.md §4.3: "length >= 16").
const RAFixedLen = 12

// MarshalBinary encodes m.
func (m *RouterAdvertisement) MarshalBinary() (data []byte, err error) {
	data = make([]byte, ICMPv6HeaderLen+RAFixedLen)
	m.Header.marshalInto(data)
	data[4] = m.CurHopLimit
	var flags uint8
	if m.Managed {
		flags |= RAFlagManaged
	}
	if m.Other {
		flags |= RAFlagOther
	}
	data[5] = flags
	binary.BigEndian.PutUint16(data[6:8], m.RouterLifetime)
	binary.BigEndian.PutUint32(data[8:12], m.ReachableTime)
	binary.BigEndian.PutUint32(data[12:16], m.RetransTimer)
	data = append(data, EncodeOptions(m.Options)...)

	return data, nil
}

// UnmarshalBinary decodes m from data.
func (m *RouterAdvertisement) UnmarshalBinary(data []byte) (err error) {
	if len(data) < ICMPv6HeaderLen+RAFixedLen {
		return fmt.Errorf("wire: router advertisement: %d bytes is too short", len(data))
	}
	if err = m.Header.unmarshalFrom(data); err != nil {
		return err
	}
	m.CurHopLimit = data[4]
	m.Managed = data[5]&RAFlagManaged != 0
	m.Other = data[5]&RAFlagOther != 0
	m.RouterLifetime = binary.BigEndian.Uint16(data[6:8])
	m.ReachableTime = binary.BigEndian.Uint32(data[8:12])
	m.RetransTimer = binary.BigEndian.Uint32(data[12:16])
	m.Options, err = ParseOptions(data[ICMPv6HeaderLen+RAFixedLen:])

	return err
}

// NeighborSolicitation is an ICMPv6 Neighbor Solicitation message (type
// 135).
type NeighborSolicitation struct {
	Header  ICMPv6Header
	Target  netip.Addr
	Options []Option
}

// NSFixedLen is the length of the reserved word plus the target address.
const NSFixedLen = 4 + 16

// MarshalBinary encodes m.
func (m *NeighborSolicitation) MarshalBinary() (data []byte, err error) {
	data = make([]byte, ICMPv6HeaderLen+NSFixedLen)
	m.Header.marshalInto(data)
	target := m.Target.As16()
	copy(data[8:24], target[:])
	data = append(data, EncodeOptions(m.Options)...)

	return data, nil
}

// UnmarshalBinary decodes m from data (spec.md §4.3: "payload >= 16 bytes").
func (m *NeighborSolicitation) UnmarshalBinary(data []byte) (err error) {
	if len(data) < ICMPv6HeaderLen+NSFixedLen {
		return fmt.Errorf("wire: neighbor solicitation: %d bytes is too short", len(data))
	}
	if err = m.Header.unmarshalFrom(data); err != nil {
		return err
	}
	var target [16]byte
	copy(target[:], data[8:24])
	m.Target = netip.AddrFrom16(target)
	m.Options, err = ParseOptions(data[ICMPv6HeaderLen+NSFixedLen:])

	return err
}

// NeighborAdvertisement is an ICMPv6 Neighbor Advertisement message (type
// 136).
type NeighborAdvertisement struct {
	Header     ICMPv6Header
	Router     bool
	Solicited  bool
	Override   bool
	Target     netip.Addr
	Options    []Option
}

// MarshalBinary encodes m.
func (m *NeighborAdvertisement) MarshalBinary() (data []byte, err error) {
	data = make([]byte, ICMPv6HeaderLen+NSFixedLen)
	m.Header.marshalInto(data)
	var flags uint8
	if m.Router {
		flags |= NAFlagRouter
	}
	if m.Solicited {
		flags |= NAFlagSolicited
	}
	if m.Override {
		flags |= NAFlagOverride
	}
	data[4] = flags
	target := m.Target.As16()
	copy(data[8:24], target[:])
	data = append(data, EncodeOptions(m.Options)...)

	return data, nil
}

// UnmarshalBinary decodes m from data.
func (m *NeighborAdvertisement) UnmarshalBinary(data []byte) (err error) {
	if len(data) < ICMPv6HeaderLen+NSFixedLen {
		return fmt.Errorf("wire: neighbor advertisement: %d bytes is too short", len(data))
	}
	if err = m.Header.unmarshalFrom(data); err != nil {
		return err
	}
	m.Router = data[4]&NAFlagRouter != 0
	m.Solicited = data[4]&NAFlagSolicited != 0
	m.Override = data[4]&NAFlagOverride != 0
	var target [16]byte
	copy(target[:], data[8:24])
	m.Target = netip.AddrFrom16(target)
	m.Options, err = ParseOptions(data[ICMPv6HeaderLen+NSFixedLen:])

	return err
}

// Echo is an ICMPv6 Echo Request/Reply message (types 128/129).
type Echo struct {
	Header     ICMPv6Header
	Identifier uint16
	Sequence   uint16
	Data       []byte
}

// MarshalBinary encodes m.
func (m *Echo) MarshalBinary() (data []byte, err error) {
	data = make([]byte, ICMPv6HeaderLen+4+len(m.Data))
	m.Header.marshalInto(data)
	binary.BigEndian.PutUint16(data[4:6], m.Identifier)
	binary.BigEndian.PutUint16(data[6:8], m.Sequence)
	copy(data[8:], m.Data)

	return data, nil
}

// UnmarshalBinary decodes m from data.
func (m *Echo) UnmarshalBinary(data []byte) (err error) {
	if len(data) < ICMPv6HeaderLen+4 {
		return fmt.Errorf("wire: echo: %d bytes is too short", len(data))
	}
	if err = m.Header.unmarshalFrom(data); err != nil {
		return err
	}
	m.Identifier = binary.BigEndian.Uint16(data[4:6])
	m.Sequence = binary.BigEndian.Uint16(data[6:8])
	m.Data = append([]byte(nil), data[8:]...)

	return nil
}

// ErrorMessage is the shared shape of the Destination-Unreachable and
// Time-Exceeded messages: a 4-byte unused/reserved field followed by as much
// of the original packet as fits (spec.md §4.3 "capped at 1280 − headers
// bytes of original packet").
type ErrorMessage struct {
	Header       ICMPv6Header
	OriginalData []byte
}

// MarshalBinary encodes m.
func (m *ErrorMessage) MarshalBinary() (data []byte, err error) {
	data = make([]byte, ICMPv6HeaderLen+4+len(m.OriginalData))
	m.Header.marshalInto(data)
	copy(data[8:], m.OriginalData)

	return data, nil
}

// UnmarshalBinary decodes m from data.
func (m *ErrorMessage) UnmarshalBinary(data []byte) (err error) {
	if len(data) < ICMPv6HeaderLen+4 {
		return fmt.Errorf("wire: icmpv6 error: %d bytes is too short", len(data))
	}
	if err = m.Header.unmarshalFrom(data); err != nil {
		return err
	}
	m.OriginalData = append([]byte(nil), data[8:]...)

	return nil
}

// MLDv1Message is a Multicast Listener Query/Report/Done message (types
// 130/131/132).
type MLDv1Message struct {
	Header           ICMPv6Header
	MaxResponseDelay uint16
	MulticastAddress netip.Addr
}

// MLDv1Len is the total encoded length of an MLDv1 message.
const MLDv1Len = ICMPv6HeaderLen + 4 + 16

// MarshalBinary encodes m.
func (m *MLDv1Message) MarshalBinary() (data []byte, err error) {
	data = make([]byte, MLDv1Len)
	m.Header.marshalInto(data)
	binary.BigEndian.PutUint16(data[4:6], m.MaxResponseDelay)
	addr := m.MulticastAddress.As16()
	copy(data[8:24], addr[:])

	return data, nil
}

// UnmarshalBinary decodes m from data (spec.md §4.3: "length >= header").
func (m *MLDv1Message) UnmarshalBinary(data []byte) (err error) {
	if len(data) < MLDv1Len {
		return fmt.Errorf("wire: mldv1: %d bytes is too short", len(data))
	}
	if err = m.Header.unmarshalFrom(data); err != nil {
		return err
	}
	m.MaxResponseDelay = binary.BigEndian.Uint16(data[4:6])
	var addr [16]byte
	copy(addr[:], data[8:24])
	m.MulticastAddress = netip.AddrFrom16(addr)

	return nil
}
