// Package wire implements the fixed 16-byte report protocol spoken to
// the reporting client.
//
// Every packet has the same layout, big-endian:
//
//	byte  0..7   timestamp, microseconds on the controller's monotonic clock
//	byte  8..13  reserved, always zero
//	byte 14      error code, zero unless type is TypeError
//	byte 15      type code
//
// The stream is write-only from the controller's side; the client
// acknowledges nothing and requests nothing.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"sumpwatch/internal/event"
)

// Size is the fixed length of every packet.
const Size = 16

// Type is the packet type code in byte 15.
type Type byte

const (
	TypeKeepalive    Type = 0x00
	TypeError        Type = 0x01
	TypePrimaryOff   Type = 0x02
	TypePrimaryOn    Type = 0x03
	TypeSecondaryOff Type = 0x04
	TypeSecondaryOn  Type = 0x05
)

func (t Type) String() string {
	switch t {
	case TypeKeepalive:
		return "keepalive"
	case TypeError:
		return "error"
	case TypePrimaryOff:
		return "primary-off"
	case TypePrimaryOn:
		return "primary-on"
	case TypeSecondaryOff:
		return "secondary-off"
	case TypeSecondaryOn:
		return "secondary-on"
	default:
		return fmt.Sprintf("type(%#02x)", byte(t))
	}
}

var (
	// ErrShortPacket is returned by Decode for fewer than Size bytes.
	ErrShortPacket = errors.New("wire: short packet")

	// ErrUnknownType is returned by Decode for a type code above the
	// defined range.
	ErrUnknownType = errors.New("wire: unknown type code")
)

// Packet is one decoded protocol message.
type Packet struct {
	Stamp event.Micros
	Type  Type

	// Code is the error code byte. It stays zero for every type the
	// controller currently emits; TypeError is reserved for future
	// hardware fault reporting.
	Code byte
}

// Keepalive returns a keepalive packet stamped at stamp.
func Keepalive(stamp event.Micros) Packet {
	return Packet{Stamp: stamp, Type: TypeKeepalive}
}

// ForPump returns the packet reporting pump switching on or off at stamp.
func ForPump(p event.Pump, on bool, stamp event.Micros) Packet {
	var t Type
	switch {
	case p == event.Primary && on:
		t = TypePrimaryOn
	case p == event.Primary && !on:
		t = TypePrimaryOff
	case p == event.Secondary && on:
		t = TypeSecondaryOn
	default:
		t = TypeSecondaryOff
	}
	return Packet{Stamp: stamp, Type: t}
}

// ForState returns the packet reporting a cached pump state, or ok=false
// if no transition has been observed yet. Unknown states are never put on
// the wire.
func ForState(p event.Pump, ps event.PumpState) (Packet, bool) {
	switch ps.State {
	case event.StateOn:
		return ForPump(p, true, ps.Stamp), true
	case event.StateOff:
		return ForPump(p, false, ps.Stamp), true
	default:
		return Packet{}, false
	}
}

// ForEvent returns the packet for a pump transition event, or ok=false
// for event kinds that are not reported on the wire.
func ForEvent(ev event.Event) (Packet, bool) {
	switch ev := ev.(type) {
	case event.PumpOn:
		return ForPump(ev.Pump, true, ev.Stamp), true
	case event.PumpOff:
		return ForPump(ev.Pump, false, ev.Stamp), true
	default:
		return Packet{}, false
	}
}

// Encode renders the packet in wire order.
func (p Packet) Encode() [Size]byte {
	var b [Size]byte
	binary.BigEndian.PutUint64(b[0:8], uint64(p.Stamp))
	b[14] = p.Code
	b[15] = byte(p.Type)
	return b
}

// AppendTo appends the encoded packet to dst.
func (p Packet) AppendTo(dst []byte) []byte {
	b := p.Encode()
	return append(dst, b[:]...)
}

// Decode parses one packet from the front of b.
func Decode(b []byte) (Packet, error) {
	if len(b) < Size {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	t := Type(b[15])
	if t > TypeSecondaryOn {
		return Packet{}, fmt.Errorf("%w: %#02x", ErrUnknownType, b[15])
	}
	return Packet{
		Stamp: event.Micros(binary.BigEndian.Uint64(b[0:8])),
		Type:  t,
		Code:  b[14],
	}, nil
}

// Read reads exactly one packet from r. It is the client half of the
// protocol and exists mostly for tests and diagnostic tooling.
func Read(r io.Reader) (Packet, error) {
	var b [Size]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Packet{}, err
	}
	return Decode(b[:])
}
