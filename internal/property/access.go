package property

import (
	"fmt"
	"strings"
)

// Access is the access bitmask of a property. It combines a visibility tier,
// the modifiable bit and the virtual bit.
type Access uint16

const (
	PrivateCommon        Access = 0x0010
	PrivateClient        Access = 0x0020
	PrivateServer        Access = 0x0040
	Public               Access = 0x0100
	PublicModifiable     Access = 0x0200
	Protected            Access = 0x1000
	ProtectedModifiable  Access = 0x2000
	VirtualPrivateCommon Access = 0x0011
	VirtualPrivateClient Access = 0x0021
	VirtualPrivateServer Access = 0x0041
	VirtualPublic        Access = 0x0101
	VirtualProtected     Access = 0x1001

	VirtualMask    Access = 0x000F
	PrivateMask    Access = 0x00F0
	PublicMask     Access = 0x0F00
	ProtectedMask  Access = 0xF000
	ClientOnlyMask Access = 0x0020
	ServerOnlyMask Access = 0x0040
	ModifiableMask Access = 0x2200
)

var accessNames = map[string]Access{
	"PrivateCommon":        PrivateCommon,
	"PrivateClient":        PrivateClient,
	"PrivateServer":        PrivateServer,
	"Public":               Public,
	"PublicModifiable":     PublicModifiable,
	"Protected":            Protected,
	"ProtectedModifiable":  ProtectedModifiable,
	"VirtualPrivateCommon": VirtualPrivateCommon,
	"VirtualPrivateClient": VirtualPrivateClient,
	"VirtualPrivateServer": VirtualPrivateServer,
	"VirtualPublic":        VirtualPublic,
	"VirtualProtected":     VirtualProtected,
}

// ParseAccess maps a schema access name such as "PublicModifiable" to its mask.
func ParseAccess(name string) (Access, error) {
	a, ok := accessNames[strings.TrimSpace(name)]
	if !ok {
		return 0, fmt.Errorf("%w: unknown access %q", ErrInvalidAccess, name)
	}
	return a, nil
}

func (a Access) IsVirtual() bool    { return a&VirtualMask != 0 }
func (a Access) IsPublic() bool     { return a&PublicMask != 0 }
func (a Access) IsProtected() bool  { return a&ProtectedMask != 0 }
func (a Access) IsPrivate() bool    { return a&PrivateMask != 0 }
func (a Access) IsModifiable() bool { return a&ModifiableMask != 0 }
func (a Access) IsClientOnly() bool { return a&ClientOnlyMask != 0 }
func (a Access) IsServerOnly() bool { return a&ServerOnlyMask != 0 }

// Valid reports whether a names exactly one visibility tier and carries no
// bits outside the known masks.
func (a Access) Valid() bool {
	if a&^(VirtualMask|PrivateMask|PublicMask|ProtectedMask) != 0 {
		return false
	}
	if v := a & VirtualMask; v != 0 && v != 0x0001 {
		return false
	}
	tiers := 0
	if p := a & PrivateMask; p != 0 {
		if p != PrivateCommon && p != PrivateClient && p != PrivateServer {
			return false
		}
		tiers++
	}
	if p := a & PublicMask; p != 0 {
		if p != Public && p != PublicModifiable {
			return false
		}
		tiers++
	}
	if p := a & ProtectedMask; p != 0 {
		if p != Protected && p != ProtectedModifiable {
			return false
		}
		tiers++
	}
	return tiers == 1
}

// Tier returns the storage tier the access belongs to.
func (a Access) Tier() Tier {
	switch {
	case a.IsPublic():
		return TierPublic
	case a.IsProtected():
		return TierProtected
	default:
		return TierPrivate
	}
}

func (a Access) String() string {
	for name, v := range accessNames {
		if v == a {
			return name
		}
	}
	return fmt.Sprintf("Access(0x%04X)", uint16(a))
}

// Tier is one contiguous region of the fixed arena.
type Tier uint8

const (
	TierPublic Tier = iota
	TierProtected
	TierPrivate
)

func (t Tier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierProtected:
		return "protected"
	case TierPrivate:
		return "private"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Side tells a Registrator which peer it is compiled for.
type Side uint8

const (
	SideServer Side = iota
	SideClient
)

// ParseSide accepts "server" or "client".
func ParseSide(s string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "server", "":
		return SideServer, nil
	case "client":
		return SideClient, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

func (s Side) String() string {
	if s == SideClient {
		return "client"
	}
	return "server"
}
