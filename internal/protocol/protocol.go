// Package protocol defines the beacon status-query wire format shared by the
// responder and the requester: a single fixed-size request datagram answered
// by a single fixed-size response datagram, no handshake, no framing.
package protocol

import "fmt"

// Version is the magic/version tag carried as the first byte of every frame.
// A frame starting with any other byte is rejected as malformed.
const Version byte = 0xBE

// BuildIDLen is the fixed length of the opaque build identifier.
const BuildIDLen = 8

// Frame sizes in bytes. Multi-byte integers are big-endian.
const (
	// RequestLen is the canonical request size; trailing bytes after the
	// version tag are reserved for extension and ignored on decode.
	RequestLen = 1

	// responseFixedLen covers version, build id, players, cap and mode tag.
	responseFixedLen = 1 + BuildIDLen + 2 + 2 + 1

	// MinResponseLen is the shortest valid response (payload-less mode).
	MinResponseLen = responseFixedLen

	// MaxResponseLen is the longest valid response (one mode payload byte).
	MaxResponseLen = responseFixedLen + 1
)

// ModeTag selects the battle mode variant on the wire.
type ModeTag byte

// Known battle mode tags. Anything else fails decoding.
const (
	ModeGlobalPvP ModeTag = 0x00
	ModeGlobalPvE ModeTag = 0x01
	ModePerPlayer ModeTag = 0x02
)

// String returns a human-readable mode name.
func (t ModeTag) String() string {
	switch t {
	case ModeGlobalPvP:
		return "pvp"
	case ModeGlobalPvE:
		return "pve"
	case ModePerPlayer:
		return "per-player"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// ParseModeTag converts a mode name (as produced by ModeTag.String) back to
// its tag. Used by the operator API.
func ParseModeTag(s string) (ModeTag, error) {
	switch s {
	case "pvp":
		return ModeGlobalPvP, nil
	case "pve":
		return ModeGlobalPvE, nil
	case "per-player":
		return ModePerPlayer, nil
	default:
		return 0, fmt.Errorf("unknown battle mode %q", s)
	}
}

// BattleMode is the decoded battle mode variant.
type BattleMode struct {
	// Tag selects the variant.
	Tag ModeTag

	// DefaultPvP is the per-player override default. It is carried on the
	// wire (and meaningful) only when Tag is ModePerPlayer.
	DefaultPvP bool
}

// StatusRecord is one immutable snapshot of server status. It is a pure
// value: two records with equal fields are interchangeable, and the type is
// comparable with ==.
type StatusRecord struct {
	// BuildID identifies the running build. Opaque to the protocol, copied
	// byte-for-byte; all-zero means "unknown".
	BuildID [BuildIDLen]byte

	// Players is the current connected player count. The protocol does not
	// validate it against PlayerCap; overcap states are reportable.
	Players uint16

	// PlayerCap is the advertised maximum player count.
	PlayerCap uint16

	// Mode is the active battle mode.
	Mode BattleMode
}
