package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrMalformed is the base error for every decode failure: short buffer,
// unknown version tag, unknown mode tag, out-of-range field. Callers match
// it with errors.Is.
var ErrMalformed = errors.New("malformed message")

// EncodeRequest returns a canonical status request frame.
func EncodeRequest() []byte {
	return []byte{Version}
}

// DecodeRequest validates an incoming request frame. Bytes after the version
// tag are reserved and ignored.
func DecodeRequest(buf []byte) error {
	if len(buf) < RequestLen {
		return fmt.Errorf("%w: empty request", ErrMalformed)
	}
	if buf[0] != Version {
		return fmt.Errorf("%w: unknown version tag 0x%02x", ErrMalformed, buf[0])
	}

	return nil
}

// EncodeResponse serializes a StatusRecord into a response frame.
// It fails only when the record carries a mode tag the protocol cannot
// express; such a record must never reach the wire.
func EncodeResponse(r StatusRecord) ([]byte, error) {
	buf := make([]byte, 0, MaxResponseLen)
	buf = append(buf, Version)
	buf = append(buf, r.BuildID[:]...)
	buf = binary.BigEndian.AppendUint16(buf, r.Players)
	buf = binary.BigEndian.AppendUint16(buf, r.PlayerCap)
	buf = append(buf, byte(r.Mode.Tag))

	switch r.Mode.Tag {
	case ModeGlobalPvP, ModeGlobalPvE:
	case ModePerPlayer:
		if r.Mode.DefaultPvP {
			buf = append(buf, 1)
		} else {
			buf = append(buf, 0)
		}
	default:
		return nil, fmt.Errorf("unencodable battle mode tag 0x%02x", byte(r.Mode.Tag))
	}

	return buf, nil
}

// DecodeResponse parses a response frame into a StatusRecord. Any deviation
// from the fixed layout yields ErrMalformed, never a partial or default
// record.
func DecodeResponse(buf []byte) (StatusRecord, error) {
	var r StatusRecord

	if len(buf) < MinResponseLen {
		return r, fmt.Errorf("%w: response too short (%d bytes)", ErrMalformed, len(buf))
	}
	if buf[0] != Version {
		return r, fmt.Errorf("%w: unknown version tag 0x%02x", ErrMalformed, buf[0])
	}

	copy(r.BuildID[:], buf[1:1+BuildIDLen])
	r.Players = binary.BigEndian.Uint16(buf[9:11])
	r.PlayerCap = binary.BigEndian.Uint16(buf[11:13])
	r.Mode.Tag = ModeTag(buf[13])

	switch r.Mode.Tag {
	case ModeGlobalPvP, ModeGlobalPvE:
		if len(buf) != MinResponseLen {
			return StatusRecord{}, fmt.Errorf("%w: %d trailing bytes after mode %s",
				ErrMalformed, len(buf)-MinResponseLen, r.Mode.Tag)
		}
	case ModePerPlayer:
		if len(buf) != MaxResponseLen {
			return StatusRecord{}, fmt.Errorf("%w: per-player mode needs exactly one payload byte, got %d bytes total",
				ErrMalformed, len(buf))
		}
		switch buf[14] {
		case 0:
			r.Mode.DefaultPvP = false
		case 1:
			r.Mode.DefaultPvP = true
		default:
			return StatusRecord{}, fmt.Errorf("%w: per-player default flag out of range: 0x%02x",
				ErrMalformed, buf[14])
		}
	default:
		return StatusRecord{}, fmt.Errorf("%w: unknown battle mode tag 0x%02x",
			ErrMalformed, buf[13])
	}

	return r, nil
}
