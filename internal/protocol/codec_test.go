package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestResponseRoundTrip(t *testing.T) {
	records := []StatusRecord{
		{},
		{
			BuildID:   [8]byte{'d', 'e', 'a', 'd', 'b', 'e', 'e', 'f'},
			Players:   5,
			PlayerCap: 100,
			Mode:      BattleMode{Tag: ModeGlobalPvE},
		},
		{
			Players:   65535,
			PlayerCap: 0,
			Mode:      BattleMode{Tag: ModeGlobalPvP},
		},
		{
			BuildID:   [8]byte{0xff, 0, 0xff, 0, 0xff, 0, 0xff, 0},
			Players:   301,
			PlayerCap: 300,
			Mode:      BattleMode{Tag: ModePerPlayer, DefaultPvP: true},
		},
		{
			Mode: BattleMode{Tag: ModePerPlayer, DefaultPvP: false},
		},
	}

	for i, want := range records {
		buf, err := EncodeResponse(want)
		if err != nil {
			t.Fatalf("record %d: EncodeResponse err=%v", i, err)
		}

		got, err := DecodeResponse(buf)
		if err != nil {
			t.Fatalf("record %d: DecodeResponse err=%v", i, err)
		}
		if got != want {
			t.Errorf("record %d: round trip mismatch: got %+v want %+v", i, got, want)
		}
	}
}

func TestResponseLayout(t *testing.T) {
	r := StatusRecord{
		BuildID:   [8]byte{'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'},
		Players:   0x0102,
		PlayerCap: 0x0304,
		Mode:      BattleMode{Tag: ModeGlobalPvE},
	}

	buf, err := EncodeResponse(r)
	if err != nil {
		t.Fatalf("EncodeResponse err=%v", err)
	}

	want := []byte{Version, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h', 0x01, 0x02, 0x03, 0x04, 0x01}
	if !bytes.Equal(buf, want) {
		t.Errorf("wire layout mismatch:\ngot  % x\nwant % x", buf, want)
	}
}

func TestEncodeResponseRejectsUnknownMode(t *testing.T) {
	_, err := EncodeResponse(StatusRecord{Mode: BattleMode{Tag: ModeTag(0x7f)}})
	if err == nil {
		t.Fatal("expected error for unencodable mode tag")
	}
}

func TestDecodeResponseShortBuffers(t *testing.T) {
	valid, err := EncodeResponse(StatusRecord{Players: 1, PlayerCap: 2, Mode: BattleMode{Tag: ModeGlobalPvP}})
	if err != nil {
		t.Fatalf("EncodeResponse err=%v", err)
	}

	// every strict prefix below the minimum length must be rejected
	for n := 0; n < MinResponseLen; n++ {
		if _, err := DecodeResponse(valid[:n]); !errors.Is(err, ErrMalformed) {
			t.Errorf("prefix of %d bytes: err=%v, want ErrMalformed", n, err)
		}
	}
}

func TestDecodeResponseMalformed(t *testing.T) {
	base, err := EncodeResponse(StatusRecord{Players: 3, PlayerCap: 4, Mode: BattleMode{Tag: ModeGlobalPvE}})
	if err != nil {
		t.Fatalf("EncodeResponse err=%v", err)
	}

	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad version", func(b []byte) []byte { b[0] = 0x00; return b }},
		{"unknown mode tag", func(b []byte) []byte { b[13] = 0x7f; return b }},
		{"trailing bytes on global mode", func(b []byte) []byte { return append(b, 0x00) }},
		{"per-player without payload", func(b []byte) []byte { b[13] = byte(ModePerPlayer); return b }},
		{"per-player flag out of range", func(b []byte) []byte {
			b[13] = byte(ModePerPlayer)
			return append(b, 0x02)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.mutate(append([]byte(nil), base...))
			if _, err := DecodeResponse(buf); !errors.Is(err, ErrMalformed) {
				t.Errorf("err=%v, want ErrMalformed", err)
			}
		})
	}
}

func TestDecodeRequest(t *testing.T) {
	if err := DecodeRequest(EncodeRequest()); err != nil {
		t.Errorf("canonical request rejected: %v", err)
	}

	// reserved trailing bytes are ignored
	if err := DecodeRequest([]byte{Version, 0xaa, 0xbb}); err != nil {
		t.Errorf("request with reserved bytes rejected: %v", err)
	}

	if err := DecodeRequest(nil); !errors.Is(err, ErrMalformed) {
		t.Errorf("empty request: err=%v, want ErrMalformed", err)
	}

	if err := DecodeRequest([]byte{0x42}); !errors.Is(err, ErrMalformed) {
		t.Errorf("bad version: err=%v, want ErrMalformed", err)
	}
}

func TestModeTagStringParse(t *testing.T) {
	for _, tag := range []ModeTag{ModeGlobalPvP, ModeGlobalPvE, ModePerPlayer} {
		got, err := ParseModeTag(tag.String())
		if err != nil {
			t.Fatalf("ParseModeTag(%q) err=%v", tag.String(), err)
		}
		if got != tag {
			t.Errorf("ParseModeTag(%q)=%v, want %v", tag.String(), got, tag)
		}
	}

	if _, err := ParseModeTag("deathmatch"); err == nil {
		t.Error("expected error for unknown mode name")
	}
}
