// version.go - Protocol version tags.

package shielder

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ProtocolVersion is laid out as 0x{note}{circuit}{patch}.
type ProtocolVersion [3]byte

// CurrentVersion is the only version this client produces and accepts.
var CurrentVersion = ProtocolVersion{0x00, 0x00, 0x01}

// ParseProtocolVersion parses the 3-byte hex form, with or without 0x.
func ParseProtocolVersion(s string) (ProtocolVersion, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(raw)
	if err != nil || len(b) != 3 {
		return ProtocolVersion{}, fmt.Errorf("invalid protocol version %q", s)
	}
	var v ProtocolVersion
	copy(v[:], b)
	return v, nil
}

// NoteVersion is the first byte of the version, used as the first note input.
func (v ProtocolVersion) NoteVersion() Scalar {
	return ScalarFromUint64(uint64(v[0]))
}

func (v ProtocolVersion) Hex() string {
	return "0x" + hex.EncodeToString(v[:])
}

func (v ProtocolVersion) String() string { return v.Hex() }

func (v ProtocolVersion) MarshalText() ([]byte, error) {
	return []byte(v.Hex()), nil
}

func (v *ProtocolVersion) UnmarshalText(text []byte) error {
	parsed, err := ParseProtocolVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// IsVersionSupported reports whether events or requests tagged with v may be accepted.
func IsVersionSupported(v ProtocolVersion) bool {
	return v == CurrentVersion
}
