package key

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"go4.org/mem"
)

// PeerPublic identifies a peer. Equality of two PeerPublic values is peer equality.
type PeerPublic NakedKey

func (p PeerPublic) Debug() string {
	return fmt.Sprintf("%x", p)
}

func (p PeerPublic) HexString() string {
	return hex.EncodeToString(p[:])
}

// Short returns the first 8 hex characters, for logs and mDNS instance names.
func (p PeerPublic) Short() string {
	return p.HexString()[:8]
}

func (p PeerPublic) IsZero() bool {
	return p == PeerPublic{}
}

// Compare orders keys bytewise, so ties between equal display names sort stably.
func (p PeerPublic) Compare(o PeerPublic) int {
	return bytes.Compare(p[:], o[:])
}

// AppendText implements encoding.TextAppender. It appends a typed prefix
// followed by hex encoded represtation of p to b.
func (p PeerPublic) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, peerPublicHexPrefix, p[:]), nil
}

// MarshalText implements encoding.TextMarshaler. It returns a typed prefix
// followed by a hex encoded representation of p.
func (p PeerPublic) MarshalText() ([]byte, error) {
	return p.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler. It expects a typed prefix
// followed by a hex encoded representation of p.
func (p *PeerPublic) UnmarshalText(b []byte) error {
	return parseHex(p[:], mem.B(b), mem.S(peerPublicHexPrefix))
}

func UnmarshalPublic(s string) (*PeerPublic, error) {
	if !strings.HasSuffix(s, "\"") && !strings.HasPrefix(s, "\"") {
		s = fmt.Sprintf("\"%s\"", s)
	}

	pub := new(PeerPublic)

	if err := json.Unmarshal([]byte(s), pub); err != nil {
		return nil, err
	}

	return pub, nil
}

func (p PeerPublic) Marshal() string {
	b, _ := json.Marshal(p)
	return string(b)
}
