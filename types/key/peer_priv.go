package key

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/edup2p/nearby/types"
	"go4.org/mem"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/nacl/box"
)

// PeerPrivate is the private half of a peer identity. One is generated per app run,
// unless a configured one is loaded.
type PeerPrivate struct {
	_   types.Incomparable
	key NakedKey
}

// NewPeer creates and returns a new peer private key.
func NewPeer() PeerPrivate {
	var ret PeerPrivate
	rand(ret.key[:])
	clamp25519Private(ret.key[:])
	return ret
}

func PeerPrivateFrom(key NakedKey) PeerPrivate {
	return PeerPrivate{key: key}
}

// Equal reports whether k and other are the same key.
func (p PeerPrivate) Equal(other PeerPrivate) bool {
	return subtle.ConstantTimeCompare(p.key[:], other.key[:]) == 1
}

// IsZero reports whether k is the zero value.
func (p PeerPrivate) IsZero() bool {
	return p.Equal(PeerPrivate{})
}

// OpenFrom opens the NaCl box ciphertext, which must be a value
// created by SealTo, and returns the inner cleartext if ciphertext is
// a valid box from o to p.
func (p PeerPrivate) OpenFrom(o PeerPublic, ciphertext []byte) (cleartext []byte, ok bool) {
	if p.IsZero() || o.IsZero() {
		panic("can't open with zero keys")
	}
	return openFrom(p.key, NakedKey(o), ciphertext)
}

// SealTo wraps cleartext into a NaCl box (see
// golang.org/x/crypto/nacl) to o, authenticated from p, using a
// random nonce.
//
// The returned ciphertext is a 24-byte nonce concatenated with the
// box value.
func (p PeerPrivate) SealTo(o PeerPublic, cleartext []byte) (ciphertext []byte) {
	if p.IsZero() || o.IsZero() {
		panic("can't seal with zero keys")
	}
	return sealTo(p.key, NakedKey(o), cleartext)
}

// Shared returns the PeerShared for communication between p and o.
func (p PeerPrivate) Shared(o PeerPublic) PeerShared {
	if p.IsZero() || o.IsZero() {
		panic("can't compute shared secret with zero keys")
	}
	var ret PeerShared
	box.Precompute((*[32]byte)(&ret.key), (*[32]byte)(&o), (*[32]byte)(&p.key))
	return ret
}

func (p PeerPrivate) Public() PeerPublic {
	if p.IsZero() {
		panic("can't take the public key of a zero PeerPrivate")
	}

	var ret PeerPublic
	curve25519.ScalarBaseMult((*[32]byte)(&ret), (*[32]byte)(&p.key))
	return ret
}

// AppendText implements encoding.TextAppender.
func (p PeerPrivate) AppendText(b []byte) ([]byte, error) {
	return appendHexKey(b, peerPrivateHexPrefix, p.key[:]), nil
}

// MarshalText implements encoding.TextMarshaler.
func (p PeerPrivate) MarshalText() ([]byte, error) {
	return p.AppendText(nil)
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *PeerPrivate) UnmarshalText(b []byte) error {
	return parseHex(p.key[:], mem.B(b), mem.S(peerPrivateHexPrefix))
}

func UnmarshalPrivate(s string) (*PeerPrivate, error) {
	if !strings.HasSuffix(s, "\"") && !strings.HasPrefix(s, "\"") {
		s = fmt.Sprintf("\"%s\"", s)
	}

	priv := new(PeerPrivate)

	if err := json.Unmarshal([]byte(s), priv); err != nil {
		return nil, err
	}

	return priv, nil
}

func (p PeerPrivate) Marshal() string {
	b, _ := json.Marshal(p)
	return string(b)
}
