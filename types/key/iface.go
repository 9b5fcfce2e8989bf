package key

import (
	"encoding"
)

type key interface {
	IsZero() bool
}

type canTextMarshal interface {
	// Text encoding is used for TXT records, config files and the wire.

	encoding.TextMarshaler
	encoding.TextUnmarshaler
}

type publicKey interface {
	key

	IsZero() bool
	Debug() string
	HexString() string
}

type privateKey[Pub key] interface {
	key

	Public() Pub
}

type canSealTo[To publicKey] interface {
	SealTo(p To, cleartext []byte) (ciphertext []byte)
}

type canOpenFrom[From publicKey] interface {
	OpenFrom(p From, ciphertext []byte) (cleartext []byte, ok bool)
}

type CryptoPair[Pub publicKey] interface {
	canOpenFrom[Pub]
	canSealTo[Pub]
}

type createSharedKey[Pub publicKey, Priv privateKey[Pub], Shared sharedKey[Pub, Priv]] interface {
	Shared(Pub) Shared
}

type sharedKey[Pub publicKey, Priv privateKey[Pub]] interface {
	key

	Seal(cleartext []byte) (ciphertext []byte)

	Open(ciphertext []byte) (cleartext []byte, ok bool)
}
