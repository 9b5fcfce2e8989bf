package key

var (
	_ publicKey = PeerPublic{}

	_ privateKey[PeerPublic] = PeerPrivate{}

	// Peer ids travel in TXT records and session frames.
	_ canTextMarshal = &PeerPublic{}

	// Private keys are persisted in the demo config.
	_ canTextMarshal = &PeerPrivate{}

	_ CryptoPair[PeerPublic] = PeerPrivate{}

	_ createSharedKey[PeerPublic, PeerPrivate, PeerShared] = PeerPrivate{}

	// Redundant by createSharedKey, but just to be sure
	_ sharedKey[PeerPublic, PeerPrivate] = PeerShared{}
)
