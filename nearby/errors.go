package nearby

import "errors"

var (
	// ErrAdvertise is returned when the transport can't announce the local peer.
	ErrAdvertise = errors.New("could not start advertising")

	// ErrBrowse is returned when the transport can't scan for peers.
	ErrBrowse = errors.New("could not start browsing")

	// ErrUnknownPeer is reported when an invite targets a peer that isn't discovered.
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrSendFailure is reported when the transport could not deliver a payload.
	ErrSendFailure = errors.New("send failure")

	ErrInvalidServiceTag = errors.New("invalid service tag")

	ErrStopped = errors.New("manager stopped")
)
