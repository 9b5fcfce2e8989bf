package msgactor

// This file contains the ActorMessage interface, and dud bindings

type ActorMessage interface {
	amsg()
}

func (o *TransportAdvertiseFailed) amsg() {}
func (o *TransportBrowseFailed) amsg()    {}
func (o *TransportPeerFound) amsg()       {}
func (o *TransportPeerLost) amsg()        {}
func (o *TransportInvitation) amsg()      {}
func (o *TransportPeerState) amsg()       {}
func (o *TransportData) amsg()            {}
func (o *TransportStream) amsg()          {}
func (o *TransportResource) amsg()        {}

func (o *ManInvite) amsg()       {}
func (o *ManInviteByName) amsg() {}
func (o *ManSend) amsg()         {}
