package msgpeer

type PeerMessage interface {
	PMsgType() PeerMessageType
}

func (i *Invite) PMsgType() PeerMessageType {
	return InviteType
}
func (a *Accept) PMsgType() PeerMessageType {
	return AcceptType
}
func (r *Reject) PMsgType() PeerMessageType {
	return RejectType
}
func (d *Data) PMsgType() PeerMessageType {
	return DataType
}
func (b *Bye) PMsgType() PeerMessageType {
	return ByeType
}
