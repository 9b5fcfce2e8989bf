package nearby

import "time"

const (
	// ManagerInboxChLen is the inbox buffer of a Manager, transport events and
	// caller commands share it.
	ManagerInboxChLen = 64

	// DefaultInviteTimeout bounds how long an invitation waits for an answer.
	DefaultInviteTimeout = 10 * time.Second

	// MaxServiceTagLen is the longest service tag peers can agree on.
	MaxServiceTagLen = 15
)
