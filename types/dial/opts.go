package dial

import (
	"net/netip"
	"time"
)

const DefaultConnectTimeout = time.Second * 10

type Opts struct {
	// Addresses to race, the first that connects wins.
	Addrs []netip.Addr

	Port uint16

	// If zero, uses default of 10 seconds
	ConnectTimeout time.Duration
}

func (opts *Opts) SetDefaults() {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
}
