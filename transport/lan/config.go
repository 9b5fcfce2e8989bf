package lan

import (
	"errors"
	"net/netip"
	"time"

	"github.com/edup2p/nearby/types/key"
	"github.com/edup2p/nearby/types/mdns"
)

const (
	DefaultQueryInterval    = 5 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second

	// announcements are repeated once, after this delay
	reannounceDelay = time.Second

	writeTimeout = 5 * time.Second
	byeTimeout   = time.Second
)

type Config struct {
	Private     key.PeerPrivate
	DisplayName string

	// the validated service tag
	Tag string

	// If invalid, listens on all IPv4 addresses
	ListenAddr netip.Addr
	// If zero, an ephemeral port is used
	ListenPort uint16

	// If empty, the IPv4 addresses of the local interfaces are announced
	Addrs []netip.Addr

	// If zero, uses DefaultQueryInterval
	QueryInterval time.Duration
	// If zero, uses DefaultHandshakeTimeout
	HandshakeTimeout time.Duration

	// If invalid, uses the mDNS IPv4 group
	Group netip.AddrPort
}

func (c *Config) SetDefaults() {
	if !c.ListenAddr.IsValid() {
		c.ListenAddr = netip.IPv4Unspecified()
	}

	if c.QueryInterval == 0 {
		c.QueryInterval = DefaultQueryInterval
	}

	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}

	if !c.Group.IsValid() {
		c.Group = mdns.IPv4GroupAP
	}
}

func (c *Config) validate() error {
	if c.Private.IsZero() {
		return errors.New("private key not set")
	}

	if c.Tag == "" {
		return errors.New("service tag not set")
	}

	return nil
}
