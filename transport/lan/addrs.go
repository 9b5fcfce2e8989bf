package lan

import (
	"net"
	"net/netip"
	"slices"

	"go4.org/netipx"
)

// never announced, a remote peer cannot reach them
var unannounced = func() *netipx.IPSet {
	var b netipx.IPSetBuilder

	b.AddPrefix(netip.MustParsePrefix("127.0.0.0/8"))
	b.AddPrefix(netip.MustParsePrefix("169.254.0.0/16"))
	b.AddPrefix(netip.MustParsePrefix("0.0.0.0/8"))

	s, err := b.IPSet()
	if err != nil {
		panic(err)
	}

	return s
}()

// announceAddrs picks the IPv4 addresses worth announcing from interface addresses.
func announceAddrs(addrs []net.Addr) []netip.Addr {
	var out []netip.Addr

	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}

		pfx, ok := netipx.FromStdIPNet(ipn)
		if !ok {
			continue
		}

		addr := pfx.Addr().Unmap()
		if !addr.Is4() || unannounced.Contains(addr) {
			continue
		}

		out = append(out, addr)
	}

	slices.SortFunc(out, netip.Addr.Compare)

	return slices.Compact(out)
}

func localAddrs() []netip.Addr {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}

	return announceAddrs(addrs)
}
