// Package dial connects to peers that announce several addresses.
package dial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"
)

var ErrNoAddrs = errors.New("no addresses to dial")

// TCP dials every address at once, returns the first connection, and closes the rest.
func TCP(ctx context.Context, opts Opts) (net.Conn, error) {
	opts.SetDefaults()

	if len(opts.Addrs) == 0 {
		return nil, ErrNoAddrs
	}

	type dialResult struct {
		c net.Conn
		e error
	}

	dialCtx, dialCancel := context.WithCancel(ctx)
	defer dialCancel()

	results := make(chan dialResult)

	returned := make(chan struct{})
	defer close(returned)

	for _, addr := range opts.Addrs {
		ap := netip.AddrPortFrom(addr, opts.Port)
		go func() {
			conn, err := dialOneTCP(dialCtx, ap)

			select {
			case results <- dialResult{c: conn, e: err}:
			case <-returned:
				if conn != nil {
					if err := conn.Close(); err != nil {
						slog.Error("failed to close tcp connection while multi-dialing", "err", err)
					}
				}
			}
		}()
	}

	timer := time.NewTimer(opts.ConnectTimeout)
	defer timer.Stop()

	var errs []error

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("dial cancelled: %w", context.Cause(ctx))
		case <-timer.C:
			return nil, fmt.Errorf("dial timeout: %w", errors.Join(errs...))
		case res := <-results:
			if res.e == nil {
				return res.c, nil
			}

			errs = append(errs, res.e)

			if len(errs) >= len(opts.Addrs) {
				return nil, fmt.Errorf("dial failure: %w", errors.Join(errs...))
			}
		}
	}
}

func dialOneTCP(ctx context.Context, ap netip.AddrPort) (net.Conn, error) {
	// DialTCP has no *Context variant, see https://github.com/golang/go/issues/49097
	var d net.Dialer
	d.KeepAlive = time.Second * 10

	return d.DialContext(ctx, "tcp", ap.String())
}
