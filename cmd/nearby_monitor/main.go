// Command nearby_monitor prints the peers announcing a service tag on the local network.
package main

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sethvargo/go-limiter/memorystore"
	"golang.org/x/net/dns/dnsmessage"

	"github.com/edup2p/nearby/nearby"
	"github.com/edup2p/nearby/types/mdns"
)

var (
	tag      = flag.String("tag", "example-color", "service tag to monitor")
	ifName   = flag.String("i", "", "interface to listen on, all if empty")
	interval = flag.Duration("q", 10*time.Second, "query interval, 0 to only listen")
)

func main() {
	flag.Parse()

	st, err := nearby.ParseServiceTag(*tag)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var iface *net.Interface
	if *ifName != "" {
		if iface, err = net.InterfaceByName(*ifName); err != nil {
			log.Fatal(err)
		}
	}

	bind, err := net.ListenMulticastUDP("udp4", iface, net.UDPAddrFromAddrPort(mdns.IPv4GroupAP))
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		<-ctx.Done()
		bind.Close()
	}()

	store, err := memorystore.New(&memorystore.Config{
		// Number of tokens allowed per interval.
		Tokens: 1,

		// Interval until tokens reset.
		Interval: 5 * time.Second,

		SweepInterval: 1 * time.Minute,
		SweepMinTTL:   1 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close(context.Background())

	if *interval > 0 {
		go query(ctx, bind, st)
	}

	fmt.Printf("monitoring %s\n", mdns.ServiceName(st.String()))

	buf := make([]byte, 1<<16)

	for {
		n, ap, err := bind.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Fatal(err)
		}

		data := buf[:n]

		msg := dnsmessage.Message{}
		if err = msg.Unpack(data); err != nil {
			slog.Debug("error unpacking DNS message", "from", ap, "err", err)
			continue
		}

		if match, unicast := mdns.IsQueryFor(&msg, st.String()); match {
			fmt.Printf("%s query from %s (unicast: %t)\n", time.Now().Format(time.TimeOnly), ap, unicast)
			continue
		}

		if _, _, _, ok, _ := store.Take(ctx, dataToB64Hash(data)); !ok {
			// repeated announcement
			continue
		}

		for _, inst := range mdns.ParseResponse(&msg, st.String()) {
			if inst.TTL == 0 {
				fmt.Printf("%s goodbye %s %q\n", time.Now().Format(time.TimeOnly), inst.ID.Short(), inst.Name)
				continue
			}

			fmt.Printf("%s announce %s %q port=%d addrs=%v ttl=%s (from %s)\n",
				time.Now().Format(time.TimeOnly), inst.ID.Short(), inst.Name, inst.Port, inst.Addrs, inst.TTL, ap)
		}
	}
}

func query(ctx context.Context, bind *net.UDPConn, tag nearby.ServiceTag) {
	q, err := mdns.Query(tag.String(), false)
	if err != nil {
		log.Fatal(err)
	}

	pkt, err := q.Pack()
	if err != nil {
		log.Fatal(err)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	for {
		if _, err := bind.WriteToUDPAddrPort(pkt, mdns.IPv4GroupAP); err != nil {
			slog.Warn("could not send query", "err", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func dataToB64Hash(b []byte) string {
	h := sha256.Sum256(b)

	return base64.StdEncoding.EncodeToString(h[:])
}

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
}
