// Command colors is a peer that shares a colour with every nearby peer in its session.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edup2p/nearby/nearby"
	"github.com/edup2p/nearby/transport/lan"
	"github.com/edup2p/nearby/transport/memnet"
	"github.com/edup2p/nearby/types/ifaces"
)

var (
	configPath = flag.String("c", "", "config file path, created with a new key if it does not exist")
	mem        = flag.Bool("mem", false, "run with an in-process echo peer instead of the local network")
	verbose    = flag.Bool("v", false, "start with debug logging")
)

var programLevel = new(slog.LevelVar) // Info by default

func main() {
	flag.Parse()

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: programLevel})
	slog.SetDefault(slog.New(h))
	if *verbose {
		programLevel.Set(slog.LevelDebug)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("colors: %v", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "colors"
	}

	s, err := cfg.resolve(hostname)
	if err != nil {
		log.Fatalf("colors: %v", err)
	}

	sh := newShell()

	identity := nearby.IdentityFrom(s.priv, s.name)

	var tr ifaces.Transport

	if *mem {
		network := memnet.NewNetwork()
		tr = network.Join(identity.ID, identity.DisplayName, s.tag.String())

		echo, err := startEcho(ctx, network, s.tag)
		if err != nil {
			log.Fatalf("colors: echo peer: %v", err)
		}
		defer echo.Stop()
	} else {
		lt, err := lan.New(lan.Config{
			Private:     s.priv,
			DisplayName: s.name,
			Tag:         s.tag.String(),
			ListenPort:  s.port,
		})
		if err != nil {
			log.Fatalf("colors: %v", err)
		}
		defer lt.Close()
		tr = lt
	}

	m, err := nearby.NewManager(ctx, nearby.Options{
		Identity:      identity,
		Tag:           s.tag,
		Transport:     tr,
		Handlers:      sh.handlers(),
		InviteTimeout: s.inviteTimeout,
	})
	if err != nil {
		log.Fatalf("colors: %v", err)
	}

	if err := m.Start(); err != nil {
		log.Fatalf("colors: %v", err)
	}
	defer m.Stop()

	sh.m = m

	sh.Println(fmt.Sprintf("colors: %s (%s) on %q", identity.DisplayName, identity.ID.Short(), s.tag))

	go func() {
		<-ctx.Done()
		sh.Close()
	}()

	sh.Run()
}

// startEcho runs a second peer that joins every invitation, and sends back each colour it receives.
func startEcho(ctx context.Context, network *memnet.Network, tag nearby.ServiceTag) (*nearby.Manager, error) {
	identity := nearby.NewIdentity("echo")

	var m *nearby.Manager

	handlers := nearby.Handlers{
		MessageReceived: func(from nearby.Peer, payload []byte) {
			c, err := decodeColor(payload)
			if err != nil {
				slog.Warn("echo: ignoring payload", "from", from.DisplayName, "err", err)
				return
			}
			m.SendTo(c.Payload(), from.ID)
		},
	}

	m, err := nearby.NewManager(ctx, nearby.Options{
		Identity:  identity,
		Tag:       tag,
		Transport: network.Join(identity.ID, identity.DisplayName, tag.String()),
		Handlers:  handlers,
	})
	if err != nil {
		return nil, err
	}

	if err := m.Start(); err != nil {
		return nil, err
	}

	return m, nil
}
