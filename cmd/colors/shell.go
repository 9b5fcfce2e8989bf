package main

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/abiosoft/ishell/v2"

	"github.com/edup2p/nearby/nearby"
	"github.com/edup2p/nearby/types"
	"github.com/edup2p/nearby/types/key"
)

type shell struct {
	*ishell.Shell

	m *nearby.Manager

	mu    sync.Mutex
	color Color

	// only touched by handlers, which never run concurrently
	connected nearby.Peers
}

func newShell() *shell {
	sh := &shell{Shell: ishell.New()}

	sh.SetHomeHistoryPath(".colors_history")

	sh.Println("Colors Interactive Shell")

	sh.AddCmd(&ishell.Cmd{
		Name: "trace",
		Help: "set log level to trace",
		Func: func(c *ishell.Context) {
			programLevel.Set(types.LevelTrace)
		},
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "debug",
		Help: "set log level to debug",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelDebug)
		},
	})
	sh.AddCmd(&ishell.Cmd{
		Name: "info",
		Help: "set log level to info",
		Func: func(c *ishell.Context) {
			programLevel.Set(slog.LevelInfo)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "key",
		Help: "show the local peer key",
		Func: func(c *ishell.Context) {
			c.Println("pub:", sh.m.Local().ID.Marshal())
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "peers",
		Help: "list discovered peers",
		Func: func(c *ishell.Context) {
			printPeers(c, sh.m.Peers())
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "connected",
		Help: "list peers in the session",
		Func: func(c *ishell.Context) {
			printPeers(c, sh.m.Connected())
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "invite",
		Help: "invite a discovered peer, by display name or 'peerkey:' id",
		Func: func(c *ishell.Context) {
			var line string
			if len(c.Args) == 0 {
				c.Println("enter the display name or key")
				line = c.ReadLine()
			} else {
				line = strings.Join(c.Args, " ")
			}

			sh.invite(line)
		},
	})

	sh.AddCmd(&ishell.Cmd{
		Name: "color",
		Help: "show the current color",
		Func: func(c *ishell.Context) {
			sh.mu.Lock()
			defer sh.mu.Unlock()

			if sh.color == "" {
				c.Println("color: none")
			} else {
				c.Println("color:", sh.color)
			}
		},
	})

	sh.AddCmd(colorCmd(sh, Red))
	sh.AddCmd(colorCmd(sh, Yellow))

	sh.AddCmd(&ishell.Cmd{
		Name: "send",
		Help: "send raw text to every connected peer",
		Func: func(c *ishell.Context) {
			if len(c.Args) == 0 {
				c.Err(errors.New("nothing to send"))
				return
			}

			sh.m.Send([]byte(strings.Join(c.Args, " ")))
		},
	})

	return sh
}

func colorCmd(sh *shell, color Color) *ishell.Cmd {
	return &ishell.Cmd{
		Name: string(color),
		Help: "change to " + string(color) + ", on every connected peer too",
		Func: func(c *ishell.Context) {
			sh.change(color, "you")
			sh.m.Send(color.Payload())
		},
	}
}

func (sh *shell) invite(line string) {
	if strings.HasPrefix(line, "peerkey:") {
		id, err := key.UnmarshalPublic(line)
		if err != nil {
			sh.Println("invalid key:", err)
			return
		}
		sh.m.Invite(*id)
		return
	}

	sh.m.InviteByName(line)
}

func (sh *shell) change(color Color, by string) {
	sh.mu.Lock()
	sh.color = color
	sh.mu.Unlock()

	sh.Printf("color is now %s (by %s)\n", color, by)
}

// printDiff shows who joined and left the session.
func (sh *shell) printDiff(before, after nearby.Peers) {
	for _, id := range types.SetSubtraction(after.IDs(), before.IDs()) {
		p, _ := after.Find(id)
		sh.Printf("%s joined\n", p.DisplayName)
	}

	for _, id := range types.SetSubtraction(before.IDs(), after.IDs()) {
		p, _ := before.Find(id)
		sh.Printf("%s left\n", p.DisplayName)
	}
}

func printPeers(c *ishell.Context, peers nearby.Peers) {
	if len(peers) == 0 {
		c.Println("(none)")
		return
	}

	for _, p := range peers {
		c.Printf("%s\t%s\n", p.ID.Short(), p.DisplayName)
	}
}

func (sh *shell) handlers() nearby.Handlers {
	return nearby.Handlers{
		PeersChanged: func(peers nearby.Peers) {
			slog.Info("peers changed", "peers", peers.DisplayNames())
		},
		ConnectivityChanged: func(connected nearby.Peers) {
			sh.printDiff(sh.connected, connected)
			sh.connected = connected
		},
		MessageReceived: func(from nearby.Peer, payload []byte) {
			color, err := decodeColor(payload)
			if err != nil {
				slog.Warn("ignoring payload", "from", from.DisplayName, "err", err)
				return
			}

			sh.change(color, from.DisplayName)
		},
		Error: func(err error) {
			sh.Println("error:", err)
		},
	}
}
