package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/LukaGiorgadze/gonull"

	"github.com/edup2p/nearby/nearby"
	"github.com/edup2p/nearby/types/key"
)

const defaultTag = "example-color"

type Config struct {
	PrivateKey key.PeerPrivate

	// If null, the host name is used
	DisplayName gonull.Nullable[string]

	// If null, uses "example-color"
	ServiceTag gonull.Nullable[string]

	// If null, an ephemeral port is used
	ListenPort gonull.Nullable[uint16]

	// In time.ParseDuration format. If null, uses nearby.DefaultInviteTimeout
	InviteTimeout gonull.Nullable[string]
}

// settings is a Config with defaults applied and every field validated.
type settings struct {
	priv          key.PeerPrivate
	name          string
	tag           nearby.ServiceTag
	port          uint16
	inviteTimeout time.Duration
}

// loadConfig reads the config at path, creating it with a fresh key if it doesn't exist.
//
// An empty path gives an unsaved config with a fresh key.
func loadConfig(path string) (Config, error) {
	if path == "" {
		return newConfig(), nil
	}

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return writeNewConfig(path)
	case err != nil:
		return Config{}, err
	default:
		var cfg Config
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		if cfg.PrivateKey.IsZero() {
			return Config{}, errors.New("config: no private key")
		}
		return cfg, nil
	}
}

func writeNewConfig(path string) (Config, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return Config{}, err
	}
	cfg := newConfig()
	b, err := json.MarshalIndent(cfg, "", "\t")
	if err != nil {
		return Config{}, err
	}
	if err := os.WriteFile(path, b, 0600); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newConfig() Config {
	return Config{PrivateKey: key.NewPeer()}
}

func (c Config) resolve(hostname string) (settings, error) {
	s := settings{
		priv:          c.PrivateKey,
		name:          hostname,
		tag:           defaultTag,
		inviteTimeout: nearby.DefaultInviteTimeout,
	}

	if c.DisplayName.Valid && c.DisplayName.Val != "" {
		s.name = c.DisplayName.Val
	}

	if c.ServiceTag.Valid {
		tag, err := nearby.ParseServiceTag(c.ServiceTag.Val)
		if err != nil {
			return settings{}, err
		}
		s.tag = tag
	}

	if c.ListenPort.Valid {
		s.port = c.ListenPort.Val
	}

	if c.InviteTimeout.Valid {
		d, err := time.ParseDuration(c.InviteTimeout.Val)
		if err != nil {
			return settings{}, fmt.Errorf("invalid invite timeout: %w", err)
		}
		if d <= 0 {
			return settings{}, fmt.Errorf("invite timeout must be positive, got %s", d)
		}
		s.inviteTimeout = d
	}

	return s, nil
}
