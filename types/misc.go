package types

// Contains miscellaneous functions and types

import (
	"context"
	"log/slog"

	"golang.org/x/exp/maps"
)

// Incomparable is a zero-width incomparable type. If added as the
// first field in a struct, it marks that struct as not comparable
// (can't do == or be a map key) and usually doesn't add any width to
// the struct (unless the struct has only small fields).
//
// (Taken from the tailscale types library)
type Incomparable [0]func()

// SetSubtraction returns the elements in `a` that aren't in `b`.
//
// in set notation: a - b
func SetSubtraction[T comparable](a, b []T) []T {
	set := make(map[T]interface{})

	for _, x := range a {
		set[x] = struct{}{}
	}
	for _, x := range b {
		delete(set, x)
	}

	return maps.Keys(set)
}

func SliceOrEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	} else {
		return v
	}
}

// IsContextDone does a quick check on a context to see if its dead.
func IsContextDone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

const LevelTrace slog.Level = -8

// Map is a generic slice mapping function taken from https://stackoverflow.com/a/71624929/8700553,
// since golang loves to not give its developers any usable tools.
func Map[T, U any](ts []T, f func(T) U) []U {
	us := make([]U, len(ts))
	for i := range ts {
		us[i] = f(ts[i])
	}
	return us
}
