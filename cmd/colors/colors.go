package main

import (
	"errors"
	"fmt"
)

type Color string

const (
	Red    Color = "red"
	Yellow Color = "yellow"
)

var ErrUnrecognizedPayload = errors.New("unrecognized payload")

func (c Color) Payload() []byte {
	return []byte(c)
}

// decodeColor reads a payload sent by another colors peer.
func decodeColor(payload []byte) (Color, error) {
	switch c := Color(payload); c {
	case Red, Yellow:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnrecognizedPayload, payload)
	}
}
