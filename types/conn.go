package types

import (
	"io"
	"time"
)

// MetaConn is the deadline-and-close part of a connection, for codecs that wrap the
// reading and writing halves in bufio.
type MetaConn interface {
	io.Closer
	SetDeadline(time.Time) error
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}
