package msgpeer

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/edup2p/nearby/types"
	"github.com/edup2p/nearby/types/bin"
)

// MaxMessageSize bounds a single frame body.
const MaxMessageSize = 4 << 20

var ErrUnknownMessageType = errors.New("unknown message type")

// Conn reads and writes framed peer messages; one type byte, a big-endian uint32 length,
// then a BSON body.
//
// Reads and writes are each serialised, a reader and a writer may run concurrently.
type Conn struct {
	mc types.MetaConn

	readMutex sync.Mutex
	reader    *bufio.Reader

	writeMutex sync.Mutex
	writer     *bufio.Writer
}

func NewConn(mc types.MetaConn, brw *bufio.ReadWriter) *Conn {
	return &Conn{
		mc:     mc,
		reader: brw.Reader,
		writer: brw.Writer,
	}
}

func (c *Conn) Close() error {
	return c.mc.Close()
}

func (c *Conn) UnmarshalInto(data []byte, to PeerMessage) error {
	if err := bson.Unmarshal(data, to); err != nil {
		return fmt.Errorf("failed to unmarshal data: %w", err)
	}

	return nil
}

// Expect reads one message, and fails if it is not of the type of to.
func (c *Conn) Expect(to PeerMessage, ttfbTimeout time.Duration) error {
	c.readMutex.Lock()
	defer c.readMutex.Unlock()

	msgTyp, data, err := c.readRawMessageLocked(ttfbTimeout)
	if err != nil {
		return fmt.Errorf("failed reading message: %w", err)
	}

	if msgTyp != to.PMsgType() {
		return fmt.Errorf("did not get expected message type, expected %v, got %v", to.PMsgType(), msgTyp)
	}

	return c.UnmarshalInto(data, to)
}

// Read returns nil, nil if the timeout is reached
func (c *Conn) Read(ttfbTimeout time.Duration) (PeerMessage, error) {
	c.readMutex.Lock()
	typ, data, err := c.readRawMessageLocked(ttfbTimeout)
	c.readMutex.Unlock()

	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return nil, nil
		}
		return nil, err
	}

	var to PeerMessage
	switch typ {
	case InviteType:
		to = new(Invite)
	case AcceptType:
		to = new(Accept)
	case RejectType:
		to = new(Reject)
	case DataType:
		to = new(Data)
	case ByeType:
		to = new(Bye)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessageType, typ)
	}

	if err = c.UnmarshalInto(data, to); err != nil {
		return nil, err
	}

	return to, nil
}

func (c *Conn) readRawMessageLocked(ttfbTimeout time.Duration) (PeerMessageType, []byte, error) {
	if ttfbTimeout != 0 {
		if err := c.mc.SetReadDeadline(time.Now().Add(ttfbTimeout)); err != nil {
			return 0, nil, err
		}
	}

	readType, err := c.reader.ReadByte()

	if ttfbTimeout != 0 {
		// only the first byte is bounded
		_ = c.mc.SetReadDeadline(time.Time{})
	}

	if err != nil {
		return 0, nil, fmt.Errorf("failed to read type: %w", err)
	}

	length, err := bin.ReadLength(c.reader, MaxMessageSize)
	if err != nil {
		return 0, nil, err
	}

	data := make([]byte, length)

	if _, err := io.ReadFull(c.reader, data); err != nil {
		return 0, nil, fmt.Errorf("failed to read data buffer: %w", err)
	}

	return PeerMessageType(readType), data, nil
}

func (c *Conn) Write(obj PeerMessage) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	return c.writeLocked(obj)
}

// WriteTimeout is Write, bounded by a write deadline.
func (c *Conn) WriteTimeout(obj PeerMessage, timeout time.Duration) error {
	c.writeMutex.Lock()
	defer c.writeMutex.Unlock()

	if err := c.mc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	defer c.mc.SetWriteDeadline(time.Time{})

	return c.writeLocked(obj)
}

func (c *Conn) writeLocked(obj PeerMessage) error {
	data, err := bson.Marshal(obj)
	if err != nil {
		return fmt.Errorf("could not marshal data: %w", err)
	}

	if err := bin.WriteHeader(c.writer, byte(obj.PMsgType()), len(data)); err != nil {
		return err
	}

	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("could not write data: %w", err)
	}

	return c.writer.Flush()
}
