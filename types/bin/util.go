// Package bin has the big-endian helpers for the session wire format.
package bin

import (
	"bufio"
	"encoding/binary"
	"fmt"
)

// WriteUint32 writes an uint32 in big-endian order to the writer
func WriteUint32(writer *bufio.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	// byte at a time, so b does not escape
	for _, c := range &b {
		err := writer.WriteByte(c)
		if err != nil {
			return err
		}
	}
	return nil
}

// ReadUint32 reads an uint32 in big-endian order from the reader
func ReadUint32(reader *bufio.Reader) (uint32, error) {
	var b [4]byte
	for i := range &b {
		c, err := reader.ReadByte()
		if err != nil {
			return 0, err
		}
		b[i] = c
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// WriteHeader writes a frame header: one type byte, then the body length.
func WriteHeader(writer *bufio.Writer, typ byte, length int) error {
	if length < 0 || uint64(length) > uint64(^uint32(0)) {
		return fmt.Errorf("frame length %d out of range", length)
	}

	if err := writer.WriteByte(typ); err != nil {
		return fmt.Errorf("could not write header; type: %w", err)
	}

	if err := WriteUint32(writer, uint32(length)); err != nil {
		return fmt.Errorf("could not write header; data length: %w", err)
	}

	return nil
}

// ReadLength reads the body length of a frame, whose type byte is already read,
// and rejects lengths above max.
func ReadLength(reader *bufio.Reader, max uint32) (uint32, error) {
	length, err := ReadUint32(reader)
	if err != nil {
		return 0, fmt.Errorf("failed to read message length: %w", err)
	}

	if length > max {
		return 0, fmt.Errorf("message length %d exceeds maximum %d", length, max)
	}

	return length, nil
}
