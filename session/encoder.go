package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

const sessionFormatVersion = 1

const flagRememberMe byte = 1 << 0

// ErrCorruptSession is returned when a stored blob cannot be decoded.
var ErrCorruptSession = errors.New("corrupt session record")

// Encode serialises s into the compact stored form. The session ID is the
// Redis key and is not repeated in the blob.
func Encode(s *Session) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(sessionFormatVersion)

	for _, field := range []string{
		s.UserID,
		s.Role,
		s.ImpersonatedByID,
		s.Snapshot.IP,
		s.Snapshot.Country,
		s.Snapshot.Region,
		s.Snapshot.City,
		s.Snapshot.UserAgent,
	} {
		if err := writeString(&buf, field); err != nil {
			return nil, err
		}
	}

	var flags byte
	if s.RememberMe {
		flags |= flagRememberMe
	}
	buf.WriteByte(flags)
	buf.Write(s.SecretHash[:])

	if err := binary.Write(&buf, binary.BigEndian, s.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, s.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decode is the inverse of Encode. Every failure wraps ErrCorruptSession.
func Decode(data []byte) (*Session, error) {
	s, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSession, err)
	}
	return s, nil
}

func decode(reader *bytes.Reader) (*Session, error) {
	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersion {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}
	for _, dst := range []*string{
		&s.UserID,
		&s.Role,
		&s.ImpersonatedByID,
		&s.Snapshot.IP,
		&s.Snapshot.Country,
		&s.Snapshot.Region,
		&s.Snapshot.City,
		&s.Snapshot.UserAgent,
	} {
		if *dst, err = readString(reader); err != nil {
			return nil, err
		}
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	s.RememberMe = flags&flagRememberMe != 0

	if _, err := io.ReadFull(reader, s.SecretHash[:]); err != nil {
		return nil, err
	}

	var createdAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	s.CreatedAt = time.UnixMilli(createdAt).UTC()
	s.ExpiresAt = time.UnixMilli(expiresAt).UTC()

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes")
	}
	return s, nil
}

func writeString(buf *bytes.Buffer, v string) error {
	if len(v) > math.MaxUint16 {
		return errors.New("session field too long")
	}
	if err := binary.Write(buf, binary.BigEndian, uint16(len(v))); err != nil {
		return err
	}
	buf.WriteString(v)
	return nil
}

func readString(reader *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
		return "", err
	}
	if int(n) > reader.Len() {
		return "", io.ErrUnexpectedEOF
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(reader, b); err != nil {
		return "", err
	}
	return string(b), nil
}
