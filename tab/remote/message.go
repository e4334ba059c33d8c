// Package remote keeps local replicas in sync with players connected to other
// backend servers, exchanged as binary messages over a host supplied bus.
package remote

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// MessageID is the discriminant tag selecting a message kind in the envelope.
type MessageID byte

const (
	IDPlayerJoin MessageID = iota + 1
	IDPlayerQuit
)

// Message is a cross-server message. The envelope is a single discriminant
// byte followed by the kind-specific payload.
type Message interface {
	// MessageID returns the discriminant tag of the message kind.
	MessageID() MessageID
	// Marshal appends the payload of the message to buf.
	Marshal(buf *bytes.Buffer)
	// Unmarshal reads the payload of the message from r.
	Unmarshal(r *bytes.Reader) error
	// Process applies the message to the local state held by s.
	Process(s *Support) error
}

// ErrUnknownMessage is returned when a payload carries a discriminant tag no
// message kind is registered for.
var ErrUnknownMessage = errors.New("unknown remote message kind")

var messageKinds = map[MessageID]func() Message{
	IDPlayerJoin: func() Message { return &PlayerJoin{} },
	IDPlayerQuit: func() Message { return &PlayerQuit{} },
}

// Encode serialises a message into its envelope representation.
func Encode(m Message) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, 32))
	buf.WriteByte(byte(m.MessageID()))
	m.Marshal(buf)
	return buf.Bytes()
}

// Decode parses an envelope back into a message. Unknown tags and truncated
// payloads return an error and no message.
func Decode(payload []byte) (Message, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("decode remote message: empty payload")
	}
	id := MessageID(payload[0])
	kind, ok := messageKinds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %#x", ErrUnknownMessage, byte(id))
	}
	m := kind()
	if err := m.Unmarshal(bytes.NewReader(payload[1:])); err != nil {
		return nil, fmt.Errorf("decode remote message %#x: %w", byte(id), err)
	}
	return m, nil
}

// PlayerJoin announces a player connecting to another backend server. The
// receiving side registers a remote replica so local viewers see the player.
type PlayerJoin struct {
	PlayerID uuid.UUID
	Name     string
	Group    string
	Server   string
}

// MessageID ...
func (*PlayerJoin) MessageID() MessageID { return IDPlayerJoin }

// Marshal ...
func (m *PlayerJoin) Marshal(buf *bytes.Buffer) {
	writeUUID(buf, m.PlayerID)
	writeString(buf, m.Name)
	writeString(buf, m.Group)
	writeString(buf, m.Server)
}

// Unmarshal ...
func (m *PlayerJoin) Unmarshal(r *bytes.Reader) error {
	var err error
	if m.PlayerID, err = readUUID(r); err != nil {
		return err
	}
	if m.Name, err = readString(r); err != nil {
		return err
	}
	if m.Group, err = readString(r); err != nil {
		return err
	}
	m.Server, err = readString(r)
	return err
}

// Process ...
func (m *PlayerJoin) Process(s *Support) error {
	return s.processJoin(m)
}

// PlayerQuit announces a player disconnecting from another backend server.
// Its payload is exactly the 16 byte identifier of the player.
type PlayerQuit struct {
	PlayerID uuid.UUID
}

// MessageID ...
func (*PlayerQuit) MessageID() MessageID { return IDPlayerQuit }

// Marshal ...
func (m *PlayerQuit) Marshal(buf *bytes.Buffer) {
	writeUUID(buf, m.PlayerID)
}

// Unmarshal ...
func (m *PlayerQuit) Unmarshal(r *bytes.Reader) error {
	var err error
	m.PlayerID, err = readUUID(r)
	return err
}

// Process ...
func (m *PlayerQuit) Process(s *Support) error {
	return s.processQuit(m)
}

func writeUUID(buf *bytes.Buffer, id uuid.UUID) {
	buf.Write(id[:])
}

func readUUID(r *bytes.Reader) (uuid.UUID, error) {
	var b [16]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return uuid.UUID{}, fmt.Errorf("read uuid: %w", err)
	}
	return uuid.UUID(b), nil
}

func writeString(buf *bytes.Buffer, s string) {
	var length [binary.MaxVarintLen32]byte
	n := binary.PutUvarint(length[:], uint64(len(s)))
	buf.Write(length[:n])
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return "", fmt.Errorf("read string length: %w", err)
	}
	if length > uint64(r.Len()) {
		return "", fmt.Errorf("string length %v exceeds remaining payload", length)
	}
	b := make([]byte, length)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("read string: %w", err)
	}
	return string(b), nil
}
