// Package ipc carries channel activity between the parent process and its
// children over a unix socket. Children report their local status; the
// parent aggregates it in the registry and broadcasts the result back.
package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/bmndc/nokia-leo-sub000/internal/audiochannel"
)

const (
	// magicNumber ("APOL") prefixes every frame.
	magicNumber uint32 = 0x41504F4C
	headerSize         = 17
	// MaxPayloadSize bounds the payload of a single frame.
	MaxPayloadSize = 256
)

var (
	ErrBadMagic      = errors.New("ipc: invalid magic number")
	ErrFrameTooLarge = errors.New("ipc: frame too large")
	ErrBadPayload    = errors.New("ipc: malformed payload")
)

// MessageType identifies the payload of a frame.
type MessageType uint8

const (
	// MessageHello is the first frame a child sends; payload is its uuid.
	MessageHello MessageType = iota + 1
	// MessageStatusReport carries a child's local channel activity.
	MessageStatusReport
	// MessageAggregate carries the process-wide status to children.
	MessageAggregate
)

func (t MessageType) String() string {
	switch t {
	case MessageHello:
		return "hello"
	case MessageStatusReport:
		return "status_report"
	case MessageAggregate:
		return "aggregate"
	default:
		return fmt.Sprintf("MessageType(%d)", uint8(t))
	}
}

// Message is one decoded frame: a 17 byte little endian header (magic u32,
// type u8, length u32, unix nano timestamp i64) followed by the payload.
type Message struct {
	Magic     uint32
	Type      MessageType
	Length    uint32
	Timestamp int64
	Data      []byte
}

// WriteMessage encodes one frame into w.
func WriteMessage(w io.Writer, typ MessageType, payload []byte) error {
	if len(payload) > MaxPayloadSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, headerSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], magicNumber)
	buf[4] = byte(typ)
	binary.LittleEndian.PutUint32(buf[5:9], uint32(len(payload)))
	binary.LittleEndian.PutUint64(buf[9:17], uint64(time.Now().UnixNano()))
	copy(buf[headerSize:], payload)
	_, err := w.Write(buf)
	return err
}

// ReadMessage decodes one frame from r.
func ReadMessage(r io.Reader) (*Message, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	msg := &Message{
		Magic:     binary.LittleEndian.Uint32(header[0:4]),
		Type:      MessageType(header[4]),
		Length:    binary.LittleEndian.Uint32(header[5:9]),
		Timestamp: int64(binary.LittleEndian.Uint64(header[9:17])),
	}
	if msg.Magic != magicNumber {
		return nil, fmt.Errorf("%w: got 0x%x, expected 0x%x", ErrBadMagic, msg.Magic, magicNumber)
	}
	if msg.Length > MaxPayloadSize {
		return nil, fmt.Errorf("%w: got %d bytes, maximum allowed %d bytes", ErrFrameTooLarge, msg.Length, MaxPayloadSize)
	}
	if msg.Length > 0 {
		msg.Data = make([]byte, msg.Length)
		if _, err := io.ReadFull(r, msg.Data); err != nil {
			return nil, err
		}
	}
	return msg, nil
}

const (
	flagTelephony byte = 1 << iota
	flagContentOrNormal
	flagAny
	flagForceSpeaker
)

func encodeChildStatus(s audiochannel.ChildStatus) []byte {
	var b byte
	if s.TelephonyActive {
		b |= flagTelephony
	}
	if s.ContentOrNormalActive {
		b |= flagContentOrNormal
	}
	if s.AnyActive {
		b |= flagAny
	}
	return []byte{b}
}

func decodeChildStatus(data []byte) (audiochannel.ChildStatus, error) {
	if len(data) != 1 {
		return audiochannel.ChildStatus{}, fmt.Errorf("%w: status report of %d bytes", ErrBadPayload, len(data))
	}
	return audiochannel.ChildStatus{
		TelephonyActive:       data[0]&flagTelephony != 0,
		ContentOrNormalActive: data[0]&flagContentOrNormal != 0,
		AnyActive:             data[0]&flagAny != 0,
	}, nil
}

func encodeAggregate(s audiochannel.Status) []byte {
	payload := encodeChildStatus(s.Local())
	if s.ForceSpeaker {
		payload[0] |= flagForceSpeaker
	}
	return payload
}

func decodeAggregate(data []byte) (audiochannel.Status, error) {
	local, err := decodeChildStatus(data)
	if err != nil {
		return audiochannel.Status{}, err
	}
	return audiochannel.Status{
		TelephonyActive:       local.TelephonyActive,
		ContentOrNormalActive: local.ContentOrNormalActive,
		AnyActive:             local.AnyActive,
		ForceSpeaker:          data[0]&flagForceSpeaker != 0,
	}, nil
}

func decodeHello(data []byte) (uuid.UUID, error) {
	id, err := uuid.FromBytes(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: hello: %w", ErrBadPayload, err)
	}
	return id, nil
}
