// Package frame encodes bridge commands into the injection host's wire format.
//
// Every message is a fixed 16-byte header followed by the payload. Byte 0 of
// the header carries the message tag and bytes 8..12 carry the payload length
// as a little-endian uint32. All other header bytes are zero.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// HeaderSize is the fixed frame header length in bytes.
const HeaderSize = 16

// AliveMarker is the first reply byte the peer sends to acknowledge a ping.
const AliveMarker byte = 0x10

// Tag identifies the message type in header byte 0.
type Tag uint8

const (
	TagExecute Tag = 0
	TagSetting Tag = 1
	TagPing    Tag = 2
)

func (t Tag) String() string {
	switch t {
	case TagExecute:
		return "execute"
	case TagSetting:
		return "setting"
	case TagPing:
		return "ping"
	default:
		return "tag(" + strconv.Itoa(int(t)) + ")"
	}
}

// ErrShortFrame reports a buffer too small to hold a header.
var ErrShortFrame = errors.New("frame shorter than header")

// Header is the decoded form of the first HeaderSize bytes of a frame.
type Header struct {
	Tag    Tag
	Length uint32
}

// Command is one stateless message sent to the peer.
type Command interface {
	Tag() Tag
	Payload() []byte
}

// Execute runs a script in the peer.
type Execute struct {
	Script string
}

func (Execute) Tag() Tag { return TagExecute }

// Payload is the script text followed by one zero pad byte.
func (e Execute) Payload() []byte {
	return padded(e.Script)
}

// UpdateSetting toggles one named peer setting.
type UpdateSetting struct {
	Key   string
	Value bool
}

func (UpdateSetting) Tag() Tag { return TagSetting }

// Payload is "<key> <true|false>" followed by one zero pad byte.
func (u UpdateSetting) Payload() []byte {
	return padded(u.Key + " " + strconv.FormatBool(u.Value))
}

// Ping asks the peer to acknowledge liveness.
type Ping struct{}

func (Ping) Tag() Tag { return TagPing }

func (Ping) Payload() []byte { return nil }

// Encode builds one frame of 16+len(payload) bytes.
func Encode(tag Tag, payload []byte) []byte {
	data := make([]byte, HeaderSize+len(payload))
	data[0] = byte(tag)
	binary.LittleEndian.PutUint32(data[8:12], uint32(len(payload)))
	copy(data[HeaderSize:], payload)
	return data
}

// Marshal encodes cmd into a complete frame.
func Marshal(cmd Command) []byte {
	return Encode(cmd.Tag(), cmd.Payload())
}

// DecodeHeader reads the tag and declared payload length from b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, fmt.Errorf("%w: %d bytes", ErrShortFrame, len(b))
	}
	return Header{
		Tag:    Tag(b[0]),
		Length: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// IsAlive reports whether reply acknowledges a ping. Only the first byte is inspected.
func IsAlive(reply []byte) bool {
	return len(reply) > 0 && reply[0] == AliveMarker
}

func padded(text string) []byte {
	payload := make([]byte, len(text)+1)
	copy(payload, text)
	return payload
}
