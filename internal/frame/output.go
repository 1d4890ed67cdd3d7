package frame

import (
	"encoding/binary"
	"fmt"
)

// OutputKind classifies console output the peer streams back after a script runs.
type OutputKind uint8

const (
	OutputPrint OutputKind = 1
	OutputError OutputKind = 2
)

func (k OutputKind) String() string {
	switch k {
	case OutputPrint:
		return "print"
	case OutputError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Output is one decoded console message.
type Output struct {
	Kind OutputKind
	Text string
}

// DecodeOutput parses a complete inbound burst.
//
// Output bursts reuse the 16-byte header but carry the text length as a
// little-endian uint64 in bytes 8..16. A declared length longer than the
// burst is clamped to the bytes actually received. ok is false for short
// bursts and unknown kinds.
func DecodeOutput(burst []byte) (Output, bool) {
	if len(burst) < HeaderSize {
		return Output{}, false
	}

	kind := OutputKind(burst[0])
	if kind != OutputPrint && kind != OutputError {
		return Output{}, false
	}

	length := binary.LittleEndian.Uint64(burst[8:16])
	available := uint64(len(burst) - HeaderSize)
	if length > available {
		length = available
	}

	return Output{Kind: kind, Text: string(burst[HeaderSize : HeaderSize+int(length)])}, true
}
