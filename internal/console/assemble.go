// Package console reassembles script output bursts streamed back by the injection host.
package console

import (
	"sync"

	"github.com/rbright/msbridge/internal/bridge"
	"github.com/rbright/msbridge/internal/frame"
)

// maxBurst caps buffered output between Finish markers.
const maxBurst = 8 << 20

// Assembler concatenates Data chunks until Finish, then decodes one output message.
type Assembler struct {
	onOutput func(frame.Output)

	mu  sync.Mutex
	buf []byte
}

// NewAssembler reports every decoded message to onOutput.
func NewAssembler(onOutput func(frame.Output)) *Assembler {
	return &Assembler{onOutput: onOutput}
}

// Emit implements bridge.Sink.
func (a *Assembler) Emit(ev bridge.Event) {
	switch ev.Kind {
	case bridge.EventData:
		a.mu.Lock()
		if len(a.buf)+len(ev.Data) <= maxBurst {
			a.buf = append(a.buf, ev.Data...)
		}
		a.mu.Unlock()
	case bridge.EventFinish:
		burst := a.take()
		if out, ok := frame.DecodeOutput(burst); ok && a.onOutput != nil {
			a.onOutput(out)
		}
	case bridge.EventDisconnect:
		a.take()
	}
}

// take returns and clears the pending burst.
func (a *Assembler) take() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	burst := a.buf
	a.buf = nil
	return burst
}
