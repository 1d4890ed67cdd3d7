package bridge

import (
	"io"
	"time"
)

// listen drains inbound bytes for one link until the peer closes or a read
// fails. Each read waits at most PollInterval, so the loop never parks on a
// half-open peer.
//
// A chunk is Data; the first poll that times out after one or more chunks
// ends the burst with a single Finish. A probe waiting on the link receives
// the next chunk instead of subscribers.
func (b *Bridge) listen(l *link) {
	buf := make([]byte, readBufferSize)
	receiving := false

	for {
		if err := l.conn.SetReadDeadline(time.Now().Add(b.opts.PollInterval)); err != nil {
			b.disconnect(l, err)
			return
		}

		n, err := l.conn.Read(buf)
		if n > 0 {
			chunk := append([]byte(nil), buf[:n]...)
			if !l.deliverReply(chunk) {
				receiving = true
				b.emit(Event{Kind: EventData, Port: l.port, Data: chunk})
			}
		} else if err == nil {
			err = io.EOF
		}

		if err == nil {
			continue
		}
		if isTimeout(err) {
			if receiving {
				receiving = false
				b.emit(Event{Kind: EventFinish, Port: l.port})
			}
			continue
		}

		b.disconnect(l, err)
		return
	}
}

// disconnect clears shared state before announcing the closed link.
func (b *Bridge) disconnect(l *link, cause error) {
	close(l.done)
	announce := b.release(l)
	_ = l.conn.Close()

	b.logger.Info("bridge connection closed", "port", l.port, "reason", cause.Error(), "announced", announce)
	if announce {
		b.emit(Event{Kind: EventDisconnect, Port: l.port})
	}
}

func (b *Bridge) emit(ev Event) {
	if b.sink == nil {
		return
	}
	b.sink.Emit(ev)
}
