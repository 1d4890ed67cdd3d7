package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/msbridge/internal/bridge"
	"github.com/rbright/msbridge/internal/commands"
	"github.com/rbright/msbridge/internal/config"
	"github.com/rbright/msbridge/internal/console"
	"github.com/rbright/msbridge/internal/frame"
)

// executeOneShot attaches, sends script, relays console output until the
// peer goes quiet for one probe timeout, and detaches again.
func (r Runner) executeOneShot(ctx context.Context, cfg config.BridgeConfig, port int, script string, logger *slog.Logger) int {
	outputs := make(chan frame.Output, 64)
	lost := make(chan struct{})
	var lostOnce sync.Once

	sink := bridge.Fanout{
		console.NewAssembler(func(out frame.Output) {
			select {
			case outputs <- out:
			default:
				logger.Warn("one-shot output dropped", "kind", out.Kind.String())
			}
		}),
		bridge.SinkFunc(func(ev bridge.Event) {
			if ev.Kind == bridge.EventDisconnect {
				lostOnce.Do(func() { close(lost) })
			}
		}),
	}

	b := bridge.New(bridgeOptions(cfg), sink, logger)
	facade := commands.New(b, nil, logger)

	var err error
	if port != 0 {
		err = facade.Attach(ctx, port)
	} else {
		port, err = facade.AttachFirst(ctx, cfg.PortStart, cfg.PortEnd)
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	defer func() {
		if closeErr := b.Close(); closeErr != nil {
			logger.Warn("one-shot detach failed", "port", port, "error", closeErr.Error())
		}
	}()

	if err := facade.Execute(script); err != nil {
		fmt.Fprintf(r.Stderr, "error: %v\n", err)
		return 1
	}
	logger.Info("one-shot script sent", "port", port, "bytes", len(script))

	window := cfg.ProbeTimeout()
	if window <= 0 {
		window = time.Second
	}
	quiet := time.NewTimer(window)
	defer quiet.Stop()

	for {
		select {
		case out := <-outputs:
			r.printOutput(out)
			quiet.Reset(window)
		case <-lost:
			r.drainOutputs(outputs)
			fmt.Fprintf(r.Stderr, "error: connection on port %d lost\n", port)
			return 1
		case <-quiet.C:
			return 0
		case <-ctx.Done():
			return 0
		}
	}
}

func (r Runner) drainOutputs(outputs <-chan frame.Output) {
	for {
		select {
		case out := <-outputs:
			r.printOutput(out)
		default:
			return
		}
	}
}

func (r Runner) printOutput(out frame.Output) {
	if out.Kind == frame.OutputError {
		fmt.Fprintf(r.Stderr, "lua error: %s\n", out.Text)
		return
	}
	fmt.Fprintln(r.Stdout, out.Text)
}
