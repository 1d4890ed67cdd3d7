// Package indicator surfaces bridge connection changes as desktop notifications and audio cues.
package indicator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rbright/msbridge/internal/config"
)

// Controller is the owner-facing indicator contract.
type Controller interface {
	ShowAttached(ctx context.Context, port int)
	ShowDetached(ctx context.Context)
	ShowLost(ctx context.Context, port int)
	ShowError(ctx context.Context, text string)
	Hide(ctx context.Context)
}

// DesktopNotify routes indicator output through freedesktop notifications.
// A single replaceable notification is kept per process.
type DesktopNotify struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	mu             sync.Mutex
	notificationID uint32
	soundMu        sync.Mutex
	cueWG          sync.WaitGroup
}

// NewDesktopNotify creates an indicator controller from config.
func NewDesktopNotify(cfg config.IndicatorConfig, logger *slog.Logger) *DesktopNotify {
	return &DesktopNotify{
		cfg:      cfg,
		logger:   logger,
		messages: indicatorMessagesFromEnv(),
	}
}

// ShowAttached announces a fresh connection to port.
func (d *DesktopNotify) ShowAttached(ctx context.Context, port int) {
	d.playCue(cueAttach)
	d.show(ctx, 4000, fmt.Sprintf(d.messages.attached, port))
}

// ShowDetached announces an explicit detach.
func (d *DesktopNotify) ShowDetached(ctx context.Context) {
	d.playCue(cueDetach)
	d.show(ctx, 2500, d.messages.detached)
}

// ShowLost announces that the injection host on port went away.
func (d *DesktopNotify) ShowLost(ctx context.Context, port int) {
	d.playCue(cueDetach)
	d.show(ctx, 4000, fmt.Sprintf(d.messages.lost, port))
}

// ShowError displays an error-state indicator message.
func (d *DesktopNotify) ShowError(ctx context.Context, text string) {
	d.playCue(cueError)
	if text == "" {
		text = d.messages.errorText
	}
	timeout := d.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = 1200
	}
	d.show(ctx, timeout, text)
}

// Hide dismisses the active notification.
func (d *DesktopNotify) Hide(ctx context.Context) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, d.dismiss)
}

// Wait blocks until queued cues have finished playing.
func (d *DesktopNotify) Wait() {
	d.cueWG.Wait()
}

func (d *DesktopNotify) show(ctx context.Context, timeoutMS int, text string) {
	if !d.cfg.Enable {
		return
	}
	d.run(ctx, func(ctx context.Context) error {
		return d.notify(ctx, timeoutMS, text)
	})
}

// notify sends a replaceable desktop notification and stores its ID.
func (d *DesktopNotify) notify(ctx context.Context, timeoutMS int, text string) error {
	d.mu.Lock()
	replaceID := d.notificationID
	d.mu.Unlock()

	appName := strings.TrimSpace(d.cfg.DesktopAppName)
	if appName == "" {
		appName = "msbridge"
	}

	id, err := desktopNotify(ctx, appName, replaceID, text, timeoutMS)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.notificationID = id
	d.mu.Unlock()
	return nil
}

// dismiss closes the current notification ID when present.
func (d *DesktopNotify) dismiss(ctx context.Context) error {
	d.mu.Lock()
	id := d.notificationID
	d.notificationID = 0
	d.mu.Unlock()

	if id == 0 {
		return nil
	}
	return desktopDismiss(ctx, id)
}

// run executes an indicator operation with a bounded timeout.
func (d *DesktopNotify) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, 400*time.Millisecond)
	defer cancel()
	if err := fn(runCtx); err != nil {
		d.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (d *DesktopNotify) playCue(kind cueKind) {
	if !d.cfg.SoundEnable {
		return
	}
	d.cueWG.Add(1)
	go func() {
		defer d.cueWG.Done()
		d.soundMu.Lock()
		defer d.soundMu.Unlock()
		if err := emitCue(kind); err != nil {
			d.log("indicator audio cue failed", err)
		}
	}()
}

func (d *DesktopNotify) log(message string, err error) {
	if d.logger == nil || err == nil {
		return
	}
	d.logger.Debug(message, "error", err.Error())
}
