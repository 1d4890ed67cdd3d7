// Package autoexec sends the scripts of a directory to a freshly attached peer.
package autoexec

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rbright/msbridge/internal/commands"
	"github.com/rbright/msbridge/internal/frame"
)

// ErrDirMissing reports that the autoexec directory does not exist.
var ErrDirMissing = errors.New("auto execute directory does not exist")

// Scripts lists the .lua and .txt files of dir in lexical order.
func Scripts(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirMissing, dir)
		}
		return nil, fmt.Errorf("read autoexec dir %s: %w", dir, err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch filepath.Ext(entry.Name()) {
		case ".lua", ".txt":
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	return paths, nil
}

// Hook returns a post-attach hook that executes every script in dir.
// The first read or send failure stops the run.
func Hook(dir string, logger *slog.Logger) commands.PostAttachHook {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context, s commands.Sender) error {
		paths, err := Scripts(dir)
		if err != nil {
			return err
		}
		for _, path := range paths {
			if err := ctx.Err(); err != nil {
				return err
			}
			script, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read autoexec script: %w", err)
			}
			logger.Info("auto-executing script", "path", path, "bytes", len(script))
			if err := s.Send(frame.Execute{Script: string(script)}); err != nil {
				return fmt.Errorf("auto execute %s: %w", filepath.Base(path), err)
			}
		}
		return nil
	}
}

// Ensure creates dir when missing so the owner has somewhere to look.
func Ensure(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("autoexec dir is empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create autoexec dir %s: %w", dir, err)
	}
	return nil
}
