// Package netwatch provides wfs.Connectivity implementations.
package netwatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"wfs-go/internal/wfs"
)

// StaticNotifier reports a fixed state once.
type StaticNotifier struct {
	Online bool
}

func NewStaticNotifier(online bool) *StaticNotifier {
	return &StaticNotifier{Online: online}
}

func (n *StaticNotifier) Watch(ctx context.Context) (<-chan bool, error) {
	ch := make(chan bool, 1)
	ch <- n.Online
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

// FileNotifier follows a status file whose content is "online" or "offline".
// A missing file reads as offline. Other content is logged and ignored.
type FileNotifier struct {
	path   string
	logger wfs.Logger
}

func NewFileNotifier(path string, logger wfs.Logger) *FileNotifier {
	if logger == nil {
		logger = wfs.NewNopLogger()
	}
	return &FileNotifier{path: path, logger: logger}
}

// Watch emits the current state and then every change of it. The parent
// directory is watched so that files replaced by rename are picked up.
func (n *FileNotifier) Watch(ctx context.Context) (<-chan bool, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}
	dir := filepath.Dir(n.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	initial, ok, err := n.read()
	if err != nil {
		watcher.Close()
		return nil, err
	}
	if !ok {
		initial = false
	}

	ch := make(chan bool, 1)
	ch <- initial
	go n.loop(ctx, watcher, ch, initial)
	return ch, nil
}

func (n *FileNotifier) loop(ctx context.Context, watcher *fsnotify.Watcher, ch chan<- bool, last bool) {
	defer close(ch)
	defer watcher.Close()
	target := filepath.Clean(n.path)

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			n.logger.Warn("connectivity watcher error", "path", n.path, "error", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			online, known, err := n.read()
			if err != nil {
				n.logger.Warn("reading connectivity status", "path", n.path, "error", err)
				continue
			}
			if !known {
				continue
			}
			if online == last {
				continue
			}
			last = online
			select {
			case ch <- online:
			case <-ctx.Done():
				return
			}
		}
	}
}

// read returns the file's state. known is false for unrecognised content.
func (n *FileNotifier) read() (online, known bool, err error) {
	data, err := os.ReadFile(n.path)
	if errors.Is(err, os.ErrNotExist) {
		return false, true, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("reading %s: %w", n.path, err)
	}
	switch strings.ToLower(strings.TrimSpace(string(data))) {
	case "online":
		return true, true, nil
	case "offline":
		return false, true, nil
	default:
		n.logger.Warn("unrecognised connectivity status", "path", n.path, "content", string(data))
		return false, false, nil
	}
}

var (
	_ wfs.Connectivity = (*StaticNotifier)(nil)
	_ wfs.Connectivity = (*FileNotifier)(nil)
)
