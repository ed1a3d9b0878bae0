// File: config/watch.go
// Watch observes a configuration file for changes and emits a signal an
// operator would otherwise have to send by hand (spec.md §4.8's hot-swap
// "triggered either by SIGHUP or a detected file change"). Grounded on
// the pack's fsnotify dependency; viper itself wraps fsnotify for
// OnConfigChange, but Load builds a fresh viper instance per call, so a
// standalone watcher keeps the trigger mechanism visible rather than
// buried in a viper callback. It needs a file path: with no -c path
// there is nothing to watch.
//
// Author: reactorcore contributors
// License: Apache-2.0
package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher emits on Changed whenever configPath is written or replaced
// (editors typically rename-over-write, which fsnotify reports as a
// Create on the watched directory entry, not a Write on the old inode).
type Watcher struct {
	w       *fsnotify.Watcher
	Changed chan struct{}
	done    chan struct{}
}

// WatchFile starts watching configPath's containing directory for
// changes to that specific file.
func WatchFile(configPath string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(configPath)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	cw := &Watcher{w: fw, Changed: make(chan struct{}, 1), done: make(chan struct{})}
	go cw.loop(configPath)
	return cw, nil
}

func (cw *Watcher) loop(configPath string) {
	base := filepath.Base(configPath)
	for {
		select {
		case ev, ok := <-cw.w.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case cw.Changed <- struct{}{}:
			default: // coalesce bursts of edit events into one pending reload
			}
		case <-cw.done:
			return
		}
	}
}

// Close stops the watcher.
func (cw *Watcher) Close() error {
	close(cw.done)
	return cw.w.Close()
}
