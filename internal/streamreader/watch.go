// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package streamreader

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const invalidationDebounce = 250 * time.Millisecond

// Invalidator watches a single file and signals Invalidated whenever it is
// written, renamed, or removed, debounced so a burst of writes from one
// editor save collapses into a single signal. A checkpoint whose file
// changed must be discarded, so its holder wants to know promptly.
type Invalidator struct {
	watcher     *fsnotify.Watcher
	Invalidated chan struct{}
	stop        chan struct{}
}

// Watch begins watching path's containing directory (fsnotify does not
// reliably track a single file across rename/remove/recreate) and filters
// events down to path itself.
func Watch(path string) (*Invalidator, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	inv := &Invalidator{
		watcher:     watcher,
		Invalidated: make(chan struct{}, 1),
		stop:        make(chan struct{}),
	}
	go inv.loop(path)
	return inv, nil
}

func (inv *Invalidator) loop(path string) {
	var debounceTimer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case event, ok := <-inv.watcher.Events:
			if !ok {
				return
			}
			if event.Name != path {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(invalidationDebounce)
			timerCh = debounceTimer.C
		case _, ok := <-inv.watcher.Errors:
			if !ok {
				return
			}
		case <-timerCh:
			timerCh = nil
			select {
			case inv.Invalidated <- struct{}{}:
			default:
			}
		case <-inv.stop:
			return
		}
	}
}

// Close stops the watcher goroutine and releases its fsnotify handle.
func (inv *Invalidator) Close() error {
	close(inv.stop)
	return inv.watcher.Close()
}
