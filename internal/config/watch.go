package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchDebounce = 250 * time.Millisecond

// OnChange registers a callback invoked after every successful
// hot-reload, once the new values are in place and the config's lock
// has been released. Intended for components that
// need to react to a config edit rather than re-read it lazily (for
// example an RPC server rebuilding its authenticator when the shared
// secret rotates).
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Watch starts an fsnotify watch on the backing config.json and
// reloads the merged dictionary whenever it changes, debouncing rapid
// successive writes into a single reload. It returns once the watcher
// is established; the watch loop itself runs until ctx is cancelled
// or Close is called.
func (c *Config) Watch(ctx context.Context, defaults map[string]any) error {
	if c.storage == "" {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(c.storage); err != nil {
		watcher.Close()
		return err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	c.watcher = watcher
	c.watchCancel = cancel

	c.watchWg.Add(1)
	go c.watchLoop(watchCtx, watcher, defaults, defaultWatchDebounce)
	return nil
}

func (c *Config) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, defaults map[string]any, debounce time.Duration) {
	defer c.watchWg.Done()

	var timer *time.Timer
	scheduleReload := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(debounce, func() {
			c.reload(defaults)
		})
	}

	target := filepath.Join(c.storage, configFileName)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case _, ok := <-watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (c *Config) reload(defaults map[string]any) {
	merged, err := c.build(defaults)
	if err != nil {
		c.logger.Warn(context.Background(), "config reload failed", "error", err.Error())
		return
	}

	c.mu.Lock()
	c.values = merged
	callbacks := append([]func(*Config){}, c.onChange...)
	c.mu.Unlock()

	for _, fn := range callbacks {
		fn(c)
	}
}

// Close stops the hot-reload watcher, if one was started via Watch.
func (c *Config) Close() error {
	if c.watcher == nil {
		return nil
	}
	c.watchCancel()
	err := c.watcher.Close()
	c.watchWg.Wait()
	return err
}
