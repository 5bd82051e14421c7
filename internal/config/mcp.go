package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/foundryhq/assistant/internal/mcpserver"
)

// LoadServers reads the declarative tool-server list: a JSON array of
// {id, command, args, env, enabled} entries. Disabled entries are dropped.
func LoadServers(path string) ([]mcpserver.ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read server config: %w", err)
	}

	var entries []mcpserver.ServerConfig
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse server config %s: %w", path, err)
	}

	enabled := make([]mcpserver.ServerConfig, 0, len(entries))

	for _, entry := range entries {
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("server config %s: %w", path, err)
		}

		if entry.Enabled {
			enabled = append(enabled, entry)
		}
	}

	return enabled, nil
}

// watchDebounce coalesces the write bursts editors produce into one reload.
const watchDebounce = 250 * time.Millisecond

// WatchServers watches the server config file and invokes onChange with the
// freshly loaded list after each modification. Parse failures are logged and
// the previous configuration stays in effect. The returned stop function
// closes the watcher.
func WatchServers(log *slog.Logger, path string, onChange func([]mcpserver.ServerConfig)) (stop func() error, err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory: editors replace files by rename, which drops a
	// watch on the file itself.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()

		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)

	go func() {
		var timer *time.Timer

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}

				if filepath.Clean(event.Name) != target {
					continue
				}

				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
					continue
				}

				if timer != nil {
					timer.Stop()
				}

				timer = time.AfterFunc(watchDebounce, func() {
					configs, err := LoadServers(path)
					if err != nil {
						log.Warn("Server config reload failed, keeping previous", "path", path, "error", err)

						return
					}

					log.Info("Server config changed, reloading", "path", path, "servers", len(configs))
					onChange(configs)
				})

			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}

				log.Warn("Config watcher error", "error", werr)
			}
		}
	}()

	return watcher.Close, nil
}
