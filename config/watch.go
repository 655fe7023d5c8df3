package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
)

// Watch monitors the .env file and invokes onChange with a freshly loaded
// Config whenever it is rewritten. Only settings that are safe to apply at
// runtime (currently the log level) should be acted on by the callback.
// The watcher stops when ctx is cancelled.
func Watch(ctx context.Context, onChange func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory rather than the file itself: editors and
	// orchestrators replace .env atomically, which breaks a file watch.
	dir, err := os.Getwd()
	if err != nil {
		watcher.Close()
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != ".env" {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					if env, err := godotenv.Read(); err == nil {
						for k, v := range env {
							os.Setenv(k, v)
						}
					}
					onChange(Load())
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return nil
}
