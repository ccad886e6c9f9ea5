package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/tis24dev/savesync/internal/catalog"
)

var notifySignals = signal.Notify

// SaveFileChanged records a write to a save file: the savestate time (for a
// savestate) and the play time of its title are set to now and the next
// resume is armed. It reports whether name belongs to a known title.
func (s *Session) SaveFileChanged(ctx context.Context, name string) bool {
	if ignoredSaveFile(name) {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	title, state, err := s.opts.Catalog.TitleForSaveFile(ctx, name)
	if err != nil {
		if !errors.Is(err, catalog.ErrTitleNotFound) {
			s.logger.Warning("Save file lookup failed for %s: %v", name, err)
		}
		return false
	}

	if state != nil {
		if err := s.opts.Catalog.RecordSavestate(ctx, title.FileName, state.Slot, state.FileName, s.opts.Now()); err != nil {
			s.logger.Warning("Failed to record savestate %s: %v", name, err)
			return false
		}
	}
	if err := s.titlePlayedLocked(ctx, title.FileName); err != nil {
		s.logger.Warning("Failed to mark %s played: %v", title.FileName, err)
		return false
	}
	s.logger.Debug("Save file changed: %s (%s)", name, title.FileName)
	return true
}

// Watch watches the save directory until ctx is done. Writes to known save
// files trigger Resume once the directory has been quiet for quiet. SIGUSR1
// forces an immediate attempt.
func (s *Session) Watch(ctx context.Context, dir string, quiet time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create save directory watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	timer := time.NewTimer(quiet)
	if !timer.Stop() {
		<-timer.C
	}
	armed := false

	s.logger.Info("Watching %s (quiet period %s)", dir, quiet)
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if !s.SaveFileChanged(ctx, filepath.Base(event.Name)) {
				continue
			}
			if armed && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(quiet)
			armed = true

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warning("Save directory watcher: %v", err)

		case <-timer.C:
			armed = false
			s.Resume(ctx)

		case <-sigCh:
			s.logger.Info("Auto backup requested by signal")
			s.ForcePending()
			s.Resume(ctx)
		}
	}
}

func ignoredSaveFile(name string) bool {
	return name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".tmp")
}
