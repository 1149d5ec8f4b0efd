package api

import (
	"context"
	"log"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"touchmap/internal/keymap"
)

// debounce collapses the burst of events editors produce for one save
const debounce = 150 * time.Millisecond

// Watcher reports edits made to the mapping file by other programs
type Watcher struct {
	repo     *Repository
	onChange func(keymap.Document)
}

// NewWatcher creates a watcher calling onChange with every valid external edit
func NewWatcher(repo *Repository, onChange func(keymap.Document)) *Watcher {
	return &Watcher{repo: repo, onChange: onChange}
}

// Run watches until ctx is done. The directory is watched rather than the
// file so that editors replacing the file by rename are noticed.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()

	dir := filepath.Dir(w.repo.Path())
	if err := fw.Add(dir); err != nil {
		return err
	}
	log.Printf("API: Watching %s for external edits", w.repo.Path())

	name := filepath.Clean(w.repo.Path())
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Printf("API: Watch error: %v", err)

		case <-timer.C:
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	doc, changed, err := w.repo.changedOnDisk()
	if err != nil {
		log.Printf("Warning: API: Ignoring external edit of %s: %v", w.repo.Path(), err)
		return
	}
	if !changed {
		return
	}
	log.Printf("API: Mapping file changed on disk (%d keys)", doc.KeyMaps.Len())
	w.onChange(doc)
}
