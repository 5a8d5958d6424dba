package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/overcooked/overcooked/internal/task"
)

// importFile is the accepted on-disk shape for dropped task files: the
// content fields of a record. Identity and sync state are assigned by the
// mutator on create.
type importFile struct {
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Kind        string     `json:"kind,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	GroupID     string     `json:"group_id,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

// startImportWatcher begins watching ImportDir for task JSON files.
func (d *Daemon) startImportWatcher() error {
	if err := os.MkdirAll(d.config.ImportDir, 0755); err != nil {
		return fmt.Errorf("failed to create import directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(d.config.ImportDir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch import directory: %w", err)
	}
	d.watcher = watcher
	d.config.Logger.Printf("Watching import directory: %s", d.config.ImportDir)

	d.wg.Add(2)
	go d.watchImportEvents()
	go d.processImportQueue()
	return nil
}

// watchImportEvents queues file events for debounced processing.
func (d *Daemon) watchImportEvents() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return

		case event, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			// Only care about Create and Write; removals need no action.
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if filepath.Ext(event.Name) != ".json" {
				continue
			}

			d.changeQueueMu.Lock()
			d.changeQueue[event.Name] = time.Now()
			d.changeQueueMu.Unlock()

		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

// processImportQueue imports files that have been quiet long enough.
func (d *Daemon) processImportQueue() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.config.DebounceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.importPendingFiles()
		}
	}
}

// importPendingFiles drains the debounce queue once.
func (d *Daemon) importPendingFiles() {
	d.changeQueueMu.Lock()
	defer d.changeQueueMu.Unlock()

	now := time.Now()
	for path, queuedAt := range d.changeQueue {
		if now.Sub(queuedAt) < d.config.DebounceInterval {
			continue
		}
		delete(d.changeQueue, path)

		if err := d.importFile(path); err != nil {
			d.config.Logger.Printf("WARNING: Failed to import %s: %v", filepath.Base(path), err)
			continue
		}

		// Consume the file so a restart does not import it again.
		if err := os.Remove(path); err != nil {
			d.config.Logger.Printf("WARNING: Failed to remove imported file %s: %v", path, err)
		}
	}
}

// importFile reads one dropped file and creates the task through the
// mutation path, so it syncs like any other local edit.
func (d *Daemon) importFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var f importFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse file: %w", err)
	}
	if f.Title == "" {
		return fmt.Errorf("title is required")
	}

	rec := task.New(f.Title)
	rec.Description = f.Description
	rec.Category = f.Category
	rec.Notes = f.Notes
	rec.GroupID = f.GroupID
	rec.Deadline = f.Deadline
	if k := task.Kind(f.Kind); k.Valid() {
		rec.Kind = k
	}
	if p := task.Priority(f.Priority); p.Valid() {
		rec.Priority = p
	}

	if err := d.mutator.Create(rec); err != nil {
		return err
	}
	d.config.Logger.Printf("Imported task %s (%s)", rec.RemoteKey, rec.Title)
	return nil
}
