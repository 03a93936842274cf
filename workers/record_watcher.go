package workers

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/lochel/genealogy/logging"
	"github.com/lochel/genealogy/realtime"
	"github.com/lochel/genealogy/repository"
)

const DefaultWatchDebounce = 500 * time.Millisecond

// Queuer accepts diagram jobs. *DiagramRenderer implements it.
type Queuer interface {
	Queue(id, reason string) bool
}

// RecordWatcher watches the relatives directory tree and queues diagram
// regeneration for records changed outside the application. Bursts of events
// for the same record are collapsed.
type RecordWatcher struct {
	watcher  *fsnotify.Watcher
	queue    Queuer
	events   realtime.Broadcaster
	debounce time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewRecordWatcher creates a watcher. events may be nil.
func NewRecordWatcher(queue Queuer, events realtime.Broadcaster, debounce time.Duration) (*RecordWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}
	return &RecordWatcher{
		watcher:  watcher,
		queue:    queue,
		events:   events,
		debounce: debounce,
		done:     make(chan struct{}),
	}, nil
}

// Start watches dir and all of its subdirectories.
func (rw *RecordWatcher) Start(dir string) error {
	rw.mu.Lock()
	defer rw.mu.Unlock()

	if rw.running {
		return fmt.Errorf("watcher already running")
	}
	if err := rw.addTree(dir); err != nil {
		return err
	}

	rw.running = true
	rw.wg.Add(1)
	go rw.processEvents()
	logging.L().Infof("watcher: watching %s for record changes", dir)
	return nil
}

func (rw *RecordWatcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := rw.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch directory %s: %w", path, err)
		}
		return nil
	})
}

// Stop stops watching and waits for the event loop to exit. Changes still
// inside the debounce window are dropped.
func (rw *RecordWatcher) Stop() error {
	rw.mu.Lock()
	if !rw.running {
		rw.mu.Unlock()
		return rw.watcher.Close()
	}
	rw.running = false
	rw.mu.Unlock()

	close(rw.done)
	err := rw.watcher.Close()
	rw.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (rw *RecordWatcher) processEvents() {
	defer rw.wg.Done()

	changed := make(map[string]bool)
	flush := time.NewTimer(rw.debounce)
	flush.Stop()
	defer flush.Stop()

	for {
		select {
		case <-rw.done:
			return

		case event, ok := <-rw.watcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := rw.addTree(event.Name); err != nil {
						logging.L().Warnf("watcher: %v", err)
					}
					continue
				}
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !repository.IsRecordFile(event.Name) {
				continue
			}
			id := strings.TrimSuffix(filepath.Base(event.Name), repository.RecordExtension)
			changed[id] = true
			flush.Reset(rw.debounce)

		case <-flush.C:
			rw.flush(changed)
			changed = make(map[string]bool)

		case err, ok := <-rw.watcher.Errors:
			if !ok {
				return
			}
			logging.L().Warnf("watcher: %v", err)
		}
	}
}

func (rw *RecordWatcher) flush(changed map[string]bool) {
	ids := make([]string, 0, len(changed))
	for id := range changed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		logging.L().Debugf("watcher: record %s changed", id)
		if rw.events != nil {
			rw.events.Broadcast(realtime.Event{Type: realtime.EventRecordChange, Relative: id, Status: "changed"})
		}
		rw.queue.Queue(id, "file changed")
	}
}
