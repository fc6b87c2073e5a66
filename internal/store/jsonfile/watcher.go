package jsonfile

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const eventBufferSize = 100

// skipDirs are never watched. .hive is skipped so the store's own writes do
// not feed back into the watcher.
var skipDirs = map[string]bool{
	".git":         true,
	".hive":        true,
	"node_modules": true,
}

// FileChange reports that a workspace file was written, created or renamed.
type FileChange struct {
	Path      string // slash-separated, relative to the watched root
	Timestamp time.Time
}

// FileWatcher watches a workspace tree with fsnotify and reports debounced
// changes for files matching the include globs.
type FileWatcher struct {
	root    string
	include []string
	delay   time.Duration
	watcher *fsnotify.Watcher
	log     zerolog.Logger

	mu          sync.Mutex
	subscribers []chan<- FileChange
	debounce    map[string]*time.Timer // relative path -> pending notification

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFileWatcher starts watching root and every directory below it.
// Directories created later are added as they appear.
func NewFileWatcher(root string, include []string, delay time.Duration, log zerolog.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	fw := &FileWatcher{
		root:     root,
		include:  include,
		delay:    delay,
		watcher:  watcher,
		log:      log,
		debounce: make(map[string]*time.Timer),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := fw.addTree(root); err != nil {
		cancel()
		_ = watcher.Close()
		return nil, err
	}

	fw.wg.Add(1)
	go fw.run()

	return fw, nil
}

// addTree registers dir and its subdirectories with fsnotify.
func (fw *FileWatcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipDirs[d.Name()] {
			return filepath.SkipDir
		}
		return fw.watcher.Add(path)
	})
}

// Watch returns a channel that receives matching file changes until ctx is
// done or the watcher is closed.
func (fw *FileWatcher) Watch(ctx context.Context) <-chan FileChange {
	ch := make(chan FileChange, eventBufferSize)

	fw.mu.Lock()
	fw.subscribers = append(fw.subscribers, ch)
	fw.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			fw.unsubscribe(ch)
		case <-fw.ctx.Done():
			// Close() closes the channel
		}
	}()

	return ch
}

// Close stops watching and closes all subscriber channels.
func (fw *FileWatcher) Close() error {
	fw.cancel()

	fw.mu.Lock()
	for _, timer := range fw.debounce {
		timer.Stop()
	}
	for _, ch := range fw.subscribers {
		close(ch)
	}
	fw.subscribers = nil
	fw.mu.Unlock()

	err := fw.watcher.Close()
	fw.wg.Wait()
	return err
}

func (fw *FileWatcher) unsubscribe(ch chan<- FileChange) {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	for i, sub := range fw.subscribers {
		if sub == ch {
			fw.subscribers = append(fw.subscribers[:i], fw.subscribers[i+1:]...)
			close(ch)
			return
		}
	}
}

func (fw *FileWatcher) run() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.log.Warn().Err(err).Msg("file watcher error")
		}
	}
}

func (fw *FileWatcher) handleEvent(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !skipDirs[filepath.Base(event.Name)] {
				if err := fw.addTree(event.Name); err != nil {
					fw.log.Warn().Err(err).Str("dir", event.Name).Msg("watch new directory")
				}
			}
			return
		}
	}

	name := filepath.Base(event.Name)
	if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".lock") || strings.HasSuffix(name, "~") {
		return
	}

	rel, err := filepath.Rel(fw.root, event.Name)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	if !fw.matches(rel) {
		return
	}

	fw.mu.Lock()
	if timer, exists := fw.debounce[rel]; exists {
		timer.Stop()
	}
	fw.debounce[rel] = time.AfterFunc(fw.delay, func() {
		fw.notify(rel)
	})
	fw.mu.Unlock()
}

func (fw *FileWatcher) matches(rel string) bool {
	if len(fw.include) == 0 {
		return true
	}
	for _, pattern := range fw.include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

func (fw *FileWatcher) notify(rel string) {
	change := FileChange{Path: rel, Timestamp: time.Now()}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	delete(fw.debounce, rel)
	if fw.ctx.Err() != nil {
		return
	}

	for _, ch := range fw.subscribers {
		select {
		case ch <- change:
		default:
			// subscriber is behind; drop rather than block the watcher
		}
	}
}
