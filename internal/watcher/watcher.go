package watcher

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"fswatcher/internal/mirror"
)

const (
	defaultPairWindow = 100 * time.Millisecond
	eventBuffer       = 256
)

// Options configures a Watcher.
type Options struct {
	// PairWindow is how long a rename waits for the matching create before
	// it is reported as a delete.
	PairWindow time.Duration

	// MaxWatches caps the number of watched directories. Zero leaves the
	// limit to the kernel.
	MaxWatches int

	Logger mirror.Logger
}

// Watcher is a recursive mirror.EventSource rooted at one directory.
type Watcher struct {
	fsw  *fsnotify.Watcher
	root string
	opts Options

	events chan mirror.RawEvent
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	closeOnce sync.Once
	closeErr  error

	mu     sync.Mutex
	dirs   map[string]struct{}
	inodes map[string]uint64
}

var _ mirror.EventSource = (*Watcher)(nil)

// Factory returns a mirror.WatchFactory that builds Watchers with opts.
func Factory(opts Options) mirror.WatchFactory {
	return func(root string) (mirror.EventSource, error) {
		return New(root, opts)
	}
}

// New watches root and every directory below it. It returns an error wrapping
// mirror.ErrWatchLimit if the OS or MaxWatches refuses a watch.
func New(root string, opts Options) (*Watcher, error) {
	if opts.PairWindow <= 0 {
		opts.PairWindow = defaultPairWindow
	}
	if opts.Logger == nil {
		opts.Logger = mirror.NewNopLogger()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, translateErr(err)
	}

	w := &Watcher{
		fsw:    fsw,
		root:   filepath.Clean(root),
		opts:   opts,
		events: make(chan mirror.RawEvent, eventBuffer),
		errors: make(chan error, 4),
		done:   make(chan struct{}),
		dirs:   make(map[string]struct{}),
		inodes: make(map[string]uint64),
	}

	if _, err := w.addTree(w.root); err != nil {
		fsw.Close()
		return nil, err
	}
	opts.Logger.Info("watching directory tree", "root", w.root, "directories", w.watchCount())

	w.wg.Add(1)
	go w.run()
	return w, nil
}

func (w *Watcher) Events() <-chan mirror.RawEvent { return w.events }
func (w *Watcher) Errors() <-chan error           { return w.errors }

// Close stops the subscription. It is safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
		w.closeErr = w.fsw.Close()
		w.wg.Wait()
	})
	return w.closeErr
}

type pendingRename struct {
	path  string
	isDir bool
	inode uint64
}

func (w *Watcher) run() {
	defer w.wg.Done()

	var (
		pending *pendingRename
		timer   *time.Timer
		timerC  <-chan time.Time
	)
	flush := func() {
		if pending == nil {
			return
		}
		if timer != nil {
			timer.Stop()
		}
		w.emit(mirror.RawEvent{Op: mirror.OpDeleted, Path: pending.path, IsDir: pending.isDir})
		pending, timer, timerC = nil, nil, nil
	}

	for {
		select {
		case <-w.done:
			return
		case <-timerC:
			flush()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.emitErr(translateErr(err))
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if pending != nil && ev.Has(fsnotify.Create) && w.isRenameTarget(pending, ev.Name) {
				w.handleMove(pending, ev.Name)
				if timer != nil {
					timer.Stop()
				}
				pending, timer, timerC = nil, nil, nil
				continue
			}
			flush()

			if ev.Has(fsnotify.Rename) {
				inode := w.inode(ev.Name)
				pending = &pendingRename{path: ev.Name, isDir: w.forgetTree(ev.Name), inode: inode}
				timer = time.NewTimer(w.opts.PairWindow)
				timerC = timer.C
				continue
			}
			w.handle(ev)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	switch {
	case ev.Has(fsnotify.Create):
		info, err := os.Lstat(ev.Name)
		if err != nil {
			// Gone before we looked.
			return
		}
		w.remember(ev.Name, info)
		if info.IsDir() {
			w.emit(mirror.RawEvent{Op: mirror.OpCreated, Path: ev.Name, IsDir: true})
			w.watchNewDir(ev.Name)
			return
		}
		w.emit(mirror.RawEvent{Op: mirror.OpCreated, Path: ev.Name})
	case ev.Has(fsnotify.Write):
		if info, err := os.Lstat(ev.Name); err == nil {
			w.remember(ev.Name, info)
		}
		w.emit(mirror.RawEvent{Op: mirror.OpModified, Path: ev.Name})
	case ev.Has(fsnotify.Remove):
		isDir := w.forgetTree(ev.Name)
		w.emit(mirror.RawEvent{Op: mirror.OpDeleted, Path: ev.Name, IsDir: isDir})
	case ev.Has(fsnotify.Chmod):
		w.emit(mirror.RawEvent{Op: mirror.OpAttrib, Path: ev.Name})
	}
}

// isRenameTarget reports whether the created path is the file that the pending
// rename moved, by comparing inodes. An unrelated create does not pair.
func (w *Watcher) isRenameTarget(from *pendingRename, created string) bool {
	if from.inode == 0 {
		return false
	}
	info, err := os.Lstat(created)
	if err != nil {
		return false
	}
	return inodeOf(info) == from.inode
}

// handleMove reports a rename whose destination is inside the tree.
func (w *Watcher) handleMove(from *pendingRename, to string) {
	info, err := os.Lstat(to)
	if err == nil {
		w.remember(to, info)
	}
	if from.isDir || (err == nil && info.IsDir()) {
		w.emit(mirror.RawEvent{Op: mirror.OpMoved, Path: from.path, DestPath: to, IsDir: true})
		w.watchNewDir(to)
		return
	}
	w.emit(mirror.RawEvent{Op: mirror.OpMoved, Path: from.path, DestPath: to})
}

// watchNewDir adds watches below dir and reports files that were written
// before the watch existed.
func (w *Watcher) watchNewDir(dir string) {
	files, err := w.addTree(dir)
	if err != nil {
		w.emitErr(err)
		return
	}
	for _, f := range files {
		w.emit(mirror.RawEvent{Op: mirror.OpCreated, Path: f})
	}
}

// addTree watches every directory under root and returns the regular files
// it saw on the way.
func (w *Watcher) addTree(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d iofs.DirEntry, err error) error {
		if err != nil {
			if p != root && errors.Is(err, iofs.ErrNotExist) {
				return nil
			}
			return err
		}
		if info, err := d.Info(); err == nil {
			w.remember(p, info)
		}
		if !d.IsDir() {
			if d.Type().IsRegular() {
				files = append(files, p)
			}
			return nil
		}
		return w.addWatch(p)
	})
	return files, err
}

func (w *Watcher) addWatch(dir string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if w.opts.MaxWatches > 0 && len(w.dirs) >= w.opts.MaxWatches {
		return fmt.Errorf("watching %s: %w (%d directories)", dir, mirror.ErrWatchLimit, len(w.dirs))
	}
	if err := w.fsw.Add(dir); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("watching %s: %w", dir, translateErr(err))
	}
	w.dirs[dir] = struct{}{}
	return nil
}

func (w *Watcher) remember(path string, info iofs.FileInfo) {
	ino := inodeOf(info)
	if ino == 0 {
		return
	}
	w.mu.Lock()
	w.inodes[path] = ino
	w.mu.Unlock()
}

func (w *Watcher) inode(path string) uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inodes[path]
}

// forgetTree drops watches and cached inodes at and below path and reports
// whether path was a watched directory.
func (w *Watcher) forgetTree(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, isDir := w.dirs[path]
	delete(w.inodes, path)
	if !isDir {
		return false
	}
	prefix := path + string(filepath.Separator)
	for d := range w.dirs {
		if d == path || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
			// The kernel may already have dropped it.
			_ = w.fsw.Remove(d)
		}
	}
	for p := range w.inodes {
		if strings.HasPrefix(p, prefix) {
			delete(w.inodes, p)
		}
	}
	return true
}

func (w *Watcher) watchCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.dirs)
}

func (w *Watcher) emit(ev mirror.RawEvent) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

func (w *Watcher) emitErr(err error) {
	w.opts.Logger.Warn("watch error", "root", w.root, "error", err)
	select {
	case w.errors <- err:
	case <-w.done:
	}
}

// translateErr maps kernel resource exhaustion to mirror.ErrWatchLimit.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mirror.ErrWatchLimit) {
		return err
	}
	if errors.Is(err, syscall.ENOSPC) || errors.Is(err, syscall.EMFILE) || errors.Is(err, syscall.ENFILE) {
		return fmt.Errorf("%w: %v", mirror.ErrWatchLimit, err)
	}
	return err
}
