package kiara

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// BlueprintWatcher watches Environment.ExtraPipelineFolders for new or
// changed blueprint files and invokes onChange with each file's path and
// the error (nil on success) from parsing it.
// Grounded on config.ConfigWatcher's directory-watch-plus-debounce shape
// (_examples/GoCodeAlone-workflow/config/watcher.go), simplified since a
// blueprint file is parsed and handed to the caller whole rather than
// diffed against a previous version.
type BlueprintWatcher struct {
	folders  []string
	onChange func(path string, err error)

	fsWatcher *fsnotify.Watcher
	done      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewBlueprintWatcher creates a watcher over folders. onChange is called
// for every blueprint file (.yaml/.yml/.json) written or created in any
// watched folder; err is the result of re-parsing it with ParseBlueprint.
func NewBlueprintWatcher(folders []string, onChange func(path string, err error)) *BlueprintWatcher {
	return &BlueprintWatcher{
		folders:  folders,
		onChange: onChange,
		done:     make(chan struct{}),
	}
}

// Start begins watching. It is a no-op returning nil if no folders were
// configured (the common case when extra_pipeline_folders is unset).
func (w *BlueprintWatcher) Start() error {
	if len(w.folders) == 0 {
		return nil
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("kiara: create blueprint watcher: %w", err)
	}
	w.fsWatcher = fsw

	for _, dir := range w.folders {
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("kiara: watch blueprint folder %s: %w", dir, err)
		}
	}

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop terminates the watcher and waits for its goroutine to exit. Safe
// to call multiple times, and safe to call even if Start was a no-op.
func (w *BlueprintWatcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

func (w *BlueprintWatcher) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case evt, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !isBlueprintFile(evt.Name) {
				continue
			}
			w.handle(evt.Name)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.onChange("", err)
		}
	}
}

func (w *BlueprintWatcher) handle(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		w.onChange(path, err)
		return
	}
	_, _, err = ParseBlueprint(data)
	w.onChange(path, err)
}

func isBlueprintFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml" || ext == ".json"
}

// DiscoverBlueprints reads every blueprint file directly present in
// folders (non-recursive, matching spec §6's "additional blueprint
// search paths" rather than an arbitrary directory tree walk) and
// returns, keyed by path, the read or ParseBlueprint error for each file
// (nil when it parsed). The parsed blueprints themselves are not
// returned.
func DiscoverBlueprints(ctx context.Context, folders []string) (map[string]error, error) {
	results := make(map[string]error)
	for _, dir := range folders {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("kiara: read blueprint folder %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isBlueprintFile(entry.Name()) {
				continue
			}
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			default:
			}
			path := filepath.Join(dir, entry.Name())
			data, err := os.ReadFile(path)
			if err != nil {
				results[path] = err
				continue
			}
			_, _, err = ParseBlueprint(data)
			results[path] = err
		}
	}
	return results, nil
}
