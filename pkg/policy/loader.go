package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/enactproject/enact/pkg/telemetry"
)

// reloadDebounce coalesces bursts of file events into one reload.
const reloadDebounce = 500 * time.Millisecond

// Loader reads policy files from disk. Directories are walked
// recursively; only .rego files are considered. Loaded files are cached
// by path until a watch event or ClearCache invalidates them.
type Loader struct {
	logger  *telemetry.Logger
	mu      sync.RWMutex
	cache   map[string]Policy
	watcher *fsnotify.Watcher
}

// NewLoader creates a loader. A nil logger disables logging.
func NewLoader(logger *telemetry.Logger) *Loader {
	if logger != nil {
		logger = logger.NewComponentLogger("policy-loader")
	}
	return &Loader{
		logger: logger,
		cache:  make(map[string]Policy),
	}
}

// LoadFromPaths loads policies from a list of file or directory paths.
func (l *Loader) LoadFromPaths(ctx context.Context, paths []string) ([]Policy, error) {
	var all []Policy

	for _, path := range paths {
		policies, err := l.loadFromPath(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("load policies from %s: %w", path, err)
		}
		all = append(all, policies...)
	}

	if l.logger != nil {
		l.logger.Infof("loaded %d policies from %d paths", len(all), len(paths))
	}
	return all, nil
}

// loadFromPath loads from a single path, file or directory.
func (l *Loader) loadFromPath(ctx context.Context, path string) ([]Policy, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	if info.IsDir() {
		return l.loadFromDirectory(ctx, path)
	}

	policy, err := l.loadFromFile(path)
	if err != nil {
		return nil, err
	}
	return []Policy{policy}, nil
}

// loadFromDirectory loads every .rego file under the directory.
func (l *Loader) loadFromDirectory(ctx context.Context, dir string) ([]Policy, error) {
	var policies []Policy

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}

		policy, err := l.loadFromFile(path)
		if err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		policies = append(policies, policy)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return policies, nil
}

// loadFromFile loads one .rego file, serving from cache when the path
// was loaded before.
func (l *Loader) loadFromFile(path string) (Policy, error) {
	l.mu.RLock()
	if cached, ok := l.cache[path]; ok {
		l.mu.RUnlock()
		return cached, nil
	}
	l.mu.RUnlock()

	if !strings.HasSuffix(path, ".rego") {
		return Policy{}, fmt.Errorf("unsupported policy file type: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, err
	}

	policy := Policy{
		Name:        strings.TrimSuffix(filepath.Base(path), ".rego"),
		Description: extractDescription(string(data)),
		Source:      path,
		Enabled:     true,
		Rego:        string(data),
	}

	l.mu.Lock()
	l.cache[path] = policy
	l.mu.Unlock()

	if l.logger != nil {
		l.logger.Debugf("loaded policy %s from %s", policy.Name, path)
	}
	return policy, nil
}

// extractDescription collects the leading comment block of a module,
// skipping any package line, and joins it into one line.
func extractDescription(src string) string {
	var desc strings.Builder

	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			comment := strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
			if comment == "" || strings.HasPrefix(comment, "package") {
				continue
			}
			if desc.Len() > 0 {
				desc.WriteString(" ")
			}
			desc.WriteString(comment)
		} else if trimmed != "" {
			break
		}
	}

	return desc.String()
}

// Watch watches the paths for policy changes and calls reload with the
// freshly loaded set after each change, debounced. Watching stops when
// ctx is cancelled. Reload failures are logged, never fatal: the caller
// keeps its previous policy set.
func (l *Loader) Watch(ctx context.Context, paths []string, reload func([]Policy) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}
	l.watcher = watcher

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if l.logger != nil {
				l.logger.Warnf("cannot watch policy path %s: %v", path, err)
			}
			continue
		}

		if info.IsDir() {
			err = l.watchDirectory(path)
		} else {
			err = watcher.Add(path)
		}
		if err != nil && l.logger != nil {
			l.logger.Warnf("cannot watch policy path %s: %v", path, err)
		}
	}

	go l.processEvents(ctx, paths, reload)

	if l.logger != nil {
		l.logger.Infof("watching %d policy paths", len(paths))
	}
	return nil
}

// watchDirectory registers the directory and its subdirectories.
func (l *Loader) watchDirectory(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return l.watcher.Add(path)
		}
		return nil
	})
}

// processEvents turns file events into debounced reloads.
func (l *Loader) processEvents(ctx context.Context, paths []string, reload func([]Policy) error) {
	var timer *time.Timer

	for {
		select {
		case <-ctx.Done():
			_ = l.watcher.Close()
			return

		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			if !strings.HasSuffix(event.Name, ".rego") {
				continue
			}

			if l.logger != nil {
				l.logger.Debugf("policy file changed: %s (%s)", event.Name, event.Op)
			}

			l.mu.Lock()
			delete(l.cache, event.Name)
			l.mu.Unlock()

			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(reloadDebounce, func() {
				if err := l.triggerReload(ctx, paths, reload); err != nil && l.logger != nil {
					l.logger.Errorf("policy reload failed: %v", err)
				}
			})

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			if l.logger != nil {
				l.logger.Errorf("policy watcher error: %v", err)
			}
		}
	}
}

// triggerReload reloads all watched paths and hands the set to the
// caller.
func (l *Loader) triggerReload(ctx context.Context, paths []string, reload func([]Policy) error) error {
	policies, err := l.LoadFromPaths(ctx, paths)
	if err != nil {
		return err
	}
	if err := reload(policies); err != nil {
		return err
	}

	if l.logger != nil {
		l.logger.Infof("reloaded %d policies", len(policies))
	}
	return nil
}

// StopWatching closes the watcher. Safe without a prior Watch.
func (l *Loader) StopWatching() error {
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

// ClearCache drops all cached policy files.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cache = make(map[string]Policy)
}
