package approve

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// PolicyWatcher hot-reloads the engine's policy when the underlying config
// files change. A reload that fails to parse keeps the previous policy.
type PolicyWatcher struct {
	watcher    *fsnotify.Watcher
	globalPath string
	repoPath   string
	engine     *Engine
	done       chan struct{}
}

// WatchPolicy starts watching the policy files feeding the engine. Either
// path may be empty. Close the returned watcher to stop.
func WatchPolicy(engine *Engine, globalPath, repoPath string) (*PolicyWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	pw := &PolicyWatcher{
		watcher:    fw,
		globalPath: globalPath,
		repoPath:   repoPath,
		engine:     engine,
		done:       make(chan struct{}),
	}

	// Watch the parent directories: editors replace files via rename, which
	// drops a watch on the file itself.
	dirs := map[string]bool{}
	for _, p := range []string{globalPath, repoPath} {
		if p == "" {
			continue
		}
		dirs[filepath.Dir(p)] = true
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}

	go pw.loop()
	return pw, nil
}

func (pw *PolicyWatcher) loop() {
	defer close(pw.done)
	for {
		select {
		case ev, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if !pw.relevant(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			policy, err := LoadPolicy(pw.globalPath, pw.repoPath, "")
			if err != nil {
				slog.Default().Warn("policy reload failed, keeping previous policy",
					"file", ev.Name, "error", err)
				continue
			}
			pw.engine.SetPolicy(policy)
			slog.Default().Info("policy reloaded", "file", ev.Name)
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			slog.Default().Debug("policy watcher error", "error", err)
		}
	}
}

func (pw *PolicyWatcher) relevant(name string) bool {
	return name == pw.globalPath || name == pw.repoPath
}

// Close stops the watcher and waits for the reload loop to exit.
func (pw *PolicyWatcher) Close() error {
	err := pw.watcher.Close()
	<-pw.done
	return err
}
