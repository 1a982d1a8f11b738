package privacy

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kestrelsoft/screenmemory/internal/session"
)

// Reloader watches privacy.toml for writes and delivers freshly parsed
// policies on Updates. It is also driven manually by the engine's
// ReloadPrivacyPolicy command, which calls Reload directly — both paths
// converge on the same Load function so behaviour is identical regardless
// of trigger.
type Reloader struct {
	path    string
	watcher *fsnotify.Watcher
	updates chan *session.Privacy
	log     *slog.Logger
}

// NewReloader starts watching path for changes. Updates must be drained by
// the caller; Close stops the watcher but does not close Updates.
func NewReloader(path string, log *slog.Logger) (*Reloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watching the containing directory (rather than the file itself)
	// survives editors that replace the file instead of writing in place.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return nil, err
	}

	r := &Reloader{
		path:    path,
		watcher: watcher,
		updates: make(chan *session.Privacy, 1),
		log:     log,
	}
	go r.run()
	return r, nil
}

// Updates returns the channel on which freshly reloaded policies are
// delivered.
func (r *Reloader) Updates() <-chan *session.Privacy {
	return r.updates
}

// Reload parses the policy file immediately and returns it, also emitting
// it on Updates so a single code path (the engine's ReloadPrivacyPolicy
// command and filesystem-driven reload) handles both triggers.
func (r *Reloader) Reload() (*session.Privacy, error) {
	p, err := Load(r.path)
	if err != nil {
		return nil, err
	}
	select {
	case r.updates <- p:
	default:
		// A previous reload is still unconsumed; drop it in favour of the
		// newer one rather than blocking.
		select {
		case <-r.updates:
		default:
		}
		r.updates <- p
	}
	return p, nil
}

func (r *Reloader) run() {
	for {
		select {
		case evt, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(evt.Name) != filepath.Base(r.path) {
				continue
			}
			if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if _, err := r.Reload(); err != nil && r.log != nil {
				r.log.Warn("privacy: failed to reload policy after file change", "path", r.path, "error", err)
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			if r.log != nil {
				r.log.Warn("privacy: watcher error", "error", err)
			}
		}
	}
}

// Close stops the underlying filesystem watcher.
func (r *Reloader) Close() error {
	return r.watcher.Close()
}
