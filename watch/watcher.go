package watch

// Watcher is the lifecycle shared by all watchers.
type Watcher interface {
	Start() error
	Stop()
}

var (
	_ Watcher = (*SessionWatcher)(nil)
	_ Watcher = (*ConfigWatcher)(nil)
)
