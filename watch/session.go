package watch

import (
	"log/slog"

	"github.com/pairkit/server/rpc"
	"github.com/pairkit/server/session"
)

const sessionChangedMethod = "session.changed"

// SessionSource is the registry view a SessionWatcher needs.
type SessionSource interface {
	ListActive() []session.Session
	SetOnChangeListener(listener session.OnChangeListener)
}

// SessionWatcher forwards registry changes to subscribers. The registry
// calls OnSessionChange under its lock, so events are queued and sent from
// a separate goroutine.
type SessionWatcher struct {
	*BaseWatcher
	source  SessionSource
	eventCh chan session.SessionChangeEvent
}

func NewSessionWatcher(source SessionSource) *SessionWatcher {
	w := &SessionWatcher{
		BaseWatcher: NewBaseWatcher("ss"),
		source:      source,
		eventCh:     make(chan session.SessionChangeEvent, 64),
	}
	source.SetOnChangeListener(w)
	return w
}

func (w *SessionWatcher) Start() error {
	go w.eventLoop()
	slog.Info("session watcher started")
	return nil
}

func (w *SessionWatcher) Stop() {
	w.Cancel()
	slog.Info("session watcher stopped")
}

func (w *SessionWatcher) eventLoop() {
	for {
		select {
		case <-w.Context().Done():
			return
		case event := <-w.eventCh:
			w.notifyChange(event)
		}
	}
}

func (w *SessionWatcher) notifyChange(event session.SessionChangeEvent) {
	if !w.HasSubscriptions() {
		return
	}

	n := w.NotifyAll(sessionChangedMethod, func(sub *Subscription) any {
		params := rpc.SessionChangedParams{
			ID:        sub.ID,
			Operation: string(event.Op),
		}
		if event.Op == session.OperationDelete {
			params.Topic = event.Session.Topic
		} else {
			sess := event.Session
			params.Session = &sess
		}
		return params
	})

	slog.Debug("notified session change", "operation", event.Op, "topic", event.Session.Topic, "subscribers", n)
}

// Subscribe registers conn and returns the subscription id with the current
// active sessions. The subscription is added first so no change between the
// two steps is missed.
func (w *SessionWatcher) Subscribe(conn Notifier, connID string) (string, []session.Session) {
	id := w.GenerateID()
	w.AddSubscription(&Subscription{ID: id, ConnID: connID, Conn: conn})

	sessions := w.source.ListActive()
	slog.Debug("session subscription added", "watchId", id, "connId", connID)
	return id, sessions
}

func (w *SessionWatcher) Unsubscribe(id string) {
	if sub := w.RemoveSubscription(id); sub != nil {
		slog.Debug("session subscription removed", "watchId", id, "connId", sub.ConnID)
	}
}

// OnSessionChange implements session.OnChangeListener. It never blocks; when
// the buffer is full the event is dropped and subscribers see it on their
// next session.list.
func (w *SessionWatcher) OnSessionChange(event session.SessionChangeEvent) {
	if w.Context().Err() != nil {
		return
	}

	select {
	case w.eventCh <- event:
	default:
		slog.Warn("session change event dropped (buffer full)", "operation", event.Op, "topic", event.Session.Topic)
	}
}
