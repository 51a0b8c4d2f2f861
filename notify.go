package mindwell

// NotifyLevel classifies a transient user-facing notification.
type NotifyLevel string

const (
	NotifyInfo  NotifyLevel = "info"
	NotifyError NotifyLevel = "error"
)

// Notifier receives transient user-facing notices: new messages in
// conversations that are not open, and failures that need surfacing (a send
// that could not be delivered, exhausted reconnect attempts). Implementations
// must be safe for concurrent use; the session calls Notify from the event
// loop and from timer goroutines.
type Notifier interface {
	Notify(level NotifyLevel, title, body string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(level NotifyLevel, title, body string)

func (f NotifierFunc) Notify(level NotifyLevel, title, body string) {
	f(level, title, body)
}

type nopNotifier struct{}

func (nopNotifier) Notify(NotifyLevel, string, string) {}
